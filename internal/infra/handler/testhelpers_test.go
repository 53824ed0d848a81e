package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"stackagent/internal/domain/api_key"
	"stackagent/internal/domain/repository"
)

const testAPIBasePath = "/api"

func apiPath(route string) string {
	return joinAPIPath(testAPIBasePath, route)
}

// testServer wraps httptest.Server for integration testing.
type testServer struct {
	*httptest.Server
	router http.Handler
}

// newTestServer creates a test HTTP server with the given handlers.
func newTestServer(cfg RouterConfig) *testServer {
	if cfg.APIBasePath == "" {
		cfg.APIBasePath = testAPIBasePath
	}
	router := NewRouter(cfg)
	srv := httptest.NewServer(router)
	return &testServer{
		Server: srv,
		router: router,
	}
}

// get performs a GET request to the test server.
func (ts *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	return resp
}

// decodeJSON decodes response body as JSON.
func decodeJSON(t *testing.T, resp *http.Response, dest interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
}

// assertStatus checks HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Errorf("status = %d, want %d", resp.StatusCode, want)
	}
}

// assertContentType checks Content-Type header.
func assertContentType(t *testing.T, resp *http.Response, want string) {
	t.Helper()
	got := resp.Header.Get("Content-Type")
	if got != want {
		t.Errorf("Content-Type = %q, want %q", got, want)
	}
}

func stringPtr(s string) *string {
	return &s
}

// mockAPIKeyRepository is an in-memory repository for isolated handler testing.
type mockAPIKeyRepository struct {
	mu   sync.Mutex
	keys map[api_key.ID]*api_key.APIKey
	err  error
}

func newMockAPIKeyRepository() *mockAPIKeyRepository {
	return &mockAPIKeyRepository{keys: make(map[api_key.ID]*api_key.APIKey)}
}

func (m *mockAPIKeyRepository) Store(ctx context.Context, key *api_key.APIKey) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = make(map[api_key.ID]*api_key.APIKey)
	}
	m.keys[key.ID] = key
	return nil
}

func (m *mockAPIKeyRepository) GetByID(ctx context.Context, id api_key.ID) (*api_key.APIKey, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if key, ok := m.keys[id]; ok {
		return key, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockAPIKeyRepository) List(ctx context.Context) ([]*api_key.APIKey, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]*api_key.APIKey, 0, len(m.keys))
	for _, key := range m.keys {
		keys = append(keys, key)
	}
	return keys, nil
}

func (m *mockAPIKeyRepository) ReplaceVerifierHash(ctx context.Context, id api_key.ID, verifierHash string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[id]
	if !ok {
		return repository.ErrNotFound
	}
	key.VerifierHash = verifierHash
	return nil
}

func (m *mockAPIKeyRepository) Delete(ctx context.Context, id api_key.ID) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.keys, id)
	return nil
}
