package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	usecaseAPIKey "stackagent/internal/usecase/api_key"
)

func newTestService(repo *mockAPIKeyRepository, prefix string) *usecaseAPIKey.Service {
	return usecaseAPIKey.NewService(usecaseAPIKey.Config{
		Repo:      repo,
		KeyPrefix: prefix,
	})
}

func TestAPIKeyHandler_CreateAPIKey(t *testing.T) {
	futureTime := time.Now().Add(24 * time.Hour)
	pastTime := time.Now().Add(-1 * time.Hour)
	longName := strings.Repeat("a", 101)
	longDesc := strings.Repeat("b", 501)

	tests := []struct {
		name       string
		body       interface{}
		mockError  error
		wantStatus int
		checkResp  bool
	}{
		{
			name:       "success with minimal fields",
			body:       createAPIKeyRequest{},
			wantStatus: http.StatusCreated,
			checkResp:  true,
		},
		{
			name: "success with name",
			body: createAPIKeyRequest{
				Name: stringPtr("Test API Key"),
			},
			wantStatus: http.StatusCreated,
			checkResp:  true,
		},
		{
			name: "success with all fields",
			body: createAPIKeyRequest{
				Name:        stringPtr("Production API Key"),
				Description: stringPtr("API key for production environment"),
				ExpiresAt:   &futureTime,
			},
			wantStatus: http.StatusCreated,
			checkResp:  true,
		},
		{
			name: "error: name too long",
			body: createAPIKeyRequest{
				Name: &longName,
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "error: description too long",
			body: createAPIKeyRequest{
				Description: &longDesc,
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "error: expires_at in the past",
			body: createAPIKeyRequest{
				ExpiresAt: &pastTime,
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "error: invalid JSON",
			body:       `{"name": 123}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "error: malformed JSON",
			body:       `{invalid json`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := newMockAPIKeyRepository()
			mockRepo.err = tt.mockError
			service := newTestService(mockRepo, "test_")
			handler := NewAPIKeyHandler(service, 0)

			ts := newTestServer(RouterConfig{
				APIKeyHandler: handler,
			})
			defer ts.Close()

			var body []byte
			var err error
			if str, ok := tt.body.(string); ok {
				body = []byte(str)
			} else {
				body, err = json.Marshal(tt.body)
				if err != nil {
					t.Fatalf("failed to marshal body: %v", err)
				}
			}

			req, err := http.NewRequest(http.MethodPost, ts.URL+apiPath("/api-keys"), bytes.NewReader(body))
			if err != nil {
				t.Fatalf("failed to create request: %v", err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("failed to send request: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			if tt.checkResp && resp.StatusCode == http.StatusCreated {
				var result apiKeyResponse
				if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}

				if result.ID == uuid.Nil {
					t.Error("ID should not be nil UUID")
				}

				if result.Key == "" {
					t.Error("key should not be empty")
				}
				if !strings.HasPrefix(result.Key, "test_") {
					t.Errorf("key should start with 'test_', got %q", result.Key)
				}

				if result.CreatedAt.IsZero() {
					t.Error("created_at should be set")
				}

				// Only the hashed verifier may land in storage.
				stored, err := mockRepo.GetByID(req.Context(), result.ID)
				if err != nil {
					t.Fatalf("stored key not found: %v", err)
				}
				if stored.VerifierHash == "" {
					t.Error("verifier hash should be stored")
				}
				if strings.Contains(stored.VerifierHash, result.Key) {
					t.Error("plaintext key must not appear in the stored verifier")
				}

				reqBody := tt.body.(createAPIKeyRequest)
				if reqBody.Name != nil && result.Name != nil && *result.Name != *reqBody.Name {
					t.Errorf("name = %q, want %q", *result.Name, *reqBody.Name)
				}
				if reqBody.Description != nil && result.Description != nil && *result.Description != *reqBody.Description {
					t.Errorf("description = %q, want %q", *result.Description, *reqBody.Description)
				}
				if reqBody.ExpiresAt != nil && result.ExpiresAt != nil {
					diff := reqBody.ExpiresAt.Sub(*result.ExpiresAt)
					if diff < 0 {
						diff = -diff
					}
					if diff > time.Second {
						t.Errorf("expires_at difference too large: %v", diff)
					}
				}
			}
		})
	}
}

func TestAPIKeyHandler_CreateClampsExpiryToTTL(t *testing.T) {
	mockRepo := newMockAPIKeyRepository()
	service := newTestService(mockRepo, "test_")
	handler := NewAPIKeyHandler(service, time.Hour)

	ts := newTestServer(RouterConfig{APIKeyHandler: handler})
	defer ts.Close()

	requested := time.Now().UTC().Add(48 * time.Hour)
	body, _ := json.Marshal(createAPIKeyRequest{ExpiresAt: &requested})

	resp, err := http.Post(ts.URL+apiPath("/api-keys"), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to send request: %v", err)
	}
	defer resp.Body.Close()
	assertStatus(t, resp, http.StatusCreated)

	var result apiKeyResponse
	decodeJSON(t, resp, &result)

	if result.ExpiresAt == nil {
		t.Fatal("expires_at should be set when a TTL is configured")
	}
	if result.ExpiresAt.After(time.Now().UTC().Add(time.Hour + time.Minute)) {
		t.Errorf("expires_at %v exceeds the configured TTL ceiling", result.ExpiresAt)
	}
}

func TestAPIKeyHandler_ListAPIKeys(t *testing.T) {
	mockRepo := newMockAPIKeyRepository()
	service := newTestService(mockRepo, "test_")
	handler := NewAPIKeyHandler(service, 0)

	ts := newTestServer(RouterConfig{APIKeyHandler: handler})
	defer ts.Close()

	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("key-%d", i)
		body, _ := json.Marshal(createAPIKeyRequest{Name: &name})
		resp, err := http.Post(ts.URL+apiPath("/api-keys"), "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("failed to create key: %v", err)
		}
		resp.Body.Close()
	}

	resp := ts.get(t, apiPath("/api-keys"))
	assertStatus(t, resp, http.StatusOK)
	assertContentType(t, resp, "application/json")

	var result apiKeyListResponse
	decodeJSON(t, resp, &result)

	if result.Total != 3 {
		t.Errorf("total = %d, want 3", result.Total)
	}
	for _, item := range result.Keys {
		if item.ID == uuid.Nil {
			t.Error("listed key has nil ID")
		}
		if item.Expired {
			t.Errorf("key %s should not be expired", item.ID)
		}
	}
}

func TestAPIKeyHandler_DeleteAPIKey(t *testing.T) {
	mockRepo := newMockAPIKeyRepository()
	service := newTestService(mockRepo, "test_")
	handler := NewAPIKeyHandler(service, 0)

	ts := newTestServer(RouterConfig{APIKeyHandler: handler})
	defer ts.Close()

	body, _ := json.Marshal(createAPIKeyRequest{})
	createResp, err := http.Post(ts.URL+apiPath("/api-keys"), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}
	var created apiKeyResponse
	decodeJSON(t, createResp, &created)

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{"delete existing", created.ID.String(), http.StatusNoContent},
		{"delete again", created.ID.String(), http.StatusNotFound},
		{"unknown id", uuid.NewString(), http.StatusNotFound},
		{"bad id", "not-a-uuid", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodDelete, ts.URL+apiPath("/api-keys/"+tt.id), nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("failed to send request: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestAPIKeyHandler_VerifyAPIKey(t *testing.T) {
	mockRepo := newMockAPIKeyRepository()
	service := newTestService(mockRepo, "test_")
	handler := NewAPIKeyHandler(service, 0)

	ts := newTestServer(RouterConfig{APIKeyHandler: handler})
	defer ts.Close()

	createBody, _ := json.Marshal(createAPIKeyRequest{Name: stringPtr("verify me")})
	createResp, err := http.Post(ts.URL+apiPath("/api-keys"), "application/json", bytes.NewReader(createBody))
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}
	var created apiKeyResponse
	decodeJSON(t, createResp, &created)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantValid  bool
		wantReason string
	}{
		{
			name:       "valid key",
			body:       fmt.Sprintf(`{"key": %q}`, created.Key),
			wantStatus: http.StatusOK,
			wantValid:  true,
		},
		{
			name:       "tampered key",
			body:       fmt.Sprintf(`{"key": %q}`, created.Key+"x"),
			wantStatus: http.StatusOK,
			wantValid:  false,
			wantReason: "invalid",
		},
		{
			name:       "missing key field",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+apiPath("/api-keys/verify"), "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("failed to send request: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var result verifyAPIKeyResponse
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if result.Valid != tt.wantValid {
				t.Errorf("valid = %v, want %v", result.Valid, tt.wantValid)
			}
			if result.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", result.Reason, tt.wantReason)
			}
			if tt.wantValid {
				if result.KeyID == nil || *result.KeyID != created.ID {
					t.Errorf("key_id = %v, want %v", result.KeyID, created.ID)
				}
			}
		})
	}
}

func TestAPIKeyHandler_VerifyExpiredKey(t *testing.T) {
	mockRepo := newMockAPIKeyRepository()
	service := newTestService(mockRepo, "test_")
	handler := NewAPIKeyHandler(service, 30*time.Millisecond)

	ts := newTestServer(RouterConfig{APIKeyHandler: handler})
	defer ts.Close()

	body, _ := json.Marshal(createAPIKeyRequest{})
	createResp, err := http.Post(ts.URL+apiPath("/api-keys"), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}
	var created apiKeyResponse
	decodeJSON(t, createResp, &created)

	time.Sleep(50 * time.Millisecond)

	verifyBody := fmt.Sprintf(`{"key": %q}`, created.Key)
	resp, err := http.Post(ts.URL+apiPath("/api-keys/verify"), "application/json", strings.NewReader(verifyBody))
	if err != nil {
		t.Fatalf("failed to send request: %v", err)
	}
	defer resp.Body.Close()
	assertStatus(t, resp, http.StatusOK)

	var result verifyAPIKeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.Valid {
		t.Error("expired key should not verify")
	}
	if result.Reason != "expired" {
		t.Errorf("reason = %q, want %q", result.Reason, "expired")
	}
}

func TestAPIKeyHandler_NilService(t *testing.T) {
	handler := NewAPIKeyHandler(nil, 0)

	ts := newTestServer(RouterConfig{
		APIKeyHandler: handler,
	})
	defer ts.Close()

	body, _ := json.Marshal(createAPIKeyRequest{
		Name: stringPtr("Test"),
	})

	req, _ := http.NewRequest(http.MethodPost, ts.URL+apiPath("/api-keys"), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
}

func TestAPIKeyHandler_RepositoryError(t *testing.T) {
	mockRepo := newMockAPIKeyRepository()
	mockRepo.err = fmt.Errorf("postgres connection error")
	service := newTestService(mockRepo, "test_")
	handler := NewAPIKeyHandler(service, 0)

	ts := newTestServer(RouterConfig{
		APIKeyHandler: handler,
	})
	defer ts.Close()

	body, _ := json.Marshal(createAPIKeyRequest{
		Name: stringPtr("Test"),
	})

	req, _ := http.NewRequest(http.MethodPost, ts.URL+apiPath("/api-keys"), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
}

func TestAPIKeyHandler_ResponseFormat(t *testing.T) {
	mockRepo := newMockAPIKeyRepository()
	service := newTestService(mockRepo, "sa_live_")
	handler := NewAPIKeyHandler(service, 0)

	router := NewRouter(RouterConfig{
		APIKeyHandler: handler,
		APIBasePath:   testAPIBasePath,
	})

	name := "Test Key"
	desc := "Test description"
	expiresAt := time.Now().Add(7 * 24 * time.Hour)

	body, _ := json.Marshal(createAPIKeyRequest{
		Name:        &name,
		Description: &desc,
		ExpiresAt:   &expiresAt,
	})

	req := httptest.NewRequest(http.MethodPost, apiPath("/api-keys"), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	contentType := rec.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want %q", contentType, "application/json")
	}

	var result apiKeyResponse
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if result.ID == uuid.Nil {
		t.Error("ID should not be nil UUID")
	}

	if result.Key == "" {
		t.Error("key should not be empty")
	}

	if !strings.HasPrefix(result.Key, "sa_live_") {
		t.Errorf("key should start with 'sa_live_', got %q", result.Key)
	}

	if result.Name == nil || *result.Name != name {
		t.Errorf("name = %v, want %q", result.Name, name)
	}
	if result.Description == nil || *result.Description != desc {
		t.Errorf("description = %v, want %q", result.Description, desc)
	}
}
