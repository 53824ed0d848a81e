package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	userAgent      = "stackagent/1.0"
)

// ClientConfig controls the OpenAI API connection.
type ClientConfig struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	UserAgent  string
}

// Client wraps the OpenAI REST API for provider credential checks.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	userAgent  string
}

// NewClient creates a new OpenAI client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = userAgent
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		userAgent:  ua,
	}
}

// Model describes one entry from the models listing.
type Model struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by"`
}

// ErrUnauthorized indicates the configured API key was rejected.
var ErrUnauthorized = errors.New("openai: api key rejected")

// ListModels fetches the models available to the configured key. A
// successful call doubles as a credential check.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	if c.apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai: unexpected status %d", resp.StatusCode)
	}

	var res modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("openai: failed to decode response: %w", err)
	}
	return res.Data, nil
}

// CheckCredentials verifies the configured key can reach the API.
func (c *Client) CheckCredentials(ctx context.Context) error {
	_, err := c.ListModels(ctx)
	return err
}

type modelsResponse struct {
	Data []Model `json:"data"`
}
