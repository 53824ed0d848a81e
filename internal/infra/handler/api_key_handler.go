package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"stackagent/internal/domain/repository"
	usecaseAPIKey "stackagent/internal/usecase/api_key"
)

// APIKeyHandler handles /api-keys endpoints.
type APIKeyHandler struct {
	service   *usecaseAPIKey.Service
	apiKeyTTL time.Duration
}

// NewAPIKeyHandler creates an APIKeyHandler. apiKeyTTL, when positive, sets
// a default expiry on newly minted keys; requests may shorten it but never
// extend it.
func NewAPIKeyHandler(service *usecaseAPIKey.Service, apiKeyTTL time.Duration) *APIKeyHandler {
	return &APIKeyHandler{
		service:   service,
		apiKeyTTL: apiKeyTTL,
	}
}

// RegisterRoutes wires API key routes.
func (h *APIKeyHandler) RegisterRoutes(r chiRouter) {
	r.Post("/api-keys", h.handleCreateAPIKey)
	r.Get("/api-keys", h.handleListAPIKeys)
	r.Delete("/api-keys/{id}", h.handleDeleteAPIKey)
	r.Post("/api-keys/verify", h.handleVerifyAPIKey)
}

func (h *APIKeyHandler) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeError(w, http.StatusInternalServerError, errServiceUnavailable)
		return
	}

	var req createAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if req.Name != nil && len(*req.Name) > 100 {
		writeError(w, http.StatusBadRequest, errors.New("name must be at most 100 characters"))
		return
	}

	if req.Description != nil && len(*req.Description) > 500 {
		writeError(w, http.StatusBadRequest, errors.New("description must be at most 500 characters"))
		return
	}

	expiresAt, err := h.resolveExpiry(req.ExpiresAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ip := extractIP(r.RemoteAddr)
	userAgent := r.UserAgent()

	generated, err := h.service.GenerateAPIKey(r.Context(), usecaseAPIKey.GenerateParams{
		Name:        req.Name,
		Description: req.Description,
		ExpiresAt:   expiresAt,
		CreatedIP:   &ip,
		CreatedUA:   &userAgent,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// The plaintext key appears only in this response.
	writeJSON(w, http.StatusCreated, apiKeyResponse{
		ID:          generated.ID,
		Key:         generated.Key,
		Name:        generated.Name,
		Description: generated.Description,
		CreatedAt:   generated.CreatedAt,
		ExpiresAt:   generated.ExpiresAt,
	})
}

func (h *APIKeyHandler) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeError(w, http.StatusInternalServerError, errServiceUnavailable)
		return
	}

	keys, err := h.service.ListAPIKeys(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	items := make([]apiKeyListItem, 0, len(keys))
	for _, key := range keys {
		items = append(items, apiKeyListItem{
			ID:          key.ID,
			Name:        key.Name,
			Description: key.Description,
			CreatedAt:   key.CreatedAt,
			ExpiresAt:   key.ExpiresAt,
			Expired:     key.Expired(time.Now().UTC()),
		})
	}

	writeJSON(w, http.StatusOK, apiKeyListResponse{Keys: items, Total: len(items)})
}

func (h *APIKeyHandler) handleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeError(w, http.StatusInternalServerError, errServiceUnavailable)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("id must be a UUID"))
		return
	}

	if err := h.service.RevokeAPIKey(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, errors.New("api key not found"))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *APIKeyHandler) handleVerifyAPIKey(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeError(w, http.StatusInternalServerError, errServiceUnavailable)
		return
	}

	var req verifyAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		writeError(w, http.StatusBadRequest, errors.New("key is required"))
		return
	}

	key, err := h.service.VerifyAPIKey(r.Context(), req.Key)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, verifyAPIKeyResponse{
			Valid:     true,
			KeyID:     &key.ID,
			Name:      key.Name,
			ExpiresAt: key.ExpiresAt,
		})
	case errors.Is(err, usecaseAPIKey.ErrKeyExpired):
		writeJSON(w, http.StatusOK, verifyAPIKeyResponse{Valid: false, Reason: "expired"})
	case errors.Is(err, usecaseAPIKey.ErrInvalidKey):
		writeJSON(w, http.StatusOK, verifyAPIKeyResponse{Valid: false, Reason: "invalid"})
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

// resolveExpiry clamps a requested expiry to the configured TTL. A zero TTL
// means keys are perpetual unless the request sets an expiry itself.
func (h *APIKeyHandler) resolveExpiry(requested *time.Time) (*time.Time, error) {
	now := time.Now().UTC()

	var ceiling *time.Time
	if h.apiKeyTTL > 0 {
		c := now.Add(h.apiKeyTTL)
		ceiling = &c
	}

	if requested == nil {
		return ceiling, nil
	}
	if !requested.After(now) {
		return nil, errors.New("expires_at must be in the future")
	}
	if ceiling != nil && requested.After(*ceiling) {
		return ceiling, nil
	}
	exp := requested.UTC()
	return &exp, nil
}

func extractIP(remoteAddr string) string {
	// RemoteAddr has the form "IP:port"
	if idx := strings.LastIndex(remoteAddr, ":"); idx != -1 {
		return remoteAddr[:idx]
	}
	return remoteAddr
}

type createAPIKeyRequest struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

type apiKeyResponse struct {
	ID          uuid.UUID  `json:"id"`
	Key         string     `json:"key"`
	Name        *string    `json:"name,omitempty"`
	Description *string    `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type apiKeyListItem struct {
	ID          uuid.UUID  `json:"id"`
	Name        *string    `json:"name,omitempty"`
	Description *string    `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Expired     bool       `json:"expired"`
}

type apiKeyListResponse struct {
	Keys  []apiKeyListItem `json:"keys"`
	Total int              `json:"total"`
}

type verifyAPIKeyRequest struct {
	Key string `json:"key"`
}

type verifyAPIKeyResponse struct {
	Valid     bool       `json:"valid"`
	Reason    string     `json:"reason,omitempty"`
	KeyID     *uuid.UUID `json:"key_id,omitempty"`
	Name      *string    `json:"name,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
