package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keygatehq/keygate/internal/credential"
	"github.com/keygatehq/keygate/internal/entitlement"
	"github.com/keygatehq/keygate/internal/model"
	"github.com/keygatehq/keygate/internal/server/middleware"
	"github.com/keygatehq/keygate/internal/store"
)

// KeyHandler serves the owner-scoped key-management endpoints. Every
// operation is bound to the session account; list responses expose the
// visible prefix and metadata but never a digest or plaintext.
type KeyHandler struct {
	store     *store.Store
	generator *credential.Generator
	hasher    *credential.Hasher
	gate      entitlement.Gate
	logger    *slog.Logger
}

// NewKeyHandler creates a KeyHandler.
func NewKeyHandler(st *store.Store, gen *credential.Generator, hasher *credential.Hasher, gate entitlement.Gate, logger *slog.Logger) *KeyHandler {
	return &KeyHandler{
		store:     st,
		generator: gen,
		hasher:    hasher,
		gate:      gate,
		logger:    logger,
	}
}

type createKeyRequest struct {
	DisplayName string     `json:"display_name"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Create mints a new API key for the session account. The entitlement gate
// decides admission and quota; the plaintext is returned exactly once.
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())

	var req createKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now()) {
		writeError(w, http.StatusBadRequest, "invalid_request", "expires_at is in the past")
		return
	}

	decision, err := h.gate.Authorize(r.Context(), accountID)
	if err != nil {
		h.logger.Error("entitlement check failed", "account_id", accountID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "entitlement_unavailable", "entitlement service unavailable")
		return
	}
	if !decision.Allowed {
		writeError(w, http.StatusForbidden, "not_entitled", "account may not create API keys")
		return
	}

	plaintext, err := h.generator.Generate()
	if err != nil {
		h.logger.Error("key generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "key generation failed")
		return
	}
	digest, err := h.hasher.Hash(plaintext)
	if err != nil {
		h.logger.Error("key hashing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "key generation failed")
		return
	}

	key := &model.APIKey{
		OwnerID:        accountID,
		DisplayName:    req.DisplayName,
		Digest:         digest,
		Fingerprint:    credential.Fingerprint(plaintext),
		VisiblePrefix:  credential.ShortPrefix(plaintext),
		QuotaPerWindow: decision.QuotaPerWindow,
		IsActive:       true,
		ExpiresAt:      req.ExpiresAt,
	}
	if err := h.store.CreateAPIKey(r.Context(), key); err != nil {
		h.logger.Error("key insert failed", "account_id", accountID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage temporarily unavailable")
		return
	}

	writeJSON(w, http.StatusCreated, model.KeyCreatedResponse{Key: *key, Plaintext: plaintext})
}

// List returns the session account's keys, newest first.
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())

	keys, err := h.store.ListKeysForOwner(r.Context(), accountID)
	if err != nil {
		h.logger.Error("key list failed", "account_id", accountID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage temporarily unavailable")
		return
	}
	if keys == nil {
		keys = []model.APIKey{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"keys": keys})
}

// Revoke flips the key inactive. A key that does not exist and a key owned
// by someone else get the same 404.
func (h *KeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	keyID := chi.URLParam(r, "keyID")

	if err := h.store.RevokeAPIKey(r.Context(), accountID, keyID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "key_not_found", "key not found")
			return
		}
		h.logger.Error("key revoke failed", "key_id", keyID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage temporarily unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteForever permanently removes the key row.
func (h *KeyHandler) DeleteForever(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	keyID := chi.URLParam(r, "keyID")

	if err := h.store.DeleteAPIKey(r.Context(), accountID, keyID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "key_not_found", "key not found")
			return
		}
		h.logger.Error("key delete failed", "key_id", keyID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage temporarily unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Usage returns recent usage rows for one of the session account's keys.
func (h *KeyHandler) Usage(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	keyID := chi.URLParam(r, "keyID")
	limit := clampInt(queryInt(r, "limit", 100), 1, 1000)

	recs, err := h.store.ListUsageForKey(r.Context(), accountID, keyID, limit)
	if err != nil {
		h.logger.Error("usage list failed", "key_id", keyID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage temporarily unavailable")
		return
	}
	if recs == nil {
		recs = []model.UsageRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"usage": recs})
}
