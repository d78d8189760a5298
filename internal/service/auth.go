package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/keygatehq/keygate/internal/credential"
	"github.com/keygatehq/keygate/internal/store"
)

// Principal is the identity resolved from a valid API key.
type Principal struct {
	KeyID          string
	OwnerID        int64
	QuotaPerWindow int
}

// Authenticator resolves bearer tokens to key owners. Its candidate scan is
// read-only; concurrent authentications never interfere.
type Authenticator struct {
	store        *store.Store
	hasher       *credential.Hasher
	keyPrefix    string
	keyLength    int
	storeTimeout time.Duration
	logger       *slog.Logger
}

// NewAuthenticator creates an Authenticator. keyPrefix and keyLength describe
// the constant credential shape for this deployment, used to short-circuit
// obviously invalid tokens before any bcrypt work.
func NewAuthenticator(st *store.Store, hasher *credential.Hasher, keyPrefix string, keyLength int, storeTimeout time.Duration, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		store:        st,
		hasher:       hasher,
		keyPrefix:    keyPrefix,
		keyLength:    keyLength,
		storeTimeout: storeTimeout,
		logger:       logger,
	}
}

// Authenticate validates the raw Authorization header value and returns the
// owning account and its quota. All failures are terminal *AuthError values;
// there is no retry here. On success, last_used_at is updated in the
// background and its failure never fails the request.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (*Principal, error) {
	if header == "" {
		return nil, ErrMissingCredential
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || scheme != "Bearer" || token == "" {
		return nil, ErrMalformedCredential
	}

	// Shape filter: generated keys have a constant prefix and length, so a
	// token that cannot possibly match skips the store and the hash work.
	if len(token) != a.keyLength || !strings.HasPrefix(token, a.keyPrefix) {
		return nil, ErrInvalidCredential
	}

	cctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()

	candidates, err := a.store.ActiveKeysByFingerprint(cctx, credential.Fingerprint(token))
	if err != nil {
		a.logger.Error("key candidate lookup failed", "error", err)
		return nil, ErrStorageUnavailable
	}

	now := time.Now()
	for i := range candidates {
		key := &candidates[i]
		if !a.hasher.Verify(token, key.Digest) {
			continue
		}
		if key.Expired(now) {
			return nil, ErrExpiredCredential
		}
		if !key.IsActive {
			// Externally indistinguishable from not-found.
			return nil, ErrInvalidCredential
		}

		// Update last used timestamp (fire and forget).
		keyID := key.ID
		go func() {
			tctx, tcancel := context.WithTimeout(context.Background(), a.storeTimeout)
			defer tcancel()
			if err := a.store.TouchLastUsed(tctx, keyID); err != nil {
				a.logger.Debug("last_used_at update failed", "key_id", keyID, "error", err)
			}
		}()

		return &Principal{
			KeyID:          key.ID,
			OwnerID:        key.OwnerID,
			QuotaPerWindow: key.QuotaPerWindow,
		}, nil
	}

	return nil, ErrInvalidCredential
}
