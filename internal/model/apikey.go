package model

import "time"

// APIKey represents one issued bearer credential. The plaintext key is never
// stored; only a bcrypt digest, a non-secret SHA-256 fingerprint used to
// narrow verification candidates, and a short visible prefix for UI display
// are persisted.
type APIKey struct {
	ID             string     `json:"id" db:"id"`
	OwnerID        int64      `json:"owner_id" db:"owner_id"`
	DisplayName    string     `json:"display_name" db:"display_name"`
	Digest         string     `json:"-" db:"digest"` // bcrypt digest, never expose
	Fingerprint    string     `json:"-" db:"fingerprint"`
	VisiblePrefix  string     `json:"visible_prefix" db:"visible_prefix"`
	QuotaPerWindow int        `json:"quota_per_window" db:"quota_per_window"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// Expired reports whether the key's expiry is in the past relative to now.
// A key without expires_at never expires.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}
