package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// visiblePrefixLen is how many leading characters of a plaintext key are
// retained for UI display.
const visiblePrefixLen = 12

// ellipsis marks a truncated key in UI listings.
const ellipsis = "..."

// fingerprintLen is the number of hex characters of the SHA-256 fingerprint
// kept as a lookup discriminator. The fingerprint is not a secret and is
// useless for authentication on its own; it only narrows the set of bcrypt
// candidates the authenticator has to verify.
const fingerprintLen = 16

// Hasher converts plaintext keys into salted one-way bcrypt digests and
// verifies candidates against them. Two digests of the same plaintext are
// never byte-equal (the salt is embedded in the output), so digests must
// never be compared directly.
type Hasher struct {
	cost int
}

// NewHasher creates a Hasher with the given bcrypt cost factor. Costs
// outside bcrypt's supported range fall back to the library default.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the bcrypt digest of plaintext.
func (h *Hasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash credential: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches the stored digest. bcrypt's
// comparison is constant-time with respect to the digest contents.
func (h *Hasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// Fingerprint returns a short unsalted SHA-256 discriminator for plaintext,
// stored alongside the digest purely to narrow candidate lookups.
func Fingerprint(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// ShortPrefix returns the leading characters of plaintext followed by an
// ellipsis marker, for display in key listings. Inputs shorter than the
// display length get the marker appended directly.
func ShortPrefix(plaintext string) string {
	if len(plaintext) <= visiblePrefixLen {
		return plaintext + ellipsis
	}
	return plaintext[:visiblePrefixLen] + ellipsis
}
