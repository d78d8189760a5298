package credential

import (
	"crypto/rand"
	"fmt"
)

// alphabet is the character set for the random key suffix. Lowercase
// alphanumerics keep keys shell- and header-safe.
const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Generator produces plaintext API keys of the form <prefix><random suffix>.
// The prefix identifies the deployment (environment/tier) and the total
// length is constant, so the authenticator can shape-filter obviously
// invalid tokens before attempting any expensive hashing.
type Generator struct {
	prefix    string
	suffixLen int
}

// NewGenerator creates a Generator with the given key prefix and random
// suffix length.
func NewGenerator(prefix string, suffixLen int) *Generator {
	return &Generator{prefix: prefix, suffixLen: suffixLen}
}

// Generate returns a new plaintext key drawn from a cryptographically secure
// random source. With a 36-character alphabet and the default 40-character
// suffix, collisions are negligible.
func (g *Generator) Generate() (string, error) {
	buf := make([]byte, g.suffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return g.prefix + string(buf), nil
}

// Prefix returns the constant key prefix for this deployment.
func (g *Generator) Prefix() string {
	return g.prefix
}

// KeyLength returns the constant total length of generated keys.
func (g *Generator) KeyLength() int {
	return len(g.prefix) + g.suffixLen
}
