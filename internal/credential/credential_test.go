package credential

import (
	"strings"
	"testing"
)

func TestGenerateShape(t *testing.T) {
	gen := NewGenerator("kg_live_", 40)

	key, err := gen.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(key, "kg_live_") {
		t.Errorf("expected prefix kg_live_, got %q", key)
	}
	if len(key) != gen.KeyLength() {
		t.Errorf("expected length %d, got %d", gen.KeyLength(), len(key))
	}
	for _, c := range key[len("kg_live_"):] {
		if !strings.ContainsRune(alphabet, c) {
			t.Errorf("suffix contains character %q outside alphabet", c)
		}
	}
}

func TestGenerateUniqueness(t *testing.T) {
	gen := NewGenerator("kg_live_", 40)

	seen := make(map[string]bool, 10000)
	for i := 0; i < 10000; i++ {
		key, err := gen.Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if seen[key] {
			t.Fatalf("collision after %d generations: %q", i, key)
		}
		seen[key] = true
	}
}

func TestHashVerifyRoundTrip(t *testing.T) {
	hasher := NewHasher(4) // min cost, keeps the test fast

	plaintext := "kg_live_abcdefghij0123456789abcdefghij01234567"
	digest, err := hasher.Hash(plaintext)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if digest == plaintext {
		t.Fatal("digest must not equal plaintext")
	}
	if !hasher.Verify(plaintext, digest) {
		t.Error("Verify(plaintext, hash(plaintext)) = false, want true")
	}
	if hasher.Verify("kg_live_zzzzzzzzzz0123456789abcdefghij01234567", digest) {
		t.Error("Verify accepted a different plaintext")
	}
}

func TestHashSaltedDigestsDiffer(t *testing.T) {
	hasher := NewHasher(4)

	plaintext := "kg_live_samekeysamekeysamekeysamekeysamekey0"
	d1, err := hasher.Hash(plaintext)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	d2, err := hasher.Hash(plaintext)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if d1 == d2 {
		t.Error("two digests of the same plaintext are byte-equal; salt missing?")
	}
	if !hasher.Verify(plaintext, d1) || !hasher.Verify(plaintext, d2) {
		t.Error("both salted digests should verify against the plaintext")
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("kg_live_aaaa")
	b := Fingerprint("kg_live_aaaa")
	c := Fingerprint("kg_live_bbbb")

	if a != b {
		t.Errorf("fingerprint not deterministic: %q vs %q", a, b)
	}
	if a == c {
		t.Error("different plaintexts produced the same fingerprint")
	}
	if len(a) != fingerprintLen {
		t.Errorf("expected fingerprint length %d, got %d", fingerprintLen, len(a))
	}
}

func TestShortPrefix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"kg_live_abcdefghij0123456789", "kg_live_abcd..."},
		{"short", "short..."},
		{"", "..."},
		{"exactly12chr", "exactly12chr..."},
	}
	for _, tt := range tests {
		if got := ShortPrefix(tt.in); got != tt.want {
			t.Errorf("ShortPrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
