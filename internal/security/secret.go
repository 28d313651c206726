package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// NewSessionSecret returns a fresh opaque session secret: 32 random bytes,
// URL-safe encoded. The plaintext goes to the client exactly once; the
// server keeps only its hash.
func NewSessionSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashSessionSecret is the server-side anchor for a session secret.
// SHA-256 is enough here: the input already carries 256 bits of entropy,
// so there is nothing for an offline attacker to brute-force.
func HashSessionSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// NewJTI returns a ledger-grade unique token id: 32 random bytes hex
// encoded, so collisions are cryptographically negligible.
func NewJTI() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
