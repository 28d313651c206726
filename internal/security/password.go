package security

import "golang.org/x/crypto/bcrypt"

// HashPassword produces a salted, self-describing bcrypt digest. The cost is
// the work factor; callers take it from config so it can be raised over time.
func HashPassword(password string, cost int) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// VerifyPassword reports whether password matches the stored digest. A
// malformed or truncated digest verifies as false, never as an error: the
// caller treats every failure identically.
func VerifyPassword(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}
