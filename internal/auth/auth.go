package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// Verifier checks the shared secret that guards destructive operations.
// A bcrypt hash takes precedence over a plain secret; with neither
// configured every check fails.
type Verifier struct {
	secret string
	hash   []byte
}

func NewVerifier(secret, hash string) *Verifier {
	v := &Verifier{secret: secret}
	if hash != "" {
		v.hash = []byte(hash)
	}
	return v
}

func (v *Verifier) Check(password string) bool {
	if password == "" {
		return false
	}
	if v.hash != nil {
		return bcrypt.CompareHashAndPassword(v.hash, []byte(password)) == nil
	}
	if v.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(v.secret)) == 1
}

// HashPassword produces a value suitable for RESET_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}
