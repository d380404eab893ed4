package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt hash suitable for MAINTCUE_ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// AdminCredentials is the single operator account configured at startup.
type AdminCredentials struct {
	Email        string
	PasswordHash string
}

// Check reports whether email and password match. An unconfigured account
// never matches.
func (a AdminCredentials) Check(email, password string) bool {
	if a.Email == "" || a.PasswordHash == "" {
		return false
	}
	emailOK := subtle.ConstantTimeCompare(
		[]byte(strings.ToLower(strings.TrimSpace(email))),
		[]byte(strings.ToLower(a.Email)),
	) == 1
	// bcrypt runs even when the email does not match.
	passOK := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) == nil
	return emailOK && passOK
}
