package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// ErrBadCredentials is returned for any failed login attempt. The cause
// (unknown user vs wrong password) is deliberately not distinguished.
var ErrBadCredentials = errors.New("auth: bad credentials")

// User is one configured account with a pre-hashed password.
type User struct {
	PasswordHash string
	Role         Role
}

// HashPassword returns the hex SHA-256 digest used for stored passwords.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword checks a password attempt against a stored hash in
// constant time.
func VerifyPassword(password, storedHash string) bool {
	attempt := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(attempt), []byte(storedHash)) == 1
}

// Authenticate resolves a login attempt against the configured users.
func Authenticate(users map[string]User, username, password string) (Role, error) {
	user, ok := users[username]
	if !ok {
		// Hash anyway so the timing of a miss matches a wrong password.
		VerifyPassword(password, HashPassword(""))
		return "", ErrBadCredentials
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return "", ErrBadCredentials
	}
	role := user.Role
	if _, ok := NormalizeRole(string(role)); !ok {
		role = RoleViewer
	}
	return role, nil
}
