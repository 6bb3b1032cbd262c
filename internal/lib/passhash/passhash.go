// Package passhash wraps bcrypt for user password storage. Every hash
// carries its own salt, so hashing the same password twice yields
// different digests that both verify.
package passhash

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hash produces a salted bcrypt digest of the plaintext password.
func Hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("passhash.Hash: %w", err)
	}
	return string(h), nil
}

// Verify reports whether the plaintext password matches the stored digest.
// Malformed digests are treated as a mismatch, never an error.
func Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
