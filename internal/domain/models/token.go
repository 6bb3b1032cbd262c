package models

import "time"

// RefreshToken represents one issued refresh credential. Only the SHA-256
// hash of the secret is stored; the plaintext leaves the service exactly
// once, in the response that issued it.
type RefreshToken struct {
	ID                int64
	UserID            int64
	TokenHash         string
	CreatedAt         time.Time
	ExpiresAt         time.Time
	RevokedAt         *time.Time
	ReplacedByTokenID *int64
}

// Active reports whether the token can still be redeemed at the given time.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}
