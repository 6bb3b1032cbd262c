package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ecoauth/internal/domain/models"
)

// ErrEmptySecret is returned by New when no signing secret is configured.
// Tokens signed with an empty key would be trivially forgeable, so the
// codec refuses to start instead of failing per request.
var ErrEmptySecret = errors.New("jwt: signing secret is empty")

// Codec issues and parses signed access tokens.
type Codec struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

// New returns a codec that signs HS256 tokens with the given secret.
func New(secret, issuer, audience string, ttl time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	return &Codec{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
	}, nil
}

// IssueAccessToken creates a signed access token carrying the user's
// identity claims, expiring after the configured TTL.
func (c *Codec) IssueAccessToken(user *models.User) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(
		jwt.SigningMethodHS256,
		jwt.MapClaims{
			"sub":      strconv.FormatInt(user.ID, 10),
			"email":    user.Email,
			"username": user.Username,
			"iss":      c.issuer,
			"aud":      c.audience,
			"iat":      now.Unix(),
			"exp":      now.Add(c.ttl).Unix(),
		})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("jwt.IssueAccessToken: %w", err)
	}

	return signed, nil
}

// Parse validates a token's signature, expiry, issuer and audience, and
// returns its claims.
func (c *Codec) Parse(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(
		tokenString,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return c.secret, nil
		},
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("jwt.Parse: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("jwt.Parse: invalid token")
	}

	return claims, nil
}
