package passhash_test

import (
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecoauth/internal/lib/passhash"
)

func TestHashVerify_RoundTrip(t *testing.T) {
	password := gofakeit.Password(true, true, true, true, false, 12)

	hash, err := passhash.Hash(password)
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	assert.NotEqual(t, password, hash)

	assert.True(t, passhash.Verify(password, hash))
	assert.False(t, passhash.Verify("not-the-password", hash))
}

func TestHash_Salted(t *testing.T) {
	password := gofakeit.Password(true, true, true, true, false, 12)

	hash1, err := passhash.Hash(password)
	require.NoError(t, err)
	hash2, err := passhash.Hash(password)
	require.NoError(t, err)

	// Fresh salt per call: digests differ, both verify.
	assert.NotEqual(t, hash1, hash2)
	assert.True(t, passhash.Verify(password, hash1))
	assert.True(t, passhash.Verify(password, hash2))
}

func TestVerify_MalformedHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{name: "empty", hash: ""},
		{name: "garbage", hash: "not-a-bcrypt-hash"},
		{name: "truncated", hash: "$2a$10$tooshort"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, passhash.Verify("whatever", tt.hash))
		})
	}
}
