package tests

import (
	"net/http"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecoauth/internal/domain/models"
	"ecoauth/tests/suite"
)

const passDefaultLen = 12

func randomPassword() string {
	return gofakeit.Password(true, true, true, true, false, passDefaultLen)
}

func TestAuthRegisterLogin(t *testing.T) {
	st := suite.New(t)

	username := gofakeit.Username()
	email := gofakeit.Email()
	password := randomPassword()

	status, registered := st.PostJSON("/api/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, registered["accessToken"])
	require.NotEmpty(t, registered["refreshToken"])
	assert.Equal(t, email, registered["email"])

	loginTime := time.Now()

	status, logged := st.PostJSON("/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, logged["accessToken"])
	require.NotEmpty(t, logged["refreshToken"])

	claims, err := st.Codec.Parse(logged["accessToken"].(string))
	require.NoError(t, err)
	assert.Equal(t, email, claims["email"].(string))
	assert.Equal(t, username, claims["username"].(string))
	assert.Equal(t, suite.Issuer, claims["iss"].(string))

	const deltaSeconds = 1
	assert.InDelta(t, loginTime.Add(suite.AccessTokenTTL).Unix(), claims["exp"].(float64), deltaSeconds)
}

func TestAuthRefreshRotation(t *testing.T) {
	st := suite.New(t)

	email := gofakeit.Email()
	password := randomPassword()

	status, _ := st.PostJSON("/api/auth/register", map[string]string{
		"username": gofakeit.Username(),
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status)

	status, logged := st.PostJSON("/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status)

	refreshToken1 := logged["refreshToken"].(string)

	status, refreshed := st.PostJSON("/api/auth/refresh", map[string]string{
		"refreshToken": refreshToken1,
	})
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, refreshed["accessToken"])
	require.NotEmpty(t, refreshed["refreshToken"])

	refreshToken2 := refreshed["refreshToken"].(string)
	assert.NotEqual(t, refreshToken1, refreshToken2)

	// The redeemed token is rotated out and cannot be used again.
	status, _ = st.PostJSON("/api/auth/refresh", map[string]string{
		"refreshToken": refreshToken1,
	})
	require.Equal(t, http.StatusUnauthorized, status)

	// The replacement still works.
	status, refreshed2 := st.PostJSON("/api/auth/refresh", map[string]string{
		"refreshToken": refreshToken2,
	})
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, refreshed2["accessToken"])
	require.NotEmpty(t, refreshed2["refreshToken"])
}

func TestRegister_FailCases(t *testing.T) {
	st := suite.New(t)

	email := gofakeit.Email()
	password := randomPassword()

	status, _ := st.PostJSON("/api/auth/register", map[string]string{
		"username": gofakeit.Username(),
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status)

	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
	}{
		{
			name: "duplicate email",
			body: map[string]string{
				"username": gofakeit.Username(),
				"email":    email,
				"password": password,
			},
			wantStatus: http.StatusConflict,
		},
		{
			name: "missing password",
			body: map[string]string{
				"username": gofakeit.Username(),
				"email":    gofakeit.Email(),
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "missing email",
			body: map[string]string{
				"username": gofakeit.Username(),
				"password": password,
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, parsed := st.PostJSON("/api/auth/register", tt.body)
			assert.Equal(t, tt.wantStatus, status)
			assert.NotEmpty(t, parsed["error"])
		})
	}
}

func TestAuditTrail(t *testing.T) {
	st := suite.New(t)

	email := gofakeit.Email()
	password := randomPassword()

	status, _ := st.PostJSON("/api/auth/register", map[string]string{
		"username": gofakeit.Username(),
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status)

	status, _ = st.PostJSON("/api/auth/login", map[string]string{
		"email":    email,
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, status)

	entries := st.Storage.Entries()
	require.Len(t, entries, 2)

	assert.Equal(t, models.AuditEventRegister, entries[0].EventType)
	assert.True(t, entries[0].Success)

	failed := entries[1]
	assert.Equal(t, models.AuditEventLogin, failed.EventType)
	assert.False(t, failed.Success)
	require.NotNil(t, failed.UserID)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, models.AuditReasonInvalidCredentials, *failed.FailureReason)
}
