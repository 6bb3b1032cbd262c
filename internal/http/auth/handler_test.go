package auth_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authhttp "ecoauth/internal/http/auth"
	"ecoauth/internal/lib/jwt"
	authservice "ecoauth/internal/services/auth"
	"ecoauth/internal/storage/memory"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	codec, err := jwt.New("test-secret", "ecoauth-test", "ecoauth-test-clients", 15*time.Minute)
	require.NoError(t, err)

	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := authservice.New(logger, store, store, store, codec, 7*24*time.Hour)

	app := fiber.New()
	authhttp.RegisterRoutes(app, authhttp.NewHandler(svc))

	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var parsed map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &parsed))

	return resp, parsed
}

func TestRegisterEndpoint(t *testing.T) {
	app := newTestApp(t)

	email := gofakeit.Email()
	body := map[string]string{
		"username": "alice",
		"email":    email,
		"password": "Secret123!",
	}

	resp, parsed := postJSON(t, app, "/api/auth/register", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, parsed["accessToken"])
	assert.NotEmpty(t, parsed["refreshToken"])
	assert.Equal(t, "alice", parsed["username"])
	assert.Equal(t, email, parsed["email"])

	// Same email again conflicts.
	resp, parsed = postJSON(t, app, "/api/auth/register", body)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.NotEmpty(t, parsed["error"])
}

func TestRegisterEndpoint_Validation(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{
			name: "missing username",
			body: map[string]string{"email": gofakeit.Email(), "password": "Secret123!"},
		},
		{
			name: "bad email",
			body: map[string]string{"username": "alice", "email": "not-an-email", "password": "Secret123!"},
		},
		{
			name: "short password",
			body: map[string]string{"username": "alice", "email": gofakeit.Email(), "password": "short"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, parsed := postJSON(t, app, "/api/auth/register", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, parsed["error"])
		})
	}
}

func TestLoginEndpoint(t *testing.T) {
	app := newTestApp(t)

	email := gofakeit.Email()
	password := "Secret123!"

	resp, _ := postJSON(t, app, "/api/auth/register", map[string]string{
		"username": "alice", "email": email, "password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, parsed := postJSON(t, app, "/api/auth/login", map[string]string{
		"email": email, "password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, parsed["accessToken"])
	assert.NotEmpty(t, parsed["refreshToken"])

	resp, _ = postJSON(t, app, "/api/auth/login", map[string]string{
		"email": email, "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = postJSON(t, app, "/api/auth/login", map[string]string{
		"email": "nobody@example.com", "password": password,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRefreshEndpoint(t *testing.T) {
	app := newTestApp(t)

	email := gofakeit.Email()
	resp, registered := postJSON(t, app, "/api/auth/register", map[string]string{
		"username": "alice", "email": email, "password": "Secret123!",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	refreshToken := registered["refreshToken"].(string)

	resp, parsed := postJSON(t, app, "/api/auth/refresh", map[string]string{
		"refreshToken": refreshToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, parsed["accessToken"])
	assert.NotEqual(t, refreshToken, parsed["refreshToken"])

	// Replaying the rotated token is rejected.
	resp, _ = postJSON(t, app, "/api/auth/refresh", map[string]string{
		"refreshToken": refreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = postJSON(t, app, "/api/auth/refresh", map[string]string{
		"refreshToken": "never-issued",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = postJSON(t, app, "/api/auth/refresh", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
