package suite

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	authhttp "ecoauth/internal/http/auth"
	"ecoauth/internal/lib/jwt"
	"ecoauth/internal/services/auth"
	"ecoauth/internal/storage/memory"
)

const (
	Secret         = "integration-test-secret"
	Issuer         = "ecoauth-test"
	Audience       = "ecoauth-test-clients"
	AccessTokenTTL = 15 * time.Minute
	RefreshTTL     = 7 * 24 * time.Hour
)

// Suite drives the full HTTP surface in-process: fiber app, auth service,
// token codec and an in-memory storage backend.
type Suite struct {
	*testing.T
	App     *fiber.App
	Codec   *jwt.Codec
	Storage *memory.Storage
}

func New(t *testing.T) *Suite {
	t.Helper()
	t.Parallel()

	codec, err := jwt.New(Secret, Issuer, Audience, AccessTokenTTL)
	if err != nil {
		t.Fatalf("failed to create token codec: %v", err)
	}

	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := auth.New(logger, store, store, store, codec, RefreshTTL)

	app := fiber.New()
	authhttp.RegisterRoutes(app, authhttp.NewHandler(service))

	return &Suite{
		T:       t,
		App:     app,
		Codec:   codec,
		Storage: store,
	}
}

// PostJSON sends a JSON request to the app and decodes the JSON response.
func (s *Suite) PostJSON(path string, body any) (int, map[string]any) {
	s.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		s.Fatalf("failed to marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.App.Test(req, -1)
	if err != nil {
		s.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		s.Fatalf("failed to read response: %v", err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		s.Fatalf("failed to decode response %q: %v", raw, err)
	}

	return resp.StatusCode, parsed
}
