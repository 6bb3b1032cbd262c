package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	authservice "ecoauth/internal/services/auth"
)

const minPasswordLen = 8

// Auth is the part of the auth service the HTTP layer needs.
type Auth interface {
	Register(ctx context.Context, username, email, password, clientAddr string) (*authservice.Response, error)
	Login(ctx context.Context, email, password, clientAddr string) (*authservice.Response, error)
	Refresh(ctx context.Context, refreshToken, clientAddr string) (*authservice.Response, error)
}

type Handler struct {
	auth Auth
}

func NewHandler(auth Auth) *Handler {
	return &Handler{auth: auth}
}

// RegisterRoutes mounts the auth endpoints on the app.
func RegisterRoutes(app *fiber.App, h *Handler) {
	api := app.Group("/api/auth")
	api.Post("/register", h.Register)
	api.Post("/login", h.Login)
	api.Post("/refresh", h.Refresh)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Username     string `json:"username"`
	Email        string `json:"email"`
}

func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if req.Username == "" {
		return badRequest(c, "username is required")
	}
	if !validEmail(req.Email) {
		return badRequest(c, "a valid email is required")
	}
	if len(req.Password) < minPasswordLen {
		return badRequest(c, "password must be at least 8 characters")
	}

	resp, err := h.auth.Register(c.UserContext(), req.Username, req.Email, req.Password, c.IP())
	if err != nil {
		if errors.Is(err, authservice.ErrUserAlreadyExists) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "email already in use",
			})
		}
		return internalError(c)
	}

	return c.Status(fiber.StatusOK).JSON(toAuthResponse(resp))
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if req.Email == "" {
		return badRequest(c, "email is required")
	}
	if req.Password == "" {
		return badRequest(c, "password is required")
	}

	resp, err := h.auth.Login(c.UserContext(), req.Email, req.Password, c.IP())
	if err != nil {
		if errors.Is(err, authservice.ErrInvalidCredentials) {
			return unauthorized(c)
		}
		return internalError(c)
	}

	return c.Status(fiber.StatusOK).JSON(toAuthResponse(resp))
}

func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if req.RefreshToken == "" {
		return badRequest(c, "refreshToken is required")
	}

	resp, err := h.auth.Refresh(c.UserContext(), req.RefreshToken, c.IP())
	if err != nil {
		if errors.Is(err, authservice.ErrInvalidCredentials) {
			return unauthorized(c)
		}
		return internalError(c)
	}

	return c.Status(fiber.StatusOK).JSON(toAuthResponse(resp))
}

func toAuthResponse(resp *authservice.Response) authResponse {
	return authResponse{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Username:     resp.Username,
		Email:        resp.Email,
	}
}

// validEmail applies a minimal shape check; real validation happens when
// mail is actually delivered.
func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid credentials"})
}

func internalError(c *fiber.Ctx) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}
