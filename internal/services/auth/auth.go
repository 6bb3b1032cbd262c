package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ecoauth/internal/domain/models"
	"ecoauth/internal/lib/jwt"
	"ecoauth/internal/lib/passhash"
	"ecoauth/internal/lib/sl"
	"ecoauth/internal/storage"
)

// refreshTokenBytes is the entropy of a refresh token secret (512 bits).
const refreshTokenBytes = 64

// unknownClient is recorded when the transport supplied no client address.
const unknownClient = "unknown-client"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserAlreadyExists  = errors.New("user already exists")
)

// UserStore persists identity records.
type UserStore interface {
	SaveUser(ctx context.Context, user *models.User) (int64, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, userID int64) (*models.User, error)
}

// RefreshTokenStore persists refresh token records. RotateToken must apply
// the insert-replacement and revoke-old steps so that at most one of any
// number of concurrent rotations of the same token succeeds; the losers get
// storage.ErrTokenNotFound and no replacement row survives.
type RefreshTokenStore interface {
	SaveToken(ctx context.Context, token *models.RefreshToken) (int64, error)
	ActiveTokenByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RotateToken(ctx context.Context, old, replacement *models.RefreshToken) (int64, error)
}

// AuditLog appends authentication attempt records.
type AuditLog interface {
	SaveEntry(ctx context.Context, entry *models.AuditEntry) error
}

// Response is what every successful auth operation returns. RefreshToken
// holds the plaintext secret; it is never persisted anywhere.
type Response struct {
	AccessToken  string
	RefreshToken string
	Username     string
	Email        string
}

// Auth orchestrates registration, login and refresh-token rotation. It is
// the sole writer of user and refresh-token business state; the stores are
// plain persistence adapters.
type Auth struct {
	logger     *slog.Logger
	users      UserStore
	tokens     RefreshTokenStore
	audit      AuditLog
	codec      *jwt.Codec
	refreshTTL time.Duration
}

// New returns a new instance of the Auth service.
func New(
	logger *slog.Logger,
	users UserStore,
	tokens RefreshTokenStore,
	audit AuditLog,
	codec *jwt.Codec,
	refreshTTL time.Duration,
) *Auth {
	return &Auth{
		logger:     logger,
		users:      users,
		tokens:     tokens,
		audit:      audit,
		codec:      codec,
		refreshTTL: refreshTTL,
	}
}

// Register creates a new user and issues the first token pair.
func (a *Auth) Register(
	ctx context.Context,
	username string,
	email string,
	password string,
	clientAddr string,
) (*Response, error) {
	const op = "auth.Register"
	log := a.logger.With(slog.String("op", op), slog.String("email", email))
	log.Info("register request")

	clientAddr = normalizeClientAddr(clientAddr)

	_, err := a.users.UserByEmail(ctx, email)
	if err == nil {
		log.Warn("email already in use")
		if err := a.writeAudit(ctx, models.AuditEventRegister, nil, &email, clientAddr, false, models.AuditReasonDuplicateEmail); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, fmt.Errorf("%s: %w", op, ErrUserAlreadyExists)
	}
	if !errors.Is(err, storage.ErrUserNotFound) {
		log.Error("failed to look up user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	passHash, err := passhash.Hash(password)
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &models.User{
		Username:       username,
		Email:          email,
		PassHash:       passHash,
		RegistrationIP: clientAddr,
	}

	userID, err := a.users.SaveUser(ctx, user)
	if err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			// Lost a race with a concurrent registration for the same email.
			log.Warn("email already in use", sl.Err(err))
			if auditErr := a.writeAudit(ctx, models.AuditEventRegister, nil, &email, clientAddr, false, models.AuditReasonDuplicateEmail); auditErr != nil {
				return nil, fmt.Errorf("%s: %w", op, auditErr)
			}
			return nil, fmt.Errorf("%s: %w", op, ErrUserAlreadyExists)
		}
		log.Error("failed to save user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.ID = userID

	if err := a.writeAudit(ctx, models.AuditEventRegister, &userID, &email, clientAddr, true, ""); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := a.issueTokens(ctx, user)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.Int64("userID", userID))

	return resp, nil
}

// Login authenticates a user by email and password and issues a token pair.
func (a *Auth) Login(
	ctx context.Context,
	email string,
	password string,
	clientAddr string,
) (*Response, error) {
	const op = "auth.Login"
	log := a.logger.With(slog.String("op", op))
	log.Info("login request", slog.String("email", email))

	clientAddr = normalizeClientAddr(clientAddr)

	user, err := a.users.UserByEmail(ctx, email)
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if user == nil || !passhash.Verify(password, user.PassHash) {
		log.Warn("invalid credentials")
		// The resolved user id is recorded even on a wrong password, so a
		// known email with a bad password is distinguishable in the audit
		// trail from an unknown email.
		var userID *int64
		if user != nil {
			userID = &user.ID
		}
		if err := a.writeAudit(ctx, models.AuditEventLogin, userID, &email, clientAddr, false, models.AuditReasonInvalidCredentials); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if err := a.writeAudit(ctx, models.AuditEventLogin, &user.ID, &user.Email, clientAddr, true, ""); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := a.issueTokens(ctx, user)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.Int64("userID", user.ID))

	return resp, nil
}

// Refresh exchanges a valid refresh token for a new access token and
// refresh token (rotation). The redeemed token is revoked and linked to its
// replacement; redeeming it again fails.
func (a *Auth) Refresh(
	ctx context.Context,
	refreshToken string,
	clientAddr string,
) (*Response, error) {
	const op = "auth.Refresh"
	log := a.logger.With(slog.String("op", op))
	log.Info("refresh request")

	clientAddr = normalizeClientAddr(clientAddr)

	tokenHash := hashToken(refreshToken)

	stored, err := a.tokens.ActiveTokenByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			log.Warn("refresh token not active")
			if auditErr := a.writeAudit(ctx, models.AuditEventRefresh, nil, nil, clientAddr, false, models.AuditReasonInvalidRefreshToken); auditErr != nil {
				return nil, fmt.Errorf("%s: %w", op, auditErr)
			}
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("failed to look up refresh token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	plain, replacement, err := a.newRefreshToken(stored.UserID)
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := a.tokens.RotateToken(ctx, stored, replacement); err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			// A concurrent refresh of the same token won the rotation.
			log.Warn("refresh token rotation lost", sl.Err(err))
			if auditErr := a.writeAudit(ctx, models.AuditEventRefresh, nil, nil, clientAddr, false, models.AuditReasonInvalidRefreshToken); auditErr != nil {
				return nil, fmt.Errorf("%s: %w", op, auditErr)
			}
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("failed to rotate refresh token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := a.users.UserByID(ctx, stored.UserID)
	if err != nil {
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	accessToken, err := a.codec.IssueAccessToken(user)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.writeAudit(ctx, models.AuditEventRefresh, &user.ID, &user.Email, clientAddr, true, ""); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("tokens refreshed", slog.Int64("userID", user.ID))

	return &Response{
		AccessToken:  accessToken,
		RefreshToken: plain,
		Username:     user.Username,
		Email:        user.Email,
	}, nil
}

// issueTokens creates an access token and a brand-new refresh token chain
// for the user.
func (a *Auth) issueTokens(ctx context.Context, user *models.User) (*Response, error) {
	accessToken, err := a.codec.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	plain, token, err := a.newRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}

	if _, err := a.tokens.SaveToken(ctx, token); err != nil {
		return nil, err
	}

	return &Response{
		AccessToken:  accessToken,
		RefreshToken: plain,
		Username:     user.Username,
		Email:        user.Email,
	}, nil
}

// newRefreshToken generates a fresh refresh token secret and the record
// holding its hash. The plaintext is returned once and never stored.
func (a *Auth) newRefreshToken(userID int64) (plain string, token *models.RefreshToken, err error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate refresh token: %w", err)
	}

	plain = base64.RawURLEncoding.EncodeToString(buf)

	return plain, &models.RefreshToken{
		UserID:    userID,
		TokenHash: hashToken(plain),
		ExpiresAt: time.Now().Add(a.refreshTTL),
	}, nil
}

// writeAudit appends one audit entry for an attempt. An audit failure fails
// the whole operation: an attempt without its audit record must not succeed.
func (a *Auth) writeAudit(
	ctx context.Context,
	eventType string,
	userID *int64,
	email *string,
	clientAddr string,
	success bool,
	failureReason string,
) error {
	entry := &models.AuditEntry{
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		IPAddress: clientAddr,
		Success:   success,
	}
	if failureReason != "" {
		entry.FailureReason = &failureReason
	}

	if err := a.audit.SaveEntry(ctx, entry); err != nil {
		a.logger.Error("failed to write audit entry", sl.Err(err))
		return fmt.Errorf("write audit entry: %w", err)
	}

	return nil
}

// hashToken computes the SHA-256 hash of a refresh token secret. It is
// deterministic and unsalted so the hash supports exact-match lookup.
func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func normalizeClientAddr(addr string) string {
	if addr == "" {
		return unknownClient
	}
	return addr
}
