package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	_ "github.com/mattn/go-sqlite3"

	"ecoauth/internal/domain/models"
	"ecoauth/internal/storage"
)

type Storage struct {
	db *sql.DB
}

// New opens the sqlite database at storagePath.
func New(storagePath string) (*Storage, error) {
	const op = "storage.sqlite.New"

	db, err := sql.Open("sqlite3", storagePath+"?_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveUser inserts a new user and returns the assigned id.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) (int64, error) {
	const op = "storage.sqlite.SaveUser"

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, pass_hash, registration_ip, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		user.Username, user.Email, user.PassHash, user.RegistrationIP, time.Now().UTC(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// UserByEmail fetches a user by exact email match.
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.sqlite.UserByEmail"

	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, pass_hash, registration_ip, created_at
		 FROM users WHERE email = ?`, email)

	return scanUser(row, op)
}

// UserByID fetches a user by id.
func (s *Storage) UserByID(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.sqlite.UserByID"

	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, pass_hash, registration_ip, created_at
		 FROM users WHERE id = ?`, userID)

	return scanUser(row, op)
}

func scanUser(row *sql.Row, op string) (*models.User, error) {
	var user models.User
	var registrationIP sql.NullString

	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PassHash, &registrationIP, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user.RegistrationIP = registrationIP.String

	return &user, nil
}

// SaveToken inserts a new refresh token record and returns the assigned id.
func (s *Storage) SaveToken(ctx context.Context, token *models.RefreshToken) (int64, error) {
	const op = "storage.sqlite.SaveToken"

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at)
		 VALUES (?, ?, ?, ?)`,
		token.UserID, token.TokenHash, token.ExpiresAt.UTC(), time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// ActiveTokenByHash fetches the refresh token with the given hash, but only
// while it is neither revoked nor expired.
func (s *Storage) ActiveTokenByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	const op = "storage.sqlite.ActiveTokenByHash"

	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, revoked_at, replaced_by_token_id, created_at
		 FROM refresh_tokens
		 WHERE token_hash = ? AND revoked_at IS NULL AND expires_at > ?`,
		tokenHash, time.Now().UTC(),
	)

	var token models.RefreshToken
	var revokedAt sql.NullTime
	var replacedBy sql.NullInt64

	err := row.Scan(&token.ID, &token.UserID, &token.TokenHash, &token.ExpiresAt,
		&revokedAt, &replacedBy, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if revokedAt.Valid {
		t := revokedAt.Time
		token.RevokedAt = &t
	}
	if replacedBy.Valid {
		id := replacedBy.Int64
		token.ReplacedByTokenID = &id
	}

	return &token, nil
}

// RotateToken inserts the replacement token and revokes the old one in a
// single transaction. The revoke only matches while the old record is still
// active, so of two concurrent rotations of the same token exactly one
// commits; the loser's replacement row is rolled back and
// storage.ErrTokenNotFound is returned.
func (s *Storage) RotateToken(ctx context.Context, old, replacement *models.RefreshToken) (int64, error) {
	const op = "storage.sqlite.RotateToken"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at)
		 VALUES (?, ?, ?, ?)`,
		replacement.UserID, replacement.TokenHash, replacement.ExpiresAt.UTC(), now,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: insert replacement: %w", op, err)
	}

	newID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	result, err = tx.ExecContext(ctx,
		`UPDATE refresh_tokens
		 SET revoked_at = ?, replaced_by_token_id = ?
		 WHERE id = ? AND revoked_at IS NULL AND expires_at > ?`,
		now, newID, old.ID, now,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: revoke old: %w", op, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return 0, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return newID, nil
}

// SaveEntry appends one audit record. Entries are never updated or deleted.
func (s *Storage) SaveEntry(ctx context.Context, entry *models.AuditEntry) error {
	const op = "storage.sqlite.SaveEntry"

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_audit_log (event_type, user_id, email, ip_address, is_success, failure_reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.EventType, entry.UserID, entry.Email, entry.IPAddress,
		entry.Success, entry.FailureReason, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
