package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"ecoauth/internal/domain/models"
	"ecoauth/internal/storage"
)

type Storage struct {
	client   *mongo.Client
	database *mongo.Database
	users    *mongo.Collection
	tokens   *mongo.Collection
	audit    *mongo.Collection
	counters *mongo.Collection
}

type userDoc struct {
	ID             int64     `bson:"_id"`
	Username       string    `bson:"username"`
	Email          string    `bson:"email"`
	PassHash       string    `bson:"pass_hash"`
	RegistrationIP string    `bson:"registration_ip,omitempty"`
	CreatedAt      time.Time `bson:"created_at"`
}

type tokenDoc struct {
	ID                int64      `bson:"_id"`
	UserID            int64      `bson:"user_id"`
	TokenHash         string     `bson:"token_hash"`
	CreatedAt         time.Time  `bson:"created_at"`
	ExpiresAt         time.Time  `bson:"expires_at"`
	RevokedAt         *time.Time `bson:"revoked_at,omitempty"`
	ReplacedByTokenID *int64     `bson:"replaced_by_token_id,omitempty"`
}

type auditDoc struct {
	EventType     string    `bson:"event_type"`
	UserID        *int64    `bson:"user_id,omitempty"`
	Email         *string   `bson:"email,omitempty"`
	IPAddress     string    `bson:"ip_address"`
	Success       bool      `bson:"is_success"`
	FailureReason *string   `bson:"failure_reason,omitempty"`
	CreatedAt     time.Time `bson:"created_at"`
}

type counterDoc struct {
	ID    string `bson:"_id"`
	Value int64  `bson:"value"`
}

// New creates a new MongoDB storage instance and sets up indexes.
func New(ctx context.Context, uri, database string) (*Storage, error) {
	const op = "storage.mongodb.New"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := client.Database(database)
	s := &Storage{
		client:   client,
		database: db,
		users:    db.Collection("users"),
		tokens:   db.Collection("refresh_tokens"),
		audit:    db.Collection("auth_audit_log"),
		counters: db.Collection("counters"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("%s: indexes: %w", op, err)
	}

	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	// users.email unique
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users.email index: %w", err)
	}

	// refresh_tokens.token_hash unique
	_, err = s.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "token_hash", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("refresh_tokens.token_hash index: %w", err)
	}

	// refresh_tokens.expires_at TTL index (auto-delete once past expiration)
	_, err = s.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("refresh_tokens.expires_at TTL index: %w", err)
	}

	return nil
}

// Close disconnects from MongoDB.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// nextID atomically increments and returns the next ID for a given collection.
func (s *Storage) nextID(ctx context.Context, collectionName string) (int64, error) {
	filter := bson.D{{Key: "_id", Value: collectionName}}
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: "value", Value: int64(1)}}}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var counter counterDoc
	err := s.counters.FindOneAndUpdate(ctx, filter, update, opts).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Value, nil
}

// SaveUser saves a new user and returns the generated user ID.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) (int64, error) {
	const op = "storage.mongodb.SaveUser"

	id, err := s.nextID(ctx, "users")
	if err != nil {
		return 0, fmt.Errorf("%s: nextID: %w", op, err)
	}

	doc := userDoc{
		ID:             id,
		Username:       user.Username,
		Email:          user.Email,
		PassHash:       user.PassHash,
		RegistrationIP: user.RegistrationIP,
		CreatedAt:      time.Now(),
	}

	_, err = s.users.InsertOne(ctx, doc)
	if err != nil {
		if isDuplicateKeyError(err) {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// UserByEmail retrieves a user by email.
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.mongodb.UserByEmail"

	return s.findUser(ctx, bson.D{{Key: "email", Value: email}}, op)
}

// UserByID retrieves a user by ID.
func (s *Storage) UserByID(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.mongodb.UserByID"

	return s.findUser(ctx, bson.D{{Key: "_id", Value: userID}}, op)
}

func (s *Storage) findUser(ctx context.Context, filter bson.D, op string) (*models.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.User{
		ID:             doc.ID,
		Username:       doc.Username,
		Email:          doc.Email,
		PassHash:       doc.PassHash,
		RegistrationIP: doc.RegistrationIP,
		CreatedAt:      doc.CreatedAt,
	}, nil
}

// SaveToken stores a new refresh token record and returns the assigned id.
func (s *Storage) SaveToken(ctx context.Context, token *models.RefreshToken) (int64, error) {
	const op = "storage.mongodb.SaveToken"

	id, err := s.nextID(ctx, "refresh_tokens")
	if err != nil {
		return 0, fmt.Errorf("%s: nextID: %w", op, err)
	}

	doc := tokenDoc{
		ID:        id,
		UserID:    token.UserID,
		TokenHash: token.TokenHash,
		CreatedAt: time.Now(),
		ExpiresAt: token.ExpiresAt,
	}

	_, err = s.tokens.InsertOne(ctx, doc)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// ActiveTokenByHash retrieves a refresh token by hash while it is neither
// revoked nor expired.
func (s *Storage) ActiveTokenByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	const op = "storage.mongodb.ActiveTokenByHash"

	filter := bson.D{
		{Key: "token_hash", Value: tokenHash},
		{Key: "revoked_at", Value: nil},
		{Key: "expires_at", Value: bson.D{{Key: "$gt", Value: time.Now()}}},
	}

	var doc tokenDoc
	err := s.tokens.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.RefreshToken{
		ID:                doc.ID,
		UserID:            doc.UserID,
		TokenHash:         doc.TokenHash,
		CreatedAt:         doc.CreatedAt,
		ExpiresAt:         doc.ExpiresAt,
		RevokedAt:         doc.RevokedAt,
		ReplacedByTokenID: doc.ReplacedByTokenID,
	}, nil
}

// RotateToken inserts the replacement token, then revokes the old one with a
// conditional update that only matches while it is still active. When the
// update matches nothing (a concurrent rotation won), the replacement is
// deleted again and storage.ErrTokenNotFound is returned.
func (s *Storage) RotateToken(ctx context.Context, old, replacement *models.RefreshToken) (int64, error) {
	const op = "storage.mongodb.RotateToken"

	newID, err := s.SaveToken(ctx, replacement)
	if err != nil {
		return 0, fmt.Errorf("%s: insert replacement: %w", op, err)
	}

	now := time.Now()
	filter := bson.D{
		{Key: "_id", Value: old.ID},
		{Key: "revoked_at", Value: nil},
		{Key: "expires_at", Value: bson.D{{Key: "$gt", Value: now}}},
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "revoked_at", Value: now},
			{Key: "replaced_by_token_id", Value: newID},
		}},
	}

	err = s.tokens.FindOneAndUpdate(ctx, filter, update).Err()
	if err != nil {
		// Roll the replacement back so the chain never has two active tokens.
		_, delErr := s.tokens.DeleteOne(ctx, bson.D{{Key: "_id", Value: newID}})
		if delErr != nil {
			return 0, fmt.Errorf("%s: revoke old: %w (rollback failed: %v)", op, err, delErr)
		}
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
		}
		return 0, fmt.Errorf("%s: revoke old: %w", op, err)
	}

	return newID, nil
}

// SaveEntry appends one audit record.
func (s *Storage) SaveEntry(ctx context.Context, entry *models.AuditEntry) error {
	const op = "storage.mongodb.SaveEntry"

	doc := auditDoc{
		EventType:     entry.EventType,
		UserID:        entry.UserID,
		Email:         entry.Email,
		IPAddress:     entry.IPAddress,
		Success:       entry.Success,
		FailureReason: entry.FailureReason,
		CreatedAt:     time.Now(),
	}

	_, err := s.audit.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// isDuplicateKeyError checks if the error is a MongoDB duplicate key error (code 11000).
func isDuplicateKeyError(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return false
}
