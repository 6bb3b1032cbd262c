package app

import (
	"context"
	"log/slog"
	"time"

	"ecoauth/internal/app/httpapp"
	"ecoauth/internal/config"
	"ecoauth/internal/lib/jwt"
	"ecoauth/internal/services/auth"
	"ecoauth/internal/storage/mongodb"
	"ecoauth/internal/storage/sqlite"
)

// Storage is the full set of persistence contracts the auth service needs.
// Both durable backends satisfy it.
type Storage interface {
	auth.UserStore
	auth.RefreshTokenStore
	auth.AuditLog
}

type App struct {
	HTTPSrv *httpapp.App

	closeStorage func() error
}

// New wires storage, the token codec, the auth service and the HTTP server.
// MongoDB is used when a URI is configured, sqlite otherwise.
func New(logger *slog.Logger, cfg *config.Config) *App {
	storage, closeStorage := newStorage(cfg)

	codec, err := jwt.New(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.AccessTokenTTL,
	)
	if err != nil {
		panic(err)
	}

	authService := auth.New(logger, storage, storage, storage, codec, cfg.JWT.RefreshTokenTTL())
	httpApp := httpapp.New(logger, authService, cfg.HTTP.Port, cfg.HTTP.Timeout)

	return &App{
		HTTPSrv:      httpApp,
		closeStorage: closeStorage,
	}
}

// CloseStorage releases the storage backend.
func (a *App) CloseStorage() error {
	return a.closeStorage()
}

func newStorage(cfg *config.Config) (Storage, func() error) {
	if cfg.Mongo.URI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		storage, err := mongodb.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			panic(err)
		}

		return storage, func() error {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			return storage.Close(closeCtx)
		}
	}

	storage, err := sqlite.New(cfg.StoragePath)
	if err != nil {
		panic(err)
	}

	return storage, storage.Close
}
