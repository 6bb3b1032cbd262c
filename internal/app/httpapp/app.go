package httpapp

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	authhttp "ecoauth/internal/http/auth"
)

type App struct {
	logger *slog.Logger
	fiber  *fiber.App
	port   int
}

func New(
	logger *slog.Logger,
	authService authhttp.Auth,
	port int,
	timeout time.Duration,
) *App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	authhttp.RegisterRoutes(app, authhttp.NewHandler(authService))

	return &App{
		logger: logger,
		fiber:  app,
		port:   port,
	}
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "httpapp.Run"

	log := a.logger.With(
		slog.String("op", op),
		slog.Int("port", a.port),
	)

	log.Info("HTTP server is running")

	if err := a.fiber.Listen(fmt.Sprintf(":%d", a.port)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (a *App) Stop() {
	const op = "httpapp.Stop"
	log := a.logger.With(slog.String("op", op))
	log.Info("stopping HTTP server", slog.Int("port", a.port))

	if err := a.fiber.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Error("shutdown failed", slog.String("error", err.Error()))
	}
}
