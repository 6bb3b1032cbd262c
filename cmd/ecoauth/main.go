package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ecoauth/internal/app"
	"ecoauth/internal/config"
	"ecoauth/internal/lib/handlers/slogpretty"
)

const (
	envLocal = "local"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file (or use CONFIG_PATH env)")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "config/local.yaml"
	}

	cfg := config.LoadConfig(configPath)
	logger := setupLogger(cfg.Env)
	logger.Info("starting auth server", slog.String("env", cfg.Env))

	application := app.New(logger, cfg)
	go application.HTTPSrv.MustRun()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	application.HTTPSrv.Stop()

	if err := application.CloseStorage(); err != nil {
		logger.Error("failed to close storage", slog.String("error", err.Error()))
	}

	logger.Info("shutting down auth server")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envProd:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		panic("unknown environment: " + env)
	}
	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}
	h := opts.NewPrettyHandler(os.Stdout)

	return slog.New(h)
}
