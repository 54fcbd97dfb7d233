// Command decisionbot runs the decision and automation engines. It loads
// configuration, validates it, sets up signal handling, and starts the
// application in the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/decisionbot/internal/app"
	"github.com/alanyoungcy/decisionbot/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override the configured mode (run, serve, once, test)")
	flag.Parse()

	logger := newLogger(os.Stdout, slog.LevelInfo)
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	// The once and test modes print their report on stdout.
	var out io.Writer = os.Stdout
	if cfg.Mode == "once" || cfg.Mode == "test" {
		out = os.Stderr
	}
	logger = newLogger(out, parseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("decisionbot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			application.Close()
			os.Exit(1)
		}
	}

	logger.Info("decisionbot stopped")
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
