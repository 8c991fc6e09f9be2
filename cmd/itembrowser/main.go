// Package main is the entry point for the item browser.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/stacklok/itembrowser/cmd/itembrowser/app"
	"github.com/stacklok/itembrowser/internal/config"
)

// getLogLevel parses the ITEMBROWSER_LOG_LEVEL environment variable and returns the corresponding slog.Level.
// Falls back to LOG_LEVEL for backward compatibility.
// Defaults to slog.LevelInfo if neither is set or if the value is invalid.
func getLogLevel() slog.Level {
	v := viper.New()
	v.SetEnvPrefix(app.EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	levelStr := v.GetString("LOG_LEVEL")
	if levelStr == "" {
		levelStr = os.Getenv("LOG_LEVEL")
	}
	return app.ParseLogLevel(levelStr)
}

func main() {
	// A missing .env file is the normal case
	_ = godotenv.Load()

	// Bootstrap logging until the configuration is loaded. Use stderr to keep
	// stdout clean for commands that output data (e.g., list --format json).
	slog.SetDefault(slog.New(app.NewLogHandler(os.Stderr, config.LogFormatJSON, getLogLevel())))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
