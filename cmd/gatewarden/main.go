// ABOUTME: Entry point for gatewarden
// ABOUTME: Wires config, store, registry, dispatcher, sweeper and the Matrix bridge

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/gatewarden/gatewarden/internal/challenge"
	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/guard"
	"github.com/gatewarden/gatewarden/internal/matrix"
	"github.com/gatewarden/gatewarden/internal/session"
	"github.com/gatewarden/gatewarden/internal/store"
)

const banner = `
             _                             _
  __ _  __ _| |_ _____      ____ _ _ __ __| | ___ _ __
 / _' |/ _' | __/ _ \ \ /\ / / _' | '__/ _' |/ _ \ '_ \
| (_| | (_| | ||  __/\ V  V / (_| | | | (_| |  __/ | | |
 \__, |\__,_|\__\___| \_/\_/ \__,_|_|  \__,_|\___|_| |_|
 |___/
`

// getConfigPath returns the path to the gatewarden config file.
// Priority: GATEWARDEN_CONFIG env var > XDG_CONFIG_HOME/gatewarden/gatewarden.toml > ~/.config/gatewarden/gatewarden.toml
func getConfigPath() string {
	if envPath := os.Getenv("GATEWARDEN_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gatewarden.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "gatewarden", "gatewarden.toml")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Secrets referenced as ${VAR} in the config may live in a .env file
	_ = godotenv.Load()

	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	// Print startup info
	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("User:       %s\n", cfg.Matrix.UserID)
	green.Print("    ▶ ")
	fmt.Printf("Database:   %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Difficulty: %s\n", cfg.Captcha.Difficulty)
	fmt.Println()

	// Setup graceful shutdown context first - all operations should respect it
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	registry := session.NewRegistry()
	generator := challenge.NewGenerator(cfg.Captcha.Difficulty)

	bridge, err := matrix.NewBridge(cfg)
	if err != nil {
		return fmt.Errorf("creating matrix bridge: %w", err)
	}

	dispatcher := guard.NewDispatcher(st, registry, generator, bridge)
	bridge.SetDispatcher(dispatcher)

	sweeper := guard.NewSweeper(registry, st, bridge,
		cfg.Captcha.MaxResponseTime, cfg.Captcha.SweepInterval)
	go sweeper.Run(ctx)

	logger.Info("starting gatewarden")
	return bridge.Run(ctx)
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
