package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/warp/restitution-engine/config"
	"github.com/warp/restitution-engine/logging"
	"github.com/warp/restitution-engine/store/sqlite"
)

var (
	configPath string
	envFile    string
	port       int
	dbPath     string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to a TOML config file")
	flags.StringVar(&envFile, "env-file", ".env", "Path to a .env file (ignored when missing)")
	flags.IntVar(&port, "port", 0, "HTTP server port (overrides config)")
	flags.StringVar(&dbPath, "db", "", `SQLite database path, ":memory:" for in-memory (overrides config)`)
}

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "ICMS restitution engine",
	Long: `Computes indexed ICMS restitution estimates against a prepaid credit
ledger, and serves the registration, payment and referral API.`,
	SilenceUsage: true,
	RunE:         runServe,
}

// loadConfig resolves the effective configuration and a logger for it.
// Flags set on the command line win over every other layer.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	var o config.Overrides
	if cmd.Flags().Changed("port") {
		o.Port = &port
	}
	if cmd.Flags().Changed("db") {
		o.DatabasePath = &dbPath
	}
	if cfg, err = cfg.ApplyOverrides(o); err != nil {
		return config.Config{}, nil, fmt.Errorf("command-line flags: %w", err)
	}
	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	return cfg, logger, nil
}

func openStore(cfg config.Config) (*sqlite.Store, error) {
	if path := cfg.Database.Path; path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	return store, nil
}
