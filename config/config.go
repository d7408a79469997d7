/*
Package config loads the service configuration.

LAYERS (later wins):
  1. Default()
  2. TOML file (--config, optional)
  3. .env file entries (optional)
  4. Process environment, RESTITUTION_* keys
  5. Command-line flags --port and --db (applied by cmd/server)

EXAMPLE (restitution.toml):
  [server]
  host = "0.0.0.0"
  port = 8080
  cors_origins = ["https://app.example.com"]

  [database]
  path = "./data/restitution.db"

  [log]
  level = "info"
  format = "json"

  [credits]
  welcome_bonus = 3
  purchase_default = 3
  purchase_ttl = "960h"
  referral_ttl = "1440h"
  calculation_cost = 1

  [calculation]
  require_rates = true

  [rates]
  cache_size = 256
  cache_ttl = "5m"

  [sync]
  enabled = true
  interval = "1h"
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/warp/restitution-engine/core"
)

const envPrefix = "RESTITUTION_"

// Duration is a time.Duration that decodes from "40h" style strings.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Server      ServerConfig      `toml:"server"`
	Database    DatabaseConfig    `toml:"database"`
	Log         LogConfig         `toml:"log"`
	Credits     CreditsConfig     `toml:"credits"`
	Calculation CalculationConfig `toml:"calculation"`
	Rates       RatesConfig       `toml:"rates"`
	Sync        SyncConfig        `toml:"sync"`
}

type ServerConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type CreditsConfig struct {
	WelcomeBonus    int64    `toml:"welcome_bonus"`
	PurchaseDefault int64    `toml:"purchase_default"`
	PurchaseTTL     Duration `toml:"purchase_ttl"`
	ReferralTTL     Duration `toml:"referral_ttl"`
	CalculationCost int64    `toml:"calculation_cost"`
}

type CalculationConfig struct {
	// RequireRates fails calculations with ErrDataUnavailable when the rate
	// repository has nothing for either index in the window.
	RequireRates bool `toml:"require_rates"`
}

type RatesConfig struct {
	CacheSize int `toml:"cache_size"`
	// CacheTTL bounds how stale a cached rate window may get when rates are
	// imported by another process.
	CacheTTL Duration `toml:"cache_ttl"`
}

type SyncConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval Duration `toml:"interval"`
}

// Default returns production defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Database: DatabaseConfig{Path: "./data/restitution.db"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Credits: CreditsConfig{
			WelcomeBonus:    3,
			PurchaseDefault: 3,
			PurchaseTTL:     Duration{core.DefaultPurchaseTTL},
			ReferralTTL:     Duration{core.DefaultReferralTTL},
			CalculationCost: 1,
		},
		Calculation: CalculationConfig{RequireRates: true},
		Rates:       RatesConfig{CacheSize: 256, CacheTTL: Duration{5 * time.Minute}},
		Sync:        SyncConfig{Enabled: true, Interval: Duration{time.Hour}},
	}
}

// Load builds the configuration from defaults, the optional TOML file at
// path, the optional .env file at envFile and the process environment.
// Missing files are not an error when their path is empty.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read env file %s: %w", envFile, err)
		}
		if values != nil {
			dotenv = values
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			return v, true
		}
		v, ok := dotenv[envPrefix+key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int64) {
		if v, ok := lookup(key); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			}
		}
	}

	str("SERVER_HOST", &c.Server.Host)
	port := int64(c.Server.Port)
	integer("SERVER_PORT", &port)
	c.Server.Port = int(port)
	if v, ok := lookup("CORS_ORIGINS"); ok {
		c.Server.CORSOrigins = splitList(v)
	}
	str("DATABASE_PATH", &c.Database.Path)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	integer("WELCOME_BONUS", &c.Credits.WelcomeBonus)
	integer("PURCHASE_DEFAULT", &c.Credits.PurchaseDefault)
	duration("PURCHASE_TTL", &c.Credits.PurchaseTTL)
	duration("REFERRAL_TTL", &c.Credits.ReferralTTL)
	integer("CALCULATION_COST", &c.Credits.CalculationCost)
	boolean("REQUIRE_RATES", &c.Calculation.RequireRates)
	cacheSize := int64(c.Rates.CacheSize)
	integer("RATES_CACHE_SIZE", &cacheSize)
	c.Rates.CacheSize = int(cacheSize)
	duration("RATES_CACHE_TTL", &c.Rates.CacheTTL)
	boolean("SYNC_ENABLED", &c.Sync.Enabled)
	duration("SYNC_INTERVAL", &c.Sync.Interval)

	return errors.Join(errs...)
}

// Overrides carries command-line flags. Nil fields were not set.
type Overrides struct {
	Port         *int
	DatabasePath *string
}

// ApplyOverrides returns a copy with the set flags applied, re-validated.
func (c Config) ApplyOverrides(o Overrides) (Config, error) {
	if o.Port != nil {
		c.Server.Port = *o.Port
	}
	if o.DatabasePath != nil {
		c.Database.Path = *o.DatabasePath
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Credits.WelcomeBonus < 0 {
		errs = append(errs, errors.New("credits.welcome_bonus must not be negative"))
	}
	if c.Credits.PurchaseDefault <= 0 {
		errs = append(errs, errors.New("credits.purchase_default must be positive"))
	}
	if c.Credits.CalculationCost <= 0 {
		errs = append(errs, errors.New("credits.calculation_cost must be positive"))
	}
	if c.Credits.PurchaseTTL.Duration <= 0 || c.Credits.ReferralTTL.Duration <= 0 {
		errs = append(errs, errors.New("credits ttl values must be positive"))
	}
	if c.Rates.CacheTTL.Duration <= 0 {
		errs = append(errs, errors.New("rates.cache_ttl must be positive"))
	}
	if c.Sync.Enabled && c.Sync.Interval.Duration <= 0 {
		errs = append(errs, errors.New("sync.interval must be positive when sync is enabled"))
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
