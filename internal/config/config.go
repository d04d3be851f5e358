// Package config loads server settings from a YAML file, the environment and
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/erazemk/oder/internal/custody"
	"github.com/erazemk/oder/internal/model"
)

// Database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects where orders and the catalog live. Accounts and
// settings always use the SQLite file at Path.
type DatabaseConfig struct {
	Driver    string `yaml:"driver"`
	Path      string `yaml:"path"`
	MongoURI  string `yaml:"mongo_uri"`
	MongoName string `yaml:"mongo_name"`
}

type AuthConfig struct {
	// JWTSecret overrides the secret generated and kept in the database.
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	AdminUser string        `yaml:"admin_user"`
}

type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Base     time.Duration `yaml:"base"`
	Max      time.Duration `yaml:"max"`
}

type CustodyConfig struct {
	RequireAvailable bool        `yaml:"require_available"`
	IDWidth          int         `yaml:"id_width"`
	Retry            RetryConfig `yaml:"retry"`
}

type LogConfig struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Custody  CustodyConfig  `yaml:"custody"`
	Log      LogConfig      `yaml:"log"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	retry := custody.DefaultRetryPolicy()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:    DriverSQLite,
			Path:      "oder.sqlite3",
			MongoName: "oder",
		},
		Auth: AuthConfig{
			TokenTTL:  24 * time.Hour,
			AdminUser: "Admin",
		},
		Custody: CustodyConfig{
			RequireAvailable: true,
			IDWidth:          model.DefaultIDWidth,
			Retry:            RetryConfig{Attempts: retry.Attempts, Base: retry.Base, Max: retry.Max},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path on top of the defaults and then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files (".env" when none are
// named). Missing files are not an error; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides settings from ODER_* environment variables.
func (c *Config) ApplyEnv() {
	set := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set("ODER_ADDR", &c.Server.Addr)
	set("ODER_DB", &c.Database.Path)
	set("ODER_DB_DRIVER", &c.Database.Driver)
	set("ODER_MONGO_URI", &c.Database.MongoURI)
	set("ODER_JWT_SECRET", &c.Auth.JWTSecret)
	set("ODER_LOG", &c.Log.Path)
	set("ODER_LOG_LEVEL", &c.Log.Level)
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	switch c.Database.Driver {
	case DriverSQLite:
	case DriverMongo:
		if c.Database.MongoURI == "" {
			errs = append(errs, errors.New("database.mongo_uri is required for the mongo driver"))
		}
		if c.Database.MongoName == "" {
			errs = append(errs, errors.New("database.mongo_name is required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Custody.IDWidth < 1 || c.Custody.IDWidth > 12 {
		errs = append(errs, fmt.Errorf("custody.id_width %d out of range 1-12", c.Custody.IDWidth))
	}
	r := c.Custody.Retry
	if r.Attempts < 1 {
		errs = append(errs, errors.New("custody.retry.attempts must be at least 1"))
	}
	if r.Base < 0 || r.Max < r.Base {
		errs = append(errs, errors.New("custody.retry needs 0 <= base <= max"))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.Log.Level))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// Policy returns the claim validation policy.
func (c *Config) Policy() custody.Policy {
	return custody.Policy{RequireAvailable: c.Custody.RequireAvailable, IDWidth: c.Custody.IDWidth}
}

// RetryPolicy returns the conflict retry policy.
func (c *Config) RetryPolicy() custody.RetryPolicy {
	r := c.Custody.Retry
	return custody.RetryPolicy{Attempts: r.Attempts, Base: r.Base, Max: r.Max}
}
