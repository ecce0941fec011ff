// Package config loads the immutable process configuration from the
// environment (optionally seeded from a .env file) and the person-table
// schema from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"padron/internal/observability/pprof"
	"padron/internal/storage"
)

// DB is one logical database connection.
type DB struct {
	Driver   string `env:"DRIVER" envDefault:"sqlserver"`
	Server   string `env:"SERVER"`
	Port     int    `env:"PORT"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	Name     string `env:"NAME"`
	SSLMode  string `env:"SSLMODE"`
}

func (d DB) isSQLite() bool {
	switch strings.ToLower(strings.TrimSpace(d.Driver)) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}

func (d DB) configured() bool { return strings.TrimSpace(d.Name) != "" }

func (d DB) validate(prefix string) error {
	var errs []error
	switch strings.ToLower(strings.TrimSpace(d.Driver)) {
	case "sqlserver", "mssql", "postgres", "postgresql", "pgx", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("%sDRIVER: unsupported driver %q", prefix, d.Driver))
	}
	if !d.configured() {
		errs = append(errs, fmt.Errorf("%sNAME is required", prefix))
	}
	if !d.isSQLite() && strings.TrimSpace(d.Server) == "" {
		errs = append(errs, fmt.Errorf("%sSERVER is required", prefix))
	}
	if d.Port < 0 || d.Port > 65535 {
		errs = append(errs, fmt.Errorf("%sPORT out of range: %d", prefix, d.Port))
	}
	return errors.Join(errs...)
}

// Storage converts d into a storage connection config.
func (d DB) Storage(maxOpen int) storage.Config {
	return storage.Config{
		Driver:       d.Driver,
		Host:         d.Server,
		Port:         d.Port,
		User:         d.User,
		Password:     d.Password,
		Database:     d.Name,
		SSLMode:      d.SSLMode,
		MaxOpenConns: maxOpen,
	}
}

type HTTP struct {
	Addr        string   `env:"HTTP_ADDR" envDefault:":5000"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`
}

type Telegram struct {
	Token       string        `env:"TELEGRAM_TOKEN"`
	AdminID     int64         `env:"BOT_ADMIN_ID"`
	PollTimeout time.Duration `env:"BOT_POLL_TIMEOUT" envDefault:"10s"`
	RatePerSec  float64       `env:"BOT_RATE_PER_SEC" envDefault:"25"`
	PageSize    int           `env:"BOT_PAGE_SIZE" envDefault:"5"`
	MaxResults  int           `env:"BOT_MAX_RESULTS" envDefault:"25"`
}

type Logging struct {
	Level    string `env:"LOG_LEVEL" envDefault:"info"`
	File     string `env:"LOG_FILE"`
	Telegram bool   `env:"LOG_TELEGRAM" envDefault:"false"`
}

// Pprof is the opt-in profiling listener. Empty PPROF_ADDR disables it.
type Pprof struct {
	Addr  string `env:"PPROF_ADDR"`
	Token string `env:"PPROF_TOKEN"`
}

func (p Pprof) Config() pprof.Config { return pprof.Config{Addr: p.Addr, Token: p.Token} }

// Config is built once at startup and never mutated afterwards.
type Config struct {
	DB      DB `envPrefix:"DB_"`
	AuditDB DB `envPrefix:"AUDIT_DB_"`

	QueryTimeout time.Duration `env:"DB_QUERY_TIMEOUT" envDefault:"15s"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	AuthTable    string        `env:"AUTH_TABLE" envDefault:"BotAuthorizedUsers"`
	AuditTable   string        `env:"AUDIT_TABLE" envDefault:"BotSearchLog"`

	SchemaFile    string `env:"SCHEMA_FILE" envDefault:"schema.yaml"`
	ImageBasePath string `env:"IMAGE_BASE_PATH"`

	HTTP     HTTP
	Telegram Telegram
	Logging  Logging
	Pprof    Pprof
}

// Load reads the optional .env files (missing files are ignored) and then
// parses the process environment.
func Load(dotenv ...string) (Config, error) {
	if err := godotenv.Load(dotenv...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse(nil)
}

// Parse builds a Config from environ. A nil map means the process environment.
func Parse(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.HTTP.CORSOrigins = cleanList(cfg.HTTP.CORSOrigins)
	return cfg, nil
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Audit returns the audit database config, falling back to the primary
// database when no AUDIT_DB_NAME is set.
func (c Config) Audit() DB {
	if c.AuditDB.configured() {
		return c.AuditDB
	}
	return c.DB
}

// SharedAudit reports whether the audit log lives on the primary database.
func (c Config) SharedAudit() bool { return !c.AuditDB.configured() }

func (c Config) validateCommon() []error {
	var errs []error
	if err := c.DB.validate("DB_"); err != nil {
		errs = append(errs, err)
	}
	if c.QueryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("DB_QUERY_TIMEOUT must be > 0, got %s", c.QueryTimeout))
	}
	if c.MaxOpenConns <= 0 {
		errs = append(errs, fmt.Errorf("DB_MAX_OPEN_CONNS must be > 0, got %d", c.MaxOpenConns))
	}
	if strings.TrimSpace(c.SchemaFile) == "" {
		errs = append(errs, errors.New("SCHEMA_FILE is required"))
	}
	if err := c.Pprof.Config().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("PPROF_ADDR: %w", err))
	}
	return errs
}

// ValidateWeb checks what the web server needs.
func (c Config) ValidateWeb() error {
	errs := c.validateCommon()
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("HTTP_ADDR is required"))
	}
	return errors.Join(errs...)
}

// ValidateBot checks what the bot needs.
func (c Config) ValidateBot() error {
	errs := c.validateCommon()
	if c.AuditDB.configured() {
		if err := c.AuditDB.validate("AUDIT_DB_"); err != nil {
			errs = append(errs, err)
		}
	}
	for name, v := range map[string]string{"AUTH_TABLE": c.AuthTable, "AUDIT_TABLE": c.AuditTable} {
		if !storage.ValidIdentifier(v) {
			errs = append(errs, fmt.Errorf("%s: invalid identifier %q", name, v))
		}
	}
	t := c.Telegram
	if strings.TrimSpace(t.Token) == "" {
		errs = append(errs, errors.New("TELEGRAM_TOKEN is required"))
	}
	if t.AdminID == 0 {
		errs = append(errs, errors.New("BOT_ADMIN_ID is required"))
	}
	if t.PollTimeout <= 0 {
		errs = append(errs, fmt.Errorf("BOT_POLL_TIMEOUT must be > 0, got %s", t.PollTimeout))
	}
	if t.RatePerSec <= 0 {
		errs = append(errs, fmt.Errorf("BOT_RATE_PER_SEC must be > 0, got %v", t.RatePerSec))
	}
	if t.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("BOT_PAGE_SIZE must be > 0, got %d", t.PageSize))
	}
	if t.MaxResults < t.PageSize {
		errs = append(errs, fmt.Errorf("BOT_MAX_RESULTS (%d) must be >= BOT_PAGE_SIZE (%d)", t.MaxResults, t.PageSize))
	}
	return errors.Join(errs...)
}
