// Package config loads toolwarden settings from a YAML file, a .env file and
// TOOLWARDEN_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override. Keys are
// TOOLWARDEN_<SECTION>_<FIELD>, for example TOOLWARDEN_RULES_PATH.
// Leaf fields must not carry an envconfig tag: envconfig also reads the bare
// tag name, so PATH or TIMEOUT would leak in from the process environment.
const EnvPrefix = "TOOLWARDEN"

// RulesConfig locates the firewall rules.
type RulesConfig struct {
	Path string `yaml:"path"`
	// Strict refuses to start with a missing or unparsable rule file.
	Strict bool `yaml:"strict"`
	// Role is the caller role used when a surface supplies none.
	Role string `yaml:"role"`
	// Watch reloads the rules when the file changes.
	Watch bool `yaml:"watch"`
}

// AuditConfig configures the hash-chained call log. Empty Path disables it.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// QueueConfig locates the SQLite ticket queue. Empty Path disables the
// queue tools.
type QueueConfig struct {
	Path string `yaml:"path"`
}

// ReceiptsConfig selects where receipts go. MongoURI wins over Path.
type ReceiptsConfig struct {
	Path       string        `yaml:"path"`
	MongoURI   string        `yaml:"mongo_uri" split_words:"true"`
	Database   string        `yaml:"database"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LedgerConfig configures the shared usage counters. Empty RedisAddr keeps
// counters in process memory only.
type LedgerConfig struct {
	RedisAddr     string `yaml:"redis_addr" split_words:"true"`
	RedisPassword string `yaml:"redis_password" split_words:"true"`
	RedisDB       int    `yaml:"redis_db" split_words:"true"`
	Prefix        string `yaml:"prefix"`
	Scope         string `yaml:"scope"`
}

// ServerConfig configures the serve command's listeners.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" split_words:"true"`
	GRPCPort int    `yaml:"grpc_port" split_words:"true"`
	Metrics  bool   `yaml:"metrics"`
	// MCPPath mounts the streamable HTTP MCP endpoint. Empty disables it.
	MCPPath string `yaml:"mcp_path" split_words:"true"`
}

// AlertConfig posts call outcomes to a webhook. Empty URL disables it.
type AlertConfig struct {
	URL    string `yaml:"url"`
	Format string `yaml:"format"`
	// Outcomes defaults to blocked only.
	Outcomes []string          `yaml:"outcomes"`
	Headers  map[string]string `yaml:"headers"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root configuration.
type Config struct {
	Rules    RulesConfig    `yaml:"rules" envconfig:"RULES"`
	Audit    AuditConfig    `yaml:"audit" envconfig:"AUDIT"`
	Queue    QueueConfig    `yaml:"queue" envconfig:"QUEUE"`
	Receipts ReceiptsConfig `yaml:"receipts" envconfig:"RECEIPTS"`
	Ledger   LedgerConfig   `yaml:"ledger" envconfig:"LEDGER"`
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Alert    AlertConfig    `yaml:"alert" envconfig:"ALERT"`
	Log      LogConfig      `yaml:"log" envconfig:"LOG"`
}

// DefaultDir returns ~/.toolwarden, or .toolwarden when the home directory
// is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".toolwarden"
	}
	return filepath.Join(home, ".toolwarden")
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := DefaultDir()
	return &Config{
		Rules: RulesConfig{
			Path: filepath.Join(dir, "rules.yaml"),
			Role: "USER",
		},
		Receipts: ReceiptsConfig{
			Path:       filepath.Join(dir, "receipts.jsonl"),
			Database:   "toolwarden",
			Collection: "telemetry_ledger",
			Timeout:    5 * time.Second,
		},
		Ledger: LedgerConfig{
			Prefix: "toolwarden",
			Scope:  "process",
		},
		Server: ServerConfig{
			HTTPAddr: ":9464",
			GRPCPort: 50051,
			Metrics:  true,
			MCPPath:  "/mcp",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config from defaults, then the YAML file at path (skipped
// when path is empty), then .env, then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env is optional.
	_ = godotenv.Load(".env")

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q (want text or json)", c.Log.Format))
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("server.grpc_port: %d out of range", c.Server.GRPCPort))
	}
	switch c.Alert.Format {
	case "", "generic", "slack", "pagerduty":
	default:
		errs = append(errs, fmt.Errorf("alert.format: unknown format %q (want generic, slack or pagerduty)", c.Alert.Format))
	}
	for _, o := range c.Alert.Outcomes {
		switch o {
		case "ok", "error", "blocked":
		default:
			errs = append(errs, fmt.Errorf("alert.outcomes: unknown outcome %q", o))
		}
	}
	if c.Receipts.MongoURI != "" && c.Receipts.Database == "" {
		errs = append(errs, errors.New("receipts.database is required with receipts.mongo_uri"))
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger described by c.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log.level: unknown level %q", s)
	}
}
