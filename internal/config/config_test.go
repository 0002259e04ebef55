package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "toolwarden.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Rules.Role != "USER" || cfg.Rules.Strict {
		t.Errorf("unexpected rules defaults %+v", cfg.Rules)
	}
	if cfg.Receipts.Collection != "telemetry_ledger" || cfg.Receipts.Timeout != 5*time.Second {
		t.Errorf("unexpected receipts defaults %+v", cfg.Receipts)
	}
	if !strings.HasSuffix(cfg.Rules.Path, filepath.Join(".toolwarden", "rules.yaml")) {
		t.Errorf("unexpected default rules path %s", cfg.Rules.Path)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
rules:
  path: /etc/toolwarden/rules.yaml
  strict: true
server:
  grpc_port: 6000
log:
  level: debug
  format: json
`)
	t.Setenv("TOOLWARDEN_SERVER_GRPC_PORT", "7000")
	t.Setenv("TOOLWARDEN_LEDGER_REDIS_ADDR", "localhost:6379")
	t.Setenv("TOOLWARDEN_RECEIPTS_TIMEOUT", "2s")
	t.Setenv("TOOLWARDEN_ALERT_URL", "https://hooks.example.com/x")
	t.Setenv("TOOLWARDEN_ALERT_OUTCOMES", "blocked,error")
	t.Setenv("TOOLWARDEN_ALERT_HEADERS", "Authorization:Bearer t")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Rules.Path != "/etc/toolwarden/rules.yaml" || !cfg.Rules.Strict {
		t.Errorf("expected YAML rules settings, got %+v", cfg.Rules)
	}
	if cfg.Server.GRPCPort != 7000 {
		t.Errorf("expected env to override grpc port, got %d", cfg.Server.GRPCPort)
	}
	if cfg.Server.HTTPAddr != ":9464" {
		t.Errorf("expected default http addr to survive, got %s", cfg.Server.HTTPAddr)
	}
	if cfg.Ledger.RedisAddr != "localhost:6379" {
		t.Errorf("expected redis addr from env, got %q", cfg.Ledger.RedisAddr)
	}
	if cfg.Receipts.Timeout != 2*time.Second {
		t.Errorf("expected 2s timeout, got %s", cfg.Receipts.Timeout)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected json log format, got %s", cfg.Log.Format)
	}
	if cfg.Alert.URL != "https://hooks.example.com/x" || len(cfg.Alert.Outcomes) != 2 {
		t.Errorf("unexpected alert config %+v", cfg.Alert)
	}
	if cfg.Alert.Headers["Authorization"] != "Bearer t" {
		t.Errorf("expected alert header from env, got %v", cfg.Alert.Headers)
	}
}

func TestLoadIgnoresUnprefixedEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, "rules:\n  path: /etc/toolwarden/rules.yaml\n")
	t.Setenv("PATH", "/usr/local/bin:/usr/bin:/bin")
	t.Setenv("TIMEOUT", "1ns")
	t.Setenv("LEVEL", "loud")
	t.Setenv("FORMAT", "xml")
	t.Setenv("URL", "http://leak.invalid")
	t.Setenv("PREFIX", "leak")
	t.Setenv("REDIS_ADDR", "leak:6379")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Rules.Path != "/etc/toolwarden/rules.yaml" {
		t.Errorf("rules path overridden by $PATH: %s", cfg.Rules.Path)
	}
	for name, p := range map[string]string{"audit": cfg.Audit.Path, "queue": cfg.Queue.Path} {
		if p != "" {
			t.Errorf("%s path taken from environment: %s", name, p)
		}
	}
	if !strings.HasSuffix(cfg.Receipts.Path, "receipts.jsonl") {
		t.Errorf("receipts path overridden: %s", cfg.Receipts.Path)
	}
	if cfg.Receipts.Timeout != 5*time.Second {
		t.Errorf("receipts timeout overridden: %s", cfg.Receipts.Timeout)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("log config overridden: %+v", cfg.Log)
	}
	if cfg.Alert.URL != "" || cfg.Ledger.Prefix != "toolwarden" || cfg.Ledger.RedisAddr != "" {
		t.Errorf("unprefixed variables leaked: alert=%+v ledger=%+v", cfg.Alert, cfg.Ledger)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	os.WriteFile(filepath.Join(dir, ".env"), []byte("TOOLWARDEN_RULES_ROLE=ADMIN\n"), 0644)
	t.Cleanup(func() { os.Unsetenv("TOOLWARDEN_RULES_ROLE") })

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Rules.Role != "ADMIN" {
		t.Errorf("expected role from .env, got %s", cfg.Rules.Role)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Chdir(t.TempDir())

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "rules: [")); err == nil {
		t.Error("expected error for bad YAML")
	}
	if _, err := Load(writeConfig(t, "log:\n  level: loud\n")); err == nil {
		t.Error("expected error for unknown log level")
	}
	t.Setenv("TOOLWARDEN_SERVER_GRPC_PORT", "not-a-number")
	if _, err := Load(""); err == nil {
		t.Error("expected error for bad env value")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "xml"
	cfg.Server.GRPCPort = 70000
	cfg.Receipts.MongoURI = "mongodb://localhost"
	cfg.Receipts.Database = ""
	cfg.Alert.Format = "teams"
	cfg.Alert.Outcomes = []string{"denied"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"log.format", "grpc_port", "receipts.database", "alert.format", "alert.outcomes"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "component", "test")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("expected JSON warn line, got %s", out)
	}
}
