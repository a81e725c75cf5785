package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sample = `
app:
  env: dev
  timezone: UTC
telegram:
  token: "t0k3n"
  admin_chat_id: 42
postgres:
  dsn: "postgres://from-file"
auth:
  jwt_secret: "secret"
  token_ttl: 2h
bootstrap:
  workbook: "seed.xlsx"
  required: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Chdir(dir)
	return p
}

func TestLoad(t *testing.T) {
	p := writeConfig(t, sample)

	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.App.Env != "dev" {
		t.Errorf("env = %q", c.App.Env)
	}
	if c.Telegram.AdminChatID != 42 {
		t.Errorf("admin chat = %d", c.Telegram.AdminChatID)
	}
	if c.Auth.TokenTTL != 2*time.Hour {
		t.Errorf("token ttl = %v", c.Auth.TokenTTL)
	}
	if !c.Bootstrap.Required || c.Bootstrap.Workbook != "seed.xlsx" {
		t.Errorf("bootstrap = %+v", c.Bootstrap)
	}
	// значения по умолчанию
	if c.HTTP.Addr != ":8080" {
		t.Errorf("http addr = %q", c.HTTP.Addr)
	}
	if c.App.LowStockFactor != 1.2 {
		t.Errorf("low stock factor = %v", c.App.LowStockFactor)
	}
	if c.Telegram.Timeout != 30 {
		t.Errorf("telegram timeout = %d", c.Telegram.Timeout)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	p := writeConfig(t, sample)
	t.Setenv("APP_POSTGRES_DSN", "postgres://from-env")

	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Postgres.DSN != "postgres://from-env" {
		t.Errorf("dsn = %q", c.Postgres.DSN)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := Load("nope.yaml"); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestLocation(t *testing.T) {
	var c Config
	c.App.Timezone = "America/Sao_Paulo"
	loc, err := c.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if loc.String() != "America/Sao_Paulo" {
		t.Errorf("loc = %s", loc)
	}
}
