//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadConfig(t *testing.T) {
	t.Run("should apply defaults", func(t *testing.T) {
		path := writeConfig(t, `
database:
  url: postgres://localhost/billing
paystack:
  secret_key: sk_test
`)
		cfg, err := LoadConfig(path, true)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if cfg.Server.Port != 8080 {
			t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
		}
		if cfg.Paystack.WebhookPath != "/webhooks/paystack" {
			t.Errorf("unexpected default webhook path %q", cfg.Paystack.WebhookPath)
		}
		if cfg.Paystack.MaxBodyBytes != 1<<20 {
			t.Errorf("expected 1MiB body limit, got %d", cfg.Paystack.MaxBodyBytes)
		}
		if cfg.Scheduler.StaleAfter != 5*time.Minute {
			t.Errorf("expected 5m stale threshold, got %s", cfg.Scheduler.StaleAfter)
		}
		if cfg.Redis.TTL != 5*time.Minute {
			t.Errorf("expected 5m cache ttl, got %s", cfg.Redis.TTL)
		}
		if !cfg.Runtime.Dev {
			t.Error("expected dev flag to be carried")
		}
	})

	t.Run("should let environment override secrets", func(t *testing.T) {
		path := writeConfig(t, `
database:
  url: postgres://localhost/billing
paystack:
  secret_key: from_file
`)
		t.Setenv("PAYSTACK_SECRET_KEY", "from_env")
		cfg, err := LoadConfig(path, false)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if cfg.Paystack.SecretKey != "from_env" {
			t.Errorf("expected env secret, got %q", cfg.Paystack.SecretKey)
		}
	})

	t.Run("should run from env alone when the file is missing", func(t *testing.T) {
		t.Setenv("PAYSTACK_SECRET_KEY", "sk")
		t.Setenv("DATABASE_URL", "postgres://env/billing")
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), false)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if cfg.Database.URL != "postgres://env/billing" {
			t.Errorf("unexpected database url %q", cfg.Database.URL)
		}
	})

	t.Run("should require the webhook secret", func(t *testing.T) {
		path := writeConfig(t, `
database:
  url: postgres://localhost/billing
`)
		t.Setenv("PAYSTACK_SECRET_KEY", "")
		if _, err := LoadConfig(path, false); err == nil {
			t.Fatal("expected an error for missing secret, got nil")
		}
	})

	t.Run("should reject malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "server: [")
		if _, err := LoadConfig(path, false); err == nil {
			t.Fatal("expected a parse error, got nil")
		}
	})
}
