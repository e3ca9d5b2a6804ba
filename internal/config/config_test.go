package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8787" {
		t.Fatalf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.DB.Driver != "sqlite" {
		t.Fatalf("DB.Driver = %q", cfg.DB.Driver)
	}
	if cfg.Runtime.BinaryName != "codex" {
		t.Fatalf("Runtime.BinaryName = %q", cfg.Runtime.BinaryName)
	}
	if cfg.Runtime.DefaultTimeout != 120*time.Second {
		t.Fatalf("Runtime.DefaultTimeout = %v", cfg.Runtime.DefaultTimeout)
	}
	if len(cfg.Runtime.TemplateReplies) == 0 {
		t.Fatal("expected default template reply patterns")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://localhost/workbench")
	t.Setenv("RATE_LIMIT_PER_HOUR", "10")
	t.Setenv("AGENT_RUNTIME_ARGS", "exec, --json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB.Driver != "postgres" {
		t.Fatalf("DB.Driver = %q", cfg.DB.Driver)
	}
	if cfg.Rate.PerHour != 10 {
		t.Fatalf("Rate.PerHour = %d", cfg.Rate.PerHour)
	}
	if len(cfg.Runtime.DefaultArgs) != 2 || cfg.Runtime.DefaultArgs[1] != "--json" {
		t.Fatalf("Runtime.DefaultArgs = %v", cfg.Runtime.DefaultArgs)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
