package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"9090\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Store.Driver != DriverMemory || cfg.Relay.Driver != DriverLocal || cfg.Cache.Driver != DriverMemory {
		t.Fatalf("unexpected default drivers: %+v", cfg)
	}
	if cfg.Join.Rate != 1 || cfg.Join.Burst != 5 {
		t.Fatalf("unexpected join limits: %+v", cfg.Join)
	}
}

func TestLoadRejectsMissingBackend(t *testing.T) {
	path := writeConfig(t, "relay:\n  driver: redis\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected redis relay without address to be rejected")
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, "store:\n  driver: mongo\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown store driver to be rejected")
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %v", got)
	}
	if got := TTLDuration("bogus", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for bad input, got %v", got)
	}
	if got := TTLDuration("20s", time.Minute); got != 20*time.Second {
		t.Fatalf("expected 20s, got %v", got)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
