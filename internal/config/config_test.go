package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenPort != 7820 {
		t.Errorf("port: got %d, want 7820", cfg.ListenPort)
	}
	if !cfg.TLS.Enabled {
		t.Error("TLS should default to enabled")
	}
	if cfg.Pairing.PinTTL.Std() != 5*time.Minute {
		t.Errorf("PIN TTL: got %v, want 5m", cfg.Pairing.PinTTL.Std())
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
listen_port: 9000
tls:
  enabled: false
pairing:
  pin_ttl: 90s
  max_attempts: 10
codec:
  delta_threshold_percent: 45.5
channel:
  write_timeout: 3s
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenPort != 9000 {
		t.Errorf("port: got %d, want 9000", cfg.ListenPort)
	}
	if cfg.TLS.Enabled {
		t.Error("TLS should be disabled")
	}
	if cfg.Pairing.PinTTL.Std() != 90*time.Second {
		t.Errorf("PIN TTL: got %v, want 90s", cfg.Pairing.PinTTL.Std())
	}
	if cfg.Pairing.MaxAttempts != 10 {
		t.Errorf("max attempts: got %d, want 10", cfg.Pairing.MaxAttempts)
	}
	if cfg.Codec.DeltaThresholdPercent != 45.5 {
		t.Errorf("threshold: got %v, want 45.5", cfg.Codec.DeltaThresholdPercent)
	}
	if cfg.Channel.WriteTimeout.Std() != 3*time.Second {
		t.Errorf("write timeout: got %v, want 3s", cfg.Channel.WriteTimeout.Std())
	}
	// Untouched sections keep their defaults.
	if cfg.Session.MaxReconnectAttempts != 3 {
		t.Errorf("max reconnects: got %d, want 3", cfg.Session.MaxReconnectAttempts)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("listen_port: [not a port"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("pairing:\n  pin_ttl: soon\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}
