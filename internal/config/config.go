// Package config loads host and client settings from an optional YAML
// file, applying defaults for anything unset.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "5m" or "10s"
// parse directly.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// TLS controls transport encryption.
type TLS struct {
	Enabled        bool   `yaml:"enabled"`
	PKCS12File     string `yaml:"pkcs12_file"`     // optional; self-signed PEM otherwise
	PKCS12Password string `yaml:"pkcs12_password"` //nolint:gosec
	StrictVerify   bool   `yaml:"strict_verify"`   // client side: validate peer identity
	ServerName     string `yaml:"server_name"`     // hostname for strict validation
}

// Pairing controls the PIN gate.
type Pairing struct {
	PinTTL      Duration `yaml:"pin_ttl"`
	MaxAttempts int      `yaml:"max_attempts"`
}

// Session controls lifecycle management.
type Session struct {
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`
	HistoryDB            string `yaml:"history_db"` // empty disables persistence
}

// Codec controls the delta encoder.
type Codec struct {
	DeltaThresholdPercent float64 `yaml:"delta_threshold_percent"`
}

// Channel controls transport timing.
type Channel struct {
	WriteTimeout Duration `yaml:"write_timeout"`
	DialTimeout  Duration `yaml:"dial_timeout"`
}

// Config is the full configuration tree.
type Config struct {
	ListenPort int     `yaml:"listen_port"`
	DataDir    string  `yaml:"data_dir"`
	HostName   string  `yaml:"host_name"` // display name; defaults to os.Hostname
	TLS        TLS     `yaml:"tls"`
	Pairing    Pairing `yaml:"pairing"`
	Session    Session `yaml:"session"`
	Codec      Codec   `yaml:"codec"`
	Channel    Channel `yaml:"channel"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		ListenPort: 7820,
		DataDir:    defaultDataDir(),
		HostName:   hostname,
		TLS:        TLS{Enabled: true},
		Pairing: Pairing{
			PinTTL:      Duration(5 * time.Minute),
			MaxAttempts: 5,
		},
		Session: Session{
			MaxReconnectAttempts: 3,
		},
		Codec: Codec{
			DeltaThresholdPercent: 30,
		},
		Channel: Channel{
			WriteTimeout: Duration(10 * time.Second),
			DialTimeout:  Duration(10 * time.Second),
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file
// is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lanmirror"
	}
	return home + "/.lanmirror"
}
