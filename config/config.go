// Package config loads and validates the cirrus configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/veldt-io/cirrus/types"
)

// Config represents the main configuration
type Config struct {
	Version         string           `yaml:"version"`
	StorageDir      string           `yaml:"storage_dir"`
	JournalDir      string           `yaml:"journal_dir,omitempty"`
	CredentialsFile string           `yaml:"credentials_file"`
	Sync            Sync             `yaml:"sync,omitempty"`
	Daemon          Daemon           `yaml:"daemon,omitempty"`
	Telemetry       Telemetry        `yaml:"telemetry,omitempty"`
	Providers       []ProviderConfig `yaml:"providers,omitempty"`
}

// Sync tunes the sync engine.
type Sync struct {
	RunDeadline time.Duration `yaml:"run_deadline"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// Daemon tunes the continuous sync loop.
type Daemon struct {
	Interval   time.Duration `yaml:"interval"`
	ListenAddr string        `yaml:"listen_addr"`
}

// Telemetry configures the OTLP exporters. Empty endpoint keeps export
// Prometheus-only.
type Telemetry struct {
	OTELEndpoint string `yaml:"otel_endpoint,omitempty"`
	Environment  string `yaml:"environment,omitempty"`
	Insecure     bool   `yaml:"insecure,omitempty"`
}

// ProviderConfig declares a cloud account to mirror.
type ProviderConfig struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Type          string   `yaml:"type"`
	Regions       []string `yaml:"regions,omitempty"`
	CredentialRef string   `yaml:"credential_ref"`
	Enabled       *bool    `yaml:"enabled,omitempty"`
}

// IsEnabled defaults to true when the flag is absent.
func (p *ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// LoadConfig loads configuration from file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Sync.RunDeadline == 0 {
		c.Sync.RunDeadline = 10 * time.Minute
	}
	if c.Sync.CallTimeout == 0 {
		c.Sync.CallTimeout = 60 * time.Second
	}
	if c.Sync.MaxRetries == 0 {
		c.Sync.MaxRetries = 3
	}
	if c.Daemon.Interval == 0 {
		c.Daemon.Interval = 5 * time.Minute
	}
	if c.Daemon.ListenAddr == "" {
		c.Daemon.ListenAddr = ":9090"
	}
}

// Validate ensures config has required fields
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.StorageDir == "" {
		return fmt.Errorf("storage_dir is required")
	}
	if len(c.Providers) > 0 && c.CredentialsFile == "" {
		return fmt.Errorf("credentials_file is required when providers are configured")
	}

	seen := make(map[string]bool, len(c.Providers))
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.ID == "" {
			return fmt.Errorf("provider[%d]: id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("provider %s: duplicate id", p.ID)
		}
		seen[p.ID] = true
		if !types.ProviderType(p.Type).Valid() {
			return fmt.Errorf("provider %s: unknown type %q", p.ID, p.Type)
		}
		if p.CredentialRef == "" {
			return fmt.Errorf("provider %s: credential_ref is required", p.ID)
		}
	}
	return nil
}

// ToProvider converts a config entry to the stored provider record.
func (p *ProviderConfig) ToProvider(now time.Time) types.Provider {
	return types.Provider{
		ID:            p.ID,
		Name:          p.Name,
		Type:          types.ProviderType(p.Type),
		Regions:       p.Regions,
		Enabled:       p.IsEnabled(),
		CredentialRef: p.CredentialRef,
		CreatedAt:     now,
	}
}
