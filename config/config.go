// Package config loads the service configuration from a YAML file and
// PAYDAY_ prefixed environment variables, environment taking precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	HTTP struct {
		Addr string `mapstructure:"addr"`
		PSK  string `mapstructure:"psk"`
	} `mapstructure:"http"`

	Postgres struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"postgres"`

	NATS struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"nats"`

	EventStore struct {
		SnapshotFrequency int `mapstructure:"snapshot_frequency"`
	} `mapstructure:"event_store"`

	Outbox struct {
		BatchSize int           `mapstructure:"batch_size"`
		Interval  time.Duration `mapstructure:"interval"`
		Workers   int           `mapstructure:"workers"`
	} `mapstructure:"outbox"`

	Expiry struct {
		SweepInterval time.Duration `mapstructure:"sweep_interval"`
	} `mapstructure:"expiry"`
}

// Load reads the configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("http.addr", ":8080")
	// Empty defaults register the keys so environment overrides are seen
	// during Unmarshal.
	v.SetDefault("http.psk", "")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("event_store.snapshot_frequency", 5)
	v.SetDefault("outbox.batch_size", 10)
	v.SetDefault("outbox.interval", 2*time.Second)
	v.SetDefault("outbox.workers", 3)
	v.SetDefault("expiry.sweep_interval", time.Minute)

	v.SetEnvPrefix("PAYDAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that required settings are present. nats.url is optional:
// without a broker, projections tail the event log directly and the outbox
// is not drained.
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required (PAYDAY_POSTGRES_DSN)")
	}
	if c.HTTP.PSK == "" {
		return fmt.Errorf("http.psk is required (PAYDAY_HTTP_PSK)")
	}
	return nil
}
