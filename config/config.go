// Package config loads the bouncer's runtime configuration from the
// environment (and, optionally, a YAML file), using the same viper-driven
// approach the rest of this module's ancestry uses for app config.
package config

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is prepended to every recognized env var, e.g.
	// BOUNCER_STORE_CAPACITY, BOUNCER_REDIS_PREFIX.
	EnvPrefix = "BOUNCER"
)

// Config is the full set of recognized options from the admission core's
// configuration surface. Zero values are never meaningful on their own;
// Load always applies defaults first.
type Config struct {
	StoreCapacity    int64         `mapstructure:"store_capacity"`
	QueueEnabled     bool          `mapstructure:"queue_enabled"`
	AcquireTimeout   time.Duration `mapstructure:"acquire_timeout"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	ValidatedExpiry  time.Duration `mapstructure:"validated_expiry"`
	QuarantineExpiry time.Duration `mapstructure:"quarantine_expiry"`
	RedisPrefix      string        `mapstructure:"redis_prefix"`
	PublishThrottle  time.Duration `mapstructure:"publish_throttle"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	HousekeeperPeriod time.Duration `mapstructure:"housekeeper_period"`
	HousekeeperLease  bool          `mapstructure:"housekeeper_lease"`

	// AuditDSN, if non-empty, enables the optional MySQL housekeeping
	// ledger (see package audit). Empty means the sink is disabled.
	AuditDSN string `mapstructure:"audit_dsn"`

	// TokenKey/TokenIV enable position-token signing (see package token)
	// when both are set to valid AES key/IV material.
	TokenKey string `mapstructure:"token_key"`
	TokenIV  string `mapstructure:"token_iv"`

	// WaitingPageCompression selects a waitpage.Strategy name:
	// "none" (default), "lz4", "zstd", or "zstd-cgo".
	WaitingPageCompression string `mapstructure:"waiting_page_compression"`
}

// Load reads configuration from the environment, applying defaults for
// every option in spec.md §6 first so a bare environment still produces a
// usable config. An optional cfgDir, if non-empty, is also searched for a
// "bouncer.yaml" overlay.
func Load(cfgDir string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	setDefaults(v)

	if cfgDir != "" {
		v.SetConfigName("bouncer")
		v.SetConfigType("yaml")
		v.AddConfigPath(cfgDir)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, errors.Errorf("read bouncer config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Errorf("parse bouncer config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store_capacity", -1) // unbounded
	v.SetDefault("queue_enabled", true)
	v.SetDefault("acquire_timeout", 10*time.Second)
	v.SetDefault("connect_timeout", 10*time.Second)
	v.SetDefault("validated_expiry", 600*time.Second)
	v.SetDefault("quarantine_expiry", 45*time.Second)
	v.SetDefault("redis_prefix", "omnis_bouncer")
	v.SetDefault("publish_throttle", 0)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	// Unmarshal only sees keys viper already knows about, so the optional
	// string options get empty defaults too; otherwise AutomaticEnv would
	// never supply them.
	v.SetDefault("audit_dsn", "")
	v.SetDefault("token_key", "")
	v.SetDefault("token_iv", "")
	v.SetDefault("housekeeper_period", time.Second)
	v.SetDefault("housekeeper_lease", true)
	v.SetDefault("waiting_page_compression", "none")
}

// validate rejects configuration that can never be satisfied. Negative
// store_capacity is NOT an error (it means unbounded, per spec.md §3); a
// negative publish_throttle or non-positive housekeeper period are.
func (c *Config) validate() error {
	if c.PublishThrottle < 0 {
		return errors.Newf("publish_throttle must be >= 0, got %s", c.PublishThrottle)
	}
	if c.HousekeeperPeriod <= 0 {
		return errors.Newf("housekeeper_period must be > 0, got %s", c.HousekeeperPeriod)
	}
	if c.RedisPrefix == "" {
		return errors.New("redis_prefix must not be empty")
	}
	return nil
}
