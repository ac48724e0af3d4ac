package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samvad-hq/hubbub/pkg/subscriber"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from flags, files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	HubURL       string `mapstructure:"hub_url"`
	CallbackURL  string `mapstructure:"callback_url"`
	Credentials  string `mapstructure:"credentials"`
	Secret       string `mapstructure:"secret"`
	Verify       string `mapstructure:"verify"`
	VerifyToken  string `mapstructure:"verify_token"`
	LeaseSeconds int    `mapstructure:"lease_seconds"`

	HTTPTimeoutSeconds int64         `mapstructure:"http_timeout_seconds"`
	HTTPTimeout        time.Duration `mapstructure:"-"`

	TopicsFile     string `mapstructure:"topics_file"`
	PublishersFile string `mapstructure:"publishers_file"`

	FeedLookupURL string `mapstructure:"feed_lookup_url"`
	FeedLookupKey string `mapstructure:"feed_lookup_key"`

	StorageType            string        `mapstructure:"storage_type"`
	BBoltPath              string        `mapstructure:"bbolt_path"`
	StorageTTLSeconds      int64         `mapstructure:"storage_ttl_seconds"`
	StorageCleanupSeconds  int64         `mapstructure:"storage_cleanup_interval_seconds"`
	StorageTTL             time.Duration `mapstructure:"-"`
	StorageCleanupInterval time.Duration `mapstructure:"-"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"hub-url":         "hub_url",
	"callback-url":    "callback_url",
	"credentials":     "credentials",
	"secret":          "secret",
	"verify":          "verify",
	"verify-token":    "verify_token",
	"lease-seconds":   "lease_seconds",
	"topics-file":     "topics_file",
	"publishers-file": "publishers_file",
	"log-level":       "log_level",
}

// Flags returns the flag set understood by Load.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("hub-url", "", "hub endpoint receiving subscription requests")
	fs.String("callback-url", "", "callback URL the hub verifies and notifies")
	fs.String("credentials", "", "user:pass sent as basic auth to the hub")
	fs.String("secret", "", "hub.secret used for HMAC signatures")
	fs.String("verify", "", "hub.verify mode (async or sync)")
	fs.String("verify-token", "", "hub.verify_token echoed back by the hub")
	fs.Int("lease-seconds", 0, "requested subscription lease in seconds")
	fs.String("topics-file", "", "YAML/JSON file listing topics to apply")
	fs.String("publishers-file", "", "YAML/JSON file listing outcome publishers")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	return fs
}

// Load reads configuration from environment variables, config files and the
// optional parsed flag set. Only flags set explicitly override other sources.
func Load(fs *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "hubbub")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("hub_url", "")
	v.SetDefault("callback_url", "")
	v.SetDefault("credentials", "")
	v.SetDefault("secret", "")
	v.SetDefault("verify", subscriber.VerifyAsync)
	v.SetDefault("verify_token", "")
	v.SetDefault("lease_seconds", 0)
	v.SetDefault("http_timeout_seconds", 30)
	v.SetDefault("topics_file", "./configs/topics.yaml")
	v.SetDefault("publishers_file", "")
	v.SetDefault("feed_lookup_url", subscriber.DefaultFeedLookupURL)
	v.SetDefault("feed_lookup_key", "")
	v.SetDefault("storage_type", "none")
	v.SetDefault("bbolt_path", "./data/feeds.db")
	v.SetDefault("storage_ttl_seconds", int64((24*time.Hour)/time.Second))
	v.SetDefault("storage_cleanup_interval_seconds", int64((6*time.Hour)/time.Second))

	v.SetEnvPrefix("hubbub")
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Verify = strings.ToLower(strings.TrimSpace(cfg.Verify))
	switch cfg.Verify {
	case "", "async", "sync":
	default:
		return nil, fmt.Errorf("invalid verify %q (expected async or sync)", cfg.Verify)
	}
	if cfg.LeaseSeconds < 0 {
		return nil, fmt.Errorf("invalid lease_seconds (must not be negative)")
	}

	if cfg.HTTPTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid http_timeout_seconds (must be positive seconds)")
	}
	cfg.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second

	if cfg.StorageTTLSeconds <= 0 {
		return nil, fmt.Errorf("invalid storage_ttl_seconds (must be positive seconds)")
	}
	if cfg.StorageCleanupSeconds <= 0 {
		return nil, fmt.Errorf("invalid storage_cleanup_interval_seconds (must be positive seconds)")
	}
	cfg.StorageTTL = time.Duration(cfg.StorageTTLSeconds) * time.Second
	cfg.StorageCleanupInterval = time.Duration(cfg.StorageCleanupSeconds) * time.Second

	return &cfg, nil
}
