package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config wraps the application configuration.
type Config struct {
	v *viper.Viper
}

// New loads configuration from the usual locations, with environment
// variables (prefix DE_AUDIT) overriding file values.
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/de-audit/")
	v.AddConfigPath("$HOME/.de-audit")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("DE_AUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper wraps an existing Viper instance.
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a Viper instance carrying only the defaults.
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	// Platform defaults
	v.SetDefault("sfmc.base_url", "")
	v.SetDefault("sfmc.account_id", "")
	v.SetDefault("sfmc.access_token", "")
	v.SetDefault("sfmc.page_size", 250)
	v.SetDefault("sfmc.request_interval", "200ms")
	v.SetDefault("sfmc.http_timeout", "30s")

	// Retry defaults
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("retry.jitter", 0.2)

	// Cache defaults
	v.SetDefault("cache.type", "file")
	v.SetDefault("cache.dir", "./.de-audit-cache")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.lock_timeout", "30s")
	v.SetDefault("cache.lock_retry_interval", "500ms")
	v.SetDefault("cache.lock_stale_after", "1m")

	// Loader defaults
	v.SetDefault("loader.detail_batch_size", 10)
	v.SetDefault("loader.query_batch_size", 500)
	v.SetDefault("loader.query_concurrency", 10)
	v.SetDefault("loader.include_automation_detail", true)
	v.SetDefault("loader.include_query_text", true)

	// Analysis defaults
	v.SetDefault("analysis.stale_after_days", 365)
	v.SetDefault("analysis.excluded_key_prefixes", []string{})

	// History defaults
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.sqlite_path", "./.de-audit-history.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
