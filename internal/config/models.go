package config

import "time"

// SFMCConfig represents the connection settings for the platform REST APIs.
type SFMCConfig struct {
	BaseURL         string
	AccountID       string
	AccessToken     string
	PageSize        int
	RequestInterval time.Duration
	HTTPTimeout     time.Duration
}

// RetryConfig represents the shared retry policy settings.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

// CacheConfig represents the cache store settings.
type CacheConfig struct {
	Type              string
	Dir               string
	TTL               time.Duration
	LockTimeout       time.Duration
	LockRetryInterval time.Duration
	LockStaleAfter    time.Duration
}

// LoaderConfig represents the bulk loader hydration settings.
type LoaderConfig struct {
	DetailBatchSize         int
	QueryBatchSize          int
	QueryConcurrency        int
	IncludeAutomationDetail bool
	IncludeQueryText        bool
}

// AnalysisConfig represents the classification policy settings.
type AnalysisConfig struct {
	StaleAfterDays      int
	ExcludedKeyPrefixes []string
}

// HistoryConfig represents the run-history store settings.
type HistoryConfig struct {
	Enabled    bool
	SQLitePath string
}

func (c *Config) duration(key string, fallback time.Duration) time.Duration {
	d, err := c.GetDuration(key)
	if err != nil {
		return fallback
	}
	return d
}

// GetSFMC returns the platform configuration.
func (c *Config) GetSFMC() SFMCConfig {
	return SFMCConfig{
		BaseURL:         c.GetString("sfmc.base_url"),
		AccountID:       c.GetString("sfmc.account_id"),
		AccessToken:     c.GetString("sfmc.access_token"),
		PageSize:        c.GetInt("sfmc.page_size"),
		RequestInterval: c.duration("sfmc.request_interval", 200*time.Millisecond),
		HTTPTimeout:     c.duration("sfmc.http_timeout", 30*time.Second),
	}
}

// GetRetry returns the retry policy configuration.
func (c *Config) GetRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts: c.GetInt("retry.max_attempts"),
		BaseDelay:   c.duration("retry.base_delay", time.Second),
		MaxDelay:    c.duration("retry.max_delay", 30*time.Second),
		Jitter:      c.GetFloat64("retry.jitter"),
	}
}

// GetCache returns the cache store configuration.
func (c *Config) GetCache() CacheConfig {
	return CacheConfig{
		Type:              c.GetString("cache.type"),
		Dir:               c.GetString("cache.dir"),
		TTL:               c.duration("cache.ttl", 24*time.Hour),
		LockTimeout:       c.duration("cache.lock_timeout", 30*time.Second),
		LockRetryInterval: c.duration("cache.lock_retry_interval", 500*time.Millisecond),
		LockStaleAfter:    c.duration("cache.lock_stale_after", time.Minute),
	}
}

// GetLoader returns the bulk loader configuration.
func (c *Config) GetLoader() LoaderConfig {
	return LoaderConfig{
		DetailBatchSize:         c.GetInt("loader.detail_batch_size"),
		QueryBatchSize:          c.GetInt("loader.query_batch_size"),
		QueryConcurrency:        c.GetInt("loader.query_concurrency"),
		IncludeAutomationDetail: c.GetBool("loader.include_automation_detail"),
		IncludeQueryText:        c.GetBool("loader.include_query_text"),
	}
}

// GetAnalysis returns the classification policy configuration.
func (c *Config) GetAnalysis() AnalysisConfig {
	return AnalysisConfig{
		StaleAfterDays:      c.GetInt("analysis.stale_after_days"),
		ExcludedKeyPrefixes: c.GetStringSlice("analysis.excluded_key_prefixes"),
	}
}

// GetHistory returns the run-history configuration.
func (c *Config) GetHistory() HistoryConfig {
	return HistoryConfig{
		Enabled:    c.GetBool("history.enabled"),
		SQLitePath: c.GetString("history.sqlite_path"),
	}
}
