package di

import (
	"flag"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/aali87/sfmc-scripting-sub000/internal/config"
	"github.com/aali87/sfmc-scripting-sub000/internal/logging"
)

// CLIFlags contains all command line flags for the audit CLI.
type CLIFlags struct {
	// Platform flags
	BaseURL   string
	AccountID string
	Token     string

	// Input flags
	KeysFile string
	Keys     string

	// Analysis flags
	StaleDays    int
	ForceRefresh bool
	SkipDetail   bool
	SkipSQL      bool

	// Cache flags
	CacheDir  string
	CacheType string

	// Output flags
	JSONOutput bool
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags for the audit CLI.
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	flag.StringVar(&flags.BaseURL, "base-url", "", "Tenant REST base URL")
	flag.StringVar(&flags.AccountID, "account", "", "Account (MID) the audit runs against")
	flag.StringVar(&flags.Token, "token", "", "Pre-acquired access token")

	flag.StringVar(&flags.KeysFile, "keys-file", "", "File with one data extension per line: customerKey[,name[,objectId]] (stdin if omitted; name/objectId enable name- and objectId-based matching)")
	flag.StringVar(&flags.Keys, "keys", "", "Comma-separated data extension customer keys (key-only matching)")

	flag.IntVar(&flags.StaleDays, "stale-days", 365, "Days without a run before an automation counts as stale")
	flag.BoolVar(&flags.ForceRefresh, "force-refresh", false, "Skip the cache and fetch metadata live")
	flag.BoolVar(&flags.SkipDetail, "skip-automation-detail", false, "Skip automation detail hydration (faster, less precise)")
	flag.BoolVar(&flags.SkipSQL, "skip-query-text", false, "Skip query SQL hydration (faster, less precise)")

	flag.StringVar(&flags.CacheDir, "cache-dir", "./.de-audit-cache", "Cache directory")
	flag.StringVar(&flags.CacheType, "cache", "file", "Cache backend (file, memory, none)")

	flag.BoolVar(&flags.JSONOutput, "json", false, "Print the report as JSON")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	flag.Parse()
	return flags
}

// BuildCLIContainer wires the audit pipeline from command line flags.
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.New()
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
			return cfg, nil
		}
		return configFromFlags(flags), nil
	}); err != nil {
		return nil, err
	}

	return provideComponents(container)
}

// configFromFlags creates a configuration from command line flags.
func configFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	v.Set("sfmc.base_url", flags.BaseURL)
	v.Set("sfmc.account_id", flags.AccountID)
	v.Set("sfmc.access_token", flags.Token)

	v.Set("cache.type", flags.CacheType)
	v.Set("cache.dir", flags.CacheDir)

	v.Set("analysis.stale_after_days", flags.StaleDays)
	v.Set("loader.include_automation_detail", !flags.SkipDetail)
	v.Set("loader.include_query_text", !flags.SkipSQL)

	return config.NewFromViper(v)
}
