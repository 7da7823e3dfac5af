// de-cache inspects, clears and rebuilds the persisted metadata cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/aali87/sfmc-scripting-sub000/internal/bulkload"
	"github.com/aali87/sfmc-scripting-sub000/internal/config"
	"github.com/aali87/sfmc-scripting-sub000/internal/core"
	"github.com/aali87/sfmc-scripting-sub000/internal/factory"
	"github.com/aali87/sfmc-scripting-sub000/internal/logging"
)

var (
	accountID = flag.String("account", "", "Account (MID) whose cache entry to operate on")
	cacheDir  = flag.String("cache-dir", "./.de-audit-cache", "Cache directory")
	baseURL   = flag.String("base-url", "", "Tenant REST base URL (refresh only)")
	token     = flag.String("token", "", "Pre-acquired access token (refresh only)")
	verbose   = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	logger, err := logging.InitConsoleLogger(*verbose, false)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cmd := flag.Arg(0)
	if cmd == "" {
		fmt.Println("usage: de-cache [-account MID] [-cache-dir DIR] info|clear|refresh")
		os.Exit(2)
	}
	if *accountID == "" {
		fmt.Println("an -account is required")
		os.Exit(2)
	}

	v := config.NewEmptyViper()
	v.Set("cache.dir", *cacheDir)
	v.Set("sfmc.base_url", *baseURL)
	v.Set("sfmc.account_id", *accountID)
	v.Set("sfmc.access_token", *token)
	cfg := config.NewFromViper(v)

	store, err := factory.NewCacheFactory(cfg, logger).CreateCacheStore()
	if err != nil {
		logger.Fatal("Failed to open cache store", zap.Error(err))
	}

	ctx := context.Background()
	switch cmd {
	case "info":
		info, err := store.Info(ctx, bulkload.CacheType, *accountID)
		if err != nil {
			logger.Fatal("Failed to inspect cache", zap.Error(err))
		}
		if !info.Exists {
			fmt.Printf("No cache entry for account %s\n", *accountID)
			return
		}
		fmt.Printf("Cache entry for account %s\n", *accountID)
		fmt.Printf("  age: %s\n", info.Age.Round(time.Second))
		printCounts(info.ItemCounts)
	case "clear":
		existed, err := store.Clear(ctx, bulkload.CacheType, *accountID)
		if err != nil {
			logger.Fatal("Failed to clear cache", zap.Error(err))
		}
		if existed {
			fmt.Printf("Cleared cache entry for account %s\n", *accountID)
		} else {
			fmt.Printf("No cache entry for account %s\n", *accountID)
		}
	case "refresh":
		ds, err := refresh(ctx, cfg, store, logger)
		if err != nil {
			logger.Fatal("Failed to refresh cache", zap.Error(err))
		}
		fmt.Printf("Refreshed cache entry for account %s\n", *accountID)
		printCounts(ds.Counts())
		if len(ds.SourceErrors) > 0 {
			fmt.Printf("  degraded sources: %d\n", len(ds.SourceErrors))
		}
	default:
		fmt.Printf("unknown command %q (want info, clear or refresh)\n", cmd)
		os.Exit(2)
	}
}

// refresh fetches the aggregate live and writes it through the store.
func refresh(ctx context.Context, cfg *config.Config, store core.CacheStore, logger *zap.Logger) (*core.Dataset, error) {
	client, err := factory.NewClientFactory(cfg, logger).CreateMetadataClient(nil)
	if err != nil {
		return nil, err
	}
	l := cfg.GetLoader()
	loader := bulkload.New(client, store, bulkload.Config{
		AccountID:        *accountID,
		CacheTTL:         cfg.GetCache().TTL,
		DetailBatchSize:  l.DetailBatchSize,
		QueryBatchSize:   l.QueryBatchSize,
		QueryConcurrency: l.QueryConcurrency,
	}, logger)
	return loader.Refresh(ctx, bulkload.Options{
		IncludeAutomationDetail: l.IncludeAutomationDetail,
		IncludeQueryText:        l.IncludeQueryText,
	})
}

func printCounts(counts map[string]int) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s: %d\n", name, counts[name])
	}
}
