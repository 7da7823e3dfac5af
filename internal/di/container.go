package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/aali87/sfmc-scripting-sub000/internal/bulkload"
	"github.com/aali87/sfmc-scripting-sub000/internal/classify"
	"github.com/aali87/sfmc-scripting-sub000/internal/config"
	"github.com/aali87/sfmc-scripting-sub000/internal/core"
	"github.com/aali87/sfmc-scripting-sub000/internal/exclusions"
	"github.com/aali87/sfmc-scripting-sub000/internal/factory"
	"github.com/aali87/sfmc-scripting-sub000/internal/logging"
	"github.com/aali87/sfmc-scripting-sub000/internal/report"
	"github.com/aali87/sfmc-scripting-sub000/internal/scan"
)

// BuildContainer wires the full audit pipeline from file/env configuration.
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	if err := container.Provide(config.New); err != nil {
		return nil, err
	}
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}
	return provideComponents(container)
}

// provideComponents registers everything downstream of config + logger,
// shared between the daemon-style and CLI containers.
func provideComponents(container *dig.Container) (*dig.Container, error) {
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewClientFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewHistoryFactory); err != nil {
		return nil, err
	}

	if err := container.Provide(func(f *factory.CacheFactory) (core.CacheStore, error) {
		return f.CreateCacheStore()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.ClientFactory) (core.MetadataClient, error) {
		return f.CreateMetadataClient(nil)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.HistoryFactory) (core.HistoryStore, error) {
		return f.CreateHistoryStore()
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(func(cfg *config.Config, client core.MetadataClient, cache core.CacheStore, logger *zap.Logger) *bulkload.Loader {
		l := cfg.GetLoader()
		return bulkload.New(client, cache, bulkload.Config{
			AccountID:        cfg.GetSFMC().AccountID,
			CacheTTL:         cfg.GetCache().TTL,
			DetailBatchSize:  l.DetailBatchSize,
			QueryBatchSize:   l.QueryBatchSize,
			QueryConcurrency: l.QueryConcurrency,
		}, logger)
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(scan.NewScanner); err != nil {
		return nil, err
	}
	if err := container.Provide(classify.NewEngine); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *exclusions.Checker {
		return exclusions.NewChecker(cfg.GetAnalysis().ExcludedKeyPrefixes, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(report.NewAnalyzer); err != nil {
		return nil, err
	}

	return container, nil
}
