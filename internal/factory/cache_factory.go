package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/aali87/sfmc-scripting-sub000/internal/adapters/cache"
	"github.com/aali87/sfmc-scripting-sub000/internal/config"
	"github.com/aali87/sfmc-scripting-sub000/internal/core"
)

// CacheFactory creates cache stores based on configuration.
type CacheFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewCacheFactory creates a new cache factory.
func NewCacheFactory(cfg *config.Config, logger *zap.Logger) *CacheFactory {
	return &CacheFactory{cfg: cfg, logger: logger}
}

// CreateCacheStore creates a cache store based on the configuration.
// Type "none" disables persistence; the loader then only keeps its
// in-process aggregate.
func (f *CacheFactory) CreateCacheStore() (core.CacheStore, error) {
	c := f.cfg.GetCache()
	switch c.Type {
	case "file":
		lock := cache.LockConfig{
			Timeout:       c.LockTimeout,
			RetryInterval: c.LockRetryInterval,
			StaleAfter:    c.LockStaleAfter,
		}
		return cache.NewFileStore(c.Dir, c.TTL, lock, f.logger)
	case "memory":
		return cache.NewMemoryStore(c.TTL), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", c.Type)
	}
}
