package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrCacheMiss is returned when no entry exists for a cache key, or the
	// stored file could not be parsed. Callers treat both as a plain miss.
	ErrCacheMiss = errors.New("cache entry not found")
	// ErrCacheExpired is returned when an entry exists but its age exceeds
	// the effective max age.
	ErrCacheExpired = errors.New("cache entry expired")
	// ErrPlatformUnavailable indicates the platform itself could not be
	// reached; the only per-source error the loader propagates as fatal.
	ErrPlatformUnavailable = errors.New("marketing cloud platform unavailable")
)

// CacheEntry is one persisted cache value. Entries are superseded by the
// next write, never mutated in place.
type CacheEntry struct {
	CacheType string
	AccountID string
	Data      json.RawMessage
	CachedAt  time.Time
	Extra     map[string]any
}

// CacheInfo describes an entry without decoding its payload.
type CacheInfo struct {
	Exists     bool
	Age        time.Duration
	ItemCounts map[string]int
}

// ReadOptions tunes a single cache read.
type ReadOptions struct {
	// MaxAge overrides the store's default TTL when positive.
	MaxAge time.Duration
	// IgnoreExpiry returns the entry even when past its TTL.
	IgnoreExpiry bool
}

// CacheStore persists JSON-serializable blobs keyed by (cacheType,
// accountID). Writes are best-effort: a Write that cannot obtain the
// cross-process lock returns (false, nil) and the caller proceeds
// without caching.
type CacheStore interface {
	Read(ctx context.Context, cacheType, accountID string, opts ReadOptions) (*CacheEntry, error)
	Write(ctx context.Context, cacheType, accountID string, data any, extra map[string]any) (bool, error)
	Clear(ctx context.Context, cacheType, accountID string) (bool, error)
	Info(ctx context.Context, cacheType, accountID string) (*CacheInfo, error)
}

// MetadataClient lists the seven metadata collections and hydrates the two
// expensive detail calls. Implementations handle auth, paging, retries and
// rate limiting; every method may block on network I/O.
type MetadataClient interface {
	ListAutomations(ctx context.Context) ([]Record, error)
	GetAutomation(ctx context.Context, id string) (Record, error)
	ListDataFilters(ctx context.Context) ([]Record, error)
	ListQueries(ctx context.Context) ([]Record, error)
	GetQueryText(ctx context.Context, id string) (string, error)
	ListImports(ctx context.Context) ([]Record, error)
	ListTriggeredSends(ctx context.Context) ([]Record, error)
	ListJourneys(ctx context.Context) ([]Record, error)
	ListDataExtracts(ctx context.Context) ([]Record, error)
}

// TokenProvider supplies an authenticated bearer token for platform calls.
// Token lifecycle management lives outside this module.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// HistoryStore records finished analysis runs for later comparison.
type HistoryStore interface {
	SaveRun(ctx context.Context, report *Report) error
	Close() error
}
