// Package bulkload fetches all platform metadata once per run and shares the
// resulting aggregate across every scan, backed by a TTL'd cache store.
package bulkload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aali87/sfmc-scripting-sub000/internal/core"
)

// CacheType is the cache-store key under which the aggregate is persisted.
const CacheType = "bulk_metadata"

// Config tunes hydration batching and cache behavior.
type Config struct {
	// AccountID scopes the persisted cache entry to one tenant.
	AccountID string
	// CacheTTL bounds how old a persisted aggregate may be before a live
	// fetch is forced.
	CacheTTL time.Duration
	// DetailBatchSize is how many automation-detail fetches run per batch.
	DetailBatchSize int
	// QueryBatchSize is how many query ids are grouped per hydration batch.
	QueryBatchSize int
	// QueryConcurrency caps concurrent query-text fetches within a batch.
	QueryConcurrency int
}

// DefaultConfig returns the production hydration parameters.
func DefaultConfig(accountID string) Config {
	return Config{
		AccountID:        accountID,
		CacheTTL:         24 * time.Hour,
		DetailBatchSize:  10,
		QueryBatchSize:   500,
		QueryConcurrency: 10,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig(c.AccountID)
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.DetailBatchSize <= 0 {
		c.DetailBatchSize = d.DetailBatchSize
	}
	if c.QueryBatchSize <= 0 {
		c.QueryBatchSize = d.QueryBatchSize
	}
	if c.QueryConcurrency <= 0 {
		c.QueryConcurrency = d.QueryConcurrency
	}
}

// Options tunes one Load call.
type Options struct {
	// ForceRefresh skips both cache levels.
	ForceRefresh bool
	// IncludeAutomationDetail hydrates each automation's step/activity
	// structure (needed for true last-run times and nested references).
	IncludeAutomationDetail bool
	// IncludeQueryText hydrates missing SQL bodies.
	IncludeQueryText bool
	// OnProgress, when set, is called after each hydration batch.
	OnProgress func(stage string, completed, total int)
}

// Loader owns the lookup chain: in-process memory for the current run, then
// the persisted cache store within TTL, then a live fetch of all seven
// sources. Replaces the aggregate atomically; no partial refreshes.
type Loader struct {
	client core.MetadataClient
	cache  core.CacheStore
	cfg    Config
	logger *zap.Logger

	mu  sync.Mutex
	mem *core.Dataset
}

// New creates a loader. cache may be nil to disable persistence entirely.
func New(client core.MetadataClient, cache core.CacheStore, cfg Config, logger *zap.Logger) *Loader {
	cfg.applyDefaults()
	return &Loader{client: client, cache: cache, cfg: cfg, logger: logger}
}

// Load returns the aggregate, fetching live only when both cache levels
// miss. Single-source failures degrade to empty collections; only total
// platform unavailability is fatal.
func (l *Loader) Load(ctx context.Context, opts Options) (*core.Dataset, error) {
	if !opts.ForceRefresh {
		l.mu.Lock()
		mem := l.mem
		l.mu.Unlock()
		if mem != nil {
			return mem, nil
		}
		if ds := l.readCache(ctx); ds != nil {
			l.mu.Lock()
			l.mem = ds
			l.mu.Unlock()
			return ds, nil
		}
	}

	ds, err := l.fetchLive(ctx, opts)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.mem = ds
	l.mu.Unlock()
	return ds, nil
}

// Refresh forces a live fetch, replacing both cache levels.
func (l *Loader) Refresh(ctx context.Context, opts Options) (*core.Dataset, error) {
	opts.ForceRefresh = true
	return l.Load(ctx, opts)
}

// Invalidate drops the in-process aggregate and clears the persisted entry.
func (l *Loader) Invalidate(ctx context.Context) error {
	l.mu.Lock()
	l.mem = nil
	l.mu.Unlock()
	if l.cache == nil {
		return nil
	}
	_, err := l.cache.Clear(ctx, CacheType, l.cfg.AccountID)
	return err
}

func (l *Loader) readCache(ctx context.Context) *core.Dataset {
	if l.cache == nil {
		return nil
	}
	entry, err := l.cache.Read(ctx, CacheType, l.cfg.AccountID, core.ReadOptions{MaxAge: l.cfg.CacheTTL})
	if err != nil {
		if !errors.Is(err, core.ErrCacheMiss) && !errors.Is(err, core.ErrCacheExpired) {
			l.logger.Warn("Cache read failed", zap.Error(err))
		}
		return nil
	}
	var cols core.Collections
	if err := json.Unmarshal(entry.Data, &cols); err != nil {
		l.logger.Warn("Discarding undecodable cached aggregate", zap.Error(err))
		return nil
	}
	sourceErrs := sourceErrorsFromExtra(entry.Extra)
	if len(sourceErrs) > 0 {
		l.logger.Warn("Cached aggregate is partial",
			zap.Any("degraded_sources", sourceErrs))
	}
	l.logger.Info("Loaded metadata aggregate from cache",
		zap.Time("cached_at", entry.CachedAt),
		zap.Any("item_counts", cols.Counts()))
	return core.NewDataset(cols, entry.CachedAt, true, sourceErrs)
}

// sourceErrorsFromExtra restores the degraded-source map persisted alongside
// the aggregate. File-backed entries round-trip through JSON as
// map[string]any; in-process entries keep the original typed map.
func sourceErrorsFromExtra(extra map[string]any) map[string]string {
	switch v := extra["sourceErrors"].(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for name, msg := range v {
			if s, ok := msg.(string); ok {
				out[name] = s
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}

// fetchLive issues the seven collection fetches concurrently, hydrates
// details as requested, builds indices and writes through the cache.
func (l *Loader) fetchLive(ctx context.Context, opts Options) (*core.Dataset, error) {
	var (
		cols       core.Collections
		errsMu     sync.Mutex
		sourceErrs = map[string]string{}
	)

	g, gctx := errgroup.WithContext(ctx)
	fetch := func(name string, list func(context.Context) ([]core.Record, error), dst *[]core.Record) func() error {
		return func() error {
			records, err := list(gctx)
			if err != nil {
				if errors.Is(err, core.ErrPlatformUnavailable) {
					return fmt.Errorf("fetching %s: %w", name, err)
				}
				// Degrade to an empty collection; one failing source must
				// never abort the whole load.
				l.logger.Warn("Source unavailable, continuing with empty collection",
					zap.String("source", name),
					zap.Error(err))
				errsMu.Lock()
				sourceErrs[name] = err.Error()
				errsMu.Unlock()
				return nil
			}
			*dst = records
			return nil
		}
	}

	g.Go(fetch("automations", l.client.ListAutomations, &cols.Automations))
	g.Go(fetch("dataFilters", l.client.ListDataFilters, &cols.DataFilters))
	g.Go(fetch("queries", l.client.ListQueries, &cols.Queries))
	g.Go(fetch("imports", l.client.ListImports, &cols.Imports))
	g.Go(fetch("triggeredSends", l.client.ListTriggeredSends, &cols.TriggeredSends))
	g.Go(fetch("journeys", l.client.ListJourneys, &cols.Journeys))
	g.Go(fetch("dataExtracts", l.client.ListDataExtracts, &cols.DataExtracts))
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if opts.IncludeAutomationDetail {
		l.hydrateAutomationDetail(ctx, cols.Automations, opts.OnProgress)
	}
	if opts.IncludeQueryText {
		l.hydrateQueryText(ctx, cols.Queries, opts.OnProgress)
	}

	loadedAt := time.Now().UTC()
	if len(sourceErrs) == 0 {
		sourceErrs = nil
	}
	ds := core.NewDataset(cols, loadedAt, false, sourceErrs)
	l.writeCache(ctx, cols, sourceErrs)

	l.logger.Info("Loaded metadata aggregate from platform",
		zap.Any("item_counts", cols.Counts()),
		zap.Int("degraded_sources", len(sourceErrs)))
	return ds, nil
}

// hydrateAutomationDetail replaces each automation summary with its full
// detail, processed in fixed-size batches with per-batch progress.
func (l *Loader) hydrateAutomationDetail(ctx context.Context, automations []core.Record, onProgress func(string, int, int)) {
	total := len(automations)
	for start := 0; start < total; start += l.cfg.DetailBatchSize {
		end := min(start+l.cfg.DetailBatchSize, total)
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				rec := automations[i]
				id := core.FirstString(rec, "id", "objectId")
				if id == "" {
					return nil
				}
				detail, err := l.client.GetAutomation(gctx, id)
				if err != nil {
					l.logger.Warn("Automation detail fetch failed, keeping summary",
						zap.String("automation_id", id),
						zap.Error(err))
					return nil
				}
				for k, v := range detail {
					rec[k] = v
				}
				return nil
			})
		}
		g.Wait()
		if onProgress != nil {
			onProgress("automation_detail", end, total)
		}
	}
}

// hydrateQueryText fills missing SQL bodies with bounded concurrency inside
// fixed-size id batches.
func (l *Loader) hydrateQueryText(ctx context.Context, queries []core.Record, onProgress func(string, int, int)) {
	var pending []core.Record
	for _, rec := range queries {
		if core.FirstString(rec, "queryText") == "" && core.FirstString(rec, "queryDefinitionId", "id", "objectId") != "" {
			pending = append(pending, rec)
		}
	}
	total := len(pending)
	for start := 0; start < total; start += l.cfg.QueryBatchSize {
		end := min(start+l.cfg.QueryBatchSize, total)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(l.cfg.QueryConcurrency)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				rec := pending[i]
				id := core.FirstString(rec, "queryDefinitionId", "id", "objectId")
				text, err := l.client.GetQueryText(gctx, id)
				if err != nil {
					l.logger.Warn("Query text fetch failed, matching on structured fields only",
						zap.String("query_id", id),
						zap.Error(err))
					return nil
				}
				rec["queryText"] = text
				return nil
			})
		}
		g.Wait()
		if onProgress != nil {
			onProgress("query_text", end, total)
		}
	}
}

// writeCache persists the aggregate best-effort; a contended lock or write
// failure never fails the load. The degraded-source map rides along so
// cache-served runs keep reporting that the dataset is partial.
func (l *Loader) writeCache(ctx context.Context, cols core.Collections, sourceErrs map[string]string) {
	if l.cache == nil {
		return
	}
	extra := map[string]any{"itemCounts": cols.Counts()}
	if len(sourceErrs) > 0 {
		extra["sourceErrors"] = sourceErrs
	}
	ok, err := l.cache.Write(ctx, CacheType, l.cfg.AccountID, cols, extra)
	if err != nil {
		l.logger.Warn("Cache write failed, continuing uncached", zap.Error(err))
		return
	}
	if !ok {
		l.logger.Warn("Cache write skipped, lock contended")
	}
}
