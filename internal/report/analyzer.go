// Package report runs the full audit over a batch of data extensions: one
// metadata load shared by every scan, deduplication across targets, and one
// classification per unique dependency.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aali87/sfmc-scripting-sub000/internal/bulkload"
	"github.com/aali87/sfmc-scripting-sub000/internal/classify"
	"github.com/aali87/sfmc-scripting-sub000/internal/core"
	"github.com/aali87/sfmc-scripting-sub000/internal/scan"
)

// Options tunes one analysis run.
type Options struct {
	// Load is passed through to the bulk loader.
	Load bulkload.Options
	// StaleAfterDays derives the staleness cutoff; zero means 365.
	StaleAfterDays int
	// Now anchors the cutoff; the zero value means time.Now. Tests pin it.
	Now time.Time
}

// Analyzer orchestrates loader, scanner and classification engine.
type Analyzer struct {
	loader  *bulkload.Loader
	scanner *scan.Scanner
	engine  *classify.Engine
	history core.HistoryStore
	logger  *zap.Logger
}

// NewAnalyzer creates an analyzer. history may be nil to skip run
// persistence.
func NewAnalyzer(loader *bulkload.Loader, scanner *scan.Scanner, engine *classify.Engine, history core.HistoryStore, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		loader:  loader,
		scanner: scanner,
		engine:  engine,
		history: history,
		logger:  logger,
	}
}

// Analyze audits a batch of data extensions. Dependency records sharing
// (type, id) across targets are merged, accumulating affected data
// extensions, and each merged record is classified exactly once.
func (a *Analyzer) Analyze(ctx context.Context, des []core.DataExtension, opts Options) (*core.Report, error) {
	if opts.StaleAfterDays <= 0 {
		opts.StaleAfterDays = 365
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	threshold := core.StaleAfterDays(opts.StaleAfterDays, now)

	ds, err := a.loader.Load(ctx, opts.Load)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata aggregate: %w", err)
	}

	merged := make(map[string]*core.Dependency)
	var order []string
	byDE := make(map[string][]*core.Dependency, len(des))

	for _, de := range des {
		byDE[de.CustomerKey] = nil
		seen := make(map[string]bool)
		for _, dep := range a.scanner.Scan(de, ds) {
			key := dep.Key()
			// One scan can surface the same (type, id) more than once, e.g.
			// duplicate records across pages; count each identity once per DE.
			if seen[key] {
				continue
			}
			seen[key] = true
			existing, ok := merged[key]
			if !ok {
				merged[key] = dep
				order = append(order, key)
				existing = dep
			} else {
				existing.DataExtensions = append(existing.DataExtensions, de)
			}
			byDE[de.CustomerKey] = append(byDE[de.CustomerKey], existing)
		}
	}

	report := &core.Report{
		RunID:           uuid.NewString(),
		GeneratedAt:     now,
		StaleCutoff:     threshold.Cutoff,
		ByDataExtension: byDE,
		Summary: core.Summary{
			DataExtensions:   len(des),
			Dependencies:     len(order),
			ByClassification: map[core.Classification]int{},
			ByType:           map[core.DependencyType]int{},
		},
	}

	for _, key := range order {
		dep := merged[key]
		verdict := a.engine.Classify(dep, ds, threshold)
		report.Dependencies = append(report.Dependencies, core.ClassifiedDependency{
			Dependency: dep,
			Verdict:    verdict,
		})
		report.Summary.ByClassification[verdict.Classification]++
		report.Summary.ByType[dep.Type]++
	}
	for _, de := range des {
		if len(byDE[de.CustomerKey]) == 0 {
			report.Summary.Unreferenced++
		}
	}

	a.logger.Info("Analysis complete",
		zap.String("run_id", report.RunID),
		zap.Int("data_extensions", report.Summary.DataExtensions),
		zap.Int("dependencies", report.Summary.Dependencies),
		zap.Int("unreferenced", report.Summary.Unreferenced),
		zap.Bool("partial_metadata", len(ds.SourceErrors) > 0))

	if a.history != nil {
		if err := a.history.SaveRun(ctx, report); err != nil {
			a.logger.Error("Failed to record analysis run", zap.Error(err))
		}
	}
	return report, nil
}
