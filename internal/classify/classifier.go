// Package classify applies the staleness decision policy to dependency
// records. Classification is a pure function of (record, dataset,
// threshold): no hidden state, no network calls, and identical inputs
// always yield identical verdicts.
package classify

import (
	"sort"
	"strings"
	"time"

	"github.com/aali87/sfmc-scripting-sub000/internal/core"
)

// inactiveStatuses are the automation states treated as "not scheduled to
// run", case-insensitively. Status vocabulary varies across API versions.
var inactiveStatuses = map[string]bool{
	"paused":         true,
	"pausedschedule": true,
	"stopped":        true,
	"inactive":       true,
}

// Engine is the classification engine. It holds no state; the struct exists
// so it can be injected like the other components.
type Engine struct{}

// NewEngine creates a classification engine.
func NewEngine() *Engine {
	return &Engine{}
}

// automationState is the outcome of the staleness rule for one automation.
type automationState int

const (
	stateNeverRun automationState = iota
	stateStale
	stateInactiveRecent
	stateActiveRecent
)

// evaluateAutomation applies the shared staleness rule: never run, run
// before the cutoff, or run recently with an inactive/active status.
func evaluateAutomation(rec core.Record, threshold core.StalenessThreshold) (automationState, map[string]string) {
	meta := map[string]string{}
	lastRun, ok := core.FirstTime(rec, "lastRunTime", "lastRunDate")
	if !ok {
		return stateNeverRun, meta
	}
	meta["lastRunTime"] = lastRun.UTC().Format(time.RFC3339)
	if threshold.IsStale(lastRun) {
		return stateStale, meta
	}
	status := core.FirstString(rec, "status", "statusName", "Status")
	if status != "" {
		meta["status"] = status
	}
	if inactiveStatuses[strings.ToLower(status)] {
		return stateInactiveRecent, meta
	}
	return stateActiveRecent, meta
}

// Classify assigns one of the three verdicts to a dependency record.
// UNKNOWN is reserved for records whose identifying metadata could not be
// resolved and is never conflated with safe.
func (e *Engine) Classify(dep *core.Dependency, ds *core.Dataset, threshold core.StalenessThreshold) core.Verdict {
	if dep == nil || dep.ID == "" {
		return unknownVerdict("dependency record carries no identifier")
	}

	switch dep.Type {
	case core.DepAutomation:
		return e.classifyAutomation(dep, ds, threshold)
	case core.DepDataFilter:
		return e.classifyFilter(dep, ds, threshold)
	default:
		// Queries, imports, triggered sends, journeys and data extracts
		// cannot be reasoned about reliably from this metadata (e.g. a
		// triggered send's activation state is not captured); a human
		// decides.
		return core.Verdict{
			Classification: core.RequiresReview,
			Reason:         core.ReasonManualReview,
			CanDelete:      false,
		}
	}
}

func (e *Engine) classifyAutomation(dep *core.Dependency, ds *core.Dataset, threshold core.StalenessThreshold) core.Verdict {
	rec := ds.AutomationsByID[dep.ID]
	if rec == nil {
		rec = dep.Raw
	}
	if rec == nil {
		return unknownVerdict("automation metadata could not be resolved")
	}
	state, meta := evaluateAutomation(rec, threshold)
	switch state {
	case stateNeverRun:
		return core.Verdict{Classification: core.SafeToDelete, Reason: core.ReasonNeverRun, Metadata: meta, CanDelete: true}
	case stateStale:
		return core.Verdict{Classification: core.SafeToDelete, Reason: core.ReasonStale, Metadata: meta, CanDelete: true}
	case stateInactiveRecent:
		return core.Verdict{Classification: core.RequiresReview, Reason: core.ReasonInactiveRecent, Metadata: meta, CanDelete: false}
	default:
		return core.Verdict{Classification: core.RequiresReview, Reason: core.ReasonActiveRecent, Metadata: meta, CanDelete: false}
	}
}

// classifyFilter evaluates every automation containing the filter as a
// nested activity. The "only used by stale automations" outcome is an
// advisory signal: "last run" metadata cannot see manual or externally
// triggered invocations, so the verdict metadata marks it as such.
func (e *Engine) classifyFilter(dep *core.Dependency, ds *core.Dataset, threshold core.StalenessThreshold) core.Verdict {
	objectID := dep.ID
	if rec := ds.FiltersByID[dep.ID]; rec != nil {
		if v := core.FirstString(rec, "objectId"); v != "" {
			objectID = v
		}
	}

	containers := ds.AutomationsContaining(objectID)
	if len(containers) == 0 {
		return core.Verdict{
			Classification: core.SafeToDelete,
			Reason:         core.ReasonStandaloneFilter,
			CanDelete:      true,
		}
	}

	var blocking []string
	for _, rec := range containers {
		state, _ := evaluateAutomation(rec, threshold)
		if state == stateActiveRecent {
			name := core.FirstString(rec, "name", "Name")
			if name == "" {
				name = core.FirstString(rec, "id", "objectId")
			}
			blocking = append(blocking, name)
		}
	}

	if len(blocking) > 0 {
		sort.Strings(blocking)
		if len(blocking) > 2 {
			blocking = blocking[:2]
		}
		return core.Verdict{
			Classification: core.RequiresReview,
			Reason:         core.ReasonBlockingAutomation,
			Metadata:       map[string]string{"blockingAutomations": strings.Join(blocking, "; ")},
			CanDelete:      false,
		}
	}

	return core.Verdict{
		Classification: core.SafeToDelete,
		Reason:         core.ReasonStaleAutomationsOnly,
		Metadata: map[string]string{
			"containingAutomations": "all stale, inactive or never run",
			"signal":                "advisory",
		},
		CanDelete: true,
	}
}

func unknownVerdict(detail string) core.Verdict {
	return core.Verdict{
		Classification: core.Unknown,
		Reason:         core.ReasonInsufficientMetadata,
		Metadata:       map[string]string{"detail": detail},
		CanDelete:      false,
	}
}
