package core

import (
	"time"
)

// DataExtension identifies a data extension under audit. Supplied by the
// caller; CustomerKey is the only required field, Name and ObjectID improve
// match precision when known.
type DataExtension struct {
	CustomerKey string `json:"customerKey"`
	Name        string `json:"name,omitempty"`
	ObjectID    string `json:"objectId,omitempty"`
}

// DependencyType names the kind of platform object holding a reference.
type DependencyType string

const (
	DepAutomation    DependencyType = "Automation"
	DepDataFilter    DependencyType = "Data Filter"
	DepQuery         DependencyType = "Query"
	DepImport        DependencyType = "Import"
	DepTriggeredSend DependencyType = "Triggered Send"
	DepJourney       DependencyType = "Journey"
	DepDataExtract   DependencyType = "Data Extract"
)

// Record is one loosely-typed metadata record as returned by the platform.
type Record = map[string]any

// Dependency is a discovered reference from a platform object to one or
// more data extensions. Identity within a report is (Type, ID).
type Dependency struct {
	Type   DependencyType `json:"type"`
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Status string         `json:"status,omitempty"`
	Detail string         `json:"detail"`
	Raw    Record         `json:"-"`

	// DataExtensions accumulates every audited data extension this object
	// references. Populated by the scanner, merged by the analyzer.
	DataExtensions []DataExtension `json:"dataExtensions"`
}

// Key returns the identity of the dependency within a report.
func (d *Dependency) Key() string {
	return string(d.Type) + "/" + d.ID
}

// Classification is the engine's judgment for one dependency.
type Classification string

const (
	SafeToDelete   Classification = "SAFE_TO_DELETE"
	RequiresReview Classification = "REQUIRES_REVIEW"
	Unknown        Classification = "UNKNOWN"
)

// Reason explains which rule of the decision table produced a verdict.
type Reason string

const (
	ReasonNeverRun             Reason = "automation_never_run"
	ReasonStale                Reason = "automation_stale"
	ReasonInactiveRecent       Reason = "automation_inactive_but_recent"
	ReasonActiveRecent         Reason = "automation_active_and_recent"
	ReasonStandaloneFilter     Reason = "filter_not_in_any_automation"
	ReasonStaleAutomationsOnly Reason = "filter_only_in_stale_automations"
	ReasonBlockingAutomation   Reason = "filter_in_active_automation"
	ReasonManualReview         Reason = "manual_review_required"
	ReasonInsufficientMetadata Reason = "insufficient_metadata"
)

// Verdict is the final classification for one unique dependency.
type Verdict struct {
	Classification Classification    `json:"classification"`
	Reason         Reason            `json:"reason"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CanDelete      bool              `json:"canDelete"`
}

// StalenessThreshold is the cutoff before which an object's last activity
// counts as abandonment. Immutable for the duration of one run.
type StalenessThreshold struct {
	Cutoff time.Time `json:"cutoff"`
}

// StaleAfterDays derives a threshold from a day count relative to now.
func StaleAfterDays(days int, now time.Time) StalenessThreshold {
	return StalenessThreshold{Cutoff: now.AddDate(0, 0, -days)}
}

// IsStale reports whether a last-activity time falls before the cutoff.
func (t StalenessThreshold) IsStale(last time.Time) bool {
	return last.Before(t.Cutoff)
}

// ClassifiedDependency pairs a merged dependency with its verdict.
type ClassifiedDependency struct {
	*Dependency
	Verdict Verdict `json:"verdict"`
}

// Summary holds the report-level counts.
type Summary struct {
	DataExtensions   int                    `json:"dataExtensions"`
	Dependencies     int                    `json:"dependencies"`
	Unreferenced     int                    `json:"unreferenced"`
	ByClassification map[Classification]int `json:"byClassification"`
	ByType           map[DependencyType]int `json:"byType"`
}

// Report is the result of one analysis run.
type Report struct {
	RunID        string                 `json:"runId"`
	GeneratedAt  time.Time              `json:"generatedAt"`
	StaleCutoff  time.Time              `json:"staleCutoff"`
	Dependencies []ClassifiedDependency `json:"dependencies"`
	// ByDataExtension maps each input customer key to the merged
	// dependency records that reference it.
	ByDataExtension map[string][]*Dependency `json:"-"`
	Summary         Summary                  `json:"summary"`
}
