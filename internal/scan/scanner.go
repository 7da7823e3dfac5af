// Package scan discovers references from platform metadata to the data
// extensions under audit.
package scan

import (
	"go.uber.org/zap"

	"github.com/aali87/sfmc-scripting-sub000/internal/core"
)

// sourceSpec binds one metadata collection to its dependency type and the
// match strategies appropriate to how structured its schema is.
type sourceSpec struct {
	typ        core.DependencyType
	records    func(*core.Dataset) []core.Record
	strategies []MatchStrategy
}

// sources is evaluated in order; the first matching strategy per record
// wins, so more precise strategies come first within each source.
var sources = []sourceSpec{
	{
		typ:     core.DepDataFilter,
		records: func(d *core.Dataset) []core.Record { return d.DataFilters },
		strategies: []MatchStrategy{
			ExactField{Field: "sourceObjectId", Attr: AttrObjectID, Detail: "Source DE"},
			ExactField{Field: "destinationObjectId", Attr: AttrObjectID, Detail: "Destination DE"},
		},
	},
	{
		typ:     core.DepQuery,
		records: func(d *core.Dataset) []core.Record { return d.Queries },
		strategies: []MatchStrategy{
			ExactField{Field: "targetKey", Attr: AttrKey, Detail: "Target DE (by Key)"},
			ExactField{Field: "targetName", Attr: AttrName, Detail: "Target DE (by Name)"},
			TextContains{Field: "queryText", What: "SQL"},
		},
	},
	{
		typ:     core.DepImport,
		records: func(d *core.Dataset) []core.Record { return d.Imports },
		strategies: []MatchStrategy{
			ExactField{Field: "destinationObjectId", Attr: AttrObjectID, Detail: "Destination DE"},
			ExactField{Field: "destinationKey", Attr: AttrKey, Detail: "Destination DE (by Key)"},
		},
	},
	{
		typ:     core.DepTriggeredSend,
		records: func(d *core.Dataset) []core.Record { return d.TriggeredSends },
		strategies: []MatchStrategy{
			ExactField{Field: "dataExtensionKey", Attr: AttrKey, Detail: "Subscriber source DE (by Key)"},
			ExactField{Field: "dataExtensionName", Attr: AttrName, Detail: "Subscriber source DE (by Name)"},
		},
	},
	{
		typ:        core.DepAutomation,
		records:    func(d *core.Dataset) []core.Record { return d.Automations },
		strategies: []MatchStrategy{SerializedContains{}},
	},
	{
		typ:        core.DepJourney,
		records:    func(d *core.Dataset) []core.Record { return d.Journeys },
		strategies: []MatchStrategy{SerializedContains{}},
	},
	{
		typ:        core.DepDataExtract,
		records:    func(d *core.Dataset) []core.Record { return d.DataExtracts },
		strategies: []MatchStrategy{SerializedContains{}},
	},
}

// Scanner applies the per-source matching rules to one data extension at a
// time. It only reads the dataset and is safe for concurrent use.
type Scanner struct {
	logger *zap.Logger
}

// NewScanner creates a scanner.
func NewScanner(logger *zap.Logger) *Scanner {
	return &Scanner{logger: logger}
}

// Scan returns one dependency record per referencing platform object.
// Records the scanner cannot identify at all are skipped; identification
// gaps on matched records surface later as UNKNOWN verdicts instead.
func (s *Scanner) Scan(de core.DataExtension, ds *core.Dataset) []*core.Dependency {
	var deps []*core.Dependency
	for _, src := range sources {
		for _, rec := range src.records(ds) {
			if rec == nil {
				continue
			}
			for _, strat := range src.strategies {
				detail, ok := strat.Match(de, rec)
				if !ok {
					continue
				}
				deps = append(deps, &core.Dependency{
					Type:           src.typ,
					ID:             recordID(src.typ, rec),
					Name:           core.FirstString(rec, "name", "Name"),
					Status:         core.FirstString(rec, "status", "statusName", "Status"),
					Detail:         detail,
					Raw:            rec,
					DataExtensions: []core.DataExtension{de},
				})
				break
			}
		}
	}
	s.logger.Debug("Scanned data extension",
		zap.String("customer_key", de.CustomerKey),
		zap.Int("dependencies", len(deps)))
	return deps
}

// recordID extracts the record's identity with per-source key precedence.
// Filters prefer objectId because that is how automation activities
// reference them; query definitions carry queryDefinitionId as their
// primary key.
func recordID(typ core.DependencyType, rec core.Record) string {
	switch typ {
	case core.DepDataFilter:
		return core.FirstString(rec, "objectId", "id", "customerKey")
	case core.DepQuery:
		return core.FirstString(rec, "queryDefinitionId", "id", "objectId", "customerKey")
	default:
		return core.FirstString(rec, "id", "objectId", "definitionId", "customerKey")
	}
}
