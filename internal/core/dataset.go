package core

import (
	"time"
)

// Collections groups the seven metadata collections fetched in one load.
type Collections struct {
	Automations    []Record `json:"automations"`
	DataFilters    []Record `json:"dataFilters"`
	Queries        []Record `json:"queries"`
	Imports        []Record `json:"imports"`
	TriggeredSends []Record `json:"triggeredSends"`
	Journeys       []Record `json:"journeys"`
	DataExtracts   []Record `json:"dataExtracts"`
}

// Counts returns per-collection record counts, used for cache metadata and
// report logging.
func (c Collections) Counts() map[string]int {
	return map[string]int{
		"automations":    len(c.Automations),
		"dataFilters":    len(c.DataFilters),
		"queries":        len(c.Queries),
		"imports":        len(c.Imports),
		"triggeredSends": len(c.TriggeredSends),
		"journeys":       len(c.Journeys),
		"dataExtracts":   len(c.DataExtracts),
	}
}

// Dataset is the in-memory aggregate owned by one load. It is built once and
// treated as read-only afterward; no locking is needed for concurrent scans.
type Dataset struct {
	Collections

	// AutomationsByID and FiltersByID support O(1) reverse lookups. Filters
	// are indexed under both their id and objectId since activity references
	// use the latter.
	AutomationsByID map[string]Record
	FiltersByID     map[string]Record

	// ActivityObjectIDs maps an automation id to the object ids of every
	// activity nested in its steps, flattened at index-build time.
	ActivityObjectIDs map[string][]string

	LoadedAt  time.Time
	FromCache bool

	// SourceErrors records sources that degraded to an empty collection,
	// keyed by source name. A populated map means the dataset is partial.
	SourceErrors map[string]string
}

// NewDataset assembles a dataset and builds its derived indices.
func NewDataset(cols Collections, loadedAt time.Time, fromCache bool, sourceErrs map[string]string) *Dataset {
	d := &Dataset{
		Collections:  cols,
		LoadedAt:     loadedAt,
		FromCache:    fromCache,
		SourceErrors: sourceErrs,
	}
	d.buildIndexes()
	return d
}

func (d *Dataset) buildIndexes() {
	d.AutomationsByID = make(map[string]Record, len(d.Automations))
	d.ActivityObjectIDs = make(map[string][]string, len(d.Automations))
	for _, rec := range d.Automations {
		id := FirstString(rec, "id", "objectId")
		if id == "" {
			continue
		}
		d.AutomationsByID[id] = rec
		if ids := flattenActivityObjectIDs(rec); len(ids) > 0 {
			d.ActivityObjectIDs[id] = ids
		}
	}

	d.FiltersByID = make(map[string]Record, len(d.DataFilters))
	for _, rec := range d.DataFilters {
		for _, key := range []string{"id", "objectId", "customerKey"} {
			if v := FirstString(rec, key); v != "" {
				d.FiltersByID[v] = rec
			}
		}
	}
}

// flattenActivityObjectIDs walks an automation's steps and collects the
// object ids of every nested activity.
func flattenActivityObjectIDs(rec Record) []string {
	var ids []string
	for _, step := range RecordSlice(rec, "steps") {
		for _, act := range RecordSlice(step, "activities") {
			if id := FirstString(act, "activityObjectId", "objectId", "id"); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// AutomationsContaining returns every automation whose flattened activity
// list includes the given object id.
func (d *Dataset) AutomationsContaining(objectID string) []Record {
	if objectID == "" {
		return nil
	}
	var out []Record
	for _, rec := range d.Automations {
		id := FirstString(rec, "id", "objectId")
		for _, actID := range d.ActivityObjectIDs[id] {
			if actID == objectID {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}
