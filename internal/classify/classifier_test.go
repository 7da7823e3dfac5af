package classify

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aali87/sfmc-scripting-sub000/internal/core"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func threshold() core.StalenessThreshold {
	return core.StaleAfterDays(365, now)
}

func automationDep(id string) *core.Dependency {
	return &core.Dependency{Type: core.DepAutomation, ID: id, Name: "Auto " + id}
}

func filterDep(id string) *core.Dependency {
	return &core.Dependency{Type: core.DepDataFilter, ID: id, Name: "Filter " + id}
}

func datasetWith(automations ...core.Record) *core.Dataset {
	return core.NewDataset(core.Collections{Automations: automations}, now, false, nil)
}

func TestAutomationVerdicts(t *testing.T) {
	daysAgo := func(d int) string {
		return now.AddDate(0, 0, -d).Format(time.RFC3339)
	}

	tests := []struct {
		name   string
		rec    core.Record
		want   core.Classification
		reason core.Reason
		delete bool
	}{
		{
			name:   "never run",
			rec:    core.Record{"id": "a", "status": "Scheduled"},
			want:   core.SafeToDelete,
			reason: core.ReasonNeverRun,
			delete: true,
		},
		{
			name:   "last run beyond threshold",
			rec:    core.Record{"id": "a", "lastRunTime": daysAgo(400), "status": "Scheduled"},
			want:   core.SafeToDelete,
			reason: core.ReasonStale,
			delete: true,
		},
		{
			name:   "recent run but paused",
			rec:    core.Record{"id": "a", "lastRunTime": daysAgo(10), "status": "PausedSchedule"},
			want:   core.RequiresReview,
			reason: core.ReasonInactiveRecent,
		},
		{
			name:   "recent run, stopped, mixed case status",
			rec:    core.Record{"id": "a", "lastRunTime": daysAgo(10), "status": "STOPPED"},
			want:   core.RequiresReview,
			reason: core.ReasonInactiveRecent,
		},
		{
			name:   "recent run and scheduled",
			rec:    core.Record{"id": "a", "lastRunTime": daysAgo(10), "status": "Scheduled"},
			want:   core.RequiresReview,
			reason: core.ReasonActiveRecent,
		},
		{
			name:   "local timestamp format without zone",
			rec:    core.Record{"id": "a", "lastRunTime": "2021-02-03T04:05:06"},
			want:   core.SafeToDelete,
			reason: core.ReasonStale,
			delete: true,
		},
	}

	engine := NewEngine()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ds := datasetWith(tc.rec)
			verdict := engine.Classify(automationDep("a"), ds, threshold())
			assert.Equal(t, tc.want, verdict.Classification)
			assert.Equal(t, tc.reason, verdict.Reason)
			assert.Equal(t, tc.delete, verdict.CanDelete)
		})
	}
}

func TestAutomationFallsBackToScanRecord(t *testing.T) {
	// Not in the dataset index, but the scanner captured the raw record.
	dep := automationDep("a-raw")
	dep.Raw = core.Record{"id": "a-raw", "lastRunTime": "2020-01-01T00:00:00Z"}

	verdict := NewEngine().Classify(dep, datasetWith(), threshold())
	assert.Equal(t, core.SafeToDelete, verdict.Classification)
	assert.Equal(t, core.ReasonStale, verdict.Reason)
}

func TestAutomationWithoutAnyMetadataIsUnknown(t *testing.T) {
	verdict := NewEngine().Classify(automationDep("ghost"), datasetWith(), threshold())
	assert.Equal(t, core.Unknown, verdict.Classification)
	assert.Equal(t, core.ReasonInsufficientMetadata, verdict.Reason)
	assert.False(t, verdict.CanDelete)
}

func TestMissingIdentifierIsUnknown(t *testing.T) {
	engine := NewEngine()
	ds := datasetWith()

	verdict := engine.Classify(nil, ds, threshold())
	assert.Equal(t, core.Unknown, verdict.Classification)

	verdict = engine.Classify(&core.Dependency{Type: core.DepQuery}, ds, threshold())
	assert.Equal(t, core.Unknown, verdict.Classification)
	assert.False(t, verdict.CanDelete)
}

func containingAutomation(id, filterObjID string, extra core.Record) core.Record {
	rec := core.Record{
		"id":   id,
		"name": "Auto " + id,
		"steps": []core.Record{
			{"activities": []core.Record{{"activityObjectId": filterObjID}}},
		},
	}
	for k, v := range extra {
		rec[k] = v
	}
	return rec
}

func TestStandaloneFilterIsSafe(t *testing.T) {
	verdict := NewEngine().Classify(filterDep("flt-1"), datasetWith(), threshold())
	assert.Equal(t, core.SafeToDelete, verdict.Classification)
	assert.Equal(t, core.ReasonStandaloneFilter, verdict.Reason)
	assert.True(t, verdict.CanDelete)
}

func TestFilterUsedOnlyByStaleAutomationsIsAdvisorySafe(t *testing.T) {
	ds := datasetWith(
		containingAutomation("a1", "flt-1", core.Record{"lastRunTime": "2020-01-01T00:00:00Z"}),
		containingAutomation("a2", "flt-1", nil), // never run
		containingAutomation("a3", "flt-1", core.Record{
			"lastRunTime": now.AddDate(0, 0, -5).Format(time.RFC3339),
			"status":      "Paused",
		}),
	)

	verdict := NewEngine().Classify(filterDep("flt-1"), ds, threshold())
	assert.Equal(t, core.SafeToDelete, verdict.Classification)
	assert.Equal(t, core.ReasonStaleAutomationsOnly, verdict.Reason)
	assert.True(t, verdict.CanDelete)
	assert.Equal(t, "advisory", verdict.Metadata["signal"])
}

func TestFilterBlockedByActiveAutomations(t *testing.T) {
	recent := now.AddDate(0, 0, -3).Format(time.RFC3339)
	ds := datasetWith(
		containingAutomation("a1", "flt-1", core.Record{"lastRunTime": recent, "status": "Scheduled"}),
		containingAutomation("a2", "flt-1", core.Record{"lastRunTime": "2019-01-01T00:00:00Z"}),
	)

	verdict := NewEngine().Classify(filterDep("flt-1"), ds, threshold())
	assert.Equal(t, core.RequiresReview, verdict.Classification)
	assert.Equal(t, core.ReasonBlockingAutomation, verdict.Reason)
	assert.False(t, verdict.CanDelete)
	assert.Equal(t, "Auto a1", verdict.Metadata["blockingAutomations"])
}

func TestFilterBlockingListIsSortedAndCapped(t *testing.T) {
	recent := now.AddDate(0, 0, -3).Format(time.RFC3339)
	var autos []core.Record
	for _, id := range []string{"c3", "a1", "b2", "d4"} {
		autos = append(autos, containingAutomation(id, "flt-1", core.Record{"lastRunTime": recent}))
	}

	verdict := NewEngine().Classify(filterDep("flt-1"), datasetWith(autos...), threshold())
	require.Equal(t, core.ReasonBlockingAutomation, verdict.Reason)
	assert.Equal(t, "Auto a1; Auto b2", verdict.Metadata["blockingAutomations"])
}

func TestFilterResolvesObjectIDThroughIndex(t *testing.T) {
	// The scanner may identify a filter by customerKey; the automation
	// activity references its objectId.
	recent := now.AddDate(0, 0, -3).Format(time.RFC3339)
	filter := core.Record{"id": "41", "objectId": "flt-obj-9", "customerKey": "flt-key-9"}
	ds := core.NewDataset(core.Collections{
		DataFilters: []core.Record{filter},
		Automations: []core.Record{
			containingAutomation("a1", "flt-obj-9", core.Record{"lastRunTime": recent}),
		},
	}, now, false, nil)

	verdict := NewEngine().Classify(filterDep("flt-key-9"), ds, threshold())
	assert.Equal(t, core.ReasonBlockingAutomation, verdict.Reason)
}

func TestOtherTypesAlwaysRequireReview(t *testing.T) {
	engine := NewEngine()
	ds := datasetWith()
	for _, typ := range []core.DependencyType{
		core.DepQuery, core.DepImport, core.DepTriggeredSend, core.DepJourney, core.DepDataExtract,
	} {
		dep := &core.Dependency{Type: typ, ID: "x-1"}
		verdict := engine.Classify(dep, ds, threshold())
		assert.Equal(t, core.RequiresReview, verdict.Classification, string(typ))
		assert.Equal(t, core.ReasonManualReview, verdict.Reason, string(typ))
		assert.False(t, verdict.CanDelete, string(typ))
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	recent := now.AddDate(0, 0, -3).Format(time.RFC3339)
	var autos []core.Record
	for i := 0; i < 5; i++ {
		autos = append(autos, containingAutomation(fmt.Sprintf("a%d", i), "flt-1", core.Record{"lastRunTime": recent}))
	}
	ds := datasetWith(autos...)
	engine := NewEngine()

	first := engine.Classify(filterDep("flt-1"), ds, threshold())
	second := engine.Classify(filterDep("flt-1"), ds, threshold())
	assert.Equal(t, first, second)
}

func TestStalenessThreshold(t *testing.T) {
	th := core.StaleAfterDays(365, now)
	assert.True(t, th.IsStale(now.AddDate(0, 0, -400)))
	assert.False(t, th.IsStale(now.AddDate(0, 0, -300)))
	assert.False(t, th.IsStale(now))
}
