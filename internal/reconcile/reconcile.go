// Package reconcile computes field-level differences between two record sets.
// It is a pure function over its inputs and never touches storage or the
// remote source.
package reconcile

import (
	"sort"

	"github.com/jonathan/feedsync/internal/types"
)

// materialFields lists the fields whose change marks a record as modified.
// Enrichment labels are deliberately excluded: the classifier is
// nondeterministic enough that including them would flag every record as
// modified on every cycle.
var materialFields = []struct {
	name  string
	value func(types.Record) string
}{
	{"title", func(r types.Record) string { return r.Title }},
	{"description", func(r types.Record) string { return r.Description }},
	{"city", func(r types.Record) string { return r.Location.City }},
	{"state", func(r types.Record) string { return r.Location.State }},
	{"country", func(r types.Record) string { return r.Location.Country }},
	{"employment_kind", func(r types.Record) string { return r.EmploymentKind }},
	{"work_arrangement", func(r types.Record) string { return r.WorkArrangement }},
	{"assigned_owner_name", func(r types.Record) string { return r.AssignedOwnerName }},
}

// Diff partitions current against previous into added, removed, and modified
// sets. Ids present in both sets are compared field by field over the
// material field set, recording old and new values for each difference.
func Diff(previous, current []types.Record) types.ReconciliationResult {
	prevByID := indexByID(previous)
	currByID := indexByID(current)

	result := types.ReconciliationResult{
		Modified: make(map[string][]types.FieldChange),
	}

	for id := range currByID {
		if _, ok := prevByID[id]; !ok {
			result.Added = append(result.Added, id)
		}
	}
	for id := range prevByID {
		if _, ok := currByID[id]; !ok {
			result.Removed = append(result.Removed, id)
		}
	}

	for id, curr := range currByID {
		prev, ok := prevByID[id]
		if !ok {
			continue
		}
		if changes := compareMaterialFields(prev, curr); len(changes) > 0 {
			result.Modified[id] = changes
		}
	}

	sort.Strings(result.Added)
	sort.Strings(result.Removed)

	result.Summary = types.ReconciliationSummary{
		PreviousCount: len(prevByID),
		CurrentCount:  len(currByID),
		AddedCount:    len(result.Added),
		RemovedCount:  len(result.Removed),
		ModifiedCount: len(result.Modified),
	}

	return result
}

// compareMaterialFields returns one FieldChange per differing material field.
func compareMaterialFields(prev, curr types.Record) []types.FieldChange {
	var changes []types.FieldChange
	for _, f := range materialFields {
		oldVal, newVal := f.value(prev), f.value(curr)
		if oldVal != newVal {
			changes = append(changes, types.FieldChange{
				Field:    f.name,
				OldValue: oldVal,
				NewValue: newVal,
			})
		}
	}
	return changes
}

func indexByID(records []types.Record) map[string]types.Record {
	index := make(map[string]types.Record, len(records))
	for _, rec := range records {
		index[rec.ExternalID] = rec
	}
	return index
}
