package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/feedsync/internal/types"
)

func record(id, title string) types.Record {
	return types.Record{
		ExternalID:        id,
		Title:             title,
		Description:       "desc",
		Location:          types.Location{City: "Boston", State: "MA", Country: "US"},
		EmploymentKind:    "contract",
		WorkArrangement:   "remote",
		AssignedOwnerName: "Sam Ortiz",
		LastModifiedAt:    time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		IsActive:          true,
	}
}

func TestDiff_AddedAndRemoved(t *testing.T) {
	previous := []types.Record{record("101", "A"), record("102", "B")}
	current := []types.Record{record("102", "B"), record("103", "C")}

	result := Diff(previous, current)

	assert.Equal(t, []string{"103"}, result.Added)
	assert.Equal(t, []string{"101"}, result.Removed)
	assert.Empty(t, result.Modified)

	assert.Equal(t, 2, result.Summary.PreviousCount)
	assert.Equal(t, 2, result.Summary.CurrentCount)
	assert.Equal(t, 1, result.Summary.AddedCount)
	assert.Equal(t, 1, result.Summary.RemovedCount)
	assert.Equal(t, 0, result.Summary.ModifiedCount)
}

func TestDiff_TitleChangeOnly(t *testing.T) {
	previous := []types.Record{record("102", "Data Engineer")}
	current := []types.Record{record("102", "Senior Data Engineer")}

	result := Diff(previous, current)

	assert.Empty(t, result.Added)
	assert.Empty(t, result.Removed)
	require.Len(t, result.Modified["102"], 1)

	change := result.Modified["102"][0]
	assert.Equal(t, "title", change.Field)
	assert.Equal(t, "Data Engineer", change.OldValue)
	assert.Equal(t, "Senior Data Engineer", change.NewValue)
}

func TestDiff_MultipleFieldChanges(t *testing.T) {
	prev := record("200", "Analyst")
	curr := record("200", "Analyst")
	curr.Location.City = "Chicago"
	curr.WorkArrangement = "hybrid"

	result := Diff([]types.Record{prev}, []types.Record{curr})

	changes := result.Modified["200"]
	require.Len(t, changes, 2)

	fields := []string{changes[0].Field, changes[1].Field}
	assert.Contains(t, fields, "city")
	assert.Contains(t, fields, "work_arrangement")
}

func TestDiff_EnrichmentNoiseIgnored(t *testing.T) {
	// LastModifiedAt and IsActive are not material fields; neither are
	// enrichment labels, which live outside Record entirely.
	prev := record("300", "QA Lead")
	curr := record("300", "QA Lead")
	curr.LastModifiedAt = curr.LastModifiedAt.Add(48 * time.Hour)

	result := Diff([]types.Record{prev}, []types.Record{curr})

	assert.Empty(t, result.Modified)
}

func TestDiff_Idempotence(t *testing.T) {
	set := []types.Record{record("1", "A"), record("2", "B"), record("3", "C")}

	result := Diff(set, set)

	assert.Empty(t, result.Added)
	assert.Empty(t, result.Removed)
	assert.Empty(t, result.Modified)
}

func TestDiff_EmptyPrevious(t *testing.T) {
	current := []types.Record{record("1", "A"), record("2", "B")}

	result := Diff(nil, current)

	assert.Equal(t, []string{"1", "2"}, result.Added)
	assert.Empty(t, result.Removed)
	assert.Equal(t, 0, result.Summary.PreviousCount)
}
