package notify

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/feedsync/internal/types"
)

func sampleReport() types.CycleReport {
	return types.CycleReport{
		StartedAt:   time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		FinishedAt:  time.Date(2025, 6, 1, 9, 0, 12, 0, time.UTC),
		Collections: []string{"77"},
		Result: types.ReconciliationResult{
			Added:   []string{"103"},
			Removed: []string{"101"},
			Modified: map[string][]types.FieldChange{
				"102": {{Field: "title", OldValue: "A", NewValue: "B"}},
			},
			Summary: types.ReconciliationSummary{
				PreviousCount: 2,
				CurrentCount:  2,
				AddedCount:    1,
				RemovedCount:  1,
				ModifiedCount: 1,
			},
		},
	}
}

func TestPrinter_Notify(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Notify(sampleReport())

	out := buf.String()
	assert.Contains(t, out, "SYNC CYCLE SUMMARY")
	assert.Contains(t, out, "Added:     1")
	assert.Contains(t, out, "ADDED RECORDS")
	assert.Contains(t, out, "103")
	assert.Contains(t, out, "REMOVED RECORDS")
	assert.Contains(t, out, "MODIFIED RECORDS")
	assert.Contains(t, out, "102: title")
}

func TestPrinter_FailedCycle(t *testing.T) {
	var buf bytes.Buffer
	report := sampleReport()
	report.Failed = true
	report.FailureReason = "authentication failed"

	NewPrinter(&buf).Notify(report)

	out := buf.String()
	assert.Contains(t, out, "SYNC CYCLE FAILED")
	assert.Contains(t, out, "authentication failed")
	assert.NotContains(t, out, "SYNC CYCLE SUMMARY")
}

func TestPrinter_FailuresBox(t *testing.T) {
	var buf bytes.Buffer
	report := sampleReport()
	report.Failures = []types.MutationFailure{
		{ExternalID: "103", Operation: "insert", Reason: "duplicate entry"},
	}

	NewPrinter(&buf).Notify(report)

	out := buf.String()
	assert.Contains(t, out, "MUTATION FAILURES")
	assert.Contains(t, out, "insert 103")
}

func TestMultiNotifier(t *testing.T) {
	var a, b bytes.Buffer
	m := MultiNotifier{NewPrinter(&a), NewPrinter(&b)}

	m.Notify(sampleReport())

	assert.NotEmpty(t, a.String())
	assert.Equal(t, a.String(), b.String())
}
