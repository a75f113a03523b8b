// Package notify delivers end-of-cycle summaries. Delivery is fire and
// forget from the orchestrator's perspective.
package notify

import (
	"log"

	"github.com/jonathan/feedsync/internal/types"
)

// Notifier is the collaborator contract for cycle summaries.
type Notifier interface {
	Notify(report types.CycleReport)
}

// LogNotifier writes a one-line summary per cycle to the process log.
type LogNotifier struct{}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify logs the cycle outcome. Failed cycles are reported distinctly from
// per-record change summaries.
func (n *LogNotifier) Notify(report types.CycleReport) {
	if report.Failed {
		log.Printf("sync cycle FAILED: %s (collections %v)", report.FailureReason, report.Collections)
		return
	}

	s := report.Result.Summary
	log.Printf("sync cycle done: %d records (%d added, %d removed, %d modified, %d mutation failures, %d skipped)",
		s.CurrentCount, s.AddedCount, s.RemovedCount, s.ModifiedCount, len(report.Failures), len(report.SkippedRecords))
}

// MultiNotifier fans a report out to several notifiers.
type MultiNotifier []Notifier

// Notify delivers the report to every wrapped notifier in order.
func (m MultiNotifier) Notify(report types.CycleReport) {
	for _, n := range m {
		n.Notify(report)
	}
}
