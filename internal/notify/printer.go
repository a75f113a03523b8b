package notify

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonathan/feedsync/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer renders verbose cycle summaries as formatted boxes.
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Notify implements Notifier by printing the full cycle summary.
func (p *Printer) Notify(report types.CycleReport) {
	if report.Failed {
		p.printBox("SYNC CYCLE FAILED", report.FailureReason)
		return
	}
	p.PrintReport(&report)
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintReport outputs a human-readable summary of a completed cycle.
func (p *Printer) PrintReport(report *types.CycleReport) {
	if report == nil {
		return
	}

	var sb strings.Builder
	s := report.Result.Summary

	sb.WriteString(fmt.Sprintf("Records:   %d (was %d)\n", s.CurrentCount, s.PreviousCount))
	sb.WriteString(fmt.Sprintf("Added:     %d\n", s.AddedCount))
	sb.WriteString(fmt.Sprintf("Removed:   %d\n", s.RemovedCount))
	sb.WriteString(fmt.Sprintf("Modified:  %d\n", s.ModifiedCount))
	sb.WriteString(fmt.Sprintf("Duration:  %s", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond)))

	p.printBox("SYNC CYCLE SUMMARY", sb.String())

	p.printIDList("ADDED RECORDS", report.Result.Added)
	p.printIDList("REMOVED RECORDS", report.Result.Removed)
	p.printChanges(report.Result.Modified)
	p.printFailures(report.Failures)
}

func (p *Printer) printIDList(title string, ids []string) {
	if len(ids) == 0 {
		return
	}

	var sb strings.Builder
	count := min(len(ids), maxItemsToShow)
	for i := 0; i < count; i++ {
		sb.WriteString(fmt.Sprintf("• %s\n", ids[i]))
	}
	if len(ids) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more\n", len(ids)-maxItemsToShow))
	}

	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}

func (p *Printer) printChanges(modified map[string][]types.FieldChange) {
	if len(modified) == 0 {
		return
	}

	var sb strings.Builder
	shown := 0
	for id, changes := range modified {
		if shown == maxItemsToShow {
			sb.WriteString(fmt.Sprintf("... and %d more\n", len(modified)-shown))
			break
		}
		fields := make([]string, 0, len(changes))
		for _, change := range changes {
			fields = append(fields, change.Field)
		}
		sb.WriteString(fmt.Sprintf("• %s: %s\n", id, strings.Join(fields, ", ")))
		shown++
	}

	p.printBox("MODIFIED RECORDS", strings.TrimSuffix(sb.String(), "\n"))
}

func (p *Printer) printFailures(failures []types.MutationFailure) {
	if len(failures) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d failed mutations:\n\n", len(failures)))
	for i, f := range failures {
		reason := f.Reason
		if len(reason) > 45 {
			reason = reason[:42] + "..."
		}
		sb.WriteString(fmt.Sprintf("⚠ %s %s\n", f.Operation, f.ExternalID))
		sb.WriteString(fmt.Sprintf("  %s\n", reason))
		if i < len(failures)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("MUTATION FAILURES", sb.String())
}
