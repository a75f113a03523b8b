// Package orchestrator drives one full synchronization cycle: fetch the
// current record sets, reconcile against the previous cycle's snapshot,
// mutate the feed document, verify the result, and hand a report to the
// notifier. Cycles are strictly serialized; overlapping invocations fail
// fast instead of queuing.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/feedsync/internal/ats"
	"github.com/jonathan/feedsync/internal/classify"
	"github.com/jonathan/feedsync/internal/db"
	"github.com/jonathan/feedsync/internal/notify"
	"github.com/jonathan/feedsync/internal/reconcile"
	"github.com/jonathan/feedsync/internal/registry"
	"github.com/jonathan/feedsync/internal/snapshot"
	"github.com/jonathan/feedsync/internal/transport"
	"github.com/jonathan/feedsync/internal/types"
)

// ErrCycleInProgress is returned when Run is called while another cycle is
// still running.
var ErrCycleInProgress = errors.New("a sync cycle is already in progress")

// Source produces the active record set for one collection.
type Source interface {
	FetchCollection(ctx context.Context, collectionID string) (ats.FetchResult, error)
}

// Artifact is the mutable feed document. *feed.Store is the production
// implementation.
type Artifact interface {
	InsertAtHead(entry types.ArtifactEntry) error
	UpdateInPlace(externalID string, entry types.ArtifactEntry, reissueCode bool) (bool, error)
	Remove(externalID string) (bool, error)
	Snapshot() ([]types.ArtifactEntry, error)
	Bytes() ([]byte, error)
}

// Options wires the orchestrator's collaborators. Source, Collections,
// Registry, Feed, Snapshots, Classifier, and Notifier are required;
// Publisher and History are optional.
type Options struct {
	Source      Source
	Collections []string
	Registry    *registry.Registry
	Feed        Artifact
	Snapshots   *snapshot.Store
	Classifier  classify.Classifier
	Notifier    notify.Notifier
	Publisher   transport.Publisher
	History     *db.History

	// ReissueCodes names external ids whose reference codes must be
	// regenerated this cycle. Codes are preserved for everything else.
	ReissueCodes map[string]bool
}

// Orchestrator runs sync cycles one at a time.
type Orchestrator struct {
	opts Options

	running atomic.Bool
	state   atomic.Value // State
}

// New creates an orchestrator from options.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{opts: opts}
	o.state.Store(StateIdle)
	return o
}

// State reports the current cycle step.
func (o *Orchestrator) State() State {
	return o.state.Load().(State)
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(s)
}

// Run executes one complete sync cycle. Recoverable problems (partial
// fetches, single-record mapping errors, individual mutation failures) are
// absorbed into the report; only authentication failure, state persistence
// failure, and post-mutation invariant violations fail the cycle.
func (o *Orchestrator) Run(ctx context.Context) (types.CycleReport, error) {
	if !o.running.CompareAndSwap(false, true) {
		return types.CycleReport{}, ErrCycleInProgress
	}
	defer o.running.Store(false)

	report := types.CycleReport{
		StartedAt:   time.Now().UTC(),
		Collections: o.opts.Collections,
	}
	cycleID := o.recordCycleStart(ctx)

	o.setState(StateFetching)
	fmt.Printf("Fetching %d collection(s)...\n", len(o.opts.Collections))
	current, deferRemovals, err := o.fetchAll(ctx)
	if err != nil {
		return o.fail(ctx, cycleID, report, fmt.Errorf("fetch failed: %w", err))
	}
	fmt.Printf("Fetched %d active records\n", len(current))

	o.setState(StateReconciling)
	previous, err := o.opts.Snapshots.Load()
	if err != nil {
		return o.fail(ctx, cycleID, report, fmt.Errorf("failed to load previous record set: %w", err))
	}
	result := reconcile.Diff(previous, current)

	if deferRemovals && len(result.Removed) > 0 {
		// A partial fetch or an aborted membership cross-check cannot prove
		// absence. Carry the would-be removals forward unchanged; the next
		// clean cycle settles them.
		log.Printf("warning: fetch cannot prove absence; deferring removal of %d entries", len(result.Removed))
		current = append(current, selectRecords(previous, result.Removed)...)
		result = reconcile.Diff(previous, current)
	}
	report.Result = result
	fmt.Printf("Reconciled: %d added, %d removed, %d modified\n",
		result.Summary.AddedCount, result.Summary.RemovedCount, result.Summary.ModifiedCount)

	o.setState(StateMutating)
	outcome := o.applyMutations(ctx, current, result, &report)

	o.setState(StateVerifying)
	if err := o.verify(current, outcome, result); err != nil {
		return o.fail(ctx, cycleID, report, err)
	}

	persisted := o.persistedSet(current, previous, result, outcome)
	if err := o.opts.Snapshots.Save(persisted); err != nil {
		return o.fail(ctx, cycleID, report, fmt.Errorf("failed to persist record set: %w", err))
	}
	if err := o.opts.Registry.Persist(); err != nil {
		return o.fail(ctx, cycleID, report, fmt.Errorf("failed to persist registry: %w", err))
	}

	o.publish(ctx)

	o.setState(StateDone)
	report.FinishedAt = time.Now().UTC()
	o.opts.Notifier.Notify(report)
	o.recordCycleEnd(ctx, cycleID, report, "completed")
	return report, nil
}

// fail finalizes a cycle in the FAILED state and delivers the failure to the
// notifier as a cycle-level outcome.
func (o *Orchestrator) fail(ctx context.Context, cycleID uuid.UUID, report types.CycleReport, err error) (types.CycleReport, error) {
	o.setState(StateFailed)
	report.Failed = true
	report.FailureReason = err.Error()
	report.FinishedAt = time.Now().UTC()
	o.opts.Notifier.Notify(report)
	o.recordCycleEnd(ctx, cycleID, report, "failed")
	return report, err
}

// fetchAll retrieves every monitored collection concurrently, then merges
// the results in configured collection order with first-seen-wins
// deduplication. The bool return reports whether removals must be deferred
// this cycle: a partial fetch or an aborted membership cross-check means a
// record's absence from the merged set is not trustworthy.
func (o *Orchestrator) fetchAll(ctx context.Context) ([]types.Record, bool, error) {
	results := make([]ats.FetchResult, len(o.opts.Collections))

	g, gctx := errgroup.WithContext(ctx)
	for i, collectionID := range o.opts.Collections {
		i, collectionID := i, collectionID
		g.Go(func() error {
			res, err := o.opts.Source.FetchCollection(gctx, collectionID)
			if err != nil {
				return fmt.Errorf("collection %s: %w", collectionID, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	deferRemovals := false
	seen := make(map[string]bool)
	var merged []types.Record
	for i, res := range results {
		if res.Partial {
			deferRemovals = true
		}
		if res.CrossCheckAborted {
			log.Printf("warning: collection %s: membership cross-check skipped this cycle, removals disabled", o.opts.Collections[i])
			deferRemovals = true
		}
		if len(res.OrphanedByAssociation) > 0 {
			log.Printf("collection %s: %d records orphaned by association total: %v",
				o.opts.Collections[i], len(res.OrphanedByAssociation), res.OrphanedByAssociation)
		}
		for _, rec := range res.Records {
			if seen[rec.ExternalID] {
				continue
			}
			seen[rec.ExternalID] = true
			merged = append(merged, rec)
		}
	}
	return merged, deferRemovals, nil
}

// mutationOutcome tracks which ids were actually applied so verification and
// snapshot persistence can account for per-id failures.
type mutationOutcome struct {
	insertedIDs []string
	updatedIDs  []string
	failedIDs   map[string]bool
	skippedIDs  map[string]bool
}

// applyMutations walks the reconciliation result and applies each change to
// the feed document. A single failed mutation is recorded on the report and
// the cycle proceeds to the next id.
func (o *Orchestrator) applyMutations(ctx context.Context, current []types.Record, result types.ReconciliationResult, report *types.CycleReport) mutationOutcome {
	outcome := mutationOutcome{
		failedIDs:  make(map[string]bool),
		skippedIDs: make(map[string]bool),
	}

	byID := make(map[string]types.Record, len(current))
	for _, rec := range current {
		byID[rec.ExternalID] = rec
	}

	for _, id := range result.Removed {
		// The reference code stays registered so the record keeps its code
		// if it ever returns.
		if _, err := o.opts.Feed.Remove(id); err != nil {
			o.recordFailure(report, &outcome, id, "remove", err)
		}
	}

	// Added and modified entries all land at the head. Applying them in
	// ascending recency order leaves the head block ordered newest-first.
	type change struct {
		id     string
		update bool
	}
	changes := make([]change, 0, len(result.Added)+len(result.Modified))
	for _, id := range result.Added {
		changes = append(changes, change{id: id})
	}
	for id := range result.Modified {
		changes = append(changes, change{id: id, update: true})
	}
	sort.Slice(changes, func(i, j int) bool {
		a, b := byID[changes[i].id], byID[changes[j].id]
		if a.LastModifiedAt.Equal(b.LastModifiedAt) {
			return changes[i].id < changes[j].id
		}
		return a.LastModifiedAt.Before(b.LastModifiedAt)
	})

	for _, ch := range changes {
		if ch.update {
			o.updateRecord(ctx, byID[ch.id], report, &outcome)
		} else {
			o.insertRecord(ctx, byID[ch.id], report, &outcome)
		}
	}

	return outcome
}

func (o *Orchestrator) insertRecord(ctx context.Context, rec types.Record, report *types.CycleReport, outcome *mutationOutcome) {
	id := rec.ExternalID
	code, err := o.opts.Registry.Assign(id)
	if err != nil {
		o.recordFailure(report, outcome, id, "insert", err)
		return
	}
	entry, err := types.NewEntry(rec, o.classify(ctx, rec), code)
	if err != nil {
		o.skipRecord(report, outcome, id, err)
		return
	}
	if err := o.opts.Feed.InsertAtHead(*entry); err != nil {
		o.recordFailure(report, outcome, id, "insert", err)
		return
	}
	outcome.insertedIDs = append(outcome.insertedIDs, id)
}

func (o *Orchestrator) updateRecord(ctx context.Context, rec types.Record, report *types.CycleReport, outcome *mutationOutcome) {
	id := rec.ExternalID
	reissue := o.opts.ReissueCodes[id]

	var code string
	var err error
	if reissue {
		code, err = o.opts.Registry.Reissue(id)
	} else {
		code, err = o.opts.Registry.Assign(id)
	}
	if err != nil {
		o.recordFailure(report, outcome, id, "update", err)
		return
	}

	entry, err := types.NewEntry(rec, o.classify(ctx, rec), code)
	if err != nil {
		o.skipRecord(report, outcome, id, err)
		return
	}

	found, err := o.opts.Feed.UpdateInPlace(id, *entry, reissue)
	if err != nil {
		o.recordFailure(report, outcome, id, "update", err)
		return
	}
	if !found {
		// The snapshot said the record existed but the document lost it;
		// repair by inserting fresh.
		log.Printf("warning: modified record %s missing from document, inserting", id)
		if err := o.opts.Feed.InsertAtHead(*entry); err != nil {
			o.recordFailure(report, outcome, id, "update", err)
			return
		}
	}
	outcome.updatedIDs = append(outcome.updatedIDs, id)
}

func (o *Orchestrator) recordFailure(report *types.CycleReport, outcome *mutationOutcome, id, operation string, err error) {
	log.Printf("warning: %s failed for record %s: %v", operation, id, err)
	outcome.failedIDs[id] = true
	report.Failures = append(report.Failures, types.MutationFailure{
		ExternalID: id,
		Operation:  operation,
		Reason:     err.Error(),
	})
}

func (o *Orchestrator) skipRecord(report *types.CycleReport, outcome *mutationOutcome, id string, err error) {
	log.Printf("warning: skipping record %s: %v", id, err)
	outcome.skippedIDs[id] = true
	report.SkippedRecords = append(report.SkippedRecords, id)
}

// classify derives enrichment labels for a record. Classification is best
// effort: on error the labels stay blank.
func (o *Orchestrator) classify(ctx context.Context, rec types.Record) types.Classification {
	description := classify.StripMarkup(rec.Description)
	labels, err := o.opts.Classifier.Classify(ctx, rec.Title, description)
	if err != nil {
		log.Printf("warning: classification failed for record %s: %v", rec.ExternalID, err)
		return types.Classification{}
	}
	return labels
}

// verify re-reads the feed document and checks the cycle's structural
// promises: every surviving record has exactly one entry, every successfully
// removed id is absent, and the entries touched this cycle form a
// newest-first block at the head of the document.
func (o *Orchestrator) verify(current []types.Record, outcome mutationOutcome, result types.ReconciliationResult) error {
	entries, err := o.opts.Feed.Snapshot()
	if err != nil {
		return fmt.Errorf("verification failed: could not re-read document: %w", err)
	}

	position := make(map[string]int, len(entries))
	for i, entry := range entries {
		if _, dup := position[entry.ExternalID]; dup {
			return fmt.Errorf("verification failed: duplicate entry for external id %q", entry.ExternalID)
		}
		position[entry.ExternalID] = i
	}

	touched := len(outcome.insertedIDs) + len(outcome.updatedIDs)
	for _, id := range outcome.insertedIDs {
		pos, ok := position[id]
		if !ok {
			return fmt.Errorf("verification failed: inserted record %q is missing from document", id)
		}
		if pos >= touched {
			return fmt.Errorf("verification failed: record %q is not in the newest-first head block", id)
		}
	}
	for _, id := range outcome.updatedIDs {
		pos, ok := position[id]
		if !ok {
			return fmt.Errorf("verification failed: updated record %q is missing from document", id)
		}
		if pos >= touched {
			return fmt.Errorf("verification failed: record %q is not in the newest-first head block", id)
		}
	}
	for _, id := range result.Removed {
		if outcome.failedIDs[id] {
			continue
		}
		if _, present := position[id]; present {
			return fmt.Errorf("verification failed: removed record %q is still in the document", id)
		}
	}

	// Every current record that was neither skipped nor failed must have an
	// entry, including the untouched ones no mutation went near.
	for _, rec := range current {
		if outcome.skippedIDs[rec.ExternalID] || outcome.failedIDs[rec.ExternalID] {
			continue
		}
		if _, present := position[rec.ExternalID]; !present {
			return fmt.Errorf("verification failed: record %q is missing from document", rec.ExternalID)
		}
	}

	// The head block was written oldest-first, so it must read newest-first.
	for i := 1; i < touched && i < len(entries); i++ {
		if entries[i-1].PostedAt.Before(entries[i].PostedAt) {
			return fmt.Errorf("verification failed: head entries are not ordered newest-first (%q predates %q)",
				entries[i-1].ExternalID, entries[i].ExternalID)
		}
	}

	return nil
}

// persistedSet builds the record set saved as the next cycle's previous
// set. Records whose mutation failed or was skipped are excluded (or, for
// failed removals, retained) so the next cycle detects and retries them.
func (o *Orchestrator) persistedSet(current, previous []types.Record, result types.ReconciliationResult, outcome mutationOutcome) []types.Record {
	kept := make([]types.Record, 0, len(current))
	for _, rec := range current {
		if outcome.failedIDs[rec.ExternalID] || outcome.skippedIDs[rec.ExternalID] {
			continue
		}
		kept = append(kept, rec)
	}
	for _, id := range result.Removed {
		if outcome.failedIDs[id] {
			kept = append(kept, selectRecords(previous, []string{id})...)
		}
	}
	return kept
}

// publish pushes the finished document downstream. Publish failure never
// fails the cycle; the document on disk is already consistent.
func (o *Orchestrator) publish(ctx context.Context) {
	if o.opts.Publisher == nil {
		return
	}
	data, err := o.opts.Feed.Bytes()
	if err != nil {
		log.Printf("warning: failed to read document for publishing: %v", err)
		return
	}
	if err := o.opts.Publisher.Publish(ctx, data); err != nil {
		log.Printf("warning: failed to publish document: %v", err)
	}
}

// recordCycleStart opens a history row when a history store is configured.
// History is best effort and never affects the cycle.
func (o *Orchestrator) recordCycleStart(ctx context.Context) uuid.UUID {
	if o.opts.History == nil {
		return uuid.Nil
	}
	id, err := o.opts.History.CreateCycle(ctx, o.opts.Collections)
	if err != nil {
		log.Printf("warning: failed to record cycle start: %v", err)
		return uuid.Nil
	}
	return id
}

func (o *Orchestrator) recordCycleEnd(ctx context.Context, cycleID uuid.UUID, report types.CycleReport, status string) {
	if o.opts.History == nil || cycleID == uuid.Nil {
		return
	}
	if err := o.opts.History.SaveReport(ctx, cycleID, report); err != nil {
		log.Printf("warning: failed to record cycle report: %v", err)
	}
	if err := o.opts.History.CompleteCycle(ctx, cycleID, status); err != nil {
		log.Printf("warning: failed to record cycle end: %v", err)
	}
}

// selectRecords returns the records from set whose ids are listed.
func selectRecords(set []types.Record, ids []string) []types.Record {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []types.Record
	for _, rec := range set {
		if want[rec.ExternalID] {
			out = append(out, rec)
		}
	}
	return out
}
