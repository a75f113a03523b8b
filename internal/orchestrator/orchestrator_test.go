package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/feedsync/internal/ats"
	"github.com/jonathan/feedsync/internal/classify"
	"github.com/jonathan/feedsync/internal/feed"
	"github.com/jonathan/feedsync/internal/registry"
	"github.com/jonathan/feedsync/internal/snapshot"
	"github.com/jonathan/feedsync/internal/types"
)

// fakeSource serves canned records per collection id.
type fakeSource struct {
	records    map[string][]types.Record
	partial    bool
	crossCheck bool // report the membership cross-check as aborted
	err        error
	block      chan struct{} // when set, FetchCollection waits until closed
}

func (f *fakeSource) FetchCollection(_ context.Context, collectionID string) (ats.FetchResult, error) {
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return ats.FetchResult{}, f.err
	}
	return ats.FetchResult{
		Records:           f.records[collectionID],
		Partial:           f.partial,
		CrossCheckAborted: f.crossCheck,
	}, nil
}

// captureNotifier records every delivered report.
type captureNotifier struct {
	mu      sync.Mutex
	reports []types.CycleReport
}

func (n *captureNotifier) Notify(report types.CycleReport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, report)
}

func (n *captureNotifier) last(t *testing.T) types.CycleReport {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.reports)
	return n.reports[len(n.reports)-1]
}

type fixture struct {
	orch     *Orchestrator
	source   *fakeSource
	notifier *captureNotifier
	feed     *feed.Store
	registry *registry.Registry
}

func newFixture(t *testing.T, source *fakeSource, collections ...string) *fixture {
	t.Helper()
	dir := t.TempDir()
	if len(collections) == 0 {
		collections = []string{"77"}
	}

	reg := registry.New(filepath.Join(dir, "registry.json"))
	store := feed.NewStore(filepath.Join(dir, "feed.xml"))
	notifier := &captureNotifier{}

	orch := New(Options{
		Source:      source,
		Collections: collections,
		Registry:    reg,
		Feed:        store,
		Snapshots:   snapshot.NewStore(filepath.Join(dir, "snapshot.json")),
		Classifier:  classify.NewKeywordClassifier(),
		Notifier:    notifier,
	})

	return &fixture{orch: orch, source: source, notifier: notifier, feed: store, registry: reg}
}

func record(id, title string) types.Record {
	return types.Record{
		ExternalID:     id,
		Title:          title,
		Description:    "<p>Build and ship</p>",
		Location:       types.Location{City: "Boston", State: "MA", Country: "US"},
		EmploymentKind: "direct-hire",
		LastModifiedAt: time.Now().UTC(),
		IsActive:       true,
	}
}

func recordAt(id, title string, modified time.Time) types.Record {
	rec := record(id, title)
	rec.LastModifiedAt = modified
	return rec
}

func feedIDs(t *testing.T, store *feed.Store) []string {
	t.Helper()
	entries, err := store.Snapshot()
	require.NoError(t, err)
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ExternalID
	}
	return ids
}

func TestRun_FirstCycleAddsEverything(t *testing.T) {
	source := &fakeSource{records: map[string][]types.Record{
		"77": {record("101", "Engineer"), record("102", "Analyst")},
	}}
	f := newFixture(t, source)

	report, err := f.orch.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Failed)
	assert.ElementsMatch(t, []string{"101", "102"}, report.Result.Added)
	assert.Empty(t, report.Result.Removed)
	assert.ElementsMatch(t, []string{"101", "102"}, feedIDs(t, f.feed))
	assert.Equal(t, StateDone, f.orch.State())
}

func TestRun_Idempotence(t *testing.T) {
	source := &fakeSource{records: map[string][]types.Record{
		"77": {record("101", "Engineer"), record("102", "Analyst")},
	}}
	f := newFixture(t, source)

	_, err := f.orch.Run(context.Background())
	require.NoError(t, err)

	report, err := f.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, report.Result.Added)
	assert.Empty(t, report.Result.Removed)
	assert.Empty(t, report.Result.Modified)
}

func TestRun_ReferenceCodeStability(t *testing.T) {
	source := &fakeSource{records: map[string][]types.Record{
		"77": {record("101", "Engineer")},
	}}
	f := newFixture(t, source)

	_, err := f.orch.Run(context.Background())
	require.NoError(t, err)
	first, ok := f.registry.Lookup("101")
	require.True(t, ok)

	for i := 0; i < 3; i++ {
		_, err := f.orch.Run(context.Background())
		require.NoError(t, err)
	}

	after, ok := f.registry.Lookup("101")
	require.True(t, ok)
	assert.Equal(t, first, after)

	entries, err := f.feed.Snapshot()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, first, entries[0].ReferenceCode)
}

func TestRun_RemovedAndAddedScenario(t *testing.T) {
	source := &fakeSource{records: map[string][]types.Record{
		"77": {record("101", "Engineer"), record("102", "Analyst")},
	}}
	f := newFixture(t, source)

	_, err := f.orch.Run(context.Background())
	require.NoError(t, err)
	code102, ok := f.registry.Lookup("102")
	require.True(t, ok)

	source.records["77"] = []types.Record{record("102", "Analyst"), record("103", "Designer")}

	report, err := f.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"103"}, report.Result.Added)
	assert.Equal(t, []string{"101"}, report.Result.Removed)
	assert.Empty(t, report.Result.Modified)

	entries, err := f.feed.Snapshot()
	require.NoError(t, err)
	byID := make(map[string]types.ArtifactEntry)
	for _, e := range entries {
		byID[e.ExternalID] = e
	}
	require.Len(t, byID, 2)
	assert.NotContains(t, byID, "101")
	assert.Equal(t, code102, byID["102"].ReferenceCode, "untouched record keeps its code")
	assert.NotEmpty(t, byID["103"].ReferenceCode)

	// The new record is at the head.
	assert.Equal(t, "103", entries[0].ExternalID)
}

func TestRun_ModifiedPreservesCode(t *testing.T) {
	source := &fakeSource{records: map[string][]types.Record{
		"77": {record("101", "Engineer")},
	}}
	f := newFixture(t, source)

	_, err := f.orch.Run(context.Background())
	require.NoError(t, err)
	original, _ := f.registry.Lookup("101")

	source.records["77"] = []types.Record{record("101", "Senior Engineer")}

	report, err := f.orch.Run(context.Background())
	require.NoError(t, err)

	require.Contains(t, report.Result.Modified, "101")

	entries, err := f.feed.Snapshot()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Senior Engineer", entries[0].Title)
	assert.Equal(t, original, entries[0].ReferenceCode)
}

func TestRun_ModifiedWithReissue(t *testing.T) {
	source := &fakeSource{records: map[string][]types.Record{
		"77": {record("101", "Engineer")},
	}}
	f := newFixture(t, source)

	_, err := f.orch.Run(context.Background())
	require.NoError(t, err)
	original, _ := f.registry.Lookup("101")

	source.records["77"] = []types.Record{record("101", "Senior Engineer")}
	f.orch.opts.ReissueCodes = map[string]bool{"101": true}

	_, err = f.orch.Run(context.Background())
	require.NoError(t, err)

	entries, err := f.feed.Snapshot()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEqual(t, original, entries[0].ReferenceCode)

	reissued, ok := f.registry.Lookup("101")
	require.True(t, ok)
	assert.Equal(t, reissued, entries[0].ReferenceCode)
}

func TestRun_AuthFailureFailsCycle(t *testing.T) {
	source := &fakeSource{err: &ats.AuthError{Step: "token", Message: "denied"}}
	f := newFixture(t, source)

	report, err := f.orch.Run(context.Background())
	require.Error(t, err)

	assert.True(t, report.Failed)
	assert.Equal(t, StateFailed, f.orch.State())
	assert.True(t, f.notifier.last(t).Failed, "notifier receives the failure")
}

func TestRun_PartialFetchDefersRemovals(t *testing.T) {
	source := &fakeSource{records: map[string][]types.Record{
		"77": {record("101", "Engineer"), record("102", "Analyst")},
	}}
	f := newFixture(t, source)

	_, err := f.orch.Run(context.Background())
	require.NoError(t, err)

	source.records["77"] = []types.Record{record("102", "Analyst")}
	source.partial = true

	report, err := f.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, report.Result.Removed, "removals deferred on partial fetch")
	assert.ElementsMatch(t, []string{"101", "102"}, feedIDs(t, f.feed))

	// The next complete fetch settles the removal.
	source.partial = false
	report, err = f.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"101"}, report.Result.Removed)
	assert.Equal(t, []string{"102"}, feedIDs(t, f.feed))
}

func TestRun_CrossCheckAbortedDefersRemovals(t *testing.T) {
	source := &fakeSource{records: map[string][]types.Record{
		"77": {record("101", "Engineer"), record("102", "Analyst")},
	}}
	f := newFixture(t, source)

	_, err := f.orch.Run(context.Background())
	require.NoError(t, err)

	// The association surface misbehaved: the current set may be missing
	// valid records, so their absence proves nothing.
	source.records["77"] = []types.Record{record("102", "Analyst")}
	source.crossCheck = true

	report, err := f.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, report.Result.Removed, "removals disabled while the cross-check is aborted")
	assert.ElementsMatch(t, []string{"101", "102"}, feedIDs(t, f.feed))

	// The next clean cycle settles the removal.
	source.crossCheck = false
	report, err = f.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"101"}, report.Result.Removed)
	assert.Equal(t, []string{"102"}, feedIDs(t, f.feed))
}

func TestRun_AddedEntriesOrderedNewestFirst(t *testing.T) {
	older := recordAt("900", "Archivist", time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC))
	newer := recordAt("100", "Engineer", time.Date(2026, time.June, 5, 0, 0, 0, 0, time.UTC))
	source := &fakeSource{records: map[string][]types.Record{
		"77": {older, newer},
	}}
	f := newFixture(t, source)

	_, err := f.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"100", "900"}, feedIDs(t, f.feed), "most recently modified record at the head")
}

func TestRun_ModifiedAndAddedOrderedByRecency(t *testing.T) {
	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{records: map[string][]types.Record{
		"77": {recordAt("101", "Engineer", base), recordAt("102", "Analyst", base)},
	}}
	f := newFixture(t, source)

	_, err := f.orch.Run(context.Background())
	require.NoError(t, err)

	// 101 is modified a month after 103 appears; the fresher change wins the
	// head even though updates run through a different mutation path.
	source.records["77"] = []types.Record{
		recordAt("101", "Staff Engineer", base.AddDate(0, 2, 0)),
		recordAt("102", "Analyst", base),
		recordAt("103", "Designer", base.AddDate(0, 1, 0)),
	}

	report, err := f.orch.Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, report.Result.Modified, "101")
	require.Equal(t, []string{"103"}, report.Result.Added)

	assert.Equal(t, []string{"101", "103", "102"}, feedIDs(t, f.feed))
}

// hidingArtifact drops one entry from every Snapshot, simulating an entry
// lost behind the store's back.
type hidingArtifact struct {
	Artifact
	hide string
}

func (h *hidingArtifact) Snapshot() ([]types.ArtifactEntry, error) {
	entries, err := h.Artifact.Snapshot()
	if err != nil {
		return nil, err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.ExternalID != h.hide {
			kept = append(kept, e)
		}
	}
	return kept, nil
}

func TestRun_VerifyDetectsMissingUntouchedEntry(t *testing.T) {
	source := &fakeSource{records: map[string][]types.Record{
		"77": {record("101", "Engineer"), record("102", "Analyst")},
	}}
	f := newFixture(t, source)

	_, err := f.orch.Run(context.Background())
	require.NoError(t, err)

	// 101 is untouched this cycle, yet its entry has vanished from the
	// document the verifier reads back.
	source.records["77"] = append(source.records["77"], record("103", "Designer"))
	f.orch.opts.Feed = &hidingArtifact{Artifact: f.orch.opts.Feed, hide: "101"}

	report, err := f.orch.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing from document")
	assert.True(t, report.Failed)
	assert.Equal(t, StateFailed, f.orch.State())
}

func TestRun_UnmappableRecordSkippedAndRetried(t *testing.T) {
	broken := record("101", "") // missing title cannot be mapped
	source := &fakeSource{records: map[string][]types.Record{
		"77": {broken, record("102", "Analyst")},
	}}
	f := newFixture(t, source)

	report, err := f.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"101"}, report.SkippedRecords)
	assert.Equal(t, []string{"102"}, feedIDs(t, f.feed))

	// The record is fixed upstream; the next cycle picks it up as added.
	source.records["77"] = []types.Record{record("101", "Engineer"), record("102", "Analyst")}

	report, err = f.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"101"}, report.Result.Added)
	assert.ElementsMatch(t, []string{"101", "102"}, feedIDs(t, f.feed))
}

func TestRun_OverlappingCycleRejected(t *testing.T) {
	source := &fakeSource{
		records: map[string][]types.Record{"77": {record("101", "Engineer")}},
		block:   make(chan struct{}),
	}
	f := newFixture(t, source)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.orch.Run(context.Background())
	}()

	// Wait for the first cycle to enter FETCHING.
	require.Eventually(t, func() bool {
		return f.orch.State() == StateFetching
	}, time.Second, 5*time.Millisecond)

	_, err := f.orch.Run(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(source.block)
	<-done
}

func TestRun_MergesCollectionsFirstSeenWins(t *testing.T) {
	shared := record("101", "Engineer")
	source := &fakeSource{records: map[string][]types.Record{
		"77": {shared, record("102", "Analyst")},
		"78": {shared, record("103", "Designer")},
	}}
	f := newFixture(t, source, "77", "78")

	report, err := f.orch.Run(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"101", "102", "103"}, report.Result.Added)
	assert.Len(t, feedIDs(t, f.feed), 3)
}

// failingRemove wraps an artifact and fails every Remove call.
type failingRemove struct {
	Artifact
	err error
}

func (f *failingRemove) Remove(string) (bool, error) {
	return false, f.err
}

func TestRun_FailedRemovalRecordedAndRetried(t *testing.T) {
	source := &fakeSource{records: map[string][]types.Record{
		"77": {record("101", "Engineer"), record("102", "Analyst")},
	}}
	f := newFixture(t, source)

	_, err := f.orch.Run(context.Background())
	require.NoError(t, err)

	source.records["77"] = []types.Record{record("102", "Analyst")}
	realFeed := f.orch.opts.Feed
	f.orch.opts.Feed = &failingRemove{Artifact: realFeed, err: errors.New("disk full")}

	report, err := f.orch.Run(context.Background())
	require.NoError(t, err, "a single failed mutation does not fail the cycle")

	require.Len(t, report.Failures, 1)
	assert.Equal(t, "101", report.Failures[0].ExternalID)
	assert.Equal(t, "remove", report.Failures[0].Operation)
	assert.ElementsMatch(t, []string{"101", "102"}, feedIDs(t, f.feed), "entry still present after failed removal")

	// With the fault cleared, the next cycle detects the removal again.
	f.orch.opts.Feed = realFeed
	report, err = f.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"101"}, report.Result.Removed)
	assert.Equal(t, []string{"102"}, feedIDs(t, f.feed))
}
