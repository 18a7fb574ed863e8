package collector

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilgg/oss-transparency/internal/checkpoint"
	"github.com/nikhilgg/oss-transparency/internal/dataset"
	"github.com/nikhilgg/oss-transparency/internal/domain"
)

// fakeHandler maps unit IDs to canned outcomes and counts how often each
// unit was handled.
type fakeHandler struct {
	mu     sync.Mutex
	calls  map[string]int
	handle func(unitID string) *domain.CheckpointRecord
}

func newFakeHandler(handle func(unitID string) *domain.CheckpointRecord) *fakeHandler {
	if handle == nil {
		handle = func(unitID string) *domain.CheckpointRecord {
			return domain.NewDoneRecord(unitID, nil)
		}
	}
	return &fakeHandler{calls: make(map[string]int), handle: handle}
}

func (h *fakeHandler) Stage() string { return "test" }

func (h *fakeHandler) Handle(ctx context.Context, unitID string) *domain.CheckpointRecord {
	h.mu.Lock()
	h.calls[unitID]++
	h.mu.Unlock()
	return h.handle(unitID)
}

func (h *fakeHandler) callCount(unitID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[unitID]
}

func openDispatcherLog(t *testing.T, retryFailures bool) *checkpoint.Log {
	t.Helper()
	log, err := checkpoint.Open(filepath.Join(t.TempDir(), "test_checkpoint.jsonl"), retryFailures)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func TestRun_ProcessesAllUnits(t *testing.T) {
	log := openDispatcherLog(t, false)
	handler := newFakeHandler(nil)

	d := NewDispatcher(handler, log, nil, 4, nil)
	summary, err := d.Run(context.Background(), []string{"a/a", "b/b", "c/c"})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Done)
	assert.Equal(t, 0, summary.Remaining)
	assert.NotEmpty(t, summary.RunID)

	records, err := log.LoadAll()
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestRun_UnitFailureDoesNotAbortOthers(t *testing.T) {
	log := openDispatcherLog(t, false)
	handler := newFakeHandler(func(unitID string) *domain.CheckpointRecord {
		if unitID == "bad/bad" {
			return domain.NewErroredRecord(unitID, "provider exploded")
		}
		return domain.NewDoneRecord(unitID, nil)
	})

	d := NewDispatcher(handler, log, nil, 2, nil)
	summary, err := d.Run(context.Background(), []string{"good/one", "bad/bad", "good/two"})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Done)
	assert.Equal(t, 1, summary.Errored)
	assert.Equal(t, 0, summary.Remaining)

	// The failed unit is recorded with its error detail, not raised.
	records, err := log.LoadAll()
	require.NoError(t, err)
	var errored *domain.CheckpointRecord
	for _, rec := range records {
		if rec.Status == domain.StatusErrored {
			errored = rec
		}
	}
	require.NotNil(t, errored)
	assert.Equal(t, "bad/bad", errored.UnitID)
	assert.Equal(t, "provider exploded", errored.Error)
}

func TestRun_SkippedUnitsAreCounted(t *testing.T) {
	log := openDispatcherLog(t, false)
	handler := newFakeHandler(func(unitID string) *domain.CheckpointRecord {
		return domain.NewSkippedRecord(unitID, "archived_or_fork")
	})

	d := NewDispatcher(handler, log, nil, 1, nil)
	summary, err := d.Run(context.Background(), []string{"a/a", "b/b"})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 0, summary.Done)
}

func TestRun_ResumeSkipsCheckpointedUnits(t *testing.T) {
	log := openDispatcherLog(t, false)

	// A previous run completed two of four units, one of them with an error.
	require.NoError(t, log.Append(domain.NewDoneRecord("done/one", nil)))
	require.NoError(t, log.Append(domain.NewErroredRecord("failed/one", "boom")))

	handler := newFakeHandler(nil)
	d := NewDispatcher(handler, log, nil, 2, nil)
	summary, err := d.Run(context.Background(), []string{"done/one", "failed/one", "new/one", "new/two"})
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Done)
	assert.Equal(t, 0, handler.callCount("done/one"))
	assert.Equal(t, 0, handler.callCount("failed/one"))
	assert.Equal(t, 1, handler.callCount("new/one"))
	assert.Equal(t, 1, handler.callCount("new/two"))
}

func TestRun_RetryFailuresReattemptsErrored(t *testing.T) {
	log := openDispatcherLog(t, true)

	require.NoError(t, log.Append(domain.NewDoneRecord("done/one", nil)))
	require.NoError(t, log.Append(domain.NewErroredRecord("failed/one", "boom")))

	handler := newFakeHandler(nil)
	d := NewDispatcher(handler, log, nil, 1, nil)
	summary, err := d.Run(context.Background(), []string{"done/one", "failed/one"})
	require.NoError(t, err)

	assert.Equal(t, 0, handler.callCount("done/one"))
	assert.Equal(t, 1, handler.callCount("failed/one"))
	assert.Equal(t, 1, summary.Done)
}

func TestRun_EachUnitHandledAtMostOnce(t *testing.T) {
	log := openDispatcherLog(t, false)
	handler := newFakeHandler(nil)

	units := []string{"a/a", "b/b", "c/c", "a/a", "b/b"} // duplicates in input
	d := NewDispatcher(handler, log, nil, 3, nil)
	summary, err := d.Run(context.Background(), units)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	for _, u := range []string{"a/a", "b/b", "c/c"} {
		assert.Equal(t, 1, handler.callCount(u), u)
	}
}

func TestRun_CancelStopsSubmittingNewUnits(t *testing.T) {
	log := openDispatcherLog(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	handler := newFakeHandler(func(unitID string) *domain.CheckpointRecord {
		close(started)
		<-ctx.Done() // in-flight unit finishes naturally after the cancel
		return domain.NewDoneRecord(unitID, nil)
	})

	go func() {
		<-started
		cancel()
	}()

	d := NewDispatcher(handler, log, nil, 1, nil)
	summary, err := d.Run(ctx, []string{"a/a", "b/b", "c/c"})
	require.NoError(t, err)

	// The unit in flight at cancellation completes and is checkpointed; the
	// rest stay unprocessed for the next run.
	assert.Equal(t, 1, summary.Done)
	assert.Equal(t, 2, summary.Remaining)

	records, err := log.LoadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

// deterministicOutcome derives a unit's full record from its ID alone, so two
// runs over the same units produce comparable datasets.
func deterministicOutcome(unitID string) *domain.CheckpointRecord {
	switch unitID {
	case "skip/me":
		return domain.NewSkippedRecord(unitID, "archived_or_fork")
	case "err/err":
		return domain.NewErroredRecord(unitID, "repository not found")
	}
	return domain.NewDoneRecord(unitID, &domain.ExtractedRecords{
		Meta:         &domain.RepoMeta{RepoFullName: unitID, Stars: len(unitID)},
		PullRequests: []domain.PullRequestRow{{RepoFullName: unitID, Number: len(unitID)}},
		Contributors: []domain.ContributorRow{{RepoFullName: unitID, Login: "dev-" + unitID}},
	})
}

func rebuildFromLog(t *testing.T, log *checkpoint.Log) *dataset.Dataset {
	t.Helper()
	records, err := log.LoadAll()
	require.NoError(t, err)
	d := dataset.New()
	d.AddGitHubRecords(records)
	d.Sort()
	return d
}

func TestRun_CrashAfterKUnitsThenResumeMatchesSinglePass(t *testing.T) {
	units := []string{"a/a", "b/bb", "skip/me", "c/ccc", "err/err", "d/dddd", "e/eeeee"}

	singleLog := openDispatcherLog(t, false)
	_, err := NewDispatcher(newFakeHandler(deterministicOutcome), singleLog, nil, 2, nil).Run(context.Background(), units)
	require.NoError(t, err)
	want := rebuildFromLog(t, singleLog)

	for k := 0; k <= len(units); k++ {
		// A crash after k units leaves their records in the log and nothing
		// else; the fresh invocation must complete exactly the rest.
		crashedLog := openDispatcherLog(t, false)
		for _, u := range units[:k] {
			require.NoError(t, crashedLog.Append(deterministicOutcome(u)))
		}

		handler := newFakeHandler(deterministicOutcome)
		summary, err := NewDispatcher(handler, crashedLog, nil, 2, nil).Run(context.Background(), units)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.Remaining, "k=%d", k)
		for _, u := range units[:k] {
			assert.Equal(t, 0, handler.callCount(u), "k=%d unit %s reattempted", k, u)
		}

		got := rebuildFromLog(t, crashedLog)
		assert.Equal(t, want.RepoMeta, got.RepoMeta, "k=%d", k)
		assert.Equal(t, want.PullRequests, got.PullRequests, "k=%d", k)
		assert.Equal(t, want.Contributors, got.Contributors, "k=%d", k)
	}
}

func TestRun_CancelThenResumeMatchesSinglePass(t *testing.T) {
	units := []string{"a/a", "b/bb", "skip/me", "c/ccc", "err/err"}

	singleLog := openDispatcherLog(t, false)
	_, err := NewDispatcher(newFakeHandler(deterministicOutcome), singleLog, nil, 2, nil).Run(context.Background(), units)
	require.NoError(t, err)
	want := rebuildFromLog(t, singleLog)

	// Interrupt mid-run: one worker, the first unit cancels while in flight,
	// so it is checkpointed and the rest stay unprocessed.
	resumedLog := openDispatcherLog(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	interrupting := newFakeHandler(func(unitID string) *domain.CheckpointRecord {
		cancel()
		<-ctx.Done()
		return deterministicOutcome(unitID)
	})
	first, err := NewDispatcher(interrupting, resumedLog, nil, 1, nil).Run(ctx, units)
	require.NoError(t, err)
	require.Greater(t, first.Remaining, 0)

	second, err := NewDispatcher(newFakeHandler(deterministicOutcome), resumedLog, nil, 1, nil).Run(context.Background(), units)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Remaining)

	got := rebuildFromLog(t, resumedLog)
	assert.Equal(t, want.RepoMeta, got.RepoMeta)
	assert.Equal(t, want.PullRequests, got.PullRequests)
	assert.Equal(t, want.Contributors, got.Contributors)
}

func TestRun_UnwritableLogAbortsRun(t *testing.T) {
	log := openDispatcherLog(t, false)
	require.NoError(t, log.Close())

	handler := newFakeHandler(nil)
	d := NewDispatcher(handler, log, nil, 2, nil)
	_, err := d.Run(context.Background(), []string{"a/a", "b/b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append checkpoint")
}
