package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellex/agent-registry/internal/reputation"
	"github.com/intellex/agent-registry/internal/store"
)

type fakeFetcher struct {
	mu    sync.Mutex
	snap  *store.Snapshot
	errs  []error // consumed one per call; nil entry means success
	calls int
}

func (f *fakeFetcher) FetchAgentInfo(ctx context.Context, identity string) (*store.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if f.calls < len(f.errs) {
		err = f.errs[f.calls]
	}
	f.calls++
	if err != nil {
		return nil, err
	}
	return f.snap, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeApplier struct {
	mu    sync.Mutex
	err   error
	owner string
	snap  *store.Snapshot
	seq   int64
	calls int
}

func (f *fakeApplier) ApplySnapshot(ctx context.Context, owner string, snap *store.Snapshot, seq int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owner = owner
	f.snap = snap
	f.seq = seq
	f.calls++
	return f.err
}

func setupOrchestrator(t *testing.T, fetcher Fetcher, applier Applier, maxRetries int) (*Orchestrator, *store.MockStore) {
	t.Helper()
	m := store.NewMockStore()
	o := New(m, fetcher, applier, Options{
		MaxRetries:   maxRetries,
		RetryBackoff: time.Millisecond,
		Logger:       slog.New(slog.DiscardHandler),
	})
	t.Cleanup(o.Close)
	return o, m
}

func registerAgent(t *testing.T, m *store.MockStore, owner string) {
	t.Helper()
	err := m.CreateAgent(context.Background(), &store.Agent{
		Owner:        owner,
		Metadata:     store.AgentMetadata{Name: "Test Agent"},
		RegisteredAt: 1000,
		Reputation: store.Snapshot{
			ReputationHistory: []store.ReputationPoint{{Timestamp: 1000}},
		},
	})
	require.NoError(t, err)
}

// waitTerminal closes the orchestrator so in-flight chains finish, then reads
// the job's final state.
func waitTerminal(t *testing.T, o *Orchestrator, id string) *store.SyncJob {
	t.Helper()
	o.Close()
	job, err := o.Job(context.Background(), id)
	require.NoError(t, err)
	return job
}

func TestOrchestrator_Sync_Success(t *testing.T) {
	snap := &store.Snapshot{
		Reputation:        77,
		TaskHistory:       []store.TaskResult{{TaskID: "t1", Success: true, Timestamp: 2000}},
		ReputationHistory: []store.ReputationPoint{{Timestamp: 2000, Reputation: 77}},
	}
	fetcher := &fakeFetcher{snap: snap}
	applier := &fakeApplier{}
	o, m := setupOrchestrator(t, fetcher, applier, 3)
	registerAgent(t, m, "alice.agents")

	job, err := o.Sync(context.Background(), "alice.agents")
	require.NoError(t, err)
	assert.Equal(t, "alice.agents", job.Owner)
	assert.Equal(t, int64(1), job.Seq)

	final := waitTerminal(t, o, job.ID)
	assert.Equal(t, store.JobStateDone, final.State)
	assert.Empty(t, final.Error)

	applier.mu.Lock()
	defer applier.mu.Unlock()
	assert.Equal(t, "alice.agents", applier.owner)
	assert.Equal(t, int64(1), applier.seq)
	assert.Equal(t, snap, applier.snap)
}

func TestOrchestrator_Sync_SequencesIncrease(t *testing.T) {
	fetcher := &fakeFetcher{snap: &store.Snapshot{}}
	o, m := setupOrchestrator(t, fetcher, &fakeApplier{}, 0)
	registerAgent(t, m, "alice.agents")

	first, err := o.Sync(context.Background(), "alice.agents")
	require.NoError(t, err)
	second, err := o.Sync(context.Background(), "alice.agents")
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Seq)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestOrchestrator_Sync_UnregisteredAgent(t *testing.T) {
	o, _ := setupOrchestrator(t, &fakeFetcher{}, &fakeApplier{}, 0)

	_, err := o.Sync(context.Background(), "nobody.agents")
	assert.ErrorIs(t, err, store.ErrAgentNotFound)
}

func TestOrchestrator_Sync_UnknownAtReputationService(t *testing.T) {
	fetcher := &fakeFetcher{errs: []error{reputation.ErrUnknownAgent}}
	o, m := setupOrchestrator(t, fetcher, &fakeApplier{}, 3)
	registerAgent(t, m, "alice.agents")

	job, err := o.Sync(context.Background(), "alice.agents")
	require.NoError(t, err)

	final := waitTerminal(t, o, job.ID)
	assert.Equal(t, store.JobStateFailed, final.State)
	assert.Contains(t, final.Error, "unknown agent")
	// Unknown agent is terminal; no retries
	assert.Equal(t, 1, fetcher.callCount())
}

func TestOrchestrator_Sync_RetriesTransientFetchErrors(t *testing.T) {
	fetcher := &fakeFetcher{
		snap: &store.Snapshot{Reputation: 10},
		errs: []error{errors.New("timeout"), errors.New("timeout"), nil},
	}
	applier := &fakeApplier{}
	o, m := setupOrchestrator(t, fetcher, applier, 2)
	registerAgent(t, m, "alice.agents")

	job, err := o.Sync(context.Background(), "alice.agents")
	require.NoError(t, err)

	final := waitTerminal(t, o, job.ID)
	assert.Equal(t, store.JobStateDone, final.State)
	assert.Equal(t, 3, fetcher.callCount())
}

func TestOrchestrator_Sync_FetchExhaustsRetries(t *testing.T) {
	boom := errors.New("connection refused")
	fetcher := &fakeFetcher{errs: []error{boom, boom, boom}}
	applier := &fakeApplier{}
	o, m := setupOrchestrator(t, fetcher, applier, 2)
	registerAgent(t, m, "alice.agents")

	job, err := o.Sync(context.Background(), "alice.agents")
	require.NoError(t, err)

	final := waitTerminal(t, o, job.ID)
	assert.Equal(t, store.JobStateFailed, final.State)
	assert.Contains(t, final.Error, "after 3 attempts")

	applier.mu.Lock()
	defer applier.mu.Unlock()
	assert.Zero(t, applier.calls)
}

func TestOrchestrator_Sync_StaleApply(t *testing.T) {
	fetcher := &fakeFetcher{snap: &store.Snapshot{Reputation: 10}}
	applier := &fakeApplier{err: store.ErrStaleSnapshot}
	o, m := setupOrchestrator(t, fetcher, applier, 0)
	registerAgent(t, m, "alice.agents")

	job, err := o.Sync(context.Background(), "alice.agents")
	require.NoError(t, err)

	final := waitTerminal(t, o, job.ID)
	assert.Equal(t, store.JobStateStale, final.State)
}

func TestOrchestrator_Sync_ApplyFailure(t *testing.T) {
	fetcher := &fakeFetcher{snap: &store.Snapshot{}}
	applier := &fakeApplier{err: errors.New("endpoint unreachable")}
	o, m := setupOrchestrator(t, fetcher, applier, 0)
	registerAgent(t, m, "alice.agents")

	job, err := o.Sync(context.Background(), "alice.agents")
	require.NoError(t, err)

	final := waitTerminal(t, o, job.ID)
	assert.Equal(t, store.JobStateFailed, final.State)
	assert.Contains(t, final.Error, "endpoint unreachable")
}

func TestOrchestrator_Job_NotFound(t *testing.T) {
	o, _ := setupOrchestrator(t, &fakeFetcher{}, &fakeApplier{}, 0)

	_, err := o.Job(context.Background(), "no-such-job")
	assert.ErrorIs(t, err, store.ErrJobNotFound)
}
