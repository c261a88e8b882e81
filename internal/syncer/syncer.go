// ABOUTME: Two-hop reputation sync orchestrator with persisted job tracking
// ABOUTME: Hop 1 fetches the remote snapshot, hop 2 applies it via self-callback

package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/intellex/agent-registry/internal/reputation"
	"github.com/intellex/agent-registry/internal/store"
)

// Fetcher retrieves the authoritative snapshot from the reputation service
// (hop 1). Satisfied by reputation.Client.
type Fetcher interface {
	FetchAgentInfo(ctx context.Context, identity string) (*store.Snapshot, error)
}

// Applier delivers the fetched snapshot to the registry's own apply endpoint
// (hop 2). Satisfied by the callback Client in this package.
type Applier interface {
	ApplySnapshot(ctx context.Context, owner string, snap *store.Snapshot, seq int64) error
}

// Options configures an Orchestrator.
type Options struct {
	MaxRetries   int
	RetryBackoff time.Duration

	// JobRetention bounds how long terminal jobs stay queryable before the
	// background sweeper prunes them.
	JobRetention time.Duration

	// HopTimeout bounds each hop of a running chain. Defaults to 30s.
	HopTimeout time.Duration

	Logger *slog.Logger

	// Now returns the logical timestamp recorded on jobs. Defaults to
	// wall-clock nanoseconds.
	Now func() uint64
}

// Orchestrator runs reputation sync chains. Each Sync call allocates a
// monotonic per-agent sequence, records a job, and drives the two hops in a
// background goroutine. Job state survives restarts because it lives in the
// store, not in memory.
type Orchestrator struct {
	store   store.Store
	fetcher Fetcher
	applier Applier
	logger  *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
	jobRetention time.Duration
	hopTimeout   time.Duration
	now          func() uint64

	wg   sync.WaitGroup
	stop chan struct{}

	closeOnce sync.Once
}

// New creates a sync orchestrator and starts its retention sweeper.
func New(st store.Store, fetcher Fetcher, applier Applier, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() uint64 { return uint64(time.Now().UnixNano()) }
	}
	hopTimeout := opts.HopTimeout
	if hopTimeout == 0 {
		hopTimeout = 30 * time.Second
	}

	o := &Orchestrator{
		store:        st,
		fetcher:      fetcher,
		applier:      applier,
		logger:       logger.With("component", "syncer"),
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		jobRetention: opts.JobRetention,
		hopTimeout:   hopTimeout,
		now:          now,
		stop:         make(chan struct{}),
	}

	if o.jobRetention > 0 {
		o.wg.Add(1)
		go o.sweep()
	}

	return o
}

// Sync starts a sync chain for the given agent and returns the tracking job.
// Returns store.ErrAgentNotFound if the identity is not registered. The chain
// itself runs in the background; poll Job for its outcome.
func (o *Orchestrator) Sync(ctx context.Context, owner string) (*store.SyncJob, error) {
	seq, err := o.store.NextSyncSeq(ctx, owner)
	if err != nil {
		return nil, err
	}

	now := o.now()
	job := &store.SyncJob{
		ID:        uuid.New().String(),
		Owner:     owner,
		Seq:       seq,
		State:     store.JobStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.CreateSyncJob(ctx, job); err != nil {
		return nil, fmt.Errorf("recording sync job: %w", err)
	}

	o.logger.Info("sync started", "owner", owner, "job_id", job.ID, "seq", seq)

	o.wg.Add(1)
	go o.run(*job)

	result := *job
	return &result, nil
}

// Job returns the current state of a sync job.
func (o *Orchestrator) Job(ctx context.Context, id string) (*store.SyncJob, error) {
	return o.store.GetSyncJob(ctx, id)
}

// run drives one chain to a terminal state. Runs detached from the request
// that started it.
func (o *Orchestrator) run(job store.SyncJob) {
	defer o.wg.Done()

	ctx := context.Background()

	o.transition(ctx, &job, store.JobStateFetching, "")
	snap, err := o.fetchWithRetry(ctx, job.Owner)
	if err != nil {
		o.logger.Warn("sync fetch failed", "owner", job.Owner, "job_id", job.ID, "error", err)
		o.transition(ctx, &job, store.JobStateFailed, err.Error())
		return
	}

	o.transition(ctx, &job, store.JobStateApplying, "")
	applyCtx, cancel := context.WithTimeout(ctx, o.hopTimeout)
	err = o.applier.ApplySnapshot(applyCtx, job.Owner, snap, job.Seq)
	cancel()

	switch {
	case err == nil:
		o.transition(ctx, &job, store.JobStateDone, "")
		o.logger.Info("sync complete",
			"owner", job.Owner, "job_id", job.ID, "seq", job.Seq, "reputation", snap.Reputation)
	case errors.Is(err, store.ErrStaleSnapshot):
		// A newer chain or direct push landed first. Not a failure.
		o.transition(ctx, &job, store.JobStateStale, err.Error())
		o.logger.Info("sync superseded", "owner", job.Owner, "job_id", job.ID, "seq", job.Seq)
	default:
		o.transition(ctx, &job, store.JobStateFailed, err.Error())
		o.logger.Warn("sync apply failed", "owner", job.Owner, "job_id", job.ID, "error", err)
	}
}

// fetchWithRetry runs hop 1, retrying transient errors with a fixed backoff.
// An unknown-agent answer from the reputation service is terminal; retrying
// cannot make the record appear.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, owner string) (*store.Snapshot, error) {
	var lastErr error
	attempts := o.maxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(o.retryBackoff):
			case <-o.stop:
				return nil, fmt.Errorf("orchestrator shutting down: %w", lastErr)
			}
		}

		hopCtx, cancel := context.WithTimeout(ctx, o.hopTimeout)
		snap, err := o.fetcher.FetchAgentInfo(hopCtx, owner)
		cancel()

		if err == nil {
			return snap, nil
		}
		if errors.Is(err, reputation.ErrUnknownAgent) {
			return nil, err
		}
		lastErr = err
		o.logger.Debug("sync fetch attempt failed",
			"owner", owner, "attempt", attempt+1, "error", err)
	}

	return nil, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// transition moves the job to a new state and persists it. A persistence
// failure here is logged and swallowed; the chain itself already ran.
func (o *Orchestrator) transition(ctx context.Context, job *store.SyncJob, state, errMsg string) {
	job.State = state
	job.Error = errMsg
	job.UpdatedAt = o.now()
	if err := o.store.UpdateSyncJob(ctx, job); err != nil {
		o.logger.Error("persisting sync job state failed",
			"job_id", job.ID, "state", state, "error", err)
	}
}

// sweep prunes terminal jobs older than the retention window.
func (o *Orchestrator) sweep() {
	defer o.wg.Done()

	interval := o.jobRetention / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			cutoff := o.now() - uint64(o.jobRetention.Nanoseconds())
			n, err := o.store.PruneSyncJobs(context.Background(), cutoff)
			if err != nil {
				o.logger.Warn("pruning sync jobs failed", "error", err)
				continue
			}
			if n > 0 {
				o.logger.Debug("pruned sync jobs", "count", n)
			}
		}
	}
}

// Close stops the sweeper and waits for in-flight chains to finish.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.stop)
	})
	o.wg.Wait()
}
