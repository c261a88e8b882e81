// ABOUTME: Store interface and data types for agent-registry persistence
// ABOUTME: Defines Agent, Snapshot, SyncJob structs and the Store interface

package store

import (
	"context"
	"errors"
)

// ErrAgentNotFound is returned when a requested agent does not exist
var ErrAgentNotFound = errors.New("agent not found")

// ErrAlreadyRegistered is returned when trying to register an identity that
// already has an agent record
var ErrAlreadyRegistered = errors.New("agent already registered")

// ErrStaleSnapshot is returned when a reputation snapshot carries a sync
// sequence older than the last one applied for that agent
var ErrStaleSnapshot = errors.New("stale reputation snapshot")

// ErrJobNotFound is returned when a requested sync job does not exist
var ErrJobNotFound = errors.New("sync job not found")

// AgentMetadata is the self-declared description an agent provides at
// registration. Immutable once set; there is no update-metadata operation.
// Skills are kept exactly as declared (order preserved, duplicates allowed).
type AgentMetadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Skills      []string `json:"skills"`
	Purpose     string   `json:"purpose"`
}

// TaskResult is one entry in an agent's task history, produced by the
// reputation service and mirrored here.
type TaskResult struct {
	TaskID    string `json:"task_id"`
	Success   bool   `json:"success"`
	Timestamp uint64 `json:"timestamp"`
	Details   string `json:"details"`
}

// ReputationPoint is one (timestamp, reputation) entry in an agent's
// reputation history, in chronological insertion order.
type ReputationPoint struct {
	Timestamp  uint64 `json:"timestamp"`
	Reputation uint64 `json:"reputation"`
}

// Snapshot is the complete reputation state for an agent as issued by the
// reputation service. The registry never computes any of it; snapshots are
// applied by wholesale replacement, never merged.
type Snapshot struct {
	Reputation        uint64            `json:"reputation"`
	TaskHistory       []TaskResult      `json:"task_history"`
	ReputationHistory []ReputationPoint `json:"reputation_history"`
}

// Agent is a registered agent record. Owner is the caller identity that
// registered it and is the primary key everywhere. Only the Reputation field
// changes after creation.
type Agent struct {
	Owner        string        `json:"owner"`
	Metadata     AgentMetadata `json:"metadata"`
	RegisteredAt uint64        `json:"registered_at"`
	Reputation   Snapshot      `json:"reputation"`
}

// DirectPush is the sync sequence value used for snapshots pushed directly by
// the reputation service. Direct pushes are authoritative: they always apply
// and never regress the stored sequence.
const DirectPush int64 = -1

// Sync job states. A job moves pending -> fetching -> applying and terminates
// in done, failed, or stale.
const (
	JobStatePending  = "pending"
	JobStateFetching = "fetching"
	JobStateApplying = "applying"
	JobStateDone     = "done"
	JobStateFailed   = "failed"
	JobStateStale    = "stale"
)

// SyncJob tracks one two-hop reputation synchronization chain.
type SyncJob struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Seq       int64  `json:"seq"`
	State     string `json:"state"`
	Error     string `json:"error,omitempty"`
	CreatedAt uint64 `json:"created_at"`
	UpdatedAt uint64 `json:"updated_at"`
}

// TaskHistoryDefaultLimit is used when a task-history query gives no limit.
const TaskHistoryDefaultLimit = 50

// TaskHistoryMaxLimit caps the page size of a task-history query.
const TaskHistoryMaxLimit = 100

// Store defines the interface for agent and sync-job persistence.
type Store interface {
	// CreateAgent inserts the agent record and its skill-index rows as a
	// single atomic unit. Returns ErrAlreadyRegistered if the owner already
	// has a record, in which case nothing is written.
	CreateAgent(ctx context.Context, agent *Agent) error

	// GetAgent returns the full record including the reputation snapshot.
	GetAgent(ctx context.Context, owner string) (*Agent, error)

	// ApplyReputation replaces the agent's reputation snapshot wholesale.
	// seq is the sync sequence of the snapshot; DirectPush bypasses the
	// staleness check. Returns ErrAgentNotFound for unknown owners and
	// ErrStaleSnapshot when seq is older than the last applied sequence.
	ApplyReputation(ctx context.Context, owner string, snap *Snapshot, seq int64) error

	// AgentsBySkill returns the identities holding a skill in index insertion
	// order. Unknown skills yield an empty slice, never an error.
	AgentsBySkill(ctx context.Context, skill string) ([]string, error)

	// CountAgents returns the total number of registered agents.
	CountAgents(ctx context.Context) (uint64, error)

	// AgentSkills returns the declared skills of an agent as registered.
	AgentSkills(ctx context.Context, owner string) ([]string, error)

	// TaskHistory returns history[offset : offset+min(limit, max)] in
	// chronological order. Out-of-range offsets and unknown owners yield an
	// empty slice.
	TaskHistory(ctx context.Context, owner string, offset, limit uint64) ([]TaskResult, error)

	// ReputationHistory returns the full reputation history, chronological.
	ReputationHistory(ctx context.Context, owner string) ([]ReputationPoint, error)

	// NextSyncSeq allocates the next per-owner sync sequence. Returns
	// ErrAgentNotFound for unknown owners.
	NextSyncSeq(ctx context.Context, owner string) (int64, error)

	// Sync jobs
	CreateSyncJob(ctx context.Context, job *SyncJob) error
	UpdateSyncJob(ctx context.Context, job *SyncJob) error
	GetSyncJob(ctx context.Context, id string) (*SyncJob, error)

	// PruneSyncJobs deletes terminal jobs updated before the given timestamp
	// and returns the number removed.
	PruneSyncJobs(ctx context.Context, before uint64) (int64, error)

	// Close releases any resources held by the store
	Close() error
}
