// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu         sync.RWMutex
	agents     map[string]*Agent   // keyed by owner
	skillIndex map[string][]string // skill -> owners in insertion order
	appliedSeq map[string]int64    // owner -> last applied sync sequence
	syncSeq    map[string]int64    // owner -> last allocated sync sequence
	jobs       map[string]*SyncJob // keyed by job ID
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		agents:     make(map[string]*Agent),
		skillIndex: make(map[string][]string),
		appliedSeq: make(map[string]int64),
		syncSeq:    make(map[string]int64),
		jobs:       make(map[string]*SyncJob),
	}
}

// CreateAgent stores a new agent and indexes its skills.
func (m *MockStore) CreateAgent(ctx context.Context, agent *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[agent.Owner]; ok {
		return ErrAlreadyRegistered
	}

	a := copyAgent(agent)
	m.agents[a.Owner] = a

	for _, skill := range a.Metadata.Skills {
		if !contains(m.skillIndex[skill], a.Owner) {
			m.skillIndex[skill] = append(m.skillIndex[skill], a.Owner)
		}
	}
	return nil
}

// GetAgent retrieves an agent by owner identity.
func (m *MockStore) GetAgent(ctx context.Context, owner string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[owner]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return copyAgent(a), nil
}

// ApplyReputation replaces the agent's reputation snapshot.
func (m *MockStore) ApplyReputation(ctx context.Context, owner string, snap *Snapshot, seq int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[owner]
	if !ok {
		return ErrAgentNotFound
	}
	if seq != DirectPush && seq < m.appliedSeq[owner] {
		return ErrStaleSnapshot
	}
	if seq > m.appliedSeq[owner] {
		m.appliedSeq[owner] = seq
	}

	a.Reputation = *copySnapshot(snap)
	return nil
}

// AgentsBySkill returns the identities holding a skill.
func (m *MockStore) AgentsBySkill(ctx context.Context, skill string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owners := m.skillIndex[skill]
	result := make([]string, len(owners))
	copy(result, owners)
	return result, nil
}

// CountAgents returns the total number of registered agents.
func (m *MockStore) CountAgents(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.agents)), nil
}

// AgentSkills returns the declared skills of an agent.
func (m *MockStore) AgentSkills(ctx context.Context, owner string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[owner]
	if !ok {
		return nil, ErrAgentNotFound
	}
	skills := make([]string, len(a.Metadata.Skills))
	copy(skills, a.Metadata.Skills)
	return skills, nil
}

// TaskHistory returns a chronological page of the agent's task history.
func (m *MockStore) TaskHistory(ctx context.Context, owner string, offset, limit uint64) ([]TaskResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit == 0 {
		limit = TaskHistoryDefaultLimit
	}
	if limit > TaskHistoryMaxLimit {
		limit = TaskHistoryMaxLimit
	}

	a, ok := m.agents[owner]
	if !ok {
		return []TaskResult{}, nil
	}
	history := a.Reputation.TaskHistory
	if offset >= uint64(len(history)) {
		return []TaskResult{}, nil
	}
	end := offset + limit
	if end > uint64(len(history)) {
		end = uint64(len(history))
	}

	result := make([]TaskResult, end-offset)
	copy(result, history[offset:end])
	return result, nil
}

// ReputationHistory returns the agent's full reputation history.
func (m *MockStore) ReputationHistory(ctx context.Context, owner string) ([]ReputationPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[owner]
	if !ok {
		return []ReputationPoint{}, nil
	}
	result := make([]ReputationPoint, len(a.Reputation.ReputationHistory))
	copy(result, a.Reputation.ReputationHistory)
	return result, nil
}

// NextSyncSeq allocates the next sync sequence for the agent.
func (m *MockStore) NextSyncSeq(ctx context.Context, owner string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[owner]; !ok {
		return 0, ErrAgentNotFound
	}
	m.syncSeq[owner]++
	return m.syncSeq[owner], nil
}

// CreateSyncJob stores a new sync job.
func (m *MockStore) CreateSyncJob(ctx context.Context, job *SyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := *job
	m.jobs[j.ID] = &j
	return nil
}

// UpdateSyncJob updates an existing sync job.
func (m *MockStore) UpdateSyncJob(ctx context.Context, job *SyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	j := *job
	m.jobs[j.ID] = &j
	return nil
}

// GetSyncJob retrieves a sync job by ID.
func (m *MockStore) GetSyncJob(ctx context.Context, id string) (*SyncJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	result := *j
	return &result, nil
}

// PruneSyncJobs deletes terminal jobs last updated before the given timestamp.
func (m *MockStore) PruneSyncJobs(ctx context.Context, before uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, j := range m.jobs {
		terminal := j.State == JobStateDone || j.State == JobStateFailed || j.State == JobStateStale
		if terminal && j.UpdatedAt < before {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// copyAgent deep-copies an agent record to avoid external modification.
func copyAgent(a *Agent) *Agent {
	result := *a
	result.Metadata.Skills = make([]string, len(a.Metadata.Skills))
	copy(result.Metadata.Skills, a.Metadata.Skills)
	result.Reputation = *copySnapshot(&a.Reputation)
	return &result
}

// copySnapshot deep-copies a reputation snapshot.
func copySnapshot(s *Snapshot) *Snapshot {
	result := *s
	result.TaskHistory = make([]TaskResult, len(s.TaskHistory))
	copy(result.TaskHistory, s.TaskHistory)
	result.ReputationHistory = make([]ReputationPoint, len(s.ReputationHistory))
	copy(result.ReputationHistory, s.ReputationHistory)
	return &result
}

// contains reports whether list includes s.
func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
