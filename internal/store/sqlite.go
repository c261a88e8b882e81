// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides agent/skill/sync-job persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS agents (
			owner         TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			description   TEXT NOT NULL,
			purpose       TEXT NOT NULL,
			skills_json   TEXT NOT NULL,
			registered_at INTEGER NOT NULL,
			reputation    INTEGER NOT NULL DEFAULT 0,
			applied_seq   INTEGER NOT NULL DEFAULT 0,
			sync_counter  INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS agent_skills (
			skill TEXT NOT NULL,
			owner TEXT NOT NULL REFERENCES agents(owner),

			PRIMARY KEY (skill, owner)
		);

		CREATE INDEX IF NOT EXISTS idx_agent_skills_skill ON agent_skills(skill);

		CREATE TABLE IF NOT EXISTS task_results (
			owner     TEXT NOT NULL REFERENCES agents(owner),
			pos       INTEGER NOT NULL,
			task_id   TEXT NOT NULL,
			success   INTEGER NOT NULL,
			timestamp INTEGER NOT NULL,
			details   TEXT NOT NULL,

			PRIMARY KEY (owner, pos)
		);

		CREATE TABLE IF NOT EXISTS reputation_history (
			owner      TEXT NOT NULL REFERENCES agents(owner),
			pos        INTEGER NOT NULL,
			timestamp  INTEGER NOT NULL,
			reputation INTEGER NOT NULL,

			PRIMARY KEY (owner, pos)
		);

		CREATE TABLE IF NOT EXISTS sync_jobs (
			job_id     TEXT PRIMARY KEY,
			owner      TEXT NOT NULL,
			seq        INTEGER NOT NULL,
			state      TEXT NOT NULL,
			error      TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,

			CHECK (state IN ('pending', 'fetching', 'applying', 'done', 'failed', 'stale'))
		);

		CREATE INDEX IF NOT EXISTS idx_sync_jobs_owner ON sync_jobs(owner);
		CREATE INDEX IF NOT EXISTS idx_sync_jobs_updated ON sync_jobs(updated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// CreateAgent inserts the agent record, its skill-index rows, and the initial
// reputation snapshot in a single transaction. Returns ErrAlreadyRegistered
// if the owner already has a record; in that case nothing is written.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *Agent) error {
	skillsJSON, err := json.Marshal(agent.Metadata.Skills)
	if err != nil {
		return fmt.Errorf("encoding skills: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO agents (owner, name, description, purpose, skills_json, registered_at, reputation)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		agent.Owner,
		agent.Metadata.Name,
		agent.Metadata.Description,
		agent.Metadata.Purpose,
		string(skillsJSON),
		int64(agent.RegisteredAt),
		int64(agent.Reputation.Reputation),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrAlreadyRegistered
		}
		return fmt.Errorf("inserting agent: %w", err)
	}

	// Duplicate declared skills collapse to one index row
	for _, skill := range agent.Metadata.Skills {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO agent_skills (skill, owner) VALUES (?, ?)
		`, skill, agent.Owner); err != nil {
			return fmt.Errorf("indexing skill %q: %w", skill, err)
		}
	}

	if err := insertHistory(ctx, tx, agent.Owner, &agent.Reputation); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Debug("created agent", "owner", agent.Owner, "skills", len(agent.Metadata.Skills))
	return nil
}

// insertHistory writes the task and reputation history rows of a snapshot.
func insertHistory(ctx context.Context, tx *sql.Tx, owner string, snap *Snapshot) error {
	for i, tr := range snap.TaskHistory {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_results (owner, pos, task_id, success, timestamp, details)
			VALUES (?, ?, ?, ?, ?, ?)
		`, owner, i, tr.TaskID, tr.Success, int64(tr.Timestamp), tr.Details); err != nil {
			return fmt.Errorf("inserting task result: %w", err)
		}
	}
	for i, rp := range snap.ReputationHistory {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reputation_history (owner, pos, timestamp, reputation)
			VALUES (?, ?, ?, ?)
		`, owner, i, int64(rp.Timestamp), int64(rp.Reputation)); err != nil {
			return fmt.Errorf("inserting reputation point: %w", err)
		}
	}
	return nil
}

// GetAgent retrieves the full agent record including the reputation snapshot.
// Returns ErrAgentNotFound if the agent doesn't exist.
func (s *SQLiteStore) GetAgent(ctx context.Context, owner string) (*Agent, error) {
	var agent Agent
	var skillsJSON string
	var registeredAt, reputation int64

	err := s.db.QueryRowContext(ctx, `
		SELECT owner, name, description, purpose, skills_json, registered_at, reputation
		FROM agents
		WHERE owner = ?
	`, owner).Scan(
		&agent.Owner,
		&agent.Metadata.Name,
		&agent.Metadata.Description,
		&agent.Metadata.Purpose,
		&skillsJSON,
		&registeredAt,
		&reputation,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}

	if err := json.Unmarshal([]byte(skillsJSON), &agent.Metadata.Skills); err != nil {
		return nil, fmt.Errorf("decoding skills: %w", err)
	}
	agent.RegisteredAt = uint64(registeredAt)
	agent.Reputation.Reputation = uint64(reputation)

	agent.Reputation.TaskHistory, err = s.taskHistoryRange(ctx, owner, 0, -1)
	if err != nil {
		return nil, err
	}
	agent.Reputation.ReputationHistory, err = s.ReputationHistory(ctx, owner)
	if err != nil {
		return nil, err
	}

	return &agent, nil
}

// ApplyReputation replaces the agent's reputation snapshot in a single
// transaction. Snapshots carrying a sequence older than the last applied one
// are rejected with ErrStaleSnapshot before any write.
func (s *SQLiteStore) ApplyReputation(ctx context.Context, owner string, snap *Snapshot, seq int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var appliedSeq int64
	err = tx.QueryRowContext(ctx, `SELECT applied_seq FROM agents WHERE owner = ?`, owner).Scan(&appliedSeq)
	if err == sql.ErrNoRows {
		return ErrAgentNotFound
	}
	if err != nil {
		return fmt.Errorf("querying agent: %w", err)
	}

	if seq != DirectPush && seq < appliedSeq {
		return ErrStaleSnapshot
	}
	newSeq := appliedSeq
	if seq > appliedSeq {
		newSeq = seq
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_results WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("clearing task history: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM reputation_history WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("clearing reputation history: %w", err)
	}
	if err := insertHistory(ctx, tx, owner, snap); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE agents SET reputation = ?, applied_seq = ? WHERE owner = ?
	`, int64(snap.Reputation), newSeq, owner); err != nil {
		return fmt.Errorf("updating reputation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Debug("applied reputation snapshot",
		"owner", owner, "reputation", snap.Reputation, "seq", seq)
	return nil
}

// AgentsBySkill returns the identities holding a skill in index insertion
// order. Unknown skills yield an empty slice.
func (s *SQLiteStore) AgentsBySkill(ctx context.Context, skill string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner FROM agent_skills WHERE skill = ? ORDER BY rowid
	`, skill)
	if err != nil {
		return nil, fmt.Errorf("querying skill index: %w", err)
	}
	defer rows.Close()

	owners := []string{}
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("scanning skill row: %w", err)
		}
		owners = append(owners, owner)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating skill rows: %w", err)
	}
	return owners, nil
}

// CountAgents returns the total number of registered agents.
func (s *SQLiteStore) CountAgents(ctx context.Context) (uint64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting agents: %w", err)
	}
	return uint64(count), nil
}

// AgentSkills returns the declared skills of an agent in declaration order.
// Returns ErrAgentNotFound if the agent doesn't exist.
func (s *SQLiteStore) AgentSkills(ctx context.Context, owner string) ([]string, error) {
	var skillsJSON string
	err := s.db.QueryRowContext(ctx, `SELECT skills_json FROM agents WHERE owner = ?`, owner).Scan(&skillsJSON)
	if err == sql.ErrNoRows {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent skills: %w", err)
	}

	var skills []string
	if err := json.Unmarshal([]byte(skillsJSON), &skills); err != nil {
		return nil, fmt.Errorf("decoding skills: %w", err)
	}
	return skills, nil
}

// TaskHistory returns a chronological page of the agent's task history.
// A zero limit falls back to TaskHistoryDefaultLimit; limits above
// TaskHistoryMaxLimit are capped. Unknown owners and out-of-range offsets
// yield an empty slice.
func (s *SQLiteStore) TaskHistory(ctx context.Context, owner string, offset, limit uint64) ([]TaskResult, error) {
	if limit == 0 {
		limit = TaskHistoryDefaultLimit
	}
	if limit > TaskHistoryMaxLimit {
		limit = TaskHistoryMaxLimit
	}
	return s.taskHistoryRange(ctx, owner, int64(offset), int64(limit))
}

// taskHistoryRange reads task results ordered by position. A negative limit
// means no limit.
func (s *SQLiteStore) taskHistoryRange(ctx context.Context, owner string, offset, limit int64) ([]TaskResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, success, timestamp, details
		FROM task_results
		WHERE owner = ?
		ORDER BY pos
		LIMIT ? OFFSET ?
	`, owner, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying task history: %w", err)
	}
	defer rows.Close()

	results := []TaskResult{}
	for rows.Next() {
		var tr TaskResult
		var ts int64
		if err := rows.Scan(&tr.TaskID, &tr.Success, &ts, &tr.Details); err != nil {
			return nil, fmt.Errorf("scanning task result: %w", err)
		}
		tr.Timestamp = uint64(ts)
		results = append(results, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating task results: %w", err)
	}
	return results, nil
}

// ReputationHistory returns the agent's full reputation history in
// chronological order. Unknown owners yield an empty slice.
func (s *SQLiteStore) ReputationHistory(ctx context.Context, owner string) ([]ReputationPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, reputation
		FROM reputation_history
		WHERE owner = ?
		ORDER BY pos
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("querying reputation history: %w", err)
	}
	defer rows.Close()

	points := []ReputationPoint{}
	for rows.Next() {
		var ts, rep int64
		if err := rows.Scan(&ts, &rep); err != nil {
			return nil, fmt.Errorf("scanning reputation point: %w", err)
		}
		points = append(points, ReputationPoint{Timestamp: uint64(ts), Reputation: uint64(rep)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reputation points: %w", err)
	}
	return points, nil
}

// NextSyncSeq allocates the next sync sequence for the agent. Sequences start
// at 1 and increase monotonically per owner.
func (s *SQLiteStore) NextSyncSeq(ctx context.Context, owner string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE agents SET sync_counter = sync_counter + 1 WHERE owner = ?
	`, owner)
	if err != nil {
		return 0, fmt.Errorf("incrementing sync counter: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return 0, ErrAgentNotFound
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT sync_counter FROM agents WHERE owner = ?`, owner).Scan(&seq); err != nil {
		return 0, fmt.Errorf("reading sync counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return seq, nil
}

// CreateSyncJob inserts a new sync job.
func (s *SQLiteStore) CreateSyncJob(ctx context.Context, job *SyncJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_jobs (job_id, owner, seq, state, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.Owner, job.Seq, job.State, job.Error, int64(job.CreatedAt), int64(job.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting sync job: %w", err)
	}
	return nil
}

// UpdateSyncJob updates a sync job's state, error, and updated_at.
// Returns ErrJobNotFound if the job doesn't exist.
func (s *SQLiteStore) UpdateSyncJob(ctx context.Context, job *SyncJob) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs SET state = ?, error = ?, updated_at = ? WHERE job_id = ?
	`, job.State, job.Error, int64(job.UpdatedAt), job.ID)
	if err != nil {
		return fmt.Errorf("updating sync job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// GetSyncJob retrieves a sync job by ID.
// Returns ErrJobNotFound if the job doesn't exist.
func (s *SQLiteStore) GetSyncJob(ctx context.Context, id string) (*SyncJob, error) {
	var job SyncJob
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, `
		SELECT job_id, owner, seq, state, error, created_at, updated_at
		FROM sync_jobs
		WHERE job_id = ?
	`, id).Scan(&job.ID, &job.Owner, &job.Seq, &job.State, &job.Error, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying sync job: %w", err)
	}

	job.CreatedAt = uint64(createdAt)
	job.UpdatedAt = uint64(updatedAt)
	return &job, nil
}

// PruneSyncJobs deletes terminal jobs last updated before the given timestamp.
func (s *SQLiteStore) PruneSyncJobs(ctx context.Context, before uint64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_jobs
		WHERE updated_at < ? AND state IN ('done', 'failed', 'stale')
	`, int64(before))
	if err != nil {
		return 0, fmt.Errorf("pruning sync jobs: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	if removed > 0 {
		s.logger.Debug("pruned sync jobs", "removed", removed)
	}
	return removed, nil
}
