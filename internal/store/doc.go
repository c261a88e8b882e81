// Package store provides persistent storage for the agent registry using SQLite.
//
// # Data Models
//
//   - Agent: registered identity with immutable metadata and a reputation snapshot
//   - Snapshot: complete reputation state issued by the reputation service
//   - TaskResult / ReputationPoint: append-ordered history entries mirrored from it
//   - SyncJob: state of one two-hop reputation synchronization chain
//
// The skill index lives in the agent_skills table and is written only inside
// CreateAgent's transaction, so every index row references a live agent that
// declared the skill. Snapshots are applied by wholesale replacement; a sync
// sequence per agent rejects out-of-order applications from concurrent syncs.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
// Common errors:
//
//   - ErrAgentNotFound: requested agent does not exist
//   - ErrAlreadyRegistered: identity already has a record
//   - ErrStaleSnapshot: snapshot older than the last applied sync sequence
//   - ErrJobNotFound: requested sync job does not exist
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests and NewSQLiteStore(":memory:") for
// integration tests with real SQLite.
package store
