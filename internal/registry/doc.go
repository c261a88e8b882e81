// Package registry implements the core agent registry operations: one-time
// registration with skill indexing, reputation snapshot application gated to
// the reputation service identity, and the read-only query surface.
//
// The service treats the reputation service as the sole authority for
// reputation state: snapshots are stored wholesale, never computed or merged
// locally. Registration fires two best-effort outbound calls (a token balance
// probe and a reputation-record initialize) whose results are logged but
// never gate the registration itself.
package registry
