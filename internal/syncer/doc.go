// Package syncer orchestrates two-hop reputation synchronization: hop 1
// fetches the authoritative snapshot from the reputation service, hop 2
// applies it back through the registry's own HTTP surface with a scoped
// capability token. Every chain carries a monotonic per-agent sequence so a
// slow chain can never clobber a newer snapshot. Chains are tracked as
// persisted jobs that callers poll for the outcome.
package syncer
