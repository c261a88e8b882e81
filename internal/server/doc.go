// Package server exposes the registry over HTTP JSON. All /v1 routes sit
// behind JWT bearer auth; the caller identity is the token subject. The apply
// endpoint additionally honors scoped capability tokens minted by the sync
// orchestrator, which is how hop 2 of a sync chain re-enters the process.
package server
