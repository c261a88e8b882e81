// Package reputation provides HTTP clients for the registry's external
// collaborators: the reputation service (authoritative for snapshots) and the
// token service (balance probes). Both speak plain JSON over HTTP.
package reputation
