// Package api defines the transport DTOs shared by the daemon's HTTP
// endpoints and the CLI, plus read-only services that produce them from the
// run store.
package api
