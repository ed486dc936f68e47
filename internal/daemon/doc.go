// Package daemon hosts the long-running acquisition service: it enforces
// single-instance execution, owns the instrument and workflow lifecycles,
// exposes the HTTP API, and watches for the configured serial instrument
// appearing or disappearing.
package daemon
