// Package logging wraps log/slog with the handlers and helpers the daemon and
// CLI share: a compact console handler, a JSON handler for log files, typed
// attribute constructors, standardized field keys, and context-derived fields
// (run ID, stage, correlation ID).
package logging
