// Package preflight verifies that the bench environment is ready before the
// daemon starts taking runs: directory access, free disk space for the run
// database and reports, and the configured instrument.
package preflight
