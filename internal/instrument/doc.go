// Package instrument abstracts the thermoelectric test bench behind the Rig
// interface and provides the deterministic simulator the daemon uses when no
// hardware is attached.
package instrument
