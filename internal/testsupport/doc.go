// Package testsupport provides shared helpers for package tests: temp-dir
// configs with test-friendly timing and store setup.
package testsupport
