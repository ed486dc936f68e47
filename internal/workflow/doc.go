// Package workflow coordinates run processing: it polls the store for the
// next eligible run, drives it through the registered stage handlers, keeps
// heartbeats fresh while a stage executes, and reclaims runs whose daemon
// died mid-stage.
package workflow
