// Package services holds cross-cutting helpers shared by the workflow stages:
// sentinel errors with stage-aware wrapping so failures can be classified as
// retryable or review-worthy, and context annotations (run ID, stage name,
// request ID) that the logging package turns into structured fields.
package services
