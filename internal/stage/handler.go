package stage

import (
	"context"

	"seebeck/internal/run"
)

// Handler describes the contract the workflow manager needs from each stage.
type Handler interface {
	Prepare(context.Context, *run.Run) error
	Execute(context.Context, *run.Run) error
	HealthCheck(context.Context) Health
}
