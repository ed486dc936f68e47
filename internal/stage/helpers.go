package stage

import (
	"seebeck/internal/run"
	"seebeck/internal/services"
)

// DecodeParams parses a run's stored acquisition parameters. On failure it
// returns a services.ErrValidation suitable for stage Execute methods.
func DecodeParams(item *run.Run) (run.Params, error) {
	params, err := run.DecodeParams(item.ParamsJSON)
	if err != nil {
		return run.Params{}, services.Wrap(
			services.ErrValidation, "stage", "decode run params",
			"Run parameters missing or invalid; recreate the run", err)
	}
	return params, nil
}
