package motion

import "errors"

// Input-validation failures: handler returns failure, no state change,
// no broadcast, per the "Input validation" row of the error taxonomy.
var (
	ErrUnknownMode      = errors.New("motion: unknown jog mode")
	ErrUnknownTarget    = errors.New("motion: target does not belong to mode's axis/joint set")
	ErrVelocityRange    = errors.New("motion: velocity_pct out of [1,100]")
	ErrMissingJoint     = errors.New("motion: joint_positions missing a required field")
	ErrWorkspaceLimit   = errors.New("motion: target pose outside workspace box")
	ErrNotJogging       = errors.New("motion: no jog in progress")
)
