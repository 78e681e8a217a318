package kinematics

import "errors"

// Sentinel errors returned by IK and DIK failure paths. Callers branch on
// these instead of using exceptions for control flow.
var (
	ErrOutOfReach        = errors.New("kinematics: target out of reach")
	ErrJointLimitExceeded = errors.New("kinematics: joint limit violation")
	ErrIKInconsistent    = errors.New("kinematics: ik solution inconsistent with fk")
	ErrNoSolution        = errors.New("kinematics: dik did not converge")
)
