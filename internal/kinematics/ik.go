package kinematics

import (
	"fmt"
	"math"
)

// IKInconsistentTolerance is the maximum Euclidean position error, in mm,
// tolerated between an analytic IK solution and its FK round-trip.
const IKInconsistentTolerance = 10.0

// IK computes the analytic (moveL) joint solution for a target pose.
// Joint 4 (elbow_rotation) is a redundant degree of freedom and is fixed
// to zero. Returns ErrOutOfReach if the required prismatic extension
// falls outside its configured limit, ErrJointLimitExceeded if any
// resulting joint violates its own limit, and ErrIKInconsistent if the
// FK round-trip error exceeds IKInconsistentTolerance.
func IK(target EndEffectorPose, dim Dimensions, limits JointLimits) (JointVector, error) {
	q1 := math.Atan2(target.Y, target.X)

	r := math.Hypot(target.X, target.Y) - dim.EELength
	zPrime := target.Z - dim.BaseHeight

	q2 := math.Atan2(zPrime, r)
	reach := math.Hypot(r, zPrime)

	d3 := reach - dim.Link1 - dim.Link3 - dim.Link4
	if d3 < dim.Link2Min || d3 > dim.Link2Max {
		return JointVector{}, fmt.Errorf("%w: prismatic extension %.3f outside [%.3f, %.3f]", ErrOutOfReach, d3, dim.Link2Min, dim.Link2Max)
	}

	q4 := 0.0
	q5 := degToRad(target.Pitch)
	q6 := degToRad(target.Roll)

	result := JointVector{
		BaseRotation:        radToDeg(q1),
		ShoulderRotation:    radToDeg(q2),
		PrismaticExtension:  d3,
		ElbowRotation:       radToDeg(q4),
		Elbow2Rotation:      radToDeg(q5),
		EndEffectorRotation: radToDeg(q6),
	}

	if j, ok := limits.Validate(result); !ok {
		return JointVector{}, fmt.Errorf("%w: %s", ErrJointLimitExceeded, j)
	}

	fk := FK(result, dim)
	errPos := math.Sqrt(
		sq(fk.X-target.X) + sq(fk.Y-target.Y) + sq(fk.Z-target.Z),
	)
	if errPos > IKInconsistentTolerance {
		return JointVector{}, fmt.Errorf("%w: position error %.3fmm", ErrIKInconsistent, errPos)
	}

	return result, nil
}

func sq(x float64) float64 { return x * x }
