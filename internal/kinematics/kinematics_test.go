package kinematics

import (
	"errors"
	"math"
	"testing"
)

func testDimensions() Dimensions {
	return Dimensions{
		BaseHeight: 100,
		Link1:      150,
		Link2Min:   0,
		Link2Max:   200,
		Link3:      150,
		Link4:      100,
		EELength:   100,
	}
}

func testLimits() JointLimits {
	return JointLimits{
		{Min: -180, Max: 180},
		{Min: -90, Max: 90},
		{Min: 0, Max: 200},
		{Min: -150, Max: 150},
		{Min: -150, Max: 150},
		{Min: -180, Max: 180},
	}
}

func homeJoints() JointVector {
	return JointVector{PrismaticExtension: 50}
}

func TestFKAtHome(t *testing.T) {
	pose := FK(homeJoints(), testDimensions())

	const want = 150 + 50 + 150 + 100 + 100
	if math.Abs(pose.X-want) > 1e-6 {
		t.Fatalf("x = %v, want ~%v", pose.X, want)
	}
	if math.Abs(pose.Y) > 1e-6 {
		t.Fatalf("y = %v, want ~0", pose.Y)
	}
	if math.Abs(pose.Z-100) > 1e-6 {
		t.Fatalf("z = %v, want ~100", pose.Z)
	}
	if math.Abs(pose.Roll) > 1e-6 || math.Abs(pose.Pitch) > 1e-6 || math.Abs(pose.Yaw) > 1e-6 {
		t.Fatalf("orientation = (%v,%v,%v), want (0,0,0)", pose.Roll, pose.Pitch, pose.Yaw)
	}
}

func TestFKConsistencyAfterIK(t *testing.T) {
	dim := testDimensions()
	limits := testLimits()
	target := EndEffectorPose{X: 600, Y: 0, Z: 100}

	joints, err := IK(target, dim, limits)
	if err != nil {
		t.Fatalf("IK: %v", err)
	}

	fk := FK(joints, dim)
	dist := math.Sqrt(sq(fk.X-target.X) + sq(fk.Y-target.Y) + sq(fk.Z-target.Z))
	if dist > IKInconsistentTolerance {
		t.Fatalf("fk-consistency violated: %.4fmm error", dist)
	}
}

func TestIKOutOfReach(t *testing.T) {
	dim := testDimensions()
	limits := testLimits()
	target := EndEffectorPose{X: 2000, Y: 0, Z: 100}

	_, err := IK(target, dim, limits)
	if !errors.Is(err, ErrOutOfReach) {
		t.Fatalf("err = %v, want ErrOutOfReach", err)
	}
}

func TestDIKCartesianJogConvergesAndStaysConsistent(t *testing.T) {
	dim := testDimensions()
	limits := testLimits()
	seed := homeJoints()
	start := FK(seed, dim)

	target := start
	target.Z += 10

	joints, err := DIK(seed, target, dim, limits)
	if err != nil {
		t.Fatalf("DIK: %v", err)
	}

	fk := FK(joints, dim)
	if math.Abs(fk.Z-target.Z) > 1e-3 {
		t.Fatalf("z = %v, want ~%v", fk.Z, target.Z)
	}
	if math.Abs(fk.X-target.X) > 1e-3 || math.Abs(fk.Y-target.Y) > 1e-3 {
		t.Fatalf("x/y drifted: (%v,%v) want (%v,%v)", fk.X, fk.Y, target.X, target.Y)
	}
}

func TestDIKNoSolutionBeyondWorkspace(t *testing.T) {
	dim := testDimensions()
	limits := testLimits()
	seed := homeJoints()

	target := EndEffectorPose{X: 100000, Y: 100000, Z: 100000}
	_, err := DIK(seed, target, dim, limits)
	if !errors.Is(err, ErrNoSolution) {
		t.Fatalf("err = %v, want ErrNoSolution", err)
	}
}

func TestJointLimitsClampIsClampNotReject(t *testing.T) {
	limits := testLimits()
	v := JointVector{ShoulderRotation: 120}
	clamped := limits.Clamp(v)
	if clamped.ShoulderRotation != 90 {
		t.Fatalf("shoulder = %v, want clamped to 90", clamped.ShoulderRotation)
	}
}

func TestJointGetSetRoundTrip(t *testing.T) {
	var v JointVector
	for j := Joint(0); j < jointCount; j++ {
		v.Set(j, float64(j)*10)
	}
	for j := Joint(0); j < jointCount; j++ {
		if got := v.Get(j); got != float64(j)*10 {
			t.Fatalf("joint %s = %v, want %v", j, got, float64(j)*10)
		}
	}
}
