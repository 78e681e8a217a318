package motion

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sixdof/pendant/internal/broadcast"
	"github.com/sixdof/pendant/internal/config"
	"github.com/sixdof/pendant/internal/kinematics"
	"github.com/sixdof/pendant/internal/motorlink"
	"github.com/sixdof/pendant/internal/posestate"
)

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.SimulationMode = true
	cfg.UpdateInterval = 5 * time.Millisecond
	return cfg
}

func newTestController(t *testing.T) (*Controller, *broadcast.Bus) {
	t.Helper()
	cfg := testConfig()
	state := posestate.New(kinematics.JointVector{PrismaticExtension: cfg.Dimensions.Link2Min + 50}, cfg.Dimensions)
	link := motorlink.New(nil, cfg.Serial.CommandDelay, true, logrus.New(), nil)
	bus := broadcast.New(16, logrus.New())
	log := logrus.New()
	log.SetOutput(nopWriter{})
	ctrl := New(cfg, state, link, bus, log, nil)
	t.Cleanup(ctrl.Close)
	return ctrl, bus
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestHandleJogStartIsIdempotent(t *testing.T) {
	ctrl, _ := newTestController(t)

	if err := ctrl.HandleJogStart(context.Background(), posestate.JogJoint, "base_rotation", 1, 50); err != nil {
		t.Fatalf("first jog start: %v", err)
	}
	if !ctrl.jogLoopRunning() {
		t.Fatal("expected jog loop running after first start")
	}
	if err := ctrl.HandleJogStart(context.Background(), posestate.JogJoint, "shoulder_rotation", -1, 20); err != nil {
		t.Fatalf("second jog start: %v", err)
	}

	snap := ctrl.state.Snapshot()
	if snap.Jog.Joint != kinematics.ShoulderRotation || snap.Jog.Direction != -1 {
		t.Fatalf("expected second start's parameters to take effect, got %+v", snap.Jog)
	}
}

func TestHandleJogStartRejectsBadVelocity(t *testing.T) {
	ctrl, _ := newTestController(t)
	if err := ctrl.HandleJogStart(context.Background(), posestate.JogJoint, "base_rotation", 1, 0); err == nil {
		t.Fatal("expected error for velocity_pct below range")
	}
	if err := ctrl.HandleJogStart(context.Background(), posestate.JogJoint, "base_rotation", 1, 101); err == nil {
		t.Fatal("expected error for velocity_pct above range")
	}
}

func TestHandleJogStartRejectsUnknownTarget(t *testing.T) {
	ctrl, _ := newTestController(t)
	if err := ctrl.HandleJogStart(context.Background(), posestate.JogJoint, "not_a_joint", 1, 50); err == nil {
		t.Fatal("expected error for unknown joint name")
	}
}

func TestJogLoopClampsAtJointLimit(t *testing.T) {
	ctrl, _ := newTestController(t)

	ctrl.state.Do(func(st *posestate.State) {
		st.Joints.ShoulderRotation = 89
	})

	if err := ctrl.HandleJogStart(context.Background(), posestate.JogJoint, "shoulder_rotation", 1, 100); err != nil {
		t.Fatalf("jog start: %v", err)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		snap := ctrl.state.Snapshot()
		if snap.Joints.ShoulderRotation >= 90 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctrl.HandleJogStop()
	time.Sleep(20 * time.Millisecond)

	final := ctrl.state.Snapshot().Joints.ShoulderRotation
	if final > 90 {
		t.Fatalf("shoulder_rotation exceeded its limit: got %v", final)
	}
}

func TestJogStopHaltsWithinOneUpdateInterval(t *testing.T) {
	ctrl, _ := newTestController(t)

	if err := ctrl.HandleJogStart(context.Background(), posestate.JogJoint, "base_rotation", 1, 50); err != nil {
		t.Fatalf("jog start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	ctrl.HandleJogStop()

	before := ctrl.state.Snapshot().Joints.BaseRotation
	time.Sleep(3 * ctrl.cfg.UpdateInterval)
	after := ctrl.state.Snapshot().Joints.BaseRotation

	if before != after {
		t.Fatalf("joint continued moving after jog_stop: before=%v after=%v", before, after)
	}
}

func TestOppositeDirectionJogsRoughlyCancel(t *testing.T) {
	ctrl, _ := newTestController(t)

	start := ctrl.state.Snapshot().Joints.BaseRotation

	if err := ctrl.HandleJogStart(context.Background(), posestate.JogJoint, "base_rotation", 1, 50); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	ctrl.HandleJogStop()
	time.Sleep(10 * time.Millisecond)

	if err := ctrl.HandleJogStart(context.Background(), posestate.JogJoint, "base_rotation", -1, 50); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	ctrl.HandleJogStop()
	time.Sleep(10 * time.Millisecond)

	// Net displacement need not be exactly zero (asymmetric tick timing),
	// but the joint must return to within 5 degrees of where it started,
	// not drift monotonically.
	end := ctrl.state.Snapshot().Joints.BaseRotation
	if end < start-5 || end > start+5 {
		t.Fatalf("expected roughly symmetric displacement, start=%v end=%v", start, end)
	}
}

func TestHandleMoveJRejectsOutOfLimitJoint(t *testing.T) {
	ctrl, _ := newTestController(t)
	target := kinematics.JointVector{ShoulderRotation: 200}
	if err := ctrl.HandleMoveJ(context.Background(), target, 50); err == nil {
		t.Fatal("expected joint-limit violation error")
	}
	snap := ctrl.state.Snapshot()
	if snap.Joints.ShoulderRotation == 200 {
		t.Fatal("state must not change on a rejected moveJ")
	}
}

func TestHandleMoveJAppliesAndBroadcasts(t *testing.T) {
	ctrl, bus := newTestController(t)
	ch := bus.Register("test")
	defer bus.Unregister("test")

	target := kinematics.JointVector{PrismaticExtension: 50}
	if err := ctrl.HandleMoveJ(context.Background(), target, 50); err != nil {
		t.Fatalf("moveJ: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.Type != broadcast.TypePositionUpdate {
			t.Fatalf("expected position_update, got %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for position_update broadcast")
	}

	snap := ctrl.state.Snapshot()
	want := kinematics.FK(target, ctrl.cfg.Dimensions)
	if snap.Pose != want {
		t.Fatalf("FK-consistency invariant violated: pose=%+v want=%+v", snap.Pose, want)
	}
}

func TestHandleMoveLOutOfReachLeavesStateUnchanged(t *testing.T) {
	ctrl, _ := newTestController(t)
	before := ctrl.state.Snapshot()

	far := kinematics.EndEffectorPose{X: 5000, Y: 0, Z: 100}
	mask := [6]bool{true, true, true, false, false, false}
	if err := ctrl.HandleMoveL(context.Background(), far, mask, 50); err == nil {
		t.Fatal("expected out-of-reach error")
	}

	after := ctrl.state.Snapshot()
	if before.Joints != after.Joints {
		t.Fatal("state must not change on a failed moveL")
	}
}

func TestHandleMoveLReachableMatchesFK(t *testing.T) {
	ctrl, _ := newTestController(t)
	target := kinematics.EndEffectorPose{X: 560, Y: 0, Z: 100}
	mask := [6]bool{true, true, true, false, false, false}
	if err := ctrl.HandleMoveL(context.Background(), target, mask, 50); err != nil {
		t.Fatalf("moveL: %v", err)
	}
	snap := ctrl.state.Snapshot()
	got := kinematics.FK(snap.Joints, ctrl.cfg.Dimensions)
	if diffAbs(got.X, snap.Pose.X) > 1e-6 || diffAbs(got.Y, snap.Pose.Y) > 1e-6 || diffAbs(got.Z, snap.Pose.Z) > 1e-6 {
		t.Fatalf("pose not FK-consistent: got=%+v stored=%+v", got, snap.Pose)
	}
}

func TestHandleEmergencyStopClearsJogAndBroadcasts(t *testing.T) {
	ctrl, bus := newTestController(t)
	ch := bus.Register("estop")
	defer bus.Unregister("estop")

	if err := ctrl.HandleJogStart(context.Background(), posestate.JogJoint, "base_rotation", 1, 50); err != nil {
		t.Fatal(err)
	}

	ctrl.HandleEmergencyStop()

	snap := ctrl.state.Snapshot()
	if snap.Jog.Active {
		t.Fatal("jog must be inactive after emergency stop")
	}

	select {
	case ev := <-ch:
		if ev.Type != broadcast.TypeEmergencyStop {
			t.Fatalf("expected emergency_stop, got %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for emergency_stop broadcast")
	}
}

func diffAbs(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
