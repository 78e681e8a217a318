// Package posestate holds the single authoritative record of the arm's
// current joint positions, end-effector pose, and jog-loop state, and
// the exclusive section every mutating path must go through.
package posestate

import (
	"sync"
	"time"

	"github.com/sixdof/pendant/internal/kinematics"
)

// JogMode selects which axis family a jog operates on.
type JogMode int

const (
	JogNone JogMode = iota
	JogJoint
	JogCartesian
)

func (m JogMode) String() string {
	switch m {
	case JogJoint:
		return "joint"
	case JogCartesian:
		return "cartesian"
	default:
		return "none"
	}
}

// JogState is the live parameters of an in-progress (or stopped) jog.
type JogState struct {
	Active         bool
	Mode           JogMode
	Joint          kinematics.Joint // valid when Mode == JogJoint
	Axis           kinematics.Axis  // valid when Mode == JogCartesian
	Direction      int              // -1, 0, +1
	VelocityPct    float64          // [1, 100]
	TargetVelocity float64          // signed, units/sec
	LastUpdateTime time.Time
}

// State is the full pose snapshot: joints, derived end-effector pose, and
// jog state. Safe to copy by value once read out of the Serializer.
type State struct {
	Joints kinematics.JointVector
	Pose   kinematics.EndEffectorPose
	Jog    JogState
}

// Serializer owns the single authoritative State and guarantees that at
// most one of {a jog-loop tick, a moveJ/moveL handler, a home, an
// increment handler, an emergency stop} mutates it at a time, mirroring
// the teacher's sync.RWMutex-guarded controller fields.
type Serializer struct {
	mu    sync.RWMutex
	state State
}

// New creates a Serializer seeded at the given joints, with its
// end-effector pose derived by FK so the FK-consistency invariant holds
// from construction.
func New(joints kinematics.JointVector, dim kinematics.Dimensions) *Serializer {
	return &Serializer{
		state: State{
			Joints: joints,
			Pose:   kinematics.FK(joints, dim),
			Jog:    JogState{Mode: JogNone},
		},
	}
}

// Snapshot returns a consistent copy of the current state.
func (s *Serializer) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Do runs fn with exclusive access to the state, serializing it against
// every other mutator. fn receives a pointer into the live state and may
// modify it freely; the lock is held for fn's entire duration so fn must
// not block on anything that itself needs the lock.
func (s *Serializer) Do(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}
