package posestate

import (
	"context"
	"errors"
	"time"

	"github.com/sixdof/pendant/internal/kinematics"
)

// SavedPose is an immutable snapshot of the arm's position, captured at
// an operator's request and given a durable name.
type SavedPose struct {
	ID        string
	Name      string
	Timestamp time.Time
	Joints    kinematics.JointVector
	Pose      kinematics.EndEffectorPose
}

// ErrSavedPoseNotFound is returned by SavedPoseStore implementations
// when an id has no matching saved pose.
var ErrSavedPoseNotFound = errors.New("posestate: saved pose not found")

// SavedPoseStore is the persistence collaborator's contract for saved
// poses: create, list, fetch, delete. Mirrors program.Store's shape;
// kept as a separate interface because saved poses and programs have
// independent lifecycles and stores.
type SavedPoseStore interface {
	Create(ctx context.Context, p SavedPose) error
	Get(ctx context.Context, id string) (SavedPose, error)
	List(ctx context.Context) ([]SavedPose, error)
	Delete(ctx context.Context, id string) error
}

// Capture builds a SavedPose from the serializer's current snapshot.
func Capture(s *Serializer, id, name string, now time.Time) SavedPose {
	snap := s.Snapshot()
	return SavedPose{ID: id, Name: name, Timestamp: now, Joints: snap.Joints, Pose: snap.Pose}
}
