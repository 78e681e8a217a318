package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sixdof/pendant/internal/kinematics"
	"github.com/sixdof/pendant/internal/posestate"
)

// SavedPoseStore implements posestate.SavedPoseStore against the
// saved_poses table.
type SavedPoseStore struct {
	db *DB
}

func NewSavedPoseStore(db *DB) *SavedPoseStore {
	return &SavedPoseStore{db: db}
}

func (s *SavedPoseStore) Create(ctx context.Context, p posestate.SavedPose) error {
	joints, err := json.Marshal(p.Joints)
	if err != nil {
		return fmt.Errorf("postgres: marshal joints: %w", err)
	}
	pose, err := json.Marshal(p.Pose)
	if err != nil {
		return fmt.Errorf("postgres: marshal pose: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO saved_poses (id, name, joints, pose, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, joints, pose, p.Timestamp)
	if err != nil {
		return fmt.Errorf("postgres: create saved pose: %w", err)
	}
	return nil
}

func (s *SavedPoseStore) Get(ctx context.Context, id string) (posestate.SavedPose, error) {
	var p posestate.SavedPose
	var joints, pose []byte
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, joints, pose, created_at FROM saved_poses WHERE id = $1`, id)
	if err := row.Scan(&p.ID, &p.Name, &joints, &pose, &p.Timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return posestate.SavedPose{}, posestate.ErrSavedPoseNotFound
		}
		return posestate.SavedPose{}, fmt.Errorf("postgres: get saved pose: %w", err)
	}
	if err := unmarshalPose(joints, pose, &p); err != nil {
		return posestate.SavedPose{}, err
	}
	return p, nil
}

func (s *SavedPoseStore) List(ctx context.Context) ([]posestate.SavedPose, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, joints, pose, created_at FROM saved_poses ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list saved poses: %w", err)
	}
	defer rows.Close()

	var out []posestate.SavedPose
	for rows.Next() {
		var p posestate.SavedPose
		var joints, pose []byte
		if err := rows.Scan(&p.ID, &p.Name, &joints, &pose, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan saved pose: %w", err)
		}
		if err := unmarshalPose(joints, pose, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SavedPoseStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saved_poses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete saved pose: %w", err)
	}
	return requireRowsAffected(res, posestate.ErrSavedPoseNotFound)
}

func unmarshalPose(joints, pose []byte, out *posestate.SavedPose) error {
	var j kinematics.JointVector
	if err := json.Unmarshal(joints, &j); err != nil {
		return fmt.Errorf("postgres: unmarshal joints: %w", err)
	}
	var p kinematics.EndEffectorPose
	if err := json.Unmarshal(pose, &p); err != nil {
		return fmt.Errorf("postgres: unmarshal pose: %w", err)
	}
	out.Joints = j
	out.Pose = p
	return nil
}
