package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sixdof/pendant/internal/program"
)

// ProgramStore implements program.Store against the programs table.
type ProgramStore struct {
	db *DB
}

func NewProgramStore(db *DB) *ProgramStore {
	return &ProgramStore{db: db}
}

func (s *ProgramStore) Create(ctx context.Context, p program.Program) error {
	steps, err := json.Marshal(p.Steps)
	if err != nil {
		return fmt.Errorf("postgres: marshal steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO programs (id, name, steps) VALUES ($1, $2, $3)`,
		p.ID, p.Name, steps)
	if err != nil {
		return fmt.Errorf("postgres: create program: %w", err)
	}
	return nil
}

func (s *ProgramStore) Replace(ctx context.Context, p program.Program) error {
	steps, err := json.Marshal(p.Steps)
	if err != nil {
		return fmt.Errorf("postgres: marshal steps: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE programs SET name = $2, steps = $3, updated_at = now() WHERE id = $1`,
		p.ID, p.Name, steps)
	if err != nil {
		return fmt.Errorf("postgres: replace program: %w", err)
	}
	return requireRowsAffected(res, program.ErrNotFound)
}

func (s *ProgramStore) Get(ctx context.Context, id string) (program.Program, error) {
	var p program.Program
	var steps []byte
	row := s.db.QueryRowContext(ctx, `SELECT id, name, steps FROM programs WHERE id = $1`, id)
	if err := row.Scan(&p.ID, &p.Name, &steps); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return program.Program{}, program.ErrNotFound
		}
		return program.Program{}, fmt.Errorf("postgres: get program: %w", err)
	}
	if err := json.Unmarshal(steps, &p.Steps); err != nil {
		return program.Program{}, fmt.Errorf("postgres: unmarshal steps: %w", err)
	}
	return p, nil
}

func (s *ProgramStore) List(ctx context.Context) ([]program.Program, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, steps FROM programs ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list programs: %w", err)
	}
	defer rows.Close()

	var out []program.Program
	for rows.Next() {
		var p program.Program
		var steps []byte
		if err := rows.Scan(&p.ID, &p.Name, &steps); err != nil {
			return nil, fmt.Errorf("postgres: scan program: %w", err)
		}
		if err := json.Unmarshal(steps, &p.Steps); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal steps: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *ProgramStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM programs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete program: %w", err)
	}
	return requireRowsAffected(res, program.ErrNotFound)
}

func requireRowsAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
