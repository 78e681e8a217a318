package program

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store implementations when an id has no
// matching program.
var ErrNotFound = errors.New("program: not found")

// Store is the persistence collaborator's contract: create, replace,
// list, delete, and fetch-by-id against durable storage. The motion
// core itself never imports an implementation of this interface — only
// the operator boundary and the engine's caller do, keeping
// internal/program's execution semantics independent of how programs
// are stored.
type Store interface {
	Create(ctx context.Context, p Program) error
	Replace(ctx context.Context, p Program) error
	Get(ctx context.Context, id string) (Program, error)
	List(ctx context.Context) ([]Program, error)
	Delete(ctx context.Context, id string) error
}
