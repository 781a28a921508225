// Package repo defines a generic keyed repository and its Neo4j backend.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no entity has the requested key.
var ErrNotFound = errors.New("repo: not found")

// Repository stores entities of type T keyed by ID. Put inserts or replaces.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Put(ctx context.Context, entity T) (T, error)
	Delete(ctx context.Context, id ID) error
}

// ListOpts controls pagination, ordering and filtering for List.
type ListOpts struct {
	Offset  int
	Limit   int
	OrderBy string // property name; empty keeps store order
	Desc    bool
	Filter  map[string]any // property equality
}
