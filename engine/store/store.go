// Package store persists named topology snapshots ("saves").
package store

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/WessleyAI/wessley-schematic/engine/circuit"
)

var (
	// ErrNotFound is returned for an unknown save id.
	ErrNotFound = errors.New("store: save not found")
	// ErrNoName is returned when a save name is empty after sanitizing.
	ErrNoName = errors.New("store: name is required")
)

// SaveInfo is the listing entry for one save.
type SaveInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Record is a stored save. Timestamps are epoch milliseconds.
type Record struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Snapshot  circuit.Snapshot `json:"snapshot"`
	CreatedAt int64            `json:"createdAt"`
	UpdatedAt int64            `json:"updatedAt"`
}

// Info returns the listing entry of r.
func (r Record) Info() SaveInfo {
	return SaveInfo{ID: r.ID, Name: r.Name, UpdatedAt: r.UpdatedAt}
}

// Store lists, loads, writes and removes saves.
//
// Put writes snap under name. A non-empty id updates that save; otherwise an
// existing save with the same name is replaced, else a new one is created.
// Updates keep the original creation time. List is newest first.
type Store interface {
	List(ctx context.Context) ([]SaveInfo, error)
	Get(ctx context.Context, id string) (circuit.Snapshot, error)
	Put(ctx context.Context, name string, snap circuit.Snapshot, id string) (SaveInfo, error)
	Delete(ctx context.Context, id string) error
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9 _-]`)

// SafeName strips every character outside letters, digits, space,
// underscore and dash, then trims surrounding space.
func SafeName(name string) string {
	return strings.TrimSpace(unsafeName.ReplaceAllString(name, ""))
}

// upsert builds the record Put writes, given the existing save if any.
func upsert(existing *Record, id, name string, snap circuit.Snapshot, now int64, newID func() string) Record {
	rec := Record{ID: id, Name: name, Snapshot: snap.Clone(), CreatedAt: now, UpdatedAt: now}
	if existing != nil {
		rec.ID = existing.ID
		if existing.CreatedAt != 0 {
			rec.CreatedAt = existing.CreatedAt
		}
	}
	if rec.ID == "" {
		rec.ID = newID()
	}
	return rec
}
