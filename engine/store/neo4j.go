package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/wessley-schematic/engine/circuit"
	"github.com/WessleyAI/wessley-schematic/pkg/repo"
)

// SaveLabel is the node label saves are stored under.
const SaveLabel = "Save"

// saveNode is a save as Neo4j properties; the snapshot is JSON text.
type saveNode struct {
	ID        string
	Name      string
	Snapshot  string
	CreatedAt int64
	UpdatedAt int64
}

func (n saveNode) toMap() map[string]any {
	return map[string]any{
		"id":        n.ID,
		"name":      n.Name,
		"snapshot":  n.Snapshot,
		"createdAt": n.CreatedAt,
		"updatedAt": n.UpdatedAt,
	}
}

func saveFromRecord(rec *neo4j.Record) (saveNode, error) {
	props, err := repo.NodeProps(rec)
	if err != nil {
		return saveNode{}, err
	}
	var n saveNode
	n.ID, _ = props["id"].(string)
	n.Name, _ = props["name"].(string)
	n.Snapshot, _ = props["snapshot"].(string)
	n.CreatedAt, _ = props["createdAt"].(int64)
	n.UpdatedAt, _ = props["updatedAt"].(int64)
	if n.ID == "" {
		return saveNode{}, fmt.Errorf("store: %s node without id", SaveLabel)
	}
	return n, nil
}

type saveRepo interface {
	repo.Repository[saveNode, string]
	FindBy(ctx context.Context, key string, value any) (saveNode, error)
}

// Neo4jOptions configures a Neo4j store.
type Neo4jOptions struct {
	Database string
	Now      func() time.Time
	NewID    func() string
}

// Neo4j keeps saves as (:Save) nodes.
type Neo4j struct {
	repo  saveRepo
	now   func() time.Time
	newID func() string
	mu    sync.Mutex // serializes the read-then-merge of Put
}

// NewNeo4j creates a store on driver.
func NewNeo4j(driver neo4j.DriverWithContext, opts Neo4jOptions) *Neo4j {
	var ropts []repo.Neo4jOption[saveNode, string]
	if opts.Database != "" {
		ropts = append(ropts, repo.WithDatabase[saveNode, string](opts.Database))
	}
	r := repo.NewNeo4jRepo[saveNode, string](driver, SaveLabel, saveNode.toMap, saveFromRecord, ropts...)
	return newNeo4j(r, opts)
}

func newNeo4j(r saveRepo, opts Neo4jOptions) *Neo4j {
	s := &Neo4j{repo: r, now: opts.Now, newID: opts.NewID}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

var _ Store = (*Neo4j)(nil)

func (s *Neo4j) List(ctx context.Context) ([]SaveInfo, error) {
	nodes, err := s.repo.List(ctx, repo.ListOpts{OrderBy: "updatedAt", Desc: true, Limit: 1000})
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	out := make([]SaveInfo, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, SaveInfo{ID: n.ID, Name: n.Name, UpdatedAt: n.UpdatedAt})
	}
	sortNewest(out)
	return out, nil
}

func (s *Neo4j) Get(ctx context.Context, id string) (circuit.Snapshot, error) {
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		return circuit.Snapshot{}, mapNotFound(err, id)
	}
	var snap circuit.Snapshot
	if err := json.Unmarshal([]byte(n.Snapshot), &snap); err != nil {
		return circuit.Snapshot{}, fmt.Errorf("store: decode save %s: %w", id, err)
	}
	return snap, nil
}

func (s *Neo4j) Put(ctx context.Context, name string, snap circuit.Snapshot, id string) (SaveInfo, error) {
	name = SafeName(name)
	if name == "" {
		return SaveInfo{}, ErrNoName
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		found saveNode
		err   error
	)
	if id != "" {
		found, err = s.repo.Get(ctx, id)
	} else {
		found, err = s.repo.FindBy(ctx, "name", name)
	}
	var existing *Record
	switch {
	case err == nil:
		existing = &Record{ID: found.ID, CreatedAt: found.CreatedAt}
	case !errors.Is(err, repo.ErrNotFound):
		return SaveInfo{}, fmt.Errorf("store: put %q: %w", name, err)
	}

	rec := upsert(existing, id, name, snap, s.now().UnixMilli(), s.newID)
	data, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return SaveInfo{}, fmt.Errorf("store: encode %q: %w", name, err)
	}
	node := saveNode{ID: rec.ID, Name: rec.Name, Snapshot: string(data), CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt}
	if _, err := s.repo.Put(ctx, node); err != nil {
		return SaveInfo{}, fmt.Errorf("store: put %q: %w", name, err)
	}
	return rec.Info(), nil
}

func (s *Neo4j) Delete(ctx context.Context, id string) error {
	return mapNotFound(s.repo.Delete(ctx, id), id)
}

func mapNotFound(err error, id string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}
