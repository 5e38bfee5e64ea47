// Package session holds the in-memory snapshot of the demand collection
// and coordinates optimistic mutations against the remote persistence
// collaborator: apply locally first, persist, roll back on failure.
package session

import (
	"context"
	"sync"

	"demandflow/internal/domain"
)

// Snapshot is a consistent read-only view of the world. Derived
// computations (SLA, projection, capacity) only ever see snapshots.
type Snapshot struct {
	Demands       []domain.Demand
	People        []domain.Person
	Coordinations []domain.Coordination
	Areas         []domain.Area
	Categories    []domain.Category
	SLAs          []domain.SLAConfig
}

// Coordinator owns the shared mutable demand collection. It is the only
// component permitted to write to it; every mutation either commits or
// restores exactly the snapshot taken at its own invocation time.
type Coordinator struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Replace installs a freshly loaded snapshot.
func (c *Coordinator) Replace(s Snapshot) {
	c.mu.Lock()
	c.snap = s
	c.mu.Unlock()
}

// Snapshot returns a view safe to read while mutations continue. Demands
// are deep-copied; reference entities are immutable between Replaces.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := c.snap
	out.Demands = domain.CloneDemands(c.snap.Demands)
	return out
}

// Demands returns a deep copy of the current demand collection.
func (c *Coordinator) Demands() []domain.Demand {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.CloneDemands(c.snap.Demands)
}

// Mutate runs one optimistic mutation:
//
//	Idle -> Applying(local) -> Persisting(remote) -> Committed | RolledBack
//
// transform receives a deep copy of the collection and returns its
// replacement; a transform error rejects the call before anything is
// applied. The transformed collection is published before persist is
// invoked, so readers observe the change while the remote call is in
// flight. If persist fails the pre-mutation collection is restored
// verbatim and the error is returned.
func (c *Coordinator) Mutate(ctx context.Context, transform func([]domain.Demand) ([]domain.Demand, error), persist func(context.Context) error) error {
	c.mu.Lock()
	prev := c.snap.Demands
	next, err := transform(domain.CloneDemands(prev))
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.snap.Demands = next
	c.mu.Unlock()

	if persist == nil {
		return nil
	}
	if err := persist(ctx); err != nil {
		c.mu.Lock()
		c.snap.Demands = prev
		c.mu.Unlock()
		return err
	}
	return nil
}
