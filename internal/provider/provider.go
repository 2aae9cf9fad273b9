// Package provider defines the resource provider collaborator: the
// engine asks it for the live content snapshot of a resource when
// computing or re-validating identities. The engine never fetches
// content on its own.
package provider

import (
	"context"
	"sync"

	"github.com/contentmirror/contentmirror/internal/cval"
)

// Provider supplies the live snapshot for a resource. The second
// return is false when the resource is unknown; an error means the
// resource could not be reached at all.
type Provider interface {
	Fetch(ctx context.Context, rid string) (cval.Value, bool, error)
}

// Func adapts a plain function into a Provider.
type Func func(ctx context.Context, rid string) (cval.Value, bool, error)

func (f Func) Fetch(ctx context.Context, rid string) (cval.Value, bool, error) {
	return f(ctx, rid)
}

// Static serves snapshots from an in-memory map. It backs the demo
// server and tests.
type Static struct {
	mu        sync.RWMutex
	resources map[string]cval.Value
}

func NewStatic() *Static {
	return &Static{resources: make(map[string]cval.Value)}
}

func (s *Static) Fetch(_ context.Context, rid string) (cval.Value, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.resources[rid]
	if !ok {
		return cval.Value{}, false, nil
	}
	return v, true, nil
}

// Put installs or replaces a resource snapshot.
func (s *Static) Put(rid string, content cval.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[rid] = content
}

// Remove drops a resource. Fetch reports it unknown afterwards.
func (s *Static) Remove(rid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.resources, rid)
}

// RIDs returns the known resource IDs, in no particular order.
func (s *Static) RIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.resources))
	for rid := range s.resources {
		out = append(out, rid)
	}
	return out
}
