// Package capability maps the capability references named by task nodes
// to executable handlers. The loop controller never executes anything
// directly; every node action goes through a registry lookup.
package capability

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/codefionn/agentloop/internal/taskgraph"
)

// Handler executes one task node. The returned value becomes the node's
// result payload.
type Handler func(ctx context.Context, node *taskgraph.Node) (interface{}, error)

// UnknownCapabilityError reports a node whose capability reference has no
// registered handler.
type UnknownCapabilityError struct {
	Ref string
}

func (e *UnknownCapabilityError) Error() string {
	return fmt.Sprintf("capability: no handler registered for %q", e.Ref)
}

// Registry is a concurrency-safe map from capability reference to
// handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a capability reference. Re-registering a
// reference is an error; capabilities are wired once at startup.
func (r *Registry) Register(ref string, handler Handler) error {
	if ref == "" {
		return fmt.Errorf("capability: reference must not be empty")
	}
	if handler == nil {
		return fmt.Errorf("capability: handler for %q must not be nil", ref)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[ref]; exists {
		return fmt.Errorf("capability: %q is already registered", ref)
	}
	r.handlers[ref] = handler
	return nil
}

// Has reports whether a capability reference is registered.
func (r *Registry) Has(ref string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[ref]
	return ok
}

// Refs returns the registered capability references in sorted order.
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make([]string, 0, len(r.handlers))
	for ref := range r.handlers {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// Invoke dispatches a node to the handler registered for its capability
// reference.
func (r *Registry) Invoke(ctx context.Context, node *taskgraph.Node) (interface{}, error) {
	r.mu.RLock()
	handler, ok := r.handlers[node.CapabilityRef]
	r.mu.RUnlock()

	if !ok {
		return nil, &UnknownCapabilityError{Ref: node.CapabilityRef}
	}
	return handler(ctx, node)
}

// Validate checks that every node of a graph snapshot references a
// registered capability, so planning errors surface before execution.
func (r *Registry) Validate(snap *taskgraph.Snapshot) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, n := range snap.Nodes {
		if _, ok := r.handlers[n.CapabilityRef]; !ok {
			return &UnknownCapabilityError{Ref: n.CapabilityRef}
		}
	}
	return nil
}
