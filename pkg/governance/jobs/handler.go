package jobs

import (
	"context"
	"fmt"
	"sync"

	"maturity-hq/steward/pkg/governance"
)

// Handler executes one job type. The returned map becomes the job result.
type Handler interface {
	Handle(ctx context.Context, job *governance.JobRecord) (map[string]any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *governance.JobRecord) (map[string]any, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job *governance.JobRecord) (map[string]any, error) {
	return f(ctx, job)
}

// Registry maps job types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[governance.JobType]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[governance.JobType]Handler)}
}

// Register associates jobType with h, replacing any previous handler.
func (r *Registry) Register(jobType governance.JobType, h Handler) error {
	if !jobType.Valid() {
		return fmt.Errorf("unknown job type %q", jobType)
	}
	if h == nil {
		return fmt.Errorf("nil handler for job type %q", jobType)
	}
	r.mu.Lock()
	r.handlers[jobType] = h
	r.mu.Unlock()
	return nil
}

// Get returns the handler of jobType.
func (r *Registry) Get(jobType governance.JobType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types returns the registered job types in canonical order.
func (r *Registry) Types() []governance.JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var types []governance.JobType
	for _, t := range governance.AllJobTypes() {
		if _, ok := r.handlers[t]; ok {
			types = append(types, t)
		}
	}
	return types
}
