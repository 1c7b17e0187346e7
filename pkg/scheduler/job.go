package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobHandle identifies one durable scheduled job.
type JobHandle = uuid.UUID

// Job is what a handler receives when its row comes due.
type Job struct {
	ID           JobHandle
	Name         string
	Reference    string
	Payload      json.RawMessage
	Attempt      int
	ScheduledFor time.Time
	Recurring    bool
}

// Decode unmarshals the payload into dest.
func (j Job) Decode(dest any) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("job %s has no payload", j.Name)
	}
	if err := json.Unmarshal(j.Payload, dest); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Name, err)
	}
	return nil
}

// Handler executes one job. Handlers must tolerate being invoked more than once
// for the same job.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// Registry maps job names to handlers.
type Registry struct {
	mtx      sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(name string, handler Handler) error {
	if name == "" {
		return fmt.Errorf("job name required")
	}
	if handler == nil {
		return fmt.Errorf("handler required for %s", name)
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("handler already registered for %s", name)
	}
	r.handlers[name] = handler
	return nil
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names lists registered job names in sorted order.
func (r *Registry) Names() []string {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
