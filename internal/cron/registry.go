package cron

import (
	"context"
	"fmt"
	"strings"
)

// Job is one maintenance task run on every cycle of the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds maintenance jobs in registration order.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

func NewRegistry(jobs ...Job) (*Registry, error) {
	registry := &Registry{names: map[string]struct{}{}}
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Register rejects unnamed jobs and duplicate names so metrics labels stay unique.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return fmt.Errorf("maintenance job name required")
	}
	if _, exists := r.names[name]; exists {
		return fmt.Errorf("maintenance job %q already registered", name)
	}
	r.names[name] = struct{}{}
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}
