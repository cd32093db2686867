package cron

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Job is one unit of background work run by the worker each cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a plain function into a Job.
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

func (f JobFunc) Name() string                  { return f.JobName }
func (f JobFunc) Run(ctx context.Context) error { return f.Fn(ctx) }

// Registry runs jobs in registration order. Disabled names stay registered so
// a typo in the disable list is caught, but they never run.
type Registry struct {
	jobs     []Job
	disabled map[string]bool
}

// NewRegistry registers jobs in order and skips nils. A duplicate name is a
// wiring bug and panics.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{disabled: map[string]bool{}}
	for _, job := range jobs {
		if err := r.Register(job); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	name := job.Name()
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("cron job name is required")
	}
	if r.has(name) {
		return fmt.Errorf("cron job %q already registered", name)
	}
	r.jobs = append(r.jobs, job)
	return nil
}

// Disable turns off the named jobs. Unknown names are an error.
func (r *Registry) Disable(names ...string) error {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !r.has(name) {
			return fmt.Errorf("cannot disable unknown cron job %q", name)
		}
		r.disabled[name] = true
	}
	return nil
}

// Jobs returns the enabled jobs as a fresh slice.
func (r *Registry) Jobs() []Job {
	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if !r.disabled[job.Name()] {
			out = append(out, job)
		}
	}
	return out
}

// Names lists every registered job, enabled or not.
func (r *Registry) Names() []string {
	names := make([]string, len(r.jobs))
	for i, job := range r.jobs {
		names[i] = job.Name()
	}
	return names
}

func (r *Registry) has(name string) bool {
	return slices.ContainsFunc(r.jobs, func(j Job) bool { return j.Name() == name })
}
