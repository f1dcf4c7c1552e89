package cron

import "context"

// Tally counts the items a job handled, keyed by outcome.
type Tally map[string]int64

// Job is one maintenance step of the cron-worker sweep.
type Job interface {
	Name() string
	Run(ctx context.Context) (Tally, error)
}

// Registry tracks registered cron jobs. Names are unique; a second job with
// an already registered name is ignored.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry preloaded with the provided jobs.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds a job to the registry.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	for _, existing := range r.jobs {
		if existing.Name() == job.Name() {
			return
		}
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}
