package conversion

import (
	"sort"
	"sync"
)

// Registry stores conversion jobs by ID.
type Registry struct {
	jobs map[string]*Job
	mu   sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*Job),
	}
}

// Set adds or replaces a job.
func (r *Registry) Set(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[job.ID] = job
}

// Get returns the job with the given ID.
func (r *Registry) Get(id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// List returns all jobs sorted by ID.
func (r *Registry) List() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })

	return jobs
}

// Delete deletes the job with the given ID.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.jobs, id)
}
