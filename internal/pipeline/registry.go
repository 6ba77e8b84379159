package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/job"
)

// Registry tracks live and recently finished jobs so observers can attach a
// progress stream or fetch a snapshot. Process-memory only; finished runs
// are evicted after the retention window.
type Registry struct {
	mu        sync.Mutex
	jobs      map[string]*job.Job
	retention time.Duration
}

func NewRegistry(retention time.Duration) *Registry {
	return &Registry{jobs: map[string]*job.Job{}, retention: retention}
}

// Add registers a job. Caller-supplied IDs colliding with a live run are
// rejected rather than silently replaced.
func (r *Registry) Add(j *job.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[j.ID()]; exists {
		return fmt.Errorf("job %q already exists", j.ID())
	}
	r.jobs[j.ID()] = j
	return nil
}

// Get returns a tracked job.
func (r *Registry) Get(id string) (*job.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j, ok
}

// Finish schedules eviction of a terminal job after the retention window.
// Zero retention evicts immediately.
func (r *Registry) Finish(id string) {
	if r.retention <= 0 {
		r.evict(id)
		return
	}
	time.AfterFunc(r.retention, func() { r.evict(id) })
}

func (r *Registry) evict(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
}

// Len reports the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}
