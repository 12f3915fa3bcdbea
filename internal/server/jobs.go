package server

import (
	"sort"
	"sync"
	"time"

	"github.com/user/rsalab/internal/benchmark"
)

const (
	StatusQueued     = "queued"
	StatusRunning    = "running"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusTerminated = "terminated"
)

// BenchmarkJob holds timings only, never key material.
type BenchmarkJob struct {
	ID          string                        `json:"id"`
	Config      benchmark.Config              `json:"config"`
	Status      string                        `json:"status"`
	StartedAt   time.Time                     `json:"started_at"`
	UpdatedAt   time.Time                     `json:"updated_at"`
	CompletedAt *time.Time                    `json:"completed_at,omitempty"`
	Results     []benchmark.Result            `json:"results,omitempty"`
	Error       string                        `json:"error,omitempty"`
	Progress    chan benchmark.ProgressUpdate `json:"-"`
}

type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*BenchmarkJob
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*BenchmarkJob)}
}

func (js *JobStore) Add(job *BenchmarkJob) {
	js.mu.Lock()
	defer js.mu.Unlock()
	js.jobs[job.ID] = job
}

func (js *JobStore) Remove(jobID string) {
	js.mu.Lock()
	defer js.mu.Unlock()
	delete(js.jobs, jobID)
}

// Get returns a copy of the job so callers can read it without the lock.
func (js *JobStore) Get(jobID string) (BenchmarkJob, bool) {
	js.mu.RLock()
	defer js.mu.RUnlock()
	job, exists := js.jobs[jobID]
	if !exists {
		return BenchmarkJob{}, false
	}
	return *job, true
}

// progress returns the live progress channel of a job.
func (js *JobStore) progress(jobID string) (chan benchmark.ProgressUpdate, bool) {
	js.mu.RLock()
	defer js.mu.RUnlock()
	job, exists := js.jobs[jobID]
	if !exists {
		return nil, false
	}
	return job.Progress, true
}

// List returns copies of all jobs, oldest first.
func (js *JobStore) List() []BenchmarkJob {
	js.mu.RLock()
	jobs := make([]BenchmarkJob, 0, len(js.jobs))
	for _, job := range js.jobs {
		jobs = append(jobs, *job)
	}
	js.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.Before(jobs[j].StartedAt)
	})
	return jobs
}

// MarkRunning moves a queued job to running and reports whether it did.
func (js *JobStore) MarkRunning(jobID string) bool {
	js.mu.Lock()
	defer js.mu.Unlock()

	job, exists := js.jobs[jobID]
	if !exists || job.Status != StatusQueued {
		return false
	}
	job.Status = StatusRunning
	job.UpdatedAt = time.Now()
	return true
}

// Terminate marks an unfinished job as terminated. It reports false for
// unknown or already finished jobs.
func (js *JobStore) Terminate(jobID string) (found, changed bool) {
	js.mu.Lock()
	defer js.mu.Unlock()

	job, exists := js.jobs[jobID]
	if !exists {
		return false, false
	}
	if job.Status != StatusQueued && job.Status != StatusRunning {
		return true, false
	}
	job.Status = StatusTerminated
	job.UpdatedAt = time.Now()
	return true, true
}

// CompleteJob records the outcome. A terminated job keeps its status and
// partial results.
func (js *JobStore) CompleteJob(jobID string, results []benchmark.Result, err error) {
	js.mu.Lock()
	defer js.mu.Unlock()

	job, exists := js.jobs[jobID]
	if !exists {
		return
	}

	completedAt := time.Now()
	job.CompletedAt = &completedAt
	job.UpdatedAt = completedAt
	job.Results = results

	switch {
	case job.Status == StatusTerminated:
	case err != nil:
		job.Status = StatusFailed
		job.Error = err.Error()
	default:
		job.Status = StatusCompleted
	}
}
