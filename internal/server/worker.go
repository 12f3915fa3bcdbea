package server

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/user/rsalab/internal/benchmark"
)

type WorkerPool struct {
	workers    int
	jobQueue   chan *BenchmarkJob
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	jobStore   *JobStore
	gen        benchmark.KeyGenerator
	activeJobs map[string]context.CancelFunc
	stopped    bool
	mu         sync.Mutex
	log        *zap.Logger
}

func NewWorkerPool(numWorkers int, jobStore *JobStore, gen benchmark.KeyGenerator, log *zap.Logger) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workers:    numWorkers,
		jobQueue:   make(chan *BenchmarkJob, numWorkers*2),
		ctx:        ctx,
		cancel:     cancel,
		jobStore:   jobStore,
		gen:        gen,
		activeJobs: make(map[string]context.CancelFunc),
		log:        log,
	}
}

func (wp *WorkerPool) Start() {
	wp.log.Info("starting worker pool", zap.Int("workers", wp.workers))

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop cancels running jobs and waits for the workers to exit.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	wp.cancel()
	close(wp.jobQueue)
	wp.mu.Unlock()

	wp.wg.Wait()
	wp.log.Info("worker pool stopped")
}

func (wp *WorkerPool) Submit(job *BenchmarkJob) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.stopped {
		return fmt.Errorf("worker pool is shutting down")
	}
	select {
	case wp.jobQueue <- job:
		return nil
	default:
		return fmt.Errorf("job queue is full")
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		if wp.ctx.Err() != nil {
			wp.jobStore.CompleteJob(job.ID, nil, wp.ctx.Err())
			close(job.Progress)
			continue
		}
		wp.log.Debug("processing job", zap.Int("worker", id), zap.String("job_id", job.ID))
		wp.processJob(job)
	}
}

func (wp *WorkerPool) TerminateJob(jobID string) {
	wp.mu.Lock()
	if cancel, exists := wp.activeJobs[jobID]; exists {
		cancel()
		delete(wp.activeJobs, jobID)
	}
	wp.mu.Unlock()
}

func (wp *WorkerPool) processJob(job *BenchmarkJob) {
	defer close(job.Progress)

	jobCtx, jobCancel := context.WithCancel(wp.ctx)

	wp.mu.Lock()
	wp.activeJobs[job.ID] = jobCancel
	wp.mu.Unlock()

	defer func() {
		wp.mu.Lock()
		delete(wp.activeJobs, job.ID)
		wp.mu.Unlock()
		jobCancel()
	}()

	// terminated while still queued
	if !wp.jobStore.MarkRunning(job.ID) {
		wp.jobStore.CompleteJob(job.ID, nil, nil)
		return
	}

	select {
	case job.Progress <- benchmark.ProgressUpdate{}:
	default:
	}

	runner := benchmark.NewRunner(job.Config, wp.gen)
	runner.SetProgressChannel(job.Progress)

	results, err := runner.Run(jobCtx)
	wp.jobStore.CompleteJob(job.ID, results, err)

	if err != nil {
		wp.log.Warn("job failed", zap.String("job_id", job.ID), zap.Error(err))
	} else {
		wp.log.Info("job completed", zap.String("job_id", job.ID), zap.Int("results", len(results)))
	}
}
