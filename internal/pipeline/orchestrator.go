package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/casegest/internal/config"
	"github.com/dgallion1/casegest/internal/metrics"
)

var (
	// ErrAlreadyProcessing is returned when a document already has a job in
	// flight.
	ErrAlreadyProcessing = errors.New("document is already being processed")
	ErrQueueFull         = errors.New("job queue is full")
	ErrStopped           = errors.New("pipeline stopped")
)

// Orchestrator manages the document analysis pipeline.
type Orchestrator struct {
	jobs    *JobStore
	queue   chan *Job
	worker  *Worker
	metrics *metrics.Metrics
	log     *slog.Logger
	cfg     config.Config

	mu      sync.Mutex
	stopped bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to launch workers.
func NewOrchestrator(cfg config.Config, w *Worker, m *metrics.Metrics, log *slog.Logger) *Orchestrator {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 1
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	return &Orchestrator{
		jobs:    NewJobStore(cfg.JobTTL),
		queue:   make(chan *Job, cfg.MaxQueueSize),
		worker:  w,
		metrics: m,
		log:     log,
		cfg:     cfg,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					o.metrics.SetQueueDepth(len(o.queue))
					o.worker.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(cleanupInterval(o.cfg.JobTTL))
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline. Queued jobs that no worker picked
// up are marked failed.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()

	for job := range o.queue {
		job.AddError("pipeline stopped")
		job.SetStatus(StatusFailed, "queued")
	}
}

// Submit queues a job for docID. If the document already has a job in flight
// that job is returned together with ErrAlreadyProcessing.
func (o *Orchestrator) Submit(docID string) (*Job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return nil, ErrStopped
	}

	job, err := o.jobs.Reserve(NewJob(docID))
	if err != nil {
		return job, err
	}
	select {
	case o.queue <- job:
		o.metrics.SetQueueDepth(len(o.queue))
		o.log.Info("job queued", "job_id", job.ID, "doc_id", docID)
		return job, nil
	default:
		job.AddError("queue full")
		job.SetStatus(StatusFailed, "queue_full")
		o.metrics.JobFinished(string(StatusFailed))
		return nil, fmt.Errorf("%w (%d)", ErrQueueFull, o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

func cleanupInterval(ttl time.Duration) time.Duration {
	return min(max(ttl/2, time.Second), 5*time.Minute)
}
