package ingest

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/soilwise/soilwise/internal/log"
)

// ErrQueueFull reports that the ingestion queue cannot accept more work.
var ErrQueueFull = errors.New("ingestion queue full")

type queued struct {
	jobID uuid.UUID
	req   Request
}

// Workers runs ingestions off the request path on a fixed pool of
// goroutines fed by a bounded queue.
type Workers struct {
	pipeline *Pipeline
	tracker  *Tracker
	jobs     chan queued
	count    int
	logger   log.Logger
	wg       sync.WaitGroup
}

// NewWorkers creates a worker pool. count and queueSize must be positive.
func NewWorkers(pipeline *Pipeline, tracker *Tracker, count, queueSize int, logger log.Logger) *Workers {
	if count <= 0 {
		count = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Workers{
		pipeline: pipeline,
		tracker:  tracker,
		jobs:     make(chan queued, queueSize),
		count:    count,
		logger:   logger,
	}
}

// Start launches the pool. Workers exit when ctx is canceled or the queue is
// closed by Stop.
func (w *Workers) Start(ctx context.Context) {
	for i := 0; i < w.count; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}
}

// Stop closes the queue and waits for in-flight ingestions to finish.
func (w *Workers) Stop() {
	close(w.jobs)
	w.wg.Wait()
}

// Enqueue registers a job and queues it for processing. Returns the job so
// the caller can acknowledge immediately with its ID.
func (w *Workers) Enqueue(req Request) (Job, error) {
	job := w.tracker.Create(req.Filename)
	select {
	case w.jobs <- queued{jobID: job.ID, req: req}:
		return job, nil
	default:
		w.tracker.Fail(job.ID, ErrQueueFull)
		return Job{}, ErrQueueFull
	}
}

func (w *Workers) run(ctx context.Context, id int) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-w.jobs:
			if !ok {
				return
			}
			w.process(ctx, id, item)
		}
	}
}

func (w *Workers) process(ctx context.Context, workerID int, item queued) {
	result, err := w.pipeline.Ingest(ctx, item.req)
	if err != nil {
		w.tracker.Fail(item.jobID, err)
		w.logger.Error("ingestion failed",
			"worker", workerID,
			"job_id", item.jobID.String(),
			"filename", item.req.Filename,
			"error", err,
		)
		return
	}
	w.tracker.Complete(item.jobID, result)
	w.logger.Info("ingestion completed",
		"worker", workerID,
		"job_id", item.jobID.String(),
		"filename", item.req.Filename,
		"chunks", result.ChunksCreated,
		"characters", result.TotalCharacters,
	)
}
