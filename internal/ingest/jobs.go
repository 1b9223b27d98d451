package ingest

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status of a background ingestion job.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is the observable state of one background ingestion.
type Job struct {
	ID              uuid.UUID `json:"jobId"`
	Filename        string    `json:"filename"`
	Status          Status    `json:"status"`
	ChunksCreated   int       `json:"chunksCreated,omitempty"`
	TotalCharacters int       `json:"totalCharacters,omitempty"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Tracker keeps in-memory status for background ingestions. State does not
// survive a restart; a restarted process reports unknown for older job IDs.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]Job
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[uuid.UUID]Job)}
}

// Create registers a new processing job and returns it.
func (t *Tracker) Create(filename string) Job {
	job := Job{
		ID:        uuid.New(),
		Filename:  filename,
		Status:    StatusProcessing,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	t.mu.Lock()
	t.jobs[job.ID] = job
	t.mu.Unlock()
	return job
}

// Complete marks a job as finished with the pipeline's result.
func (t *Tracker) Complete(id uuid.UUID, result Result) {
	t.update(id, func(j *Job) {
		j.Status = StatusCompleted
		j.ChunksCreated = result.ChunksCreated
		j.TotalCharacters = result.TotalCharacters
	})
}

// Fail marks a job as failed with the given reason.
func (t *Tracker) Fail(id uuid.UUID, err error) {
	t.update(id, func(j *Job) {
		j.Status = StatusFailed
		j.Error = err.Error()
	})
}

// Get returns a job's current state.
func (t *Tracker) Get(id uuid.UUID) (Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	return job, ok
}

func (t *Tracker) update(id uuid.UUID, fn func(*Job)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return
	}
	fn(&job)
	job.UpdatedAt = time.Now()
	t.jobs[id] = job
}
