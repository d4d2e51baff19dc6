package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/casegest/internal/document"
)

// JobStatus represents the state of an analysis job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusLoading   JobStatus = "loading"
	StatusAnalyzing JobStatus = "analyzing"
	StatusStoring   JobStatus = "storing"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	// StatusPartial means the analysis was stored but the downstream export
	// failed.
	StatusPartial JobStatus = "partial"
)

// Done reports whether the job has stopped running.
func (s JobStatus) Done() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartial:
		return true
	}
	return false
}

// Job tracks the state of a single document analysis.
type Job struct {
	mu sync.Mutex

	ID    string `json:"job_id"`
	DocID string `json:"doc_id"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	errors []string
}

// Progress summarizes what the analysis produced.
type Progress struct {
	RelatedDocuments int      `json:"related_documents"`
	Chunks           int      `json:"chunks"`
	Entities         int      `json:"entities"`
	TimelineEvents   int      `json:"timeline_events"`
	CrossReferences  int      `json:"cross_references"`
	Confidence       float64  `json:"confidence"`
	Errors           []string `json:"errors"`
}

// NewJob returns a queued job for docID.
func NewJob(docID string) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		DocID:     docID,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

// Reserve stores job unless another job for the same document is still
// running, in which case that job is returned with ErrAlreadyProcessing.
func (s *JobStore) Reserve(job *Job) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.jobs {
		if other.DocID == job.DocID && !other.CurrentStatus().Done() {
			return other, ErrAlreadyProcessing
		}
	}
	s.jobs[job.ID] = job
	return job, nil
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes finished jobs not updated within the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Done() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

func (j *Job) CurrentStatus() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetRelated records how many related documents were loaded.
func (j *Job) SetRelated(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.RelatedDocuments = n
	j.UpdatedAt = time.Now()
}

// RecordResult copies the result counts into the job progress.
func (j *Job) RecordResult(res *document.ProcessedDocument) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Chunks = len(res.Chunks)
	j.Progress.Entities = len(res.Entities)
	j.Progress.TimelineEvents = len(res.TimelineEvents)
	j.Progress.CrossReferences = len(res.CrossReferences)
	j.Progress.Confidence = res.Metadata.Confidence
	j.UpdatedAt = time.Now()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string    `json:"job_id"`
	DocID     string    `json:"doc_id"`
	Status    JobStatus `json:"status"`
	Phase     string    `json:"phase"`
	Progress  Progress  `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	p := j.Progress
	p.Errors = append([]string{}, j.errors...)
	return JobSnapshot{
		ID:        j.ID,
		DocID:     j.DocID,
		Status:    j.Status,
		Phase:     j.Phase,
		Progress:  p,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
