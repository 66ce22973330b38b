package conversion

import (
	"sync"
	"time"

	"github.com/ekisa-team/modelweb/internal/config"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConverting Status = "converting"
	StatusConverted  Status = "converted"
	StatusFailed     Status = "failed"
)

// Job is one configured conversion and the outcome of its last run.
type Job struct {
	ID     string
	Config config.ConversionConfig

	mu         sync.RWMutex
	status     Status
	sourcePath string
	err        error
	runID      string
	files      []string
	finishedAt time.Time
}

// NewJob creates a pending job.
func NewJob(id string, cfg config.ConversionConfig) *Job {
	return &Job{ID: id, Config: cfg, status: StatusPending}
}

// Snapshot is a point-in-time copy of a job's state.
type Snapshot struct {
	ID         string
	Status     Status
	SourcePath string
	Output     string
	RunID      string
	Files      []string
	Err        error
	FinishedAt time.Time
}

// Snapshot returns the job state.
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return Snapshot{
		ID:         j.ID,
		Status:     j.status,
		SourcePath: j.sourcePath,
		Output:     j.Config.Output,
		RunID:      j.runID,
		Files:      append([]string(nil), j.files...),
		Err:        j.err,
		FinishedAt: j.finishedAt,
	}
}

// Status returns the current status.
func (j *Job) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return j.status
}

func (j *Job) start(sourcePath string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.status = StatusConverting
	j.sourcePath = sourcePath
	j.err = nil
}

func (j *Job) succeed(runID string, files []string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.status = StatusConverted
	j.runID = runID
	j.files = files
	j.err = nil
	j.finishedAt = time.Now()
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.status = StatusFailed
	j.err = err
	j.finishedAt = time.Now()
}
