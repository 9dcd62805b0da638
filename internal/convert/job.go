package convert

import (
	"math"
	"sync/atomic"

	"oh-opus/internal/domain"
)

// Job is one planned source to destination conversion. Paths are fixed at
// discovery; status, progress and error are written only by the goroutine
// that owns the job and may be read concurrently.
type Job struct {
	Source string
	Dest   string
	// Rel is the source path relative to the source root, used in messages.
	Rel string

	status   atomic.Value
	progress atomic.Uint64
	errMsg   atomic.Value
	bitrate  atomic.Int64
}

// JobSnapshot is a point-in-time copy of a job for UIs.
type JobSnapshot struct {
	Source   string           `json:"source"`
	Dest     string           `json:"dest"`
	Rel      string           `json:"rel"`
	Status   domain.JobStatus `json:"status"`
	Progress float64          `json:"progress"`
	Bitrate  int              `json:"bitrate,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func newJob(source, dest, rel string) *Job {
	j := &Job{Source: source, Dest: dest, Rel: rel}
	j.status.Store(domain.JobStatusPending)
	j.errMsg.Store("")
	return j
}

// Status returns the current job status.
func (j *Job) Status() domain.JobStatus {
	return j.status.Load().(domain.JobStatus)
}

// Progress returns the fractional encode progress in [0,1].
func (j *Job) Progress() float64 {
	return math.Float64frombits(j.progress.Load())
}

// Err returns the recorded failure message, if any.
func (j *Job) Err() string {
	return j.errMsg.Load().(string)
}

// Snapshot copies the job for reporting.
func (j *Job) Snapshot() JobSnapshot {
	return JobSnapshot{
		Source:   j.Source,
		Dest:     j.Dest,
		Rel:      j.Rel,
		Status:   j.Status(),
		Progress: j.Progress(),
		Bitrate:  int(j.bitrate.Load()),
		Error:    j.Err(),
	}
}

func (j *Job) setStatus(status domain.JobStatus) {
	j.status.Store(status)
}

func (j *Job) setProgress(value float64) {
	j.progress.Store(math.Float64bits(value))
}

func (j *Job) fail(message string) {
	j.errMsg.Store(message)
	j.setStatus(domain.JobStatusError)
}
