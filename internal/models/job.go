// -----------------------------------------------------------------------
// Job - Unit of work tracked by the orchestrator
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal returns true when the status is final and the job will not
// transition again.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// IsValid reports whether s is one of the known lifecycle states.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted,
		JobStatusFailed, JobStatusPaused, JobStatusCancelled:
		return true
	}
	return false
}

// JobError is the structured failure attached to a failed or cancelled job.
type JobError struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

func (e *JobError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// GitMetadata records the git workflow artifacts produced for a job.
// Populated by the workflow manager as each step succeeds.
type GitMetadata struct {
	BranchName     string   `json:"branchName,omitempty"`
	OriginalBranch string   `json:"originalBranch,omitempty"`
	CommitSha      string   `json:"commitSha,omitempty"`
	PrUrl          string   `json:"prUrl,omitempty"`
	ChangedFiles   []string `json:"changedFiles,omitempty"`
}

// Job is the unit of work owned by the orchestrator. The orchestrator is the
// single writer; external readers receive clones.
//
// Lifecycle: queued -> running -> completed|failed, with queued <-> paused
// and cancellation from queued/paused (synchronous) or running (best-effort).
type Job struct {
	// Core identification
	ID         string `json:"id"`
	PipelineID string `json:"pipelineId" badgerhold:"index"`
	JobType    string `json:"jobType"`

	// Lifecycle
	Status      JobStatus  `json:"status" badgerhold:"index"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	PausedAt    *time.Time `json:"pausedAt,omitempty"`
	ResumedAt   *time.Time `json:"resumedAt,omitempty"`

	// Payload (scan parameters for scan jobs; opaque to the orchestrator)
	Data map[string]interface{} `json:"data"`

	// Outcome
	Result map[string]interface{} `json:"result,omitempty"`
	Error  *JobError              `json:"error,omitempty"`

	// Git workflow artifacts
	Git *GitMetadata `json:"git,omitempty"`
}

// NewJob creates a job in the queued state.
func NewJob(id, pipelineID, jobType string, data map[string]interface{}) *Job {
	if jobType == "" {
		jobType = "job"
	}
	if data == nil {
		data = make(map[string]interface{})
	}
	return &Job{
		ID:         id,
		PipelineID: pipelineID,
		JobType:    jobType,
		Status:     JobStatusQueued,
		CreatedAt:  time.Now().UTC(),
		Data:       data,
	}
}

// MarkRunning transitions the job to running and stamps StartedAt once.
func (j *Job) MarkRunning() {
	j.Status = JobStatusRunning
	if j.StartedAt == nil {
		now := time.Now().UTC()
		j.StartedAt = &now
	}
}

// MarkCompleted transitions the job to the completed terminal state.
func (j *Job) MarkCompleted(result map[string]interface{}) {
	j.Status = JobStatusCompleted
	j.Result = result
	now := time.Now().UTC()
	j.CompletedAt = &now
}

// MarkFailed transitions the job to the failed terminal state.
func (j *Job) MarkFailed(jobErr *JobError) {
	j.Status = JobStatusFailed
	j.Error = jobErr
	now := time.Now().UTC()
	j.CompletedAt = &now
}

// MarkCancelled transitions the job to the cancelled terminal state.
func (j *Job) MarkCancelled(message string) {
	j.Status = JobStatusCancelled
	if message == "" {
		message = "cancelled by user"
	}
	j.Error = &JobError{Message: message, Cancelled: true}
	now := time.Now().UTC()
	j.CompletedAt = &now
}

// MarkPaused removes the job from active scheduling.
func (j *Job) MarkPaused() {
	j.Status = JobStatusPaused
	now := time.Now().UTC()
	j.PausedAt = &now
}

// MarkResumed returns a paused job to the queued state.
func (j *Job) MarkResumed() {
	j.Status = JobStatusQueued
	j.PausedAt = nil
	now := time.Now().UTC()
	j.ResumedAt = &now
}

// EnsureGit returns the job's git metadata, allocating it on first use.
func (j *Job) EnsureGit() *GitMetadata {
	if j.Git == nil {
		j.Git = &GitMetadata{}
	}
	return j.Git
}

// GetDataString returns a string field from the job payload.
func (j *Job) GetDataString(key string) string {
	if j.Data == nil {
		return ""
	}
	if v, ok := j.Data[key].(string); ok {
		return v
	}
	return ""
}

// GetDataBool returns a bool field from the job payload.
func (j *Job) GetDataBool(key string) bool {
	if j.Data == nil {
		return false
	}
	if v, ok := j.Data[key].(bool); ok {
		return v
	}
	return false
}

// GetDataInt returns an int field from the job payload.
// JSON numbers decode as float64, so both forms are accepted.
func (j *Job) GetDataInt(key string) (int, bool) {
	if j.Data == nil {
		return 0, false
	}
	switch v := j.Data[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}

// Clone returns a deep copy safe to hand to external readers.
func (j *Job) Clone() *Job {
	clone := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		clone.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		clone.CompletedAt = &t
	}
	if j.PausedAt != nil {
		t := *j.PausedAt
		clone.PausedAt = &t
	}
	if j.ResumedAt != nil {
		t := *j.ResumedAt
		clone.ResumedAt = &t
	}
	if j.Data != nil {
		clone.Data = cloneMap(j.Data)
	}
	if j.Result != nil {
		clone.Result = cloneMap(j.Result)
	}
	if j.Error != nil {
		e := *j.Error
		clone.Error = &e
	}
	if j.Git != nil {
		g := *j.Git
		if j.Git.ChangedFiles != nil {
			g.ChangedFiles = append([]string(nil), j.Git.ChangedFiles...)
		}
		clone.Git = &g
	}
	return &clone
}

// cloneMap deep-copies via JSON round-trip. Payloads are JSON-shaped by
// construction, so fidelity is acceptable and nested aliasing is avoided.
func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		out = make(map[string]interface{}, len(m))
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
