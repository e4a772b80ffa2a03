package interfaces

import (
	"context"

	"github.com/ternarybob/geminus/internal/models"
)

// JobHandler executes the body of a job. The orchestrator owns the state
// machine; specializations supply handlers as plain values.
//
// The context is cancelled when the job is cancelled while running; handlers
// observe cancellation at their next blocking call. A returned error marks
// the job failed (a *models.JobError is used as-is, anything else is
// wrapped); a nil error marks it completed with the returned result.
type JobHandler interface {
	// Handle runs one job to completion
	Handle(ctx context.Context, job *models.Job) (map[string]interface{}, error)
}

// JobHandlerFunc adapts a function to the JobHandler interface.
type JobHandlerFunc func(ctx context.Context, job *models.Job) (map[string]interface{}, error)

func (f JobHandlerFunc) Handle(ctx context.Context, job *models.Job) (map[string]interface{}, error) {
	return f(ctx, job)
}

// CommitMessage is the title/body pair for an automated commit.
type CommitMessage struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// CommitMessenger is an optional JobHandler extension that supplies the
// commit message for the job's git workflow.
type CommitMessenger interface {
	GenerateCommitMessage(job *models.Job) CommitMessage
}

// PRContexter is an optional JobHandler extension that supplies the pull
// request context for the job's git workflow.
type PRContexter interface {
	GeneratePRContext(job *models.Job) PRContext
}

// OpResult is the structured outcome of a lifecycle operation. Invalid
// transitions and unknown ids yield Success=false with a message; lifecycle
// operations never panic and never return Go errors for those cases.
type OpResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ReportGenerator renders a scan result into report artifacts under a
// directory. The built-in implementation produces markdown and HTML;
// alternative generators are external collaborators behind this interface.
type ReportGenerator interface {
	Generate(ctx context.Context, result models.ScanResult, outputDir string, formats []string) ([]models.ReportArtifact, error)
}
