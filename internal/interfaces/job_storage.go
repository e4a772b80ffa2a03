package interfaces

import (
	"context"

	"github.com/ternarybob/geminus/internal/models"
)

// JobQuery filters and paginates durable job listings. Limit and Offset are
// sanitized by the store: limit clamped to [1, MaxJobQueryLimit] with a
// default when unset, offset clamped to >= 0.
type JobQuery struct {
	Status models.JobStatus
	Limit  int
	Offset int
}

const (
	// DefaultJobQueryLimit applies when a query carries no usable limit.
	DefaultJobQueryLimit = 50
	// MaxJobQueryLimit caps a single page.
	MaxJobQueryLimit = 100
)

// BulkImportResult reports the outcome of a bulk import. Errors are collected
// per record; a bad record never aborts the batch.
type BulkImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// JobStorage is the durable job store. Records persist for every job that
// ever reached queued and are upserted, never deleted.
type JobStorage interface {
	// SaveJob upserts a job record by id
	SaveJob(ctx context.Context, job *models.Job) error

	// GetJob returns a stored job, or nil when unknown
	GetJob(ctx context.Context, id string) (*models.Job, error)

	// GetJobs lists jobs for a pipeline with optional status filter and
	// sanitized pagination, newest first
	GetJobs(ctx context.Context, pipelineID string, query JobQuery) ([]*models.Job, error)

	// GetAllJobs returns every stored job, newest first
	GetAllJobs(ctx context.Context) ([]*models.Job, error)

	// CountJobs returns the number of stored records
	CountJobs(ctx context.Context) (int, error)

	// BulkImportJobs additively imports exported records. Existing ids are
	// skipped. Records may use snake_case or camelCase field names.
	BulkImportJobs(ctx context.Context, records []map[string]interface{}) BulkImportResult

	// ListPipelines returns the distinct pipeline ids present in the store
	ListPipelines(ctx context.Context) ([]string, error)
}
