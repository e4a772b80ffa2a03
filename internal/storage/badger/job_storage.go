package badger

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
	"github.com/ternarybob/geminus/internal/validation"
)

// JobStorage persists job snapshots in badgerhold. Every lifecycle
// transition upserts the record by id; records are never deleted.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// SaveJob upserts a job record by id.
func (s *JobStorage) SaveJob(ctx context.Context, job *models.Job) error {
	if job == nil {
		return fmt.Errorf("job is required")
	}
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// GetJob returns a stored job, or nil when unknown.
func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// GetJobs lists jobs for a pipeline, newest first, with optional status
// filter and sanitized pagination.
func (s *JobStorage) GetJobs(ctx context.Context, pipelineID string, query interfaces.JobQuery) ([]*models.Job, error) {
	limit := validation.ClampLimit(query.Limit, interfaces.DefaultJobQueryLimit, interfaces.MaxJobQueryLimit)
	offset := validation.ClampOffset(query.Offset)

	q := badgerhold.Where("PipelineID").Eq(pipelineID)
	if query.Status != "" {
		q = q.And("Status").Eq(query.Status)
	}
	q = q.SortBy("CreatedAt").Reverse().Skip(offset).Limit(limit)

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, q); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// GetAllJobs returns every stored job, newest first.
func (s *JobStorage) GetAllJobs(ctx context.Context) ([]*models.Job, error) {
	var jobs []models.Job
	q := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if err := s.db.Store().Find(&jobs, q); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// CountJobs returns the number of stored records.
func (s *JobStorage) CountJobs(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Job{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(count), nil
}

// ListPipelines returns the distinct pipeline ids present in the store,
// sorted.
func (s *JobStorage) ListPipelines(ctx context.Context) ([]string, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to list pipelines: %w", err)
	}

	seen := make(map[string]bool)
	var pipelines []string
	for i := range jobs {
		id := jobs[i].PipelineID
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		pipelines = append(pipelines, id)
	}
	sort.Strings(pipelines)
	return pipelines, nil
}
