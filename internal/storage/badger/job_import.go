package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
)

// BulkImportJobs additively imports exported job records. Existing ids are
// skipped, never overwritten; a bad record is collected as an error and the
// batch continues. Records may spell fields snake_case or camelCase, and the
// data/result/error/git payloads may arrive as objects or stringified JSON.
func (s *JobStorage) BulkImportJobs(ctx context.Context, records []map[string]interface{}) interfaces.BulkImportResult {
	result := interfaces.BulkImportResult{Errors: []string{}}

	for i, rec := range records {
		job, err := jobFromRecord(rec)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", i, err))
			continue
		}

		if err := s.db.Store().Insert(job.ID, job); err != nil {
			if err == badgerhold.ErrKeyExists {
				result.Skipped++
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("record %d (%s): %v", i, job.ID, err))
			continue
		}
		result.Imported++
	}

	if len(records) > 0 {
		s.logger.Info().
			Int("imported", result.Imported).
			Int("skipped", result.Skipped).
			Int("errors", len(result.Errors)).
			Msg("Bulk job import finished")
	}
	return result
}

// jobFromRecord normalizes one exported record into the canonical job shape.
func jobFromRecord(rec map[string]interface{}) (*models.Job, error) {
	id := stringField(rec, "id")
	if id == "" {
		return nil, fmt.Errorf("missing id")
	}

	rawStatus := stringField(rec, "status")
	if rawStatus == "" {
		return nil, fmt.Errorf("missing status")
	}
	status := models.JobStatus(rawStatus)
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid status %q", rawStatus)
	}

	pipelineID := stringField(rec, "pipelineId", "pipeline_id")
	if pipelineID == "" {
		pipelineID = "unknown"
	}
	jobType := stringField(rec, "jobType", "job_type")
	if jobType == "" {
		jobType = "job"
	}

	data, err := mapField(rec, "data")
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = make(map[string]interface{})
	}
	resultMap, err := mapField(rec, "result")
	if err != nil {
		return nil, err
	}

	job := &models.Job{
		ID:         id,
		PipelineID: pipelineID,
		JobType:    jobType,
		Status:     status,
		Data:       data,
		Result:     resultMap,
	}

	createdAt, err := timeField(rec, "createdAt", "created_at")
	if err != nil {
		return nil, err
	}
	if createdAt != nil {
		job.CreatedAt = *createdAt
	} else {
		job.CreatedAt = time.Now().UTC()
	}
	if job.StartedAt, err = timeField(rec, "startedAt", "started_at"); err != nil {
		return nil, err
	}
	if job.CompletedAt, err = timeField(rec, "completedAt", "completed_at"); err != nil {
		return nil, err
	}
	if job.PausedAt, err = timeField(rec, "pausedAt", "paused_at"); err != nil {
		return nil, err
	}
	if job.ResumedAt, err = timeField(rec, "resumedAt", "resumed_at"); err != nil {
		return nil, err
	}

	errMap, err := mapField(rec, "error")
	if err != nil {
		return nil, err
	}
	if errMap != nil {
		var jobErr models.JobError
		if err := remarshal(errMap, &jobErr); err != nil {
			return nil, fmt.Errorf("error: %w", err)
		}
		job.Error = &jobErr
	}

	gitMap, err := mapField(rec, "git")
	if err != nil {
		return nil, err
	}
	if gitMap != nil {
		var git models.GitMetadata
		if err := remarshal(gitMap, &git); err != nil {
			return nil, fmt.Errorf("git: %w", err)
		}
		job.Git = &git
	}

	return job, nil
}

// stringField returns the first non-empty string among the given keys.
func stringField(rec map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := rec[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// mapField returns the first present key decoded as a map. Stringified JSON
// is accepted for compatibility with exported dumps.
func mapField(rec map[string]interface{}, keys ...string) (map[string]interface{}, error) {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case map[string]interface{}:
			return t, nil
		case string:
			if t == "" {
				continue
			}
			var m map[string]interface{}
			if err := json.Unmarshal([]byte(t), &m); err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			return m, nil
		default:
			return nil, fmt.Errorf("%s: unsupported type %T", k, v)
		}
	}
	return nil, nil
}

// timeField parses an ISO-8601 timestamp from the first present key.
func timeField(rec map[string]interface{}, keys ...string) (*time.Time, error) {
	for _, k := range keys {
		v, ok := rec[k].(string)
		if !ok || v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		t = t.UTC()
		return &t, nil
	}
	return nil, nil
}

// remarshal converts a decoded map into a typed struct via JSON round-trip.
func remarshal(src map[string]interface{}, dst interface{}) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
