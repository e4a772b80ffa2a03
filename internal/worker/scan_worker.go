// -----------------------------------------------------------------------
// Scan Worker - Orchestrator specialization for duplicate-detection jobs
// -----------------------------------------------------------------------

package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/git"
	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
	"github.com/ternarybob/geminus/internal/orchestrator"
	"github.com/ternarybob/geminus/internal/reports"
)

// Options wires a scan worker.
type Options struct {
	Scanner  interfaces.CachedScanner // Required
	Events   interfaces.EventService  // Required
	Store    interfaces.JobStorage    // Optional; nil disables persistence
	Branches interfaces.BranchManager // Optional; nil disables the git workflow
	Reports  *reports.Coordinator     // Optional; nil disables report generation
	Logger   arbor.ILogger

	Orchestrator common.OrchestratorConfig
	Git          common.GitConfig
}

// Metrics aggregates scan outcomes across the worker's lifetime.
type Metrics struct {
	TotalScans            int `json:"totalScans"`
	CacheHits             int `json:"cacheHits"`
	CacheMisses           int `json:"cacheMisses"`
	HighImpactFindings    int `json:"highImpactFindings"`
	TotalDuplicateGroups  int `json:"totalDuplicateGroups"`
	CrossRepositoryGroups int `json:"crossRepositoryGroups"`
}

// ScanWorker is the job server specialized for duplicate-detection scans. It
// embeds the generic orchestrator and supplies the scan handler, the git
// workflow hooks, and scan-level metrics on top of it.
type ScanWorker struct {
	*orchestrator.Server

	scanner  interfaces.CachedScanner
	workflow interfaces.WorkflowManager
	reports  *reports.Coordinator
	logger   arbor.ILogger

	mu      sync.Mutex
	metrics Metrics
}

// NewScanWorker builds the scan job server. When a branch manager is given,
// scan jobs that request it run inside the git workflow with commit and PR
// content generated from the job.
func NewScanWorker(opts Options) (*ScanWorker, error) {
	if opts.Scanner == nil {
		return nil, fmt.Errorf("worker: scanner is required")
	}
	if opts.Logger == nil {
		opts.Logger = common.GetLogger()
	}

	w := &ScanWorker{
		scanner: opts.Scanner,
		reports: opts.Reports,
		logger:  opts.Logger,
	}

	if opts.Branches != nil {
		w.workflow = git.NewWorkflow(opts.Branches, opts.Git, git.Hooks{
			CommitMessage: w.commitMessageHook,
			PRContext:     w.prContextHook,
		}, opts.Logger)
	}

	srv, err := orchestrator.New(orchestrator.Options{
		PipelineID:    opts.Orchestrator.PipelineID,
		JobType:       "scan",
		MaxConcurrent: opts.Orchestrator.MaxConcurrent,
		RetryAttempts: opts.Orchestrator.RetryAttempts,
		RetryDelay:    opts.Orchestrator.RetryDelayDuration(),
		StopTimeout:   opts.Orchestrator.StopTimeoutDuration(),
		Handler:       w,
		Store:         opts.Store,
		Events:        opts.Events,
		Logger:        opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	w.Server = srv

	return w, nil
}

// Handle runs one scan job: resolve the repository, scan (cached or fresh),
// and record the outcome. Jobs whose data carries useGitWorkflow=true run the
// scan inside a job branch so detector-driven rewrites become a PR;
// generateReport=true additionally renders report artifacts for the result.
func (w *ScanWorker) Handle(ctx context.Context, job *models.Job) (map[string]interface{}, error) {
	repoPath := job.GetDataString("repositoryPath")
	if repoPath == "" {
		return nil, &models.JobError{
			Message: "job data is missing repositoryPath",
			Code:    "validation",
		}
	}

	opts := scanOptionsFromJob(job)

	var result models.ScanResult
	body := func(ctx context.Context) error {
		r, err := w.scanner.Scan(ctx, repoPath, opts)
		if err != nil {
			return err
		}
		result = r
		return nil
	}

	if w.workflow != nil && job.GetDataBool("useGitWorkflow") {
		if _, err := w.workflow.Run(ctx, job, body); err != nil {
			return nil, err
		}
	} else {
		if err := body(ctx); err != nil {
			return nil, err
		}
	}

	if w.reports != nil && job.GetDataBool("generateReport") {
		artifacts, err := w.reports.Generate(ctx, result, reports.Options{})
		if err != nil {
			return nil, fmt.Errorf("scan succeeded but report generation failed: %w", err)
		}
		result["report_artifacts"] = artifacts
	}

	w.recordScan(result)
	return result, nil
}

// Metrics returns a snapshot of the worker's scan metrics.
func (w *ScanWorker) Metrics() Metrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

// GenerateCommitMessage describes a scan job's automated commit.
func (w *ScanWorker) GenerateCommitMessage(job *models.Job) interfaces.CommitMessage {
	changed := 0
	if job.Git != nil {
		changed = len(job.Git.ChangedFiles)
	}
	return interfaces.CommitMessage{
		Title: fmt.Sprintf("%s: automated scan %s", job.JobType, job.ID),
		Body: fmt.Sprintf("Job type: %s\nJob ID: %s\nFiles changed: %d",
			job.JobType, job.ID, changed),
	}
}

// GeneratePRContext describes the pull request opened for a scan job.
func (w *ScanWorker) GeneratePRContext(job *models.Job) interfaces.PRContext {
	var branch string
	var files []string
	if job.Git != nil {
		branch = job.Git.BranchName
		files = job.Git.ChangedFiles
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Automated duplicate-detection changes from %s job `%s`.\n\n", job.JobType, job.ID)
	b.WriteString("Changed files:\n")
	for _, f := range files {
		fmt.Fprintf(&b, "- %s\n", f)
	}

	return interfaces.PRContext{
		BranchName: branch,
		Title:      fmt.Sprintf("%s: automated scan %s", job.JobType, job.ID),
		Body:       b.String(),
		Labels:     []string{"automated", "duplicate-detection"},
	}
}

// commitMessageHook adapts the commit generator to the workflow hook shape.
// The workflow populates job.Git.ChangedFiles before invoking hooks, so the
// generator sees the final file list.
func (w *ScanWorker) commitMessageHook(job *models.Job, changedFiles []string) interfaces.CommitContext {
	msg := w.GenerateCommitMessage(job)
	return interfaces.CommitContext{
		Message:      msg.Title,
		Description:  msg.Body,
		JobID:        job.ID,
		FilesChanged: len(changedFiles),
	}
}

func (w *ScanWorker) prContextHook(job *models.Job, branch string, changedFiles []string) interfaces.PRContext {
	return w.GeneratePRContext(job)
}

// recordScan folds one scan outcome into the worker metrics.
func (w *ScanWorker) recordScan(result models.ScanResult) {
	if result == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.metrics.TotalScans++
	if result.FromCache() {
		w.metrics.CacheHits++
	} else {
		w.metrics.CacheMisses++
	}
	w.metrics.HighImpactFindings += result.HighImpactCount()

	if result.ScanType() == models.ScanTypeInterProject {
		w.metrics.CrossRepositoryGroups += result.TotalGroups()
	} else {
		w.metrics.TotalDuplicateGroups += result.TotalGroups()
	}
}

// scanOptionsFromJob lifts the request options out of the job payload.
func scanOptionsFromJob(job *models.Job) interfaces.ScanOptions {
	opts := interfaces.ScanOptions{
		ForceRefresh: job.GetDataBool("forceRefresh"),
		IncludeTests: job.GetDataBool("includeTests"),
		ScanType:     job.GetDataString("scanType"),
	}
	if depth, ok := job.GetDataInt("maxDepth"); ok && depth >= 0 {
		opts.MaxDepth = depth
	}
	if job.Data != nil {
		if v, ok := job.Data["cacheEnabled"].(bool); ok {
			opts.CacheEnabled = &v
		}
	}
	return opts
}

var (
	_ interfaces.JobHandler      = (*ScanWorker)(nil)
	_ interfaces.CommitMessenger = (*ScanWorker)(nil)
	_ interfaces.PRContexter     = (*ScanWorker)(nil)
)
