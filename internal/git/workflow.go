// -----------------------------------------------------------------------
// Git Workflow Manager - branch -> work -> commit -> push -> PR -> cleanup
// -----------------------------------------------------------------------

package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
)

// Hooks let a job type supply its own commit message and PR content.
// Unset hooks fall back to generic automated-change text.
type Hooks struct {
	CommitMessage func(job *models.Job, changedFiles []string) interfaces.CommitContext
	PRContext     func(job *models.Job, branch string, changedFiles []string) interfaces.PRContext
}

// Workflow wraps a job body in the git transaction. Once the job branch
// exists, cleanup always runs, on success, failure, and panic alike; a body
// error propagates unchanged so callers see their own failure, not ours.
type Workflow struct {
	branches interfaces.BranchManager
	cfg      common.GitConfig
	hooks    Hooks
	logger   arbor.ILogger
}

// NewWorkflow creates a workflow manager over a branch manager.
func NewWorkflow(branches interfaces.BranchManager, cfg common.GitConfig, hooks Hooks, logger arbor.ILogger) *Workflow {
	if hooks.CommitMessage == nil {
		hooks.CommitMessage = defaultCommitMessage
	}
	if hooks.PRContext == nil {
		hooks.PRContext = defaultPRContext
	}
	return &Workflow{branches: branches, cfg: cfg, hooks: hooks, logger: logger}
}

// Run executes body inside a job branch. The job's repository path comes
// from its data payload (repositoryPath, or the legacy path key); git
// metadata is recorded on the job as each step succeeds, so a failure
// partway still leaves what was achieved visible.
func (w *Workflow) Run(ctx context.Context, job *models.Job, body func(ctx context.Context) error) (*models.GitMetadata, error) {
	path := job.GetDataString("repositoryPath")
	if path == "" {
		path = job.GetDataString("path")
	}
	if path == "" {
		return nil, fmt.Errorf("job %s has no repository path", job.ID)
	}
	if !w.branches.IsGitRepository(ctx, path) {
		return nil, fmt.Errorf("not a git repository: %s", path)
	}

	info, err := w.branches.CreateJobBranch(ctx, path, interfaces.JobContext{
		JobID:       job.ID,
		JobType:     job.JobType,
		Description: job.GetDataString("description"),
	})
	if err != nil {
		return nil, err
	}

	meta := job.EnsureGit()
	meta.BranchName = info.BranchName
	meta.OriginalBranch = info.OriginalBranch

	defer w.branches.CleanupBranch(ctx, path, info.BranchName, info.OriginalBranch)

	if err := body(ctx); err != nil {
		return meta, err
	}

	if !w.branches.HasChanges(ctx, path) {
		w.logger.Debug().Str("job_id", job.ID).Msg("Job made no changes; nothing to commit")
		return meta, nil
	}

	files := w.branches.GetChangedFiles(ctx, path)
	meta.ChangedFiles = files

	sha, err := w.branches.CommitChanges(ctx, path, w.hooks.CommitMessage(job, files))
	if err != nil {
		return meta, fmt.Errorf("job %s changes could not be committed: %w", job.ID, err)
	}
	if sha == "" {
		return meta, nil
	}
	meta.CommitSha = sha

	pushed := w.branches.PushBranch(ctx, path, info.BranchName)
	if pushed || w.cfg.DryRun {
		url, err := w.branches.CreatePullRequest(ctx, path, w.hooks.PRContext(job, info.BranchName, files))
		if err != nil {
			// The branch and commit survive; a PR can be opened by hand.
			w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Pull request creation failed")
		}
		meta.PrUrl = url
	}

	w.logger.Info().
		Str("job_id", job.ID).
		Str("branch", info.BranchName).
		Str("commit", sha).
		Int("files", len(files)).
		Msg("Git workflow completed")
	return meta, nil
}

func defaultCommitMessage(job *models.Job, changedFiles []string) interfaces.CommitContext {
	return interfaces.CommitContext{
		Message:      fmt.Sprintf("Automated %s changes", job.JobType),
		JobID:        job.ID,
		FilesChanged: len(changedFiles),
	}
}

func defaultPRContext(job *models.Job, branch string, changedFiles []string) interfaces.PRContext {
	var b strings.Builder
	fmt.Fprintf(&b, "Automated changes produced by %s job `%s`.\n\n", job.JobType, job.ID)
	b.WriteString("Changed files:\n")
	for _, f := range changedFiles {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	return interfaces.PRContext{
		BranchName: branch,
		Title:      fmt.Sprintf("Automated %s changes (%s)", job.JobType, job.ID),
		Body:       b.String(),
		Labels:     []string{"automated"},
	}
}

var _ interfaces.WorkflowManager = (*Workflow)(nil)
