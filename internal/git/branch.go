// -----------------------------------------------------------------------
// Branch Manager - Low-level git operations for the job workflow
// -----------------------------------------------------------------------

package git

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/interfaces"
)

// branchSegmentMax caps the sanitized description portion of a branch name.
const branchSegmentMax = 30

var invalidRefChars = regexp.MustCompile(`[^a-z0-9-]+`)

// Manager performs the branch, commit, push, and PR operations jobs need.
// Read operations return neutral values for invalid paths; mutating
// operations return errors the workflow decides how to handle.
type Manager struct {
	runner Runner
	cfg    common.GitConfig
	pr     interfaces.PRCreator
	logger arbor.ILogger
}

// NewManager creates a branch manager backed by the git CLI. pr may be nil
// when no pull request backend is configured.
func NewManager(cfg common.GitConfig, pr interfaces.PRCreator, logger arbor.ILogger) *Manager {
	return NewManagerWithRunner(DefaultRunner(), cfg, pr, logger)
}

// NewManagerWithRunner creates a branch manager with an injected runner.
func NewManagerWithRunner(runner Runner, cfg common.GitConfig, pr interfaces.PRCreator, logger arbor.ILogger) *Manager {
	if cfg.BranchPrefix == "" {
		cfg.BranchPrefix = "geminus"
	}
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}
	return &Manager{runner: runner, cfg: cfg, pr: pr, logger: logger}
}

// IsGitRepository reports whether path is inside a git work tree.
func (m *Manager) IsGitRepository(ctx context.Context, path string) bool {
	return isGitRepository(ctx, m.runner, path)
}

// HasChanges reports whether the working tree has anything to commit.
func (m *Manager) HasChanges(ctx context.Context, path string) bool {
	out, err := m.runner.Exec(ctx, path, "status", "--porcelain")
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) != ""
}

// GetChangedFiles lists uncommitted paths in the working tree.
func (m *Manager) GetChangedFiles(ctx context.Context, path string) []string {
	out, err := m.runner.Exec(ctx, path, "status", "--porcelain")
	if err != nil {
		return nil
	}
	return porcelainFiles(out)
}

// GetCurrentBranch returns the checked-out branch, or "".
func (m *Manager) GetCurrentBranch(ctx context.Context, path string) string {
	return currentBranch(ctx, m.runner, path)
}

// GenerateBranchName derives <prefix>/<jobType>-<sanitized-desc>-<epochMillis>.
// Segments are lowercased with anything outside [a-z0-9-] collapsed to a
// dash; the description falls back to the job id.
func (m *Manager) GenerateBranchName(job interfaces.JobContext) string {
	jobType := sanitizeSegment(job.JobType)
	if jobType == "" {
		jobType = "job"
	}
	desc := sanitizeSegment(job.Description)
	if desc == "" {
		desc = sanitizeSegment(job.JobID)
	}
	if desc == "" {
		desc = "work"
	}
	return fmt.Sprintf("%s/%s-%s-%d", m.cfg.BranchPrefix, jobType, desc, time.Now().UnixMilli())
}

func sanitizeSegment(s string) string {
	s = invalidRefChars.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")
	if len(s) > branchSegmentMax {
		s = strings.TrimRight(s[:branchSegmentMax], "-")
	}
	return s
}

// CreateJobBranch checks out the base branch, pulls (unless dry-run), and
// creates the job branch. The pull is advisory: a repository with no
// reachable remote still gets a branch off the local base.
func (m *Manager) CreateJobBranch(ctx context.Context, path string, job interfaces.JobContext) (*interfaces.BranchInfo, error) {
	if !m.IsGitRepository(ctx, path) {
		return nil, fmt.Errorf("not a git repository: %s", path)
	}

	base := m.cfg.BaseBranch
	if _, err := m.runner.Exec(ctx, path, "rev-parse", "--verify", base); err != nil {
		return nil, fmt.Errorf("base branch %q not found: %w", base, err)
	}

	original := m.GetCurrentBranch(ctx, path)
	if original == "" || original == "HEAD" {
		original = base
	}

	if _, err := m.runner.Exec(ctx, path, "checkout", base); err != nil {
		return nil, fmt.Errorf("failed to check out base branch %q: %w", base, err)
	}

	if !m.cfg.DryRun {
		if _, err := m.runner.Exec(ctx, path, "pull"); err != nil {
			m.logger.Warn().Err(err).Str("base", base).Msg("Pull failed; branching from local base")
		}
	}

	branch := m.GenerateBranchName(job)
	if _, err := m.runner.Exec(ctx, path, "checkout", "-b", branch); err != nil {
		_, _ = m.runner.Exec(ctx, path, "checkout", original)
		return nil, fmt.Errorf("failed to create branch %q: %w", branch, err)
	}

	m.logger.Info().
		Str("branch", branch).
		Str("base", base).
		Str("job_id", job.JobID).
		Msg("Job branch created")

	return &interfaces.BranchInfo{BranchName: branch, OriginalBranch: original}, nil
}

// CommitChanges stages everything and commits. Returns "" with no error
// when the working tree is clean.
func (m *Manager) CommitChanges(ctx context.Context, path string, commit interfaces.CommitContext) (string, error) {
	if !m.HasChanges(ctx, path) {
		return "", nil
	}

	if _, err := m.runner.Exec(ctx, path, "add", "-A"); err != nil {
		return "", fmt.Errorf("failed to stage changes: %w", err)
	}

	if _, err := m.runner.Exec(ctx, path, "commit", "-m", m.buildCommitMessage(commit)); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}

	sha := headCommit(ctx, m.runner, path)
	m.logger.Info().
		Str("commit", sha).
		Str("job_id", commit.JobID).
		Int("files", commit.FilesChanged).
		Msg("Job changes committed")
	return sha, nil
}

// buildCommitMessage assembles the automated commit message: title, optional
// description, job id, file count, and the configured attribution trailer.
func (m *Manager) buildCommitMessage(commit interfaces.CommitContext) string {
	var b strings.Builder
	b.WriteString(commit.Message)
	if commit.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(commit.Description)
	}
	fmt.Fprintf(&b, "\n\nJob ID: %s\nFiles changed: %d", commit.JobID, commit.FilesChanged)
	if m.cfg.Attribution != "" {
		b.WriteString("\n\n")
		b.WriteString(m.cfg.Attribution)
	}
	return b.String()
}

// PushBranch pushes the branch to origin. False in dry-run, when pushes are
// disabled, and on failure.
func (m *Manager) PushBranch(ctx context.Context, path, branch string) bool {
	if m.cfg.DryRun {
		m.logger.Debug().Str("branch", branch).Msg("Dry run: push skipped")
		return false
	}
	if !m.cfg.PushEnabled {
		return false
	}
	if _, err := m.runner.Exec(ctx, path, "push", "-u", "origin", branch); err != nil {
		m.logger.Warn().Err(err).Str("branch", branch).Msg("Failed to push branch")
		return false
	}
	m.logger.Info().Str("branch", branch).Msg("Branch pushed")
	return true
}

// CreatePullRequest opens a PR for the branch. Dry-run returns the
// "dry-run-<branch>" sentinel before any backend is consulted; a disabled
// or unconfigured backend returns "".
func (m *Manager) CreatePullRequest(ctx context.Context, path string, pr interfaces.PRContext) (string, error) {
	if m.cfg.DryRun {
		return "dry-run-" + pr.BranchName, nil
	}
	if !m.cfg.PREnabled || m.pr == nil {
		return "", nil
	}
	return m.pr.CreatePullRequest(ctx, pr)
}

// CleanupBranch restores the original branch (falling back to the base) and
// deletes the local job branch. Errors are logged and swallowed: cleanup
// runs after failures too, and must never mask the original error.
func (m *Manager) CleanupBranch(ctx context.Context, path, branch, originalBranch string) {
	target := originalBranch
	if target == "" {
		target = m.cfg.BaseBranch
	}

	if _, err := m.runner.Exec(ctx, path, "checkout", target); err != nil {
		if target == m.cfg.BaseBranch {
			m.logger.Warn().Err(err).Str("branch", target).Msg("Cleanup could not restore branch")
			return
		}
		target = m.cfg.BaseBranch
		if _, err := m.runner.Exec(ctx, path, "checkout", target); err != nil {
			m.logger.Warn().Err(err).Str("branch", target).Msg("Cleanup could not restore branch")
			return
		}
	}

	if branch == "" || branch == target {
		return
	}
	if _, err := m.runner.Exec(ctx, path, "branch", "-D", branch); err != nil {
		m.logger.Warn().Err(err).Str("branch", branch).Msg("Cleanup could not delete job branch")
		return
	}

	m.logger.Debug().Str("branch", branch).Str("restored", target).Msg("Job branch cleaned up")
}

var _ interfaces.BranchManager = (*Manager)(nil)
