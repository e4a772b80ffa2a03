// -----------------------------------------------------------------------
// Commit Tracker - Read-only view over a git workspace
// -----------------------------------------------------------------------

package git

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
)

// Commit metadata is read with machine-parseable separators so subjects
// containing spaces or quotes never break parsing. \x1f separates fields,
// one record per line (subjects cannot contain newlines).
const commitFormat = "%H%x1f%h%x1f%an%x1f%ae%x1f%aI%x1f%s"

const defaultHistoryLimit = 10

// Tracker answers questions about a repository without ever mutating it.
// Non-git and invalid paths yield neutral values, never errors; callers use
// the answers to gate caching and the git workflow, and a broken repository
// must degrade to "behave as if there is no repository".
type Tracker struct {
	runner Runner
	logger arbor.ILogger
}

// NewTracker creates a commit tracker backed by the git CLI.
func NewTracker(logger arbor.ILogger) *Tracker {
	return &Tracker{runner: DefaultRunner(), logger: logger}
}

// NewTrackerWithRunner creates a tracker with an injected runner.
func NewTrackerWithRunner(runner Runner, logger arbor.ILogger) *Tracker {
	return &Tracker{runner: runner, logger: logger}
}

// IsGitRepository reports whether path is inside a git work tree.
func (t *Tracker) IsGitRepository(ctx context.Context, path string) bool {
	return isGitRepository(ctx, t.runner, path)
}

// GetRepositoryCommit returns the full HEAD commit, or "" for non-git paths.
func (t *Tracker) GetRepositoryCommit(ctx context.Context, path string) string {
	if !t.IsGitRepository(ctx, path) {
		return ""
	}
	return headCommit(ctx, t.runner, path)
}

// GetShortCommit returns the abbreviated HEAD commit, or "".
func (t *Tracker) GetShortCommit(ctx context.Context, path string) string {
	if !t.IsGitRepository(ctx, path) {
		return ""
	}
	return headShortCommit(ctx, t.runner, path)
}

// HasChanged reports whether HEAD differs from lastCommit. Unknown state
// reads as changed: non-git paths and empty lastCommit both return true so
// callers re-scan rather than trust a stale result.
func (t *Tracker) HasChanged(ctx context.Context, path, lastCommit string) bool {
	if lastCommit == "" {
		return true
	}
	current := t.GetRepositoryCommit(ctx, path)
	if current == "" {
		return true
	}
	return current != lastCommit
}

// GetChangedFiles lists paths that differ between fromCommit and HEAD.
func (t *Tracker) GetChangedFiles(ctx context.Context, path, fromCommit string) []string {
	if fromCommit == "" || !t.IsGitRepository(ctx, path) {
		return nil
	}
	out, err := t.runner.Exec(ctx, path, "diff", "--name-only", fromCommit, "HEAD")
	if err != nil {
		t.logger.Debug().Err(err).Str("path", path).Msg("Changed-file diff failed")
		return nil
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			files = append(files, name)
		}
	}
	return files
}

// GetCommitMetadata describes one commit, HEAD when commit is empty.
func (t *Tracker) GetCommitMetadata(ctx context.Context, path, commit string) *models.CommitMetadata {
	if !t.IsGitRepository(ctx, path) {
		return nil
	}
	ref := commit
	if ref == "" {
		ref = "HEAD"
	}
	out, err := t.runner.Exec(ctx, path, "show", "-s", "--format="+commitFormat, ref)
	if err != nil {
		return nil
	}
	return parseCommitRecord(strings.TrimSpace(out))
}

// GetBranchName returns the checked-out branch, or "".
func (t *Tracker) GetBranchName(ctx context.Context, path string) string {
	if !t.IsGitRepository(ctx, path) {
		return ""
	}
	return currentBranch(ctx, t.runner, path)
}

// HasUncommittedChanges reports whether the working tree is dirty.
func (t *Tracker) HasUncommittedChanges(ctx context.Context, path string) bool {
	if !t.IsGitRepository(ctx, path) {
		return false
	}
	out, err := t.runner.Exec(ctx, path, "status", "--porcelain")
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) != ""
}

// GetRemoteUrl returns the URL of the named remote, defaulting to origin.
func (t *Tracker) GetRemoteUrl(ctx context.Context, path, name string) string {
	if !t.IsGitRepository(ctx, path) {
		return ""
	}
	if name == "" {
		name = "origin"
	}
	out, err := t.runner.Exec(ctx, path, "remote", "get-url", name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// GetCommitCount returns the number of commits reachable from HEAD.
func (t *Tracker) GetCommitCount(ctx context.Context, path string) int {
	if !t.IsGitRepository(ctx, path) {
		return 0
	}
	out, err := t.runner.Exec(ctx, path, "rev-list", "--count", "HEAD")
	if err != nil {
		return 0
	}
	count, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0
	}
	return count
}

// GetRepositoryStatus composes a point-in-time snapshot of the workspace.
// Non-git paths return the zero snapshot with ScannedAt stamped.
func (t *Tracker) GetRepositoryStatus(ctx context.Context, path string) *models.RepositoryStatus {
	status := &models.RepositoryStatus{ScannedAt: time.Now().UTC()}
	if !t.IsGitRepository(ctx, path) {
		return status
	}
	status.IsGitRepository = true
	status.CurrentCommit = headCommit(ctx, t.runner, path)
	status.ShortCommit = headShortCommit(ctx, t.runner, path)
	status.Branch = currentBranch(ctx, t.runner, path)
	status.HasUncommittedChanges = t.HasUncommittedChanges(ctx, path)
	status.RemoteURL = t.GetRemoteUrl(ctx, path, "origin")
	return status
}

// GetCommitHistory returns up to limit commits, newest first.
func (t *Tracker) GetCommitHistory(ctx context.Context, path string, limit int) []models.CommitMetadata {
	if !t.IsGitRepository(ctx, path) {
		return nil
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	out, err := t.runner.Exec(ctx, path, "log", "-n", strconv.Itoa(limit), "--format="+commitFormat)
	if err != nil {
		return nil
	}
	var history []models.CommitMetadata
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if meta := parseCommitRecord(line); meta != nil {
			history = append(history, *meta)
		}
	}
	return history
}

// parseCommitRecord parses one \x1f-separated commit record.
func parseCommitRecord(line string) *models.CommitMetadata {
	parts := strings.Split(line, "\x1f")
	if len(parts) != 6 {
		return nil
	}
	date, err := time.Parse(time.RFC3339, parts[4])
	if err != nil {
		date = time.Time{}
	}
	return &models.CommitMetadata{
		Hash:      parts[0],
		ShortHash: parts[1],
		Author:    parts[2],
		Email:     parts[3],
		Date:      date,
		Message:   parts[5],
	}
}

var _ interfaces.CommitTracker = (*Tracker)(nil)
