package interfaces

import (
	"context"

	"github.com/ternarybob/geminus/internal/models"
)

// CommitTracker is a read-only view over a git workspace. Every operation
// returns a conservative neutral value (empty / nil / false / zero) for
// non-git or invalid paths instead of an error.
type CommitTracker interface {
	GetRepositoryCommit(ctx context.Context, path string) string
	GetShortCommit(ctx context.Context, path string) string
	HasChanged(ctx context.Context, path, lastCommit string) bool
	GetChangedFiles(ctx context.Context, path, fromCommit string) []string
	GetCommitMetadata(ctx context.Context, path, commit string) *models.CommitMetadata
	GetBranchName(ctx context.Context, path string) string
	HasUncommittedChanges(ctx context.Context, path string) bool
	GetRemoteUrl(ctx context.Context, path, name string) string
	GetCommitCount(ctx context.Context, path string) int
	IsGitRepository(ctx context.Context, path string) bool
	GetRepositoryStatus(ctx context.Context, path string) *models.RepositoryStatus
	GetCommitHistory(ctx context.Context, path string, limit int) []models.CommitMetadata
}

// JobContext carries the job fields a branch name is derived from.
type JobContext struct {
	JobID       string
	JobType     string
	Description string
}

// BranchInfo is the result of creating a job branch.
type BranchInfo struct {
	BranchName     string `json:"branch_name"`
	OriginalBranch string `json:"original_branch"`
}

// CommitContext assembles an automated commit message.
type CommitContext struct {
	Message      string
	Description  string
	JobID        string
	FilesChanged int
}

// PRContext carries everything a pull request is created from.
type PRContext struct {
	BranchName string   `json:"branch_name"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Labels     []string `json:"labels,omitempty"`
}

// BranchManager wraps the low-level git operations a job workflow needs.
// Invalid paths produce conservative falsy results, never panics.
type BranchManager interface {
	IsGitRepository(ctx context.Context, path string) bool
	HasChanges(ctx context.Context, path string) bool
	GetChangedFiles(ctx context.Context, path string) []string
	GetCurrentBranch(ctx context.Context, path string) string
	CreateJobBranch(ctx context.Context, path string, job JobContext) (*BranchInfo, error)
	CommitChanges(ctx context.Context, path string, commit CommitContext) (string, error)
	PushBranch(ctx context.Context, path, branch string) bool
	CreatePullRequest(ctx context.Context, path string, pr PRContext) (string, error)
	CleanupBranch(ctx context.Context, path, branch, originalBranch string)
}

// PRCreator opens a pull request for a pushed branch.
type PRCreator interface {
	CreatePullRequest(ctx context.Context, pr PRContext) (string, error)
}

// WorkflowManager wraps a job body in the branch -> work -> commit -> push ->
// PR -> cleanup transaction. Body errors propagate unchanged; cleanup always
// runs once a branch exists.
type WorkflowManager interface {
	Run(ctx context.Context, job *models.Job, body func(ctx context.Context) error) (*models.GitMetadata, error)
}
