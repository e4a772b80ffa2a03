package git

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
)

// fakeBranches records the workflow's orchestration so tests can assert
// step order and arguments without a real repository.
type fakeBranches struct {
	isRepo     bool
	createErr  error
	hasChanges bool
	files      []string
	commitSha  string
	commitErr  error
	pushOK     bool
	prURL      string
	prErr      error

	ops       []string
	gotCommit *interfaces.CommitContext
	gotPR     *interfaces.PRContext
}

func (f *fakeBranches) IsGitRepository(ctx context.Context, path string) bool {
	f.ops = append(f.ops, "isrepo")
	return f.isRepo
}

func (f *fakeBranches) HasChanges(ctx context.Context, path string) bool {
	f.ops = append(f.ops, "haschanges")
	return f.hasChanges
}

func (f *fakeBranches) GetChangedFiles(ctx context.Context, path string) []string {
	f.ops = append(f.ops, "files")
	return f.files
}

func (f *fakeBranches) GetCurrentBranch(ctx context.Context, path string) string {
	return "main"
}

func (f *fakeBranches) CreateJobBranch(ctx context.Context, path string, job interfaces.JobContext) (*interfaces.BranchInfo, error) {
	f.ops = append(f.ops, "create")
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &interfaces.BranchInfo{BranchName: "geminus/scan-j1-1700000000000", OriginalBranch: "feature-x"}, nil
}

func (f *fakeBranches) CommitChanges(ctx context.Context, path string, commit interfaces.CommitContext) (string, error) {
	f.ops = append(f.ops, "commit")
	f.gotCommit = &commit
	return f.commitSha, f.commitErr
}

func (f *fakeBranches) PushBranch(ctx context.Context, path, branch string) bool {
	f.ops = append(f.ops, "push")
	return f.pushOK
}

func (f *fakeBranches) CreatePullRequest(ctx context.Context, path string, pr interfaces.PRContext) (string, error) {
	f.ops = append(f.ops, "pr")
	f.gotPR = &pr
	return f.prURL, f.prErr
}

func (f *fakeBranches) CleanupBranch(ctx context.Context, path, branch, originalBranch string) {
	f.ops = append(f.ops, "cleanup "+branch+"<-"+originalBranch)
}

var _ interfaces.BranchManager = (*fakeBranches)(nil)

func workflowJob() *models.Job {
	return models.NewJob("j1", "duplicate-detection", "scan", map[string]interface{}{
		"path":        "/repo",
		"description": "dedup pass",
	})
}

func newTestWorkflow(f *fakeBranches, cfg common.GitConfig, hooks Hooks) *Workflow {
	return NewWorkflow(f, cfg, hooks, arbor.NewLogger())
}

func TestWorkflow_FullTransaction(t *testing.T) {
	f := &fakeBranches{
		isRepo:     true,
		hasChanges: true,
		files:      []string{"internal/a.go", "internal/b.go"},
		commitSha:  "fedcba98",
		pushOK:     true,
		prURL:      "https://github.com/acme/widgets/pull/9",
	}
	w := newTestWorkflow(f, testGitConfig(), Hooks{})
	job := workflowJob()

	ran := false
	meta, err := w.Run(context.Background(), job, func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	require.NotNil(t, meta)
	assert.Equal(t, "geminus/scan-j1-1700000000000", meta.BranchName)
	assert.Equal(t, "feature-x", meta.OriginalBranch)
	assert.Equal(t, "fedcba98", meta.CommitSha)
	assert.Equal(t, []string{"internal/a.go", "internal/b.go"}, meta.ChangedFiles)
	assert.Equal(t, "https://github.com/acme/widgets/pull/9", meta.PrUrl)
	assert.Same(t, job.Git, meta, "metadata is recorded on the job itself")

	assert.Equal(t, []string{
		"isrepo", "create", "haschanges", "files", "commit", "push", "pr",
		"cleanup geminus/scan-j1-1700000000000<-feature-x",
	}, f.ops)

	// Default hooks describe the job.
	require.NotNil(t, f.gotCommit)
	assert.Equal(t, "j1", f.gotCommit.JobID)
	assert.Equal(t, 2, f.gotCommit.FilesChanged)
	require.NotNil(t, f.gotPR)
	assert.Equal(t, "geminus/scan-j1-1700000000000", f.gotPR.BranchName)
	assert.Contains(t, f.gotPR.Body, "internal/a.go")
	assert.Contains(t, f.gotPR.Labels, "automated")
}

func TestWorkflow_BodyErrorPropagatesUnchanged(t *testing.T) {
	f := &fakeBranches{isRepo: true, hasChanges: true}
	w := newTestWorkflow(f, testGitConfig(), Hooks{})
	job := workflowJob()

	bodyErr := errors.New("scanner exploded")
	meta, err := w.Run(context.Background(), job, func(ctx context.Context) error {
		return bodyErr
	})
	assert.Same(t, bodyErr, err, "the caller must see its own failure, not a wrapper")
	require.NotNil(t, meta)
	assert.Equal(t, "geminus/scan-j1-1700000000000", meta.BranchName)
	assert.Empty(t, meta.CommitSha)

	assert.Equal(t, []string{
		"isrepo", "create",
		"cleanup geminus/scan-j1-1700000000000<-feature-x",
	}, f.ops, "a failed body skips commit, push, and PR but still cleans up")
}

func TestWorkflow_NoChangesSkipsCommit(t *testing.T) {
	f := &fakeBranches{isRepo: true, hasChanges: false}
	w := newTestWorkflow(f, testGitConfig(), Hooks{})

	meta, err := w.Run(context.Background(), workflowJob(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Empty(t, meta.CommitSha)
	assert.Empty(t, meta.PrUrl)
	assert.Equal(t, []string{
		"isrepo", "create", "haschanges",
		"cleanup geminus/scan-j1-1700000000000<-feature-x",
	}, f.ops)
}

func TestWorkflow_CommitFailureStillCleansUp(t *testing.T) {
	f := &fakeBranches{isRepo: true, hasChanges: true, commitErr: errors.New("index locked")}
	w := newTestWorkflow(f, testGitConfig(), Hooks{})

	_, err := w.Run(context.Background(), workflowJob(), func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not be committed")
	assert.Contains(t, f.ops, "cleanup geminus/scan-j1-1700000000000<-feature-x")
	assert.NotContains(t, f.ops, "push")
}

func TestWorkflow_PRFailureIsNonFatal(t *testing.T) {
	f := &fakeBranches{
		isRepo:     true,
		hasChanges: true,
		commitSha:  "abc",
		pushOK:     true,
		prErr:      errors.New("api: 422"),
	}
	w := newTestWorkflow(f, testGitConfig(), Hooks{})

	meta, err := w.Run(context.Background(), workflowJob(), func(ctx context.Context) error { return nil })
	require.NoError(t, err, "the branch and commit survive; a PR can be opened by hand")
	assert.Equal(t, "abc", meta.CommitSha)
	assert.Empty(t, meta.PrUrl)
}

func TestWorkflow_DryRunStillAttemptsPR(t *testing.T) {
	cfg := testGitConfig()
	cfg.DryRun = true
	f := &fakeBranches{
		isRepo:     true,
		hasChanges: true,
		commitSha:  "abc",
		pushOK:     false, // dry-run pushes report false
		prURL:      "dry-run-geminus/scan-j1-1700000000000",
	}
	w := newTestWorkflow(f, cfg, Hooks{})

	meta, err := w.Run(context.Background(), workflowJob(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "dry-run-geminus/scan-j1-1700000000000", meta.PrUrl)
	assert.Contains(t, f.ops, "pr")
}

func TestWorkflow_UnpushedBranchGetsNoPR(t *testing.T) {
	f := &fakeBranches{isRepo: true, hasChanges: true, commitSha: "abc", pushOK: false}
	w := newTestWorkflow(f, testGitConfig(), Hooks{})

	meta, err := w.Run(context.Background(), workflowJob(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Empty(t, meta.PrUrl)
	assert.NotContains(t, f.ops, "pr")
}

func TestWorkflow_PreChecksRunBeforeBody(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		f := &fakeBranches{isRepo: true}
		w := newTestWorkflow(f, testGitConfig(), Hooks{})
		job := models.NewJob("j1", "p", "scan", nil)

		ran := false
		_, err := w.Run(context.Background(), job, func(ctx context.Context) error { ran = true; return nil })
		require.Error(t, err)
		assert.False(t, ran)
		assert.Empty(t, f.ops)
	})

	t.Run("not a repository", func(t *testing.T) {
		f := &fakeBranches{isRepo: false}
		w := newTestWorkflow(f, testGitConfig(), Hooks{})

		ran := false
		_, err := w.Run(context.Background(), workflowJob(), func(ctx context.Context) error { ran = true; return nil })
		require.Error(t, err)
		assert.False(t, ran)
		assert.Equal(t, []string{"isrepo"}, f.ops, "no branch created, no cleanup owed")
	})

	t.Run("branch creation fails", func(t *testing.T) {
		f := &fakeBranches{isRepo: true, createErr: errors.New("base branch missing")}
		w := newTestWorkflow(f, testGitConfig(), Hooks{})

		ran := false
		_, err := w.Run(context.Background(), workflowJob(), func(ctx context.Context) error { ran = true; return nil })
		require.Error(t, err)
		assert.False(t, ran)
		assert.Equal(t, []string{"isrepo", "create"}, f.ops)
	})
}

func TestWorkflow_BodyPanicStillCleansUp(t *testing.T) {
	f := &fakeBranches{isRepo: true}
	w := newTestWorkflow(f, testGitConfig(), Hooks{})

	func() {
		defer func() { require.NotNil(t, recover()) }()
		_, _ = w.Run(context.Background(), workflowJob(), func(ctx context.Context) error {
			panic("handler bug")
		})
	}()

	assert.Contains(t, f.ops, "cleanup geminus/scan-j1-1700000000000<-feature-x")
}

func TestWorkflow_CustomHooks(t *testing.T) {
	f := &fakeBranches{isRepo: true, hasChanges: true, files: []string{"a.go"}, commitSha: "abc", pushOK: true}
	hooks := Hooks{
		CommitMessage: func(job *models.Job, files []string) interfaces.CommitContext {
			return interfaces.CommitContext{Message: "custom title", JobID: job.ID, FilesChanged: len(files)}
		},
		PRContext: func(job *models.Job, branch string, files []string) interfaces.PRContext {
			return interfaces.PRContext{BranchName: branch, Title: "custom pr", Labels: []string{"automated", "duplicate-detection"}}
		},
	}
	w := newTestWorkflow(f, testGitConfig(), hooks)

	_, err := w.Run(context.Background(), workflowJob(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "custom title", f.gotCommit.Message)
	assert.Equal(t, "custom pr", f.gotPR.Title)
	assert.Equal(t, []string{"automated", "duplicate-detection"}, f.gotPR.Labels)
}
