package git

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

var errNotRepo = errors.New("exit status 128")

func newGitDir(f *fakeRunner) {
	f.stubAlways("rev-parse --is-inside-work-tree", "true\n", nil)
}

func newTestTracker(f *fakeRunner) *Tracker {
	return NewTrackerWithRunner(f, arbor.NewLogger())
}

func TestTracker_NonGitPathReturnsNeutralValues(t *testing.T) {
	f := newFakeRunner()
	f.stubAlways("rev-parse --is-inside-work-tree", "", errNotRepo)
	tracker := newTestTracker(f)
	ctx := context.Background()

	assert.False(t, tracker.IsGitRepository(ctx, "/tmp/plain"))
	assert.Empty(t, tracker.GetRepositoryCommit(ctx, "/tmp/plain"))
	assert.Empty(t, tracker.GetShortCommit(ctx, "/tmp/plain"))
	assert.Empty(t, tracker.GetBranchName(ctx, "/tmp/plain"))
	assert.Empty(t, tracker.GetRemoteUrl(ctx, "/tmp/plain", ""))
	assert.False(t, tracker.HasUncommittedChanges(ctx, "/tmp/plain"))
	assert.Zero(t, tracker.GetCommitCount(ctx, "/tmp/plain"))
	assert.Nil(t, tracker.GetChangedFiles(ctx, "/tmp/plain", "abc"))
	assert.Nil(t, tracker.GetCommitMetadata(ctx, "/tmp/plain", ""))
	assert.Nil(t, tracker.GetCommitHistory(ctx, "/tmp/plain", 5))

	// Unknown state reads as changed so callers re-scan.
	assert.True(t, tracker.HasChanged(ctx, "/tmp/plain", "abc123"))

	status := tracker.GetRepositoryStatus(ctx, "/tmp/plain")
	require.NotNil(t, status)
	assert.False(t, status.IsGitRepository)
	assert.Empty(t, status.CurrentCommit)
	assert.False(t, status.ScannedAt.IsZero())
}

func TestTracker_EmptyPathIsNotARepository(t *testing.T) {
	f := newFakeRunner()
	tracker := newTestTracker(f)

	assert.False(t, tracker.IsGitRepository(context.Background(), ""))
	assert.Zero(t, f.callsFor("rev-parse"), "empty path must not shell out")
}

func TestTracker_RepositoryStatusSnapshot(t *testing.T) {
	f := newFakeRunner()
	newGitDir(f)
	f.stubAlways("rev-parse HEAD", "abc1234def5678\n", nil)
	f.stubAlways("rev-parse --short HEAD", "abc1234\n", nil)
	f.stubAlways("rev-parse --abbrev-ref HEAD", "main\n", nil)
	f.stubAlways("status --porcelain", " M internal/a.go\n", nil)
	f.stubAlways("remote get-url origin", "git@github.com:acme/widgets.git\n", nil)
	tracker := newTestTracker(f)

	status := tracker.GetRepositoryStatus(context.Background(), "/repo")
	require.NotNil(t, status)
	assert.True(t, status.IsGitRepository)
	assert.Equal(t, "abc1234def5678", status.CurrentCommit)
	assert.Equal(t, "abc1234", status.ShortCommit)
	assert.Equal(t, "main", status.Branch)
	assert.True(t, status.HasUncommittedChanges)
	assert.Equal(t, "git@github.com:acme/widgets.git", status.RemoteURL)
	assert.WithinDuration(t, time.Now(), status.ScannedAt, 5*time.Second)
}

func TestTracker_HasChanged(t *testing.T) {
	f := newFakeRunner()
	newGitDir(f)
	f.stubAlways("rev-parse HEAD", "abc1234\n", nil)
	tracker := newTestTracker(f)
	ctx := context.Background()

	assert.False(t, tracker.HasChanged(ctx, "/repo", "abc1234"))
	assert.True(t, tracker.HasChanged(ctx, "/repo", "def5678"))
	assert.True(t, tracker.HasChanged(ctx, "/repo", ""), "no prior commit means changed")
}

func TestTracker_GetChangedFiles(t *testing.T) {
	f := newFakeRunner()
	newGitDir(f)
	f.stub("diff --name-only abc1234 HEAD", "internal/a.go\ninternal/b.go\n\n", nil)
	tracker := newTestTracker(f)
	ctx := context.Background()

	files := tracker.GetChangedFiles(ctx, "/repo", "abc1234")
	assert.Equal(t, []string{"internal/a.go", "internal/b.go"}, files)

	assert.Nil(t, tracker.GetChangedFiles(ctx, "/repo", ""), "no base commit, no diff")
	assert.Equal(t, 1, f.callsFor("diff"), "empty base commit must not shell out")
}

func TestTracker_GetCommitMetadata(t *testing.T) {
	f := newFakeRunner()
	newGitDir(f)
	record := strings.Join([]string{
		"abc1234def5678", "abc1234", "Dev One", "dev@acme.io",
		"2026-08-20T10:30:00+00:00", "Fix cache invalidation",
	}, "\x1f")
	f.stub("show -s --format="+commitFormat+" HEAD", record+"\n", nil)
	tracker := newTestTracker(f)

	meta := tracker.GetCommitMetadata(context.Background(), "/repo", "")
	require.NotNil(t, meta)
	assert.Equal(t, "abc1234def5678", meta.Hash)
	assert.Equal(t, "abc1234", meta.ShortHash)
	assert.Equal(t, "Dev One", meta.Author)
	assert.Equal(t, "dev@acme.io", meta.Email)
	assert.Equal(t, 2026, meta.Date.Year())
	assert.Equal(t, "Fix cache invalidation", meta.Message)
}

func TestTracker_GetCommitMetadata_MalformedRecordIsNil(t *testing.T) {
	f := newFakeRunner()
	newGitDir(f)
	f.stub("show -s --format="+commitFormat+" abc", "not-a-record\n", nil)
	tracker := newTestTracker(f)

	assert.Nil(t, tracker.GetCommitMetadata(context.Background(), "/repo", "abc"))
}

func TestTracker_GetCommitHistory(t *testing.T) {
	f := newFakeRunner()
	newGitDir(f)
	rec := func(hash, subject string) string {
		return strings.Join([]string{hash, hash[:7], "Dev", "dev@acme.io", "2026-08-19T09:00:00Z", subject}, "\x1f")
	}
	f.stub("log -n 2 --format="+commitFormat,
		rec("abc1234def5678", "Newest change")+"\n"+rec("9876543fedcba0", "Older change")+"\n", nil)
	tracker := newTestTracker(f)

	history := tracker.GetCommitHistory(context.Background(), "/repo", 2)
	require.Len(t, history, 2)
	assert.Equal(t, "Newest change", history[0].Message)
	assert.Equal(t, "Older change", history[1].Message)
}

func TestTracker_GetCommitHistory_DefaultLimit(t *testing.T) {
	f := newFakeRunner()
	newGitDir(f)
	f.stubPrefix("log -n", "", nil)
	tracker := newTestTracker(f)

	assert.Nil(t, tracker.GetCommitHistory(context.Background(), "/repo", 0))
	args := f.argsFor("log -n", 0)
	require.NotNil(t, args)
	assert.Equal(t, "10", args[2])
}

func TestTracker_GetRemoteUrl_DefaultsToOrigin(t *testing.T) {
	f := newFakeRunner()
	newGitDir(f)
	f.stub("remote get-url origin", "https://github.com/acme/widgets.git\n", nil)
	f.stub("remote get-url upstream", "https://github.com/acme/upstream.git\n", nil)
	tracker := newTestTracker(f)
	ctx := context.Background()

	assert.Equal(t, "https://github.com/acme/widgets.git", tracker.GetRemoteUrl(ctx, "/repo", ""))
	assert.Equal(t, "https://github.com/acme/upstream.git", tracker.GetRemoteUrl(ctx, "/repo", "upstream"))
}

func TestTracker_GetCommitCount(t *testing.T) {
	f := newFakeRunner()
	newGitDir(f)
	f.stub("rev-list --count HEAD", "42\n", nil)
	f.stub("rev-list --count HEAD", "not-a-number\n", nil)
	tracker := newTestTracker(f)
	ctx := context.Background()

	assert.Equal(t, 42, tracker.GetCommitCount(ctx, "/repo"))
	assert.Zero(t, tracker.GetCommitCount(ctx, "/repo"), "unparseable output reads as zero")
}

func TestTracker_HasUncommittedChanges(t *testing.T) {
	f := newFakeRunner()
	newGitDir(f)
	f.stub("status --porcelain", "", nil)
	f.stub("status --porcelain", " M a.go\n?? b.go\n", nil)
	tracker := newTestTracker(f)
	ctx := context.Background()

	assert.False(t, tracker.HasUncommittedChanges(ctx, "/repo"))
	assert.True(t, tracker.HasUncommittedChanges(ctx, "/repo"))
}
