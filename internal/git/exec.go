// -----------------------------------------------------------------------
// Git Exec - Subprocess boundary for all git operations
// -----------------------------------------------------------------------

package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes git commands in a working directory. Everything in this
// package goes through a Runner so tests can script repositories without
// touching disk.
type Runner interface {
	Exec(ctx context.Context, dir string, args ...string) (string, error)
}

// osRunner shells out to the git CLI via exec.CommandContext.
type osRunner struct{}

func (osRunner) Exec(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s failed: %w\nstderr: %s",
			strings.Join(args, " "), err, stderr.String())
	}

	return stdout.String(), nil
}

// DefaultRunner returns the Runner used when a constructor is not given one.
func DefaultRunner() Runner {
	return osRunner{}
}

// ---------------------------------------------------------------------
// Shared read helpers. Each returns the neutral value on any failure so
// callers never have to distinguish "not a repo" from "git broke".
// ---------------------------------------------------------------------

func isGitRepository(ctx context.Context, r Runner, path string) bool {
	if path == "" {
		return false
	}
	out, err := r.Exec(ctx, path, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

func headCommit(ctx context.Context, r Runner, path string) string {
	out, err := r.Exec(ctx, path, "rev-parse", "HEAD")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

func headShortCommit(ctx context.Context, r Runner, path string) string {
	out, err := r.Exec(ctx, path, "rev-parse", "--short", "HEAD")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

func currentBranch(ctx context.Context, r Runner, path string) string {
	out, err := r.Exec(ctx, path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// porcelainFiles parses `git status --porcelain` output into file paths.
// Rename entries report the destination path.
func porcelainFiles(out string) []string {
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		name := strings.TrimSpace(line[3:])
		if idx := strings.Index(name, " -> "); idx >= 0 {
			name = name[idx+4:]
		}
		if name != "" {
			files = append(files, name)
		}
	}
	return files
}
