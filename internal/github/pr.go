// -----------------------------------------------------------------------
// GitHub PR Backend - Opens pull requests for pushed job branches
// -----------------------------------------------------------------------

package github

import (
	"context"
	"fmt"

	"github.com/google/go-github/v57/github"
	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/interfaces"
)

// Service opens pull requests through the GitHub API. An unconfigured
// service (missing token, owner, or repo) stays usable and answers every
// request with an empty URL, so the workflow degrades instead of failing.
type Service struct {
	client *github.Client
	owner  string
	repo   string
	base   string
	logger arbor.ILogger
}

// NewService builds the PR backend from config.
func NewService(cfg common.GitConfig, logger arbor.ILogger) *Service {
	s := &Service{
		owner:  cfg.GitHub.Owner,
		repo:   cfg.GitHub.Repo,
		base:   cfg.BaseBranch,
		logger: logger,
	}
	if s.base == "" {
		s.base = "main"
	}
	if cfg.GitHub.Token == "" || cfg.GitHub.Owner == "" || cfg.GitHub.Repo == "" {
		logger.Warn().Msg("GitHub PR backend not fully configured; pull requests will be skipped")
		return s
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHub.Token})
	tc := oauth2.NewClient(context.Background(), ts)
	s.client = github.NewClient(tc)
	return s
}

// CreatePullRequest opens a PR from the branch onto the base branch and
// applies any labels. Label failures are logged, not fatal: the PR exists.
func (s *Service) CreatePullRequest(ctx context.Context, pr interfaces.PRContext) (string, error) {
	if s.client == nil {
		s.logger.Warn().Str("branch", pr.BranchName).Msg("Pull request skipped: GitHub backend not configured")
		return "", nil
	}

	created, _, err := s.client.PullRequests.Create(ctx, s.owner, s.repo, &github.NewPullRequest{
		Title: github.String(pr.Title),
		Head:  github.String(pr.BranchName),
		Base:  github.String(s.base),
		Body:  github.String(pr.Body),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create pull request for %s: %w", pr.BranchName, err)
	}

	if len(pr.Labels) > 0 {
		if _, _, err := s.client.Issues.AddLabelsToIssue(ctx, s.owner, s.repo, created.GetNumber(), pr.Labels); err != nil {
			s.logger.Warn().Err(err).Int("number", created.GetNumber()).Msg("Failed to apply pull request labels")
		}
	}

	s.logger.Info().
		Str("branch", pr.BranchName).
		Str("url", created.GetHTMLURL()).
		Msg("Pull request created")
	return created.GetHTMLURL(), nil
}

var _ interfaces.PRCreator = (*Service)(nil)
