package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	gh "github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/interfaces"
)

func testService(t *testing.T, handler http.Handler) *Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := gh.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	return &Service{
		client: client,
		owner:  "acme",
		repo:   "widgets",
		base:   "main",
		logger: arbor.NewLogger(),
	}
}

func TestService_CreatePullRequest(t *testing.T) {
	var gotPR map[string]interface{}
	var gotLabels []string

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPR))
		fmt.Fprint(w, `{"number": 9, "html_url": "https://github.com/acme/widgets/pull/9"}`)
	})
	mux.HandleFunc("/repos/acme/widgets/issues/9/labels", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotLabels))
		fmt.Fprint(w, `[{"name": "automated"}, {"name": "duplicate-detection"}]`)
	})
	svc := testService(t, mux)

	prURL, err := svc.CreatePullRequest(context.Background(), interfaces.PRContext{
		BranchName: "geminus/scan-dedup-1700000000000",
		Title:      "Automated scan changes (j1)",
		Body:       "Changed files:\n- internal/a.go\n",
		Labels:     []string{"automated", "duplicate-detection"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widgets/pull/9", prURL)

	assert.Equal(t, "Automated scan changes (j1)", gotPR["title"])
	assert.Equal(t, "geminus/scan-dedup-1700000000000", gotPR["head"])
	assert.Equal(t, "main", gotPR["base"])
	assert.Equal(t, []string{"automated", "duplicate-detection"}, gotLabels)
}

func TestService_CreatePullRequest_LabelFailureIsNonFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number": 9, "html_url": "https://github.com/acme/widgets/pull/9"}`)
	})
	mux.HandleFunc("/repos/acme/widgets/issues/9/labels", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Validation Failed"}`, http.StatusUnprocessableEntity)
	})
	svc := testService(t, mux)

	prURL, err := svc.CreatePullRequest(context.Background(), interfaces.PRContext{
		BranchName: "geminus/scan-x-1",
		Title:      "t",
		Labels:     []string{"automated"},
	})
	require.NoError(t, err, "the PR exists even when labelling fails")
	assert.Equal(t, "https://github.com/acme/widgets/pull/9", prURL)
}

func TestService_CreatePullRequest_APIErrorSurfaces(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Validation Failed"}`, http.StatusUnprocessableEntity)
	})
	svc := testService(t, mux)

	_, err := svc.CreatePullRequest(context.Background(), interfaces.PRContext{BranchName: "geminus/scan-x-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geminus/scan-x-1")
}

func TestNewService_UnconfiguredSkipsQuietly(t *testing.T) {
	svc := NewService(common.GitConfig{BaseBranch: "main"}, arbor.NewLogger())
	require.NotNil(t, svc)

	prURL, err := svc.CreatePullRequest(context.Background(), interfaces.PRContext{BranchName: "geminus/scan-x-1"})
	require.NoError(t, err)
	assert.Empty(t, prURL, "missing credentials must degrade, not fail the workflow")
}

func TestNewService_ConfiguredBuildsClient(t *testing.T) {
	svc := NewService(common.GitConfig{
		BaseBranch: "develop",
		GitHub:     common.GitHubConfig{Token: "tok", Owner: "acme", Repo: "widgets"},
	}, arbor.NewLogger())

	require.NotNil(t, svc.client)
	assert.Equal(t, "develop", svc.base)
}
