package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/dawbrn/internal/apperrors"
	"git.home.luguber.info/inful/dawbrn/internal/config"
	"git.home.luguber.info/inful/dawbrn/internal/github"
	"git.home.luguber.info/inful/dawbrn/internal/pipeline"
)

type fakeDeployer struct {
	mu        sync.Mutex
	deploys   []pipeline.Request
	undeploys []string
	result    pipeline.Result
	err       error
}

func (f *fakeDeployer) BuildDeploy(_ context.Context, req pipeline.Request) (pipeline.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deploys = append(f.deploys, req)
	return f.result, f.err
}

func (f *fakeDeployer) Undeploy(_ context.Context, deployDir, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.undeploys = append(f.undeploys, deployDir)
	return f.err
}

// apiCall is one captured request to the fake GitHub API.
type apiCall struct {
	path string
	body map[string]any
}

func fakeGitHubAPI(t *testing.T) (*github.Client, *[]apiCall) {
	t.Helper()

	var mu sync.Mutex
	calls := &[]apiCall{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		*calls = append(*calls, apiCall{path: r.URL.Path, body: body})
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(ts.Close)

	return github.NewClient(ts.URL, "testtoken"), calls
}

func testConfigStore() *config.Store {
	cfg := &config.Config{}
	cfg.GitHub.Token = "testtoken"
	cfg.GitHub.PagesStub = "owner/pages"
	cfg.GitHub.PagesPRStub = "owner/pages-pr"
	cfg.Build.AllowedRefs = []string{"refs/heads/master", "refs/heads/asciidoctor-mvn"}
	return config.NewStore(cfg)
}

func newTestDispatcher(t *testing.T, deployer *fakeDeployer) (*Dispatcher, *[]apiCall) {
	t.Helper()
	gh, calls := fakeGitHubAPI(t)
	return NewDispatcher(context.Background(), testConfigStore(), deployer, gh, nil, nil, nil), calls
}

func TestDispatchPing(t *testing.T) {
	d, calls := newTestDispatcher(t, &fakeDeployer{})

	require.NoError(t, d.Dispatch(context.Background(), "ping", []byte(`{"zen":"ok"}`)))
	d.Wait()
	assert.Empty(t, *calls)
}

func TestDispatchUnknownEventIsInternal(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeDeployer{})

	err := d.Dispatch(context.Background(), "deployment_status", []byte(`{}`))
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))
}

func TestDispatchPushAllowedBranch(t *testing.T) {
	deployer := &fakeDeployer{result: pipeline.Result{Outcome: pipeline.OutcomeSuccess}}
	d, calls := newTestDispatcher(t, deployer)

	body := []byte(`{
		"ref": "refs/heads/master",
		"after": "abcd1234abcd1234",
		"repository": {"html_url": "https://github.com/owner/src", "full_name": "owner/src"}
	}`)
	require.NoError(t, d.Dispatch(context.Background(), "push", body))
	d.Wait()

	require.Len(t, deployer.deploys, 1)
	req := deployer.deploys[0]
	assert.Equal(t, "https://github.com/owner/src", req.SourceURL)
	assert.Equal(t, "master", req.SourceRef)
	assert.Equal(t, "dev/master", req.DeployDir)
	assert.Equal(t, "https://testtoken@github.com/owner/pages.git", req.DeployURL)

	// pending at entry, terminal at exit
	require.Len(t, *calls, 2)
	pending, terminal := (*calls)[0], (*calls)[1]
	assert.Equal(t, "/repos/owner/src/statuses/abcd1234abcd1234", pending.path)
	assert.Equal(t, "pending", pending.body["state"])
	assert.Equal(t, "success", terminal.body["state"])
	assert.Equal(t, "https://owner.github.io/pages/dev/master", terminal.body["target_url"])
}

func TestDispatchPushIgnoredBranch(t *testing.T) {
	deployer := &fakeDeployer{}
	d, calls := newTestDispatcher(t, deployer)

	body := []byte(`{
		"ref": "refs/heads/feature/shiny",
		"repository": {"html_url": "https://github.com/owner/src", "full_name": "owner/src"}
	}`)
	require.NoError(t, d.Dispatch(context.Background(), "push", body))
	d.Wait()

	assert.Empty(t, deployer.deploys)
	assert.Empty(t, *calls)
}

func TestDispatchPushFailureStatus(t *testing.T) {
	deployer := &fakeDeployer{result: pipeline.Result{Outcome: pipeline.OutcomeFailure}}
	d, calls := newTestDispatcher(t, deployer)

	body := []byte(`{
		"ref": "refs/heads/master",
		"after": "beef",
		"repository": {"html_url": "https://github.com/owner/src", "full_name": "owner/src"}
	}`)
	require.NoError(t, d.Dispatch(context.Background(), "push", body))
	d.Wait()

	require.Len(t, *calls, 2)
	terminal := (*calls)[1]
	assert.Equal(t, "failure", terminal.body["state"])
	assert.Equal(t, "https://owner.github.io/pages/dev/master/dawbrn.log", terminal.body["target_url"])
}

func TestDispatchCreateTag(t *testing.T) {
	deployer := &fakeDeployer{result: pipeline.Result{Outcome: pipeline.OutcomeSuccess}}
	d, calls := newTestDispatcher(t, deployer)

	body := []byte(`{
		"ref": "v1.2.3",
		"ref_type": "tag",
		"repository": {"html_url": "https://github.com/owner/src", "full_name": "owner/src"}
	}`)
	require.NoError(t, d.Dispatch(context.Background(), "create", body))
	d.Wait()

	require.Len(t, deployer.deploys, 1)
	assert.Equal(t, "v1.2.3", deployer.deploys[0].SourceRef)
	assert.Equal(t, "v1.2.3", deployer.deploys[0].DeployDir)
	// tag builds report no status
	assert.Empty(t, *calls)
}

func TestDispatchCreateBranchIgnored(t *testing.T) {
	deployer := &fakeDeployer{}
	d, _ := newTestDispatcher(t, deployer)

	body := []byte(`{
		"ref": "new-branch",
		"ref_type": "branch",
		"repository": {"html_url": "https://github.com/owner/src", "full_name": "owner/src"}
	}`)
	require.NoError(t, d.Dispatch(context.Background(), "create", body))
	d.Wait()
	assert.Empty(t, deployer.deploys)
}

func TestDispatchPullRequestOpened(t *testing.T) {
	deployer := &fakeDeployer{result: pipeline.Result{Outcome: pipeline.OutcomeSuccess}}
	d, calls := newTestDispatcher(t, deployer)

	body := []byte(`{
		"action": "opened",
		"number": 42,
		"repository": {"html_url": "https://github.com/owner/src", "full_name": "owner/src"},
		"pull_request": {"head": {
			"ref": "fix-typo",
			"sha": "beefbeefbeefbeef",
			"repo": {"html_url": "https://github.com/fork/src", "full_name": "fork/src"}
		}}
	}`)
	require.NoError(t, d.Dispatch(context.Background(), "pull_request", body))
	d.Wait()

	require.Len(t, deployer.deploys, 1)
	req := deployer.deploys[0]
	assert.Equal(t, "https://github.com/fork/src", req.SourceURL)
	assert.Equal(t, "fix-typo", req.SourceRef)
	assert.Equal(t, "PR/42", req.DeployDir)
	assert.Equal(t, "https://testtoken@github.com/owner/pages-pr.git", req.DeployURL)

	// a single exit-time comment, no pending
	require.Len(t, *calls, 1)
	comment := (*calls)[0]
	assert.Equal(t, "/repos/owner/src/issues/42/comments", comment.path)
	text, _ := comment.body["body"].(string)
	assert.Contains(t, text, "https://owner.github.io/pages-pr/PR/42")
	assert.Contains(t, text, "dawbrn.log")
	assert.Contains(t, text, "beefbeef")
}

func TestDispatchPullRequestClosed(t *testing.T) {
	deployer := &fakeDeployer{}
	d, calls := newTestDispatcher(t, deployer)

	body := []byte(`{
		"action": "closed",
		"number": 42,
		"repository": {"html_url": "https://github.com/owner/src", "full_name": "owner/src"}
	}`)
	require.NoError(t, d.Dispatch(context.Background(), "pull_request", body))
	d.Wait()

	assert.Empty(t, deployer.deploys)
	assert.Equal(t, []string{"PR/42"}, deployer.undeploys)
	assert.Empty(t, *calls)
}

func TestDispatchPullRequestOtherActionIgnored(t *testing.T) {
	deployer := &fakeDeployer{}
	d, _ := newTestDispatcher(t, deployer)

	body := []byte(`{"action": "labeled", "number": 42, "repository": {"full_name": "owner/src"}}`)
	require.NoError(t, d.Dispatch(context.Background(), "pull_request", body))
	d.Wait()
	assert.Empty(t, deployer.deploys)
	assert.Empty(t, deployer.undeploys)
}

func TestDispatchMalformedPayload(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeDeployer{})

	payloads := map[string]string{
		"push":         `{"ref": 12345}`,
		"create":       `{"ref_type": 12345}`,
		"pull_request": `{"action": 12345}`,
	}
	for event, payload := range payloads {
		err := d.Dispatch(context.Background(), event, []byte(payload))
		require.Error(t, err, event)
		assert.Equal(t, apperrors.KindClient, apperrors.KindOf(err), event)
	}
}

func TestDispatchDeployErrorReportedAsError(t *testing.T) {
	deployer := &fakeDeployer{err: apperrors.Deploy("giving up", nil)}
	d, calls := newTestDispatcher(t, deployer)

	body := []byte(`{
		"ref": "refs/heads/master",
		"after": "abcd",
		"repository": {"html_url": "https://github.com/owner/src", "full_name": "owner/src"}
	}`)
	require.NoError(t, d.Dispatch(context.Background(), "push", body))
	d.Wait()

	require.Len(t, *calls, 2)
	terminal := (*calls)[1]
	assert.Equal(t, "error", terminal.body["state"])
	assert.Contains(t, terminal.body["description"], "DeployError")
}

func TestOutcomeLabel(t *testing.T) {
	tests := []struct {
		name string
		res  pipeline.Result
		err  error
		want string
	}{
		{"success", pipeline.Result{Outcome: pipeline.OutcomeSuccess}, nil, "success"},
		{"warning", pipeline.Result{Outcome: pipeline.OutcomeWarning}, nil, "warning"},
		{"failure", pipeline.Result{Outcome: pipeline.OutcomeFailure}, nil, "failure"},
		{"cancelled", pipeline.Result{}, context.Canceled, "cancelled"},
		{"error", pipeline.Result{}, apperrors.Internal("boom", nil), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(outcomeLabel(tt.res, tt.err)))
		})
	}
}
