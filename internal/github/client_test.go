package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]any
}

// captureServer records every request and answers 201.
func captureServer(t *testing.T) (*httptest.Server, func() []capturedRequest) {
	t.Helper()

	var mu sync.Mutex
	var reqs []capturedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		reqs = append(reqs, capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   body,
		})
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), reqs...)
	}
}

func TestCreateCommitStatus(t *testing.T) {
	srv, recorded := captureServer(t)
	client := NewClient(srv.URL, "sekrit")

	err := client.CreateCommitStatus(context.Background(), "owner/repo", "abc123", CommitStatus{
		State:       "pending",
		Description: "Build in progress",
		Context:     "dawbrn",
	})
	require.NoError(t, err)

	reqs := recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/repos/owner/repo/statuses/abc123", reqs[0].Path)
	assert.Equal(t, "token sekrit", reqs[0].Header.Get("Authorization"))
	assert.Equal(t, "application/vnd.github+json", reqs[0].Header.Get("Accept"))
	assert.Equal(t, "pending", reqs[0].Body["state"])
	assert.Equal(t, "dawbrn", reqs[0].Body["context"])
}

func TestCreateIssueComment(t *testing.T) {
	srv, recorded := captureServer(t)
	client := NewClient(srv.URL, "sekrit")

	err := client.CreateIssueComment(context.Background(), "owner/repo", 7, "hello")
	require.NoError(t, err)

	reqs := recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/repos/owner/repo/issues/7/comments", reqs[0].Path)
	assert.Equal(t, "hello", reqs[0].Body["body"])
}

func TestErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, "sekrit")
	err := client.CreateIssueComment(context.Background(), "owner/repo", 7, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestNewClientDefaultsAPIURL(t *testing.T) {
	client := NewClient("", "tok")
	assert.Equal(t, DefaultAPIURL, client.apiURL)
}
