// Package github talks to the GitHub REST API for build status
// reporting and defines the webhook payload types the dispatcher
// routes on.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

const (
	// DefaultAPIURL is the public GitHub REST endpoint.
	DefaultAPIURL = "https://api.github.com"

	apiVersion = "2022-11-28"
	userAgent  = "dawbrn/1.0"
)

// Client is a minimal GitHub REST client scoped to the endpoints the
// service needs: commit statuses and issue comments.
type Client struct {
	apiURL     string
	token      string
	httpClient *http.Client
}

// NewClient creates a client authenticating with token. An empty
// apiURL selects the public GitHub endpoint.
func NewClient(apiURL, token string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		apiURL:     apiURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CommitStatus is the payload of the commit status endpoint.
type CommitStatus struct {
	State       string `json:"state"`
	TargetURL   string `json:"target_url,omitempty"`
	Description string `json:"description,omitempty"`
	Context     string `json:"context"`
}

// CreateCommitStatus posts a status for a commit in the repository
// named by slug ("owner/name").
func (c *Client) CreateCommitStatus(ctx context.Context, slug, sha string, status CommitStatus) error {
	endpoint := fmt.Sprintf("/repos/%s/statuses/%s", slug, sha)
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, status)
	if err != nil {
		return err
	}
	return c.doRequest(req, nil)
}

// CreateIssueComment posts a comment on the issue or pull request
// number in the repository named by slug.
func (c *Client) CreateIssueComment(ctx context.Context, slug string, number int, body string) error {
	endpoint := fmt.Sprintf("/repos/%s/issues/%d/comments", slug, number)
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, map[string]string{"body": body})
	if err != nil {
		return err
	}
	return c.doRequest(req, nil)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, err
	}
	u.Path = path.Join(u.Path, endpoint)

	var req *http.Request
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		req, err = http.NewRequestWithContext(ctx, method, u.String(), strings.NewReader(string(jsonBody)))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), nil)
		if err != nil {
			return nil, err
		}
	}

	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)

	return req, nil
}

func (c *Client) doRequest(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("github API error: %s %s: %s", req.Method, req.URL.Path, resp.Status)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}
