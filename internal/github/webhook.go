package github

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ValidateSignature checks a webhook body against the X-Hub-Signature
// header value with a constant-time comparison. The current sha256=
// scheme and the legacy sha1= scheme are both accepted.
func ValidateSignature(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	if expected, ok := strings.CutPrefix(signature, "sha256="); ok {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(payload)
		return hmac.Equal([]byte(expected), []byte(hex.EncodeToString(mac.Sum(nil))))
	}

	if expected, ok := strings.CutPrefix(signature, "sha1="); ok {
		mac := hmac.New(sha1.New, []byte(secret))
		mac.Write(payload)
		return hmac.Equal([]byte(expected), []byte(hex.EncodeToString(mac.Sum(nil))))
	}

	return false
}

// Repository is the subset of the webhook repository object the
// dispatcher routes on.
type Repository struct {
	HTMLURL  string `json:"html_url"`
	FullName string `json:"full_name"`
}

// PushEvent is delivered for pushes to a branch.
type PushEvent struct {
	Ref        string     `json:"ref"`
	After      string     `json:"after"`
	Repository Repository `json:"repository"`
	HeadCommit struct {
		ID string `json:"id"`
	} `json:"head_commit"`
}

// HeadSHA returns the pushed tip. The after field is authoritative;
// head_commit is absent on some deliveries.
func (e *PushEvent) HeadSHA() string {
	if e.After != "" {
		return e.After
	}
	return e.HeadCommit.ID
}

// CreateEvent is delivered when a branch or tag is created.
type CreateEvent struct {
	Ref        string     `json:"ref"`
	RefType    string     `json:"ref_type"`
	Repository Repository `json:"repository"`
}

// PullRequestEvent is delivered for pull request lifecycle actions.
type PullRequestEvent struct {
	Action      string     `json:"action"`
	Number      int        `json:"number"`
	Repository  Repository `json:"repository"`
	PullRequest struct {
		Head struct {
			Ref  string     `json:"ref"`
			SHA  string     `json:"sha"`
			Repo Repository `json:"repo"`
		} `json:"head"`
	} `json:"pull_request"`
}
