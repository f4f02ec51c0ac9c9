package github

import (
	"fmt"
	"strings"
)

// DeployURL returns the token-authenticated push URL for the
// publication repository named by stub ("owner/name"). The result
// embeds the token and must never be logged raw.
func DeployURL(token, stub string) string {
	return fmt.Sprintf("https://%s@github.com/%s.git", token, stub)
}

// PagesURL returns the public static-hosting URL for a publication
// path inside the repository named by stub.
func PagesURL(stub, deployDir string) string {
	owner, repo, _ := strings.Cut(stub, "/")
	return fmt.Sprintf("https://%s.github.io/%s/%s", owner, repo, deployDir)
}

// ShortSHA abbreviates a commit hash for human-facing text.
func ShortSHA(sha string) string {
	if len(sha) <= 8 {
		return sha
	}
	return sha[:8]
}
