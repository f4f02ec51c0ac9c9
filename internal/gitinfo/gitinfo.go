// Package gitinfo inspects local git checkouts.
package gitinfo

import (
	"fmt"

	git "github.com/go-git/go-git/v5"
)

// HeadCommit returns the full hex hash of HEAD in the checkout at dir.
// Webhook payloads for tag creation carry no commit hash, so the hash
// recorded for those deployments is resolved from the clone instead.
func HeadCommit(dir string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("open repository %s: %w", dir, err)
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD in %s: %w", dir, err)
	}

	return head.Hash().String(), nil
}
