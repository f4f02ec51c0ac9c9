// Package gittest provides local git repository fixtures for tests.
// Fixtures are plain on-disk repositories addressed by file:// URLs so
// code that shells out to git and code using go-git can share them.
package gittest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// Remote is a bare repository playing the role of a hosted remote.
type Remote struct {
	Dir string
	URL string
}

// InitBare creates an empty bare repository under the test's temp dir.
func InitBare(t *testing.T) *Remote {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "remote.git")
	_, err := git.PlainInit(dir, true)
	require.NoError(t, err)
	return &Remote{Dir: dir, URL: "file://" + dir}
}

// SeedBranch creates the named branch on the remote with one commit
// containing the given files.
func SeedBranch(t *testing.T, remote *Remote, branch string, files map[string]string, message string) {
	t.Helper()

	work := t.TempDir()
	repo, err := git.PlainInit(work, false)
	require.NoError(t, err)

	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{remote.URL},
	})
	require.NoError(t, err)

	writeFiles(t, work, files)
	commit(t, repo, message)

	head, err := repo.Head()
	require.NoError(t, err)
	err = repo.Push(&git.PushOptions{
		RemoteName: "origin",
		RefSpecs: []gitconfig.RefSpec{
			gitconfig.RefSpec(string(head.Name()) + ":refs/heads/" + branch),
		},
	})
	require.NoError(t, err)
}

// PushFiles advances the named branch on the remote by one commit, the
// way a concurrent writer would.
func PushFiles(t *testing.T, remote *Remote, branch string, files map[string]string, message string) {
	t.Helper()

	work := cloneBranch(t, remote, branch)
	repo, err := git.PlainOpen(work)
	require.NoError(t, err)

	writeFiles(t, work, files)
	commit(t, repo, message)

	require.NoError(t, repo.Push(&git.PushOptions{
		RemoteName: "origin",
		RefSpecs: []gitconfig.RefSpec{
			gitconfig.RefSpec("refs/heads/" + branch + ":refs/heads/" + branch),
		},
	}))
}

// Checkout clones the named branch into a fresh directory and returns
// the worktree path for assertions.
func Checkout(t *testing.T, remote *Remote, branch string) string {
	t.Helper()
	return cloneBranch(t, remote, branch)
}

// CommitCount returns the number of commits reachable from the branch tip.
func CommitCount(t *testing.T, remote *Remote, branch string) int {
	t.Helper()

	repo, err := git.PlainOpen(cloneBranch(t, remote, branch))
	require.NoError(t, err)

	iter, err := repo.Log(&git.LogOptions{})
	require.NoError(t, err)
	count := 0
	require.NoError(t, iter.ForEach(func(*object.Commit) error {
		count++
		return nil
	}))
	return count
}

// HeadMessage returns the tip commit message of the branch.
func HeadMessage(t *testing.T, remote *Remote, branch string) string {
	t.Helper()

	repo, err := git.PlainOpen(cloneBranch(t, remote, branch))
	require.NoError(t, err)

	head, err := repo.Head()
	require.NoError(t, err)
	c, err := repo.CommitObject(head.Hash())
	require.NoError(t, err)
	return strings.TrimSuffix(c.Message, "\n")
}

func cloneBranch(t *testing.T, remote *Remote, branch string) string {
	t.Helper()

	dir := t.TempDir()
	_, err := git.PlainClone(dir, false, &git.CloneOptions{
		URL:           remote.URL,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
	})
	require.NoError(t, err)
	return dir
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func commit(t *testing.T, repo *git.Repository, message string) {
	t.Helper()

	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.AddWithOptions(&git.AddOptions{All: true}))

	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "fixture",
			Email: "fixture@localhost",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)
}
