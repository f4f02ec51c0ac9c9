// Package publish implements the transaction against the publication
// repository's static-hosting branch: fetch the tip, apply a mutation
// to the working tree, commit, and push, retrying optimistically when
// a concurrent writer advanced the remote.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/dawbrn/internal/apperrors"
	"git.home.luguber.info/inful/dawbrn/internal/logfields"
	"git.home.luguber.info/inful/dawbrn/internal/metrics"
	"git.home.luguber.info/inful/dawbrn/internal/retry"
	"git.home.luguber.info/inful/dawbrn/internal/subprocess"
	"git.home.luguber.info/inful/dawbrn/internal/workspace"
)

// Commits on the static-hosting branch are authored by the service
// itself, never by the pushing user.
const (
	committerName  = "dawbrn"
	committerEmail = "dawbrn@localhost"
)

// Mutation edits the publication working tree. It must confine changes
// to the caller's publication path subtree.
type Mutation func(ctx context.Context, workdir string) error

// Transactor runs publication transactions. One instance is shared by
// all pipelines; it holds no per-transaction state.
type Transactor struct {
	runner     *subprocess.Runner
	workspaces *workspace.Manager
	branch     string
	policy     retry.Policy
	recorder   metrics.Recorder
}

// NewTransactor creates a Transactor publishing to the given branch
// with maxAttempts total attempts per transaction.
func NewTransactor(runner *subprocess.Runner, workspaces *workspace.Manager, branch string, maxAttempts int) *Transactor {
	return &Transactor{
		runner:     runner,
		workspaces: workspaces,
		branch:     branch,
		policy:     retry.NewPolicy(retry.BackoffCumulative, 2*time.Second, 62*time.Second, maxAttempts-1),
		recorder:   metrics.NoopRecorder{},
	}
}

// SetRecorder routes push-retry counts to r.
func (t *Transactor) SetRecorder(r metrics.Recorder) {
	if r != nil {
		t.recorder = r
	}
}

// Transact fetches the branch tip, applies mutation, commits with
// commitMessage and pushes. A rejected push restarts from the fetch on
// the assumption that a concurrent writer advanced the remote; every
// other failure aborts the transaction immediately. When the retry
// budget runs out a deploy error is raised.
func (t *Transactor) Transact(ctx context.Context, repoURL string, mutation Mutation, commitMessage string) error {
	display := logfields.RedactURL(repoURL)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			slog.InfoContext(ctx, "retrying publication",
				logfields.DeployURL(display),
				logfields.Attempt(attempt),
				slog.Duration("delay", t.policy.Delay(attempt)))
			if err := t.policy.Sleep(ctx, attempt); err != nil {
				return err
			}
		}

		pushed, err := t.attempt(ctx, repoURL, commitMessage, mutation)
		if err != nil {
			return err
		}
		if pushed {
			return nil
		}
		if attempt >= t.policy.MaxRetries {
			return apperrors.Deploy(fmt.Sprintf("giving up on publication to %s after %d attempts", display, attempt+1), nil)
		}
		t.recorder.IncPushRetry()
		slog.WarnContext(ctx, "publication push rejected, remote advanced",
			logfields.DeployURL(display),
			logfields.Attempt(attempt))
	}
}

// attempt performs one full fetch/mutate/commit/push cycle in a fresh
// workspace. The workspace is deleted on every exit path. It reports
// whether the transaction completed; false with a nil error means the
// push was rejected and the caller should fetch again.
func (t *Transactor) attempt(ctx context.Context, repoURL, commitMessage string, mutation Mutation) (bool, error) {
	ws, err := t.workspaces.Acquire("publish")
	if err != nil {
		return false, err
	}
	defer ws.Release()
	dir := ws.Path()

	remoteBranch := "origin/" + t.branch
	steps := []struct {
		failMsg string
		args    []string
	}{
		{"", []string{"init"}},
		{"", []string{"remote", "add", "origin", repoURL}},
		{"Could not fetch deployment repository", []string{"fetch", "--depth", "1", "origin", t.branch}},
		{"", []string{"reset", "--hard", remoteBranch}},
		{"", []string{"checkout", "-b", workingBranchName(), remoteBranch}},
	}
	for _, step := range steps {
		if err := t.git(ctx, dir, step.failMsg, step.args...); err != nil {
			return false, err
		}
	}

	if err := mutation(ctx, dir); err != nil {
		return false, err
	}

	if err := t.git(ctx, dir, "", "add", "-A"); err != nil {
		return false, err
	}

	// A mutation that changed nothing makes the commit exit non-zero;
	// the transaction then completes without pushing.
	res, err := t.runner.Run(ctx, "git",
		[]string{"-c", "user.name=" + committerName, "-c", "user.email=" + committerEmail,
			"commit", "-m", commitMessage},
		subprocess.Options{ErrorOK: true, Capture: true, Dir: dir})
	if err != nil {
		return false, err
	}
	if res.ExitCode != 0 {
		slog.InfoContext(ctx, "no publication changes, skipping push",
			logfields.DeployURL(logfields.RedactURL(repoURL)))
		return true, nil
	}

	res, err = t.runner.Run(ctx, "git", []string{"push", "origin", "HEAD:" + t.branch},
		subprocess.Options{ErrorOK: true, Capture: true, Dir: dir})
	if err != nil {
		return false, err
	}
	if res.ExitCode != 0 {
		slog.DebugContext(ctx, "push output", slog.String("output", string(res.Output)))
		return false, nil
	}
	return true, nil
}

func (t *Transactor) git(ctx context.Context, dir, failMsg string, args ...string) error {
	res, err := t.runner.Run(ctx, "git", args,
		subprocess.Options{FailMessage: failMsg, Capture: true, Dir: dir})
	if err != nil {
		slog.DebugContext(ctx, "git command failed",
			logfields.Program("git"),
			slog.String("args", fmt.Sprint(args)),
			slog.String("output", string(res.Output)))
	}
	return err
}

// workingBranchName names the disposable local branch. Its identity is
// irrelevant; it exists so the push can address the remote branch
// explicitly.
func workingBranchName() string {
	return fmt.Sprintf("publish-%d", time.Now().UnixNano())
}
