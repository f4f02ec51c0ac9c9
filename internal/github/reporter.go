package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/dawbrn/internal/apperrors"
	"git.home.luguber.info/inful/dawbrn/internal/logfields"
	"git.home.luguber.info/inful/dawbrn/internal/pipeline"
)

// statusContext names this service in the forge's status UI.
const statusContext = "dawbrn"

// logName is the file the builder writes its output to, published
// alongside the build artifacts.
const logName = "dawbrn.log"

// CommitStatusReporter posts a pending commit status when a
// push-triggered build starts and a terminal status when it ends.
// Posting is best-effort: network failures are logged, never raised,
// so reporting cannot shadow the build's real outcome.
type CommitStatusReporter struct {
	client     *Client
	slug       string
	sha        string
	successURL string
}

// NewCommitStatusReporter reports on the commit sha in the repository
// named by slug. successURL is where the published result will live.
func NewCommitStatusReporter(client *Client, slug, sha, successURL string) *CommitStatusReporter {
	return &CommitStatusReporter{client: client, slug: slug, sha: sha, successURL: successURL}
}

// Begin marks the commit as pending.
func (r *CommitStatusReporter) Begin(ctx context.Context) {
	r.post(ctx, CommitStatus{
		State:       "pending",
		Description: "Build in progress",
		Context:     statusContext,
	})
}

// Finish posts the terminal status for the build. A cancelled build
// posts nothing: its successor owns the commit's terminal status.
func (r *CommitStatusReporter) Finish(ctx context.Context, outcome pipeline.Outcome, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.DebugContext(ctx, "suppressing terminal status for cancelled build",
			slog.String("sha", r.sha))
		return
	}
	r.post(ctx, r.terminalStatus(outcome, err))
}

func (r *CommitStatusReporter) terminalStatus(outcome pipeline.Outcome, err error) CommitStatus {
	logURL := r.successURL + "/" + logName

	if err == nil {
		switch outcome {
		case pipeline.OutcomeWarning:
			return CommitStatus{State: "success", TargetURL: logURL,
				Description: "Build completed with warnings", Context: statusContext}
		case pipeline.OutcomeFailure:
			return CommitStatus{State: "failure", TargetURL: logURL,
				Description: "Build failed", Context: statusContext}
		default:
			return CommitStatus{State: "success", TargetURL: r.successURL,
				Description: "Build completed ok", Context: statusContext}
		}
	}

	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr.Kind == apperrors.KindSubprocess {
		return CommitStatus{State: "failure", Description: appErr.Message, Context: statusContext}
	}
	return CommitStatus{State: "error",
		Description: "Internal error: " + errorLabel(err), Context: statusContext}
}

func (r *CommitStatusReporter) post(ctx context.Context, status CommitStatus) {
	slog.DebugContext(ctx, "posting commit status",
		slog.String("state", status.State),
		slog.String("sha", r.sha))

	// The post must survive the pipeline context being torn down
	// between the outcome decision and the HTTP call.
	if err := r.client.CreateCommitStatus(context.WithoutCancel(ctx), r.slug, r.sha, status); err != nil {
		slog.ErrorContext(ctx, "unable to post commit status",
			slog.String("state", status.State),
			slog.String("sha", r.sha),
			logfields.Error(err))
		return
	}
	slog.InfoContext(ctx, "posted commit status",
		slog.String("state", status.State),
		slog.String("sha", r.sha))
}

// PRCommentReporter posts a single issue comment when a pull request
// build ends. There is no entry-time comment.
type PRCommentReporter struct {
	client     *Client
	slug       string
	number     int
	sha        string
	successURL string
}

// NewPRCommentReporter reports on pull request number in the
// repository named by slug. sha is the head commit of the pull
// request; successURL is where the published result will live.
func NewPRCommentReporter(client *Client, slug string, number int, sha, successURL string) *PRCommentReporter {
	return &PRCommentReporter{client: client, slug: slug, number: number, sha: sha, successURL: successURL}
}

// Finish posts the outcome comment. Cancellation is an error-category
// exit and still produces a comment, so PR authors are not left with
// silence when their build was displaced.
func (r *PRCommentReporter) Finish(ctx context.Context, outcome pipeline.Outcome, err error) {
	shortsha := ShortSHA(r.sha)

	var state, body string
	if err == nil {
		switch outcome {
		case pipeline.OutcomeWarning:
			state = "success"
			body = fmt.Sprintf("[Build completed with warnings](%s) (commit %s) [Full Log](%s/%s)",
				r.successURL, shortsha, r.successURL, logName)
		case pipeline.OutcomeFailure:
			state = "failure"
			body = fmt.Sprintf("[Build failed](%s) (commit %s) [Full Log](%s/%s)",
				r.successURL, shortsha, r.successURL, logName)
		default:
			state = "success"
			body = fmt.Sprintf("[Build completed ok](%s) (commit %s) [Full Log](%s/%s)",
				r.successURL, shortsha, r.successURL, logName)
		}
	} else {
		state = "error"
		body = fmt.Sprintf("Internal error (commit %s): %s", shortsha, errorLabel(err))
	}

	slog.DebugContext(ctx, "posting pull request comment",
		slog.String("state", state),
		slog.Int("pr", r.number),
		slog.String("sha", r.sha))

	if postErr := r.client.CreateIssueComment(context.WithoutCancel(ctx), r.slug, r.number, body); postErr != nil {
		slog.ErrorContext(ctx, "unable to post pull request comment",
			slog.String("state", state),
			slog.Int("pr", r.number),
			logfields.Error(postErr))
		return
	}
	slog.InfoContext(ctx, "posted pull request comment",
		slog.String("state", state),
		slog.Int("pr", r.number))
}

// errorLabel names an error for human-facing status text.
func errorLabel(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "Cancelled"
	}
	return apperrors.KindOf(err).Label()
}
