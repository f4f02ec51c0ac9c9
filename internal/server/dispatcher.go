package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/dawbrn/internal/apperrors"
	"git.home.luguber.info/inful/dawbrn/internal/config"
	"git.home.luguber.info/inful/dawbrn/internal/events"
	"git.home.luguber.info/inful/dawbrn/internal/github"
	"git.home.luguber.info/inful/dawbrn/internal/history"
	"git.home.luguber.info/inful/dawbrn/internal/logfields"
	"git.home.luguber.info/inful/dawbrn/internal/logging"
	"git.home.luguber.info/inful/dawbrn/internal/metrics"
	"git.home.luguber.info/inful/dawbrn/internal/pipeline"
)

// branchPrefix is the refs/heads/ prefix on push event refs.
const branchPrefix = "refs/heads/"

// Deployer is the pipeline surface the dispatcher drives.
type Deployer interface {
	BuildDeploy(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
	Undeploy(ctx context.Context, deployDir, deployURL string) error
}

// Dispatcher routes authenticated webhook payloads to deployments. The
// deployment itself runs as a background goroutine; Dispatch returns as
// soon as the work is launched so webhook responses stay fast.
type Dispatcher struct {
	cfg      *config.Store
	deployer Deployer
	gh       *github.Client
	store    history.Store
	recorder metrics.Recorder
	outbox   events.Publisher

	// base is the parent of all background deployments; cancelling it
	// (process shutdown) cancels every in-flight pipeline.
	base context.Context
	wg   sync.WaitGroup
}

// NewDispatcher assembles a dispatcher. store and outbox may be nil
// when history or event publishing is not configured.
func NewDispatcher(base context.Context, cfg *config.Store, deployer Deployer, gh *github.Client, store history.Store, recorder metrics.Recorder, outbox events.Publisher) *Dispatcher {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if outbox == nil {
		outbox = events.Noop{}
	}
	return &Dispatcher{
		cfg:      cfg,
		deployer: deployer,
		gh:       gh,
		store:    store,
		recorder: recorder,
		outbox:   outbox,
		base:     base,
	}
}

// Dispatch routes one webhook delivery. A nil return means the event
// was accepted: either a deployment was launched in the background or
// the event needed no action. Client errors mark malformed payloads;
// an unknown event type is an internal error.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, body []byte) error {
	d.recorder.IncWebhookEvent(event)
	cfg := d.cfg.Snapshot()

	switch event {
	case "ping":
		slog.InfoContext(ctx, "webhook ping", logfields.Event(event))
		return nil
	case "push":
		return d.dispatchPush(ctx, cfg, body)
	case "create":
		return d.dispatchCreate(ctx, cfg, body)
	case "pull_request":
		return d.dispatchPullRequest(ctx, cfg, body)
	default:
		return apperrors.Internal("unknown event type "+event, nil)
	}
}

func (d *Dispatcher) dispatchPush(ctx context.Context, cfg *config.Config, body []byte) error {
	var ev github.PushEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return apperrors.Clientf("malformed push payload: %v", err)
	}

	if !cfg.RefAllowed(ev.Ref) {
		slog.DebugContext(ctx, "ignoring branch", logfields.Ref(ev.Ref))
		return nil
	}
	branch := strings.TrimPrefix(ev.Ref, branchPrefix)
	deployDir := "dev/" + branch

	slog.InfoContext(ctx, "building branch",
		logfields.Ref(branch),
		slog.String("repo", ev.Repository.FullName),
		logfields.DeployDir(deployDir))

	req := pipeline.Request{
		SourceURL: ev.Repository.HTMLURL,
		SourceRef: branch,
		DeployDir: deployDir,
		DeployURL: github.DeployURL(cfg.GitHub.Token, cfg.GitHub.PagesStub),
	}
	reporter := github.NewCommitStatusReporter(d.gh, ev.Repository.FullName, ev.HeadSHA(),
		github.PagesURL(cfg.GitHub.PagesStub, deployDir))

	d.launch(ctx, deployTask{
		event: "push",
		repo:  ev.Repository.FullName,
		ref:   branch,
		req:   req,
		run: func(bctx context.Context) (pipeline.Result, error) {
			reporter.Begin(bctx)
			res, err := d.deployer.BuildDeploy(bctx, req)
			reporter.Finish(bctx, res.Outcome, err)
			return res, err
		},
	})
	return nil
}

func (d *Dispatcher) dispatchCreate(ctx context.Context, cfg *config.Config, body []byte) error {
	var ev github.CreateEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return apperrors.Clientf("malformed create payload: %v", err)
	}

	if ev.RefType != "tag" {
		slog.DebugContext(ctx, "ignoring ref type", slog.String("ref_type", ev.RefType))
		return nil
	}

	slog.InfoContext(ctx, "building tag",
		logfields.Ref(ev.Ref),
		slog.String("repo", ev.Repository.FullName))

	req := pipeline.Request{
		SourceURL: ev.Repository.HTMLURL,
		SourceRef: ev.Ref,
		DeployDir: ev.Ref,
		DeployURL: github.DeployURL(cfg.GitHub.Token, cfg.GitHub.PagesStub),
	}
	d.launch(ctx, deployTask{
		event: "create",
		repo:  ev.Repository.FullName,
		ref:   ev.Ref,
		req:   req,
		run: func(bctx context.Context) (pipeline.Result, error) {
			return d.deployer.BuildDeploy(bctx, req)
		},
	})
	return nil
}

func (d *Dispatcher) dispatchPullRequest(ctx context.Context, cfg *config.Config, body []byte) error {
	var ev github.PullRequestEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return apperrors.Clientf("malformed pull_request payload: %v", err)
	}
	deployDir := "PR/" + strconv.Itoa(ev.Number)

	switch ev.Action {
	case "opened", "reopened", "synchronize":
		slog.InfoContext(ctx, "building pull request",
			slog.Int("pr", ev.Number),
			logfields.Ref(ev.PullRequest.Head.Ref),
			slog.String("repo", ev.PullRequest.Head.Repo.FullName))

		req := pipeline.Request{
			SourceURL: ev.PullRequest.Head.Repo.HTMLURL,
			SourceRef: ev.PullRequest.Head.Ref,
			DeployDir: deployDir,
			DeployURL: github.DeployURL(cfg.GitHub.Token, cfg.GitHub.PagesPRStub),
		}
		reporter := github.NewPRCommentReporter(d.gh, ev.Repository.FullName, ev.Number,
			ev.PullRequest.Head.SHA, github.PagesURL(cfg.GitHub.PagesPRStub, deployDir))

		d.launch(ctx, deployTask{
			event: "pull_request",
			repo:  ev.Repository.FullName,
			ref:   ev.PullRequest.Head.Ref,
			req:   req,
			run: func(bctx context.Context) (pipeline.Result, error) {
				res, err := d.deployer.BuildDeploy(bctx, req)
				reporter.Finish(bctx, res.Outcome, err)
				return res, err
			},
		})
		return nil
	case "closed":
		slog.InfoContext(ctx, "pull request closed, removing publication",
			slog.Int("pr", ev.Number),
			logfields.DeployDir(deployDir))

		deployURL := github.DeployURL(cfg.GitHub.Token, cfg.GitHub.PagesPRStub)
		d.launch(ctx, deployTask{
			event: "undeploy",
			repo:  ev.Repository.FullName,
			req:   pipeline.Request{DeployDir: deployDir, DeployURL: deployURL},
			run: func(bctx context.Context) (pipeline.Result, error) {
				return pipeline.Result{}, d.deployer.Undeploy(bctx, deployDir, deployURL)
			},
		})
		return nil
	default:
		slog.DebugContext(ctx, "ignoring pull request action", slog.String("action", ev.Action))
		return nil
	}
}

// deployTask is one launched background deployment.
type deployTask struct {
	event string
	repo  string
	ref   string
	req   pipeline.Request
	run   func(ctx context.Context) (pipeline.Result, error)
}

// launch spawns the deployment. The background context derives from
// the dispatcher's base, not the webhook request, so it survives the
// HTTP response; the request's correlation id is carried over so the
// deployment's log records join the webhook's.
func (d *Dispatcher) launch(ctx context.Context, t deployTask) {
	id := logging.IDFromContext(ctx)
	if id == "" {
		id = logging.NewID()
	}
	bctx := logging.WithID(d.base, id)
	taskID := uuid.NewString()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		started := time.Now()
		res, err := t.run(bctx)
		d.finish(bctx, t, taskID, started, res, err)
	}()
}

// finish is the done-callback of a background deployment: it logs the
// outcome and feeds history, metrics and the event stream.
func (d *Dispatcher) finish(ctx context.Context, t deployTask, taskID string, started time.Time, res pipeline.Result, err error) {
	finished := time.Now()
	label := outcomeLabel(res, err)

	detail := ""
	switch {
	case err != nil:
		detail = err.Error()
		slog.ErrorContext(ctx, "deployment failed",
			logfields.TaskID(taskID),
			logfields.Event(t.event),
			logfields.DeployDir(t.req.DeployDir),
			slog.String("error_traceback", apperrors.Tag(err)),
			logfields.Error(err))
	default:
		slog.InfoContext(ctx, "deployment finished",
			logfields.TaskID(taskID),
			logfields.Event(t.event),
			logfields.DeployDir(t.req.DeployDir),
			logfields.Outcome(string(label)))
	}

	d.recorder.IncDeployOutcome(t.event, label)
	d.recorder.ObserveDeployDuration(label, finished.Sub(started))

	if d.store != nil {
		rec := history.Record{
			TaskID:     taskID,
			Event:      t.event,
			Repo:       t.repo,
			Ref:        t.ref,
			DeployDir:  t.req.DeployDir,
			SourceSHA:  res.SourceSHA,
			Outcome:    string(label),
			Detail:     detail,
			StartedAt:  started,
			FinishedAt: finished,
		}
		if herr := d.store.Append(context.WithoutCancel(ctx), rec); herr != nil {
			slog.WarnContext(ctx, "unable to record deployment history", logfields.Error(herr))
		}
	}

	dep := events.Deployment{
		TaskID:     taskID,
		Event:      t.event,
		Repo:       t.repo,
		Ref:        t.ref,
		DeployDir:  t.req.DeployDir,
		SourceSHA:  res.SourceSHA,
		Outcome:    string(label),
		Detail:     detail,
		FinishedAt: finished,
	}
	if perr := d.outbox.PublishDeployment(context.WithoutCancel(ctx), dep); perr != nil {
		slog.WarnContext(ctx, "unable to publish deployment event", logfields.Error(perr))
	}
}

// Wait blocks until all launched deployments have finished. Called
// during shutdown after the base context has been cancelled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func outcomeLabel(res pipeline.Result, err error) metrics.OutcomeLabel {
	if err == nil {
		switch res.Outcome {
		case pipeline.OutcomeWarning:
			return metrics.OutcomeWarning
		case pipeline.OutcomeFailure:
			return metrics.OutcomeFailure
		default:
			return metrics.OutcomeSuccess
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return metrics.OutcomeCancelled
	}
	return metrics.OutcomeError
}
