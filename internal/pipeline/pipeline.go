// Package pipeline orchestrates one deployment end to end: claim the
// deployment key, clone the source, run the sandboxed builder, stage
// the results into the publication repository and publish them.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/dawbrn/internal/gitinfo"
	"git.home.luguber.info/inful/dawbrn/internal/logfields"
	"git.home.luguber.info/inful/dawbrn/internal/publish"
	"git.home.luguber.info/inful/dawbrn/internal/registry"
	"git.home.luguber.info/inful/dawbrn/internal/subprocess"
	"git.home.luguber.info/inful/dawbrn/internal/workspace"
)

// builderLogName is the file the builder writes inside the source
// workspace. It is published next to the build artifacts so failed
// builds still leave something to look at.
const builderLogName = "dawbrn.log"

// Pipeline runs deployments. One instance serves all requests; the
// per-deployment state lives on the stack of BuildDeploy.
type Pipeline struct {
	runner     *subprocess.Runner
	workspaces *workspace.Manager
	deploys    *registry.Registry
	transactor *publish.Transactor
	// builder is the argv prefix of the sandboxed builder; the source
	// workspace path is appended as its single argument.
	builder []string
}

// New assembles a Pipeline. builder is the command prefix used to run
// the sandboxed build, typically ["sudo", "/usr/bin/dawbrn_dockerbuild"].
func New(runner *subprocess.Runner, workspaces *workspace.Manager, deploys *registry.Registry, transactor *publish.Transactor, builder []string) *Pipeline {
	return &Pipeline{
		runner:     runner,
		workspaces: workspaces,
		deploys:    deploys,
		transactor: transactor,
		builder:    builder,
	}
}

// BuildDeploy clones req.SourceRef, builds it and publishes the result
// under req.DeployDir. A builder failure is not an error: the build
// log is published in place of the artifacts and the outcome is
// Failure. Errors are reserved for the machinery itself failing.
func (p *Pipeline) BuildDeploy(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The release must run even when the claim fails: a displaced
	// waiter is still the installed task until it signals done, and a
	// successor blocks on that signal.
	release, err := p.deploys.Claim(ctx, registry.Key{RepoURL: req.DeployURL, Path: req.DeployDir}, cancel)
	defer release()
	if err != nil {
		return Result{}, err
	}

	ws, err := p.workspaces.Acquire("build")
	if err != nil {
		return Result{}, err
	}
	defer ws.Release()
	src := ws.Path()

	slog.InfoContext(ctx, "cloning source",
		logfields.Ref(req.SourceRef),
		logfields.URL(req.SourceURL),
		logfields.DeployDir(req.DeployDir))
	_, err = p.runner.Run(ctx, "git",
		[]string{"clone", "--branch", req.SourceRef, "--depth", "1", "--", req.SourceURL, src},
		subprocess.Options{FailMessage: fmt.Sprintf("Could not clone %s from %s", req.SourceRef, req.SourceURL)})
	if err != nil {
		return Result{}, err
	}

	var res Result
	if sha, shaErr := gitinfo.HeadCommit(src); shaErr != nil {
		slog.WarnContext(ctx, "unable to resolve source commit", logfields.Error(shaErr))
	} else {
		res.SourceSHA = sha
	}

	slog.InfoContext(ctx, "running builder",
		logfields.Program(p.builder[0]),
		logfields.Ref(req.SourceRef))
	buildRes, err := p.runner.Run(ctx, p.builder[0], append(p.builder[1:], src),
		subprocess.Options{FailMessage: "Build failed", ErrorOK: true})
	if err != nil {
		return res, err
	}

	logPath := filepath.Join(src, builderLogName)
	builderFailed := buildRes.ExitCode != 0
	if builderFailed {
		errorOutput, readErr := os.ReadFile(logPath)
		if readErr != nil {
			slog.WarnContext(ctx, "builder failed and left no log",
				logfields.ExitCode(buildRes.ExitCode),
				logfields.Error(readErr))
		} else {
			slog.WarnContext(ctx, "builder failed, publishing log only",
				logfields.ExitCode(buildRes.ExitCode),
				slog.Int("log_bytes", len(errorOutput)))
		}
	}

	slog.InfoContext(ctx, "publishing build results",
		logfields.DeployDir(req.DeployDir),
		logfields.DeployURL(logfields.RedactURL(req.DeployURL)))
	mutation := func(ctx context.Context, workdir string) error {
		return stage(workdir, req.DeployDir, src)
	}
	if err := p.transactor.Transact(ctx, req.DeployURL, mutation, "Deploy"); err != nil {
		return res, err
	}

	if builderFailed {
		res.Outcome = OutcomeFailure
		return res, nil
	}

	logContent, readErr := os.ReadFile(logPath)
	if readErr != nil {
		slog.WarnContext(ctx, "could not scan build log for warnings", logfields.Error(readErr))
	}
	if bytes.Contains(bytes.ToUpper(logContent), []byte("WARNING")) {
		res.Outcome = OutcomeWarning
	} else {
		res.Outcome = OutcomeSuccess
	}
	return res, nil
}

// Undeploy removes deployDir from the publication repository. Removing
// a path that is already absent completes without pushing.
func (p *Pipeline) Undeploy(ctx context.Context, deployDir, deployURL string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	release, err := p.deploys.Claim(ctx, registry.Key{RepoURL: deployURL, Path: deployDir}, cancel)
	defer release()
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "removing publication",
		logfields.DeployDir(deployDir),
		logfields.DeployURL(logfields.RedactURL(deployURL)))
	mutation := func(ctx context.Context, workdir string) error {
		return os.RemoveAll(filepath.Join(workdir, deployDir))
	}
	return p.transactor.Transact(ctx, deployURL, mutation, "Undeploy")
}
