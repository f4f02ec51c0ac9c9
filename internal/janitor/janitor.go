// Package janitor periodically sweeps stale workspace directories.
// Workspaces are removed by their owning task on every normal exit
// path, so anything old enough to be swept was left by a crash.
package janitor

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/dawbrn/internal/logfields"
	"git.home.luguber.info/inful/dawbrn/internal/workspace"
)

// Janitor runs the workspace sweep on a fixed interval.
type Janitor struct {
	scheduler  gocron.Scheduler
	workspaces *workspace.Manager
	maxAge     time.Duration
}

// New creates a janitor sweeping workspaces older than maxAge every
// interval.
func New(workspaces *workspace.Manager, interval, maxAge time.Duration) (*Janitor, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	j := &Janitor{scheduler: s, workspaces: workspaces, maxAge: maxAge}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(j.Sweep),
		gocron.WithName("workspace-sweep"),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("schedule workspace sweep: %w", err)
	}
	return j, nil
}

// Start begins the periodic sweep.
func (j *Janitor) Start() {
	slog.Info("starting workspace janitor",
		logfields.Path(j.workspaces.Root()),
		slog.Duration("max_age", j.maxAge))
	j.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for a running sweep.
func (j *Janitor) Stop() error {
	return j.scheduler.Shutdown()
}

// Sweep removes workspaces older than the configured age. It is the
// scheduled task body, exported so operators can trigger it manually.
func (j *Janitor) Sweep() {
	removed, err := j.workspaces.SweepStale(j.maxAge)
	if err != nil {
		slog.Error("workspace sweep failed", logfields.Error(err))
		return
	}
	if removed > 0 {
		slog.Info("workspace sweep complete", slog.Int("removed", removed))
	}
}
