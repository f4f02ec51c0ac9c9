// Command dawbrn runs the continuous-documentation service: a webhook
// listener that builds pushed sources in a sandbox and publishes the
// artifacts to a GitHub Pages branch.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/dawbrn/internal/config"
	"git.home.luguber.info/inful/dawbrn/internal/events"
	"git.home.luguber.info/inful/dawbrn/internal/github"
	"git.home.luguber.info/inful/dawbrn/internal/history"
	"git.home.luguber.info/inful/dawbrn/internal/janitor"
	"git.home.luguber.info/inful/dawbrn/internal/logfields"
	"git.home.luguber.info/inful/dawbrn/internal/logging"
	"git.home.luguber.info/inful/dawbrn/internal/metrics"
	"git.home.luguber.info/inful/dawbrn/internal/pipeline"
	"git.home.luguber.info/inful/dawbrn/internal/publish"
	"git.home.luguber.info/inful/dawbrn/internal/registry"
	"git.home.luguber.info/inful/dawbrn/internal/server"
	"git.home.luguber.info/inful/dawbrn/internal/subprocess"
	"git.home.luguber.info/inful/dawbrn/internal/workspace"
)

var cli struct {
	Address string `short:"b" help:"Bind address, overriding the configuration." placeholder:"ADDR"`
	Port    int    `short:"p" help:"Bind port, overriding the configuration." placeholder:"PORT"`
	Config  string `short:"c" help:"Configuration file path." default:"dawbrn.yaml"`
	Logfile string `short:"l" help:"Append log records to this file." type:"path"`
	Verbose int    `short:"v" type:"counter" help:"Log more. Repeatable."`
	Quiet   int    `short:"q" type:"counter" help:"Log less. Repeatable."`
	Silent  bool   `short:"s" help:"Do not log to stderr."`
	JSONLog bool   `help:"Emit JSON log records."`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("dawbrn"),
		kong.Description("Webhook-driven continuous-documentation service."))

	format := "text"
	if cli.JSONLog {
		format = "json"
	}
	logCloser, err := logging.Setup(logging.Options{
		Verbosity: cli.Verbose,
		Quietness: cli.Quiet,
		File:      cli.Logfile,
		Silent:    cli.Silent,
		Format:    format,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging setup failed:", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if err := run(); err != nil {
		slog.Error("startup failed", logfields.Error(err))
		kctx.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if cli.Address != "" {
		cfg.Server.Address = cli.Address
	}
	if cli.Port != 0 {
		cfg.Server.Port = cli.Port
	}

	store := config.NewStore(cfg)
	if _, err := os.Stat(cli.Config); err == nil {
		watcher, err := config.NewWatcher(cli.Config, store.Replace)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := watcher.Stop(); err != nil {
				slog.Warn("config watcher stop failed", logfields.Error(err))
			}
		}()
	}

	hist, err := history.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return err
	}
	defer hist.Close()

	promReg := prom.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(promReg)

	var outbox events.Publisher = events.Noop{}
	if cfg.Events.NATSURL != "" {
		nats, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			return err
		}
		outbox = nats
	}
	defer outbox.Close()

	runner := subprocess.New()
	workspaces := workspace.NewManager(cfg.Build.WorkspaceRoot)
	transactor := publish.NewTransactor(runner, workspaces, cfg.Publish.Branch, cfg.Publish.MaxAttempts)
	transactor.SetRecorder(recorder)
	pipe := pipeline.New(runner, workspaces, registry.New(), transactor,
		[]string{"sudo", cfg.Build.Builder})

	sweeper, err := janitor.New(workspaces, cfg.Janitor.Interval, cfg.Janitor.MaxAge)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer func() {
		if err := sweeper.Stop(); err != nil {
			slog.Warn("janitor stop failed", logfields.Error(err))
		}
	}()

	gh := github.NewClient(cfg.GitHub.APIBaseURL, cfg.GitHub.Token)
	dispatcher := server.NewDispatcher(ctx, store, pipe, gh, hist, recorder, outbox)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	srv := server.New(addr, store, dispatcher, server.Options{
		History: hist,
		Metrics: metrics.HTTPHandler(promReg),
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("shutdown signal received")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := srv.Stop(stopCtx); err != nil {
		slog.Warn("HTTP server shutdown failed", logfields.Error(err))
	}

	// The signal context cancelled every in-flight pipeline; wait for
	// them to tear their workspaces down before exiting.
	dispatcher.Wait()
	slog.Info("shutdown complete")
	return nil
}
