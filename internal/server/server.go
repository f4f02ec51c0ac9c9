// Package server exposes the webhook listener: signature-checked
// GitHub webhook intake, the identity and health endpoints, deployment
// history and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"git.home.luguber.info/inful/dawbrn/internal/apperrors"
	"git.home.luguber.info/inful/dawbrn/internal/config"
	"git.home.luguber.info/inful/dawbrn/internal/github"
	"git.home.luguber.info/inful/dawbrn/internal/history"
	"git.home.luguber.info/inful/dawbrn/internal/logfields"
)

// maxWebhookBody caps webhook payload reads. GitHub's own limit is
// 25 MB; anything larger is not a webhook.
const maxWebhookBody = 25 << 20

// identity is the GET / response body.
const identity = "Dawbrn"

// Server is the HTTP front of the service.
type Server struct {
	httpServer *http.Server
	cfg        *config.Store
	dispatcher *Dispatcher
	adapter    *apperrors.HTTPAdapter
	store      history.Store
	metrics    http.Handler
}

// Options carries the optional endpoints.
type Options struct {
	// History backs GET /deployments; nil disables the endpoint.
	History history.Store
	// Metrics backs GET /metrics; nil disables the endpoint.
	Metrics http.Handler
}

// New wires the routes. addr is the listen address in host:port form.
func New(addr string, cfg *config.Store, dispatcher *Dispatcher, opts Options) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		adapter:    apperrors.NewHTTPAdapter(slog.Default()),
		store:      opts.History,
		metrics:    opts.Metrics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleIdentity)
	mux.HandleFunc("POST /github", s.handleWebhook)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.store != nil {
		mux.HandleFunc("GET /deployments", s.handleDeployments)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           chain(slog.Default(), s.adapter)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start binds the listener and serves in the background. Binding
// happens here so startup failures surface before the CLI reports the
// service as running.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.httpServer.Addr, err)
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", logfields.Error(err))
		}
	}()
	slog.Info("HTTP server started", slog.String("addr", ln.Addr().String()))
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleIdentity answers the fixed identifier string. The middleware
// has already assigned the request its correlation id.
func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(identity))
}

// handleWebhook authenticates a GitHub delivery and hands it to the
// dispatcher. The 200 response means the event was accepted, not that
// the build succeeded; the build runs in the background.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		s.adapter.WriteError(w, r, apperrors.Client("unreadable request body"))
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	if signature == "" {
		signature = r.Header.Get("X-Hub-Signature")
	}
	if !github.ValidateSignature(body, signature, s.cfg.Snapshot().GitHub.HMACToken) {
		s.adapter.WriteError(w, r, apperrors.Client("invalid GitHub signature"))
		return
	}

	if !json.Valid(body) {
		s.adapter.WriteParseError(w, r, errors.New("body is not parsable as json"))
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	slog.InfoContext(r.Context(), "received webhook", logfields.Event(event))

	s.adapter.WriteError(w, r, s.dispatcher.Dispatch(r.Context(), event, body))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleDeployments returns recent deployment records, newest first.
func (s *Server) handleDeployments(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.adapter.WriteError(w, r, apperrors.Clientf("invalid limit %q", v))
			return
		}
		limit = min(n, 500)
	}

	var (
		records []history.Record
		err     error
	)
	if dir := r.URL.Query().Get("deploy_dir"); dir != "" {
		records, err = s.store.ByDeployDir(r.Context(), dir, limit)
	} else {
		records, err = s.store.Recent(r.Context(), limit)
	}
	if err != nil {
		s.adapter.WriteError(w, r, apperrors.Internal("query deployment history", err))
		return
	}
	if records == nil {
		records = []history.Record{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(records); err != nil {
		slog.WarnContext(r.Context(), "unable to encode deployment history", logfields.Error(err))
	}
}
