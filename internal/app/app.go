// Package app wires the voxshift subsystems into a running application.
//
// The App struct owns the full lifecycle: New opens the journal, resolves the
// provider factories and builds the pipeline orchestrator, Run starts the
// pipeline and the diagnostics listener, and Shutdown tears everything down in
// order.
//
// For testing, inject doubles via functional options (WithFactories,
// WithJournal, ...). When an option is not provided, New creates real
// implementations from the config and the provider registry.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxshift/internal/config"
	"github.com/MrWong99/voxshift/internal/events"
	"github.com/MrWong99/voxshift/internal/health"
	"github.com/MrWong99/voxshift/internal/journal"
	"github.com/MrWong99/voxshift/internal/journal/badger"
	"github.com/MrWong99/voxshift/internal/journal/postgres"
	"github.com/MrWong99/voxshift/internal/observe"
	"github.com/MrWong99/voxshift/internal/pipeline"
)

// shutdownTimeout bounds the graceful stop of the diagnostics listener.
const shutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config
	pc  pipeline.Config
	reg *config.Registry

	level   *slog.LevelVar
	metrics *observe.Metrics
	promH   http.Handler
	observe []pipeline.Observer

	factories *pipeline.Factories
	journal   journal.Store
	pinger    health.Pinger
	hub       *events.Hub
	orch      *pipeline.Orchestrator
	handler   http.Handler

	listener net.Listener
	ready    chan struct{}

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistry supplies the provider registry used to build factories.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.reg = r }
}

// WithFactories bypasses the registry and uses f for every run.
func WithFactories(f pipeline.Factories) Option {
	return func(a *App) { a.factories = &f }
}

// WithJournal injects a journal instead of opening one from config. The App
// does not close an injected journal.
func WithJournal(j journal.Store) Option {
	return func(a *App) { a.journal = j }
}

// WithLevelVar lets [App.Reload] change the log level of the handler built on v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetrics replaces [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics. Without it the route is absent.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.promH = h }
}

// WithObserver registers an extra pipeline observer, such as a console printer.
func WithObserver(obs pipeline.Observer) Option {
	return func(a *App) { a.observe = append(a.observe, obs) }
}

// WithListener serves diagnostics on l instead of listening on
// server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:   cfg,
		ready: make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	pc, err := cfg.ToPipeline()
	if err != nil {
		return nil, fmt.Errorf("app: pipeline config: %w", err)
	}
	a.pc = pc

	if err := a.initJournal(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init journal: %w", err)
	}

	if a.factories == nil {
		if a.reg == nil {
			a.closeAll()
			return nil, errors.New("app: a registry or explicit factories are required")
		}
		f := Factories(cfg, a.reg)
		a.factories = &f
	}

	a.hub = events.New()
	orchOpts := []pipeline.Option{
		pipeline.WithObserver(a.hub),
		pipeline.WithJournal(a.journal),
		pipeline.WithMetrics(a.metrics),
	}
	for _, obs := range a.observe {
		orchOpts = append(orchOpts, pipeline.WithObserver(obs))
	}
	a.orch, err = pipeline.New(pc, *a.factories, orchOpts...)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: build pipeline: %w", err)
	}

	a.handler = a.routes()
	return a, nil
}

// initJournal picks the journal backend: postgres_dsn, then badger_dir, then
// an in-memory ring.
func (a *App) initJournal(ctx context.Context) error {
	if a.journal != nil {
		return nil
	}
	jc := a.cfg.Journal
	switch {
	case jc.PostgresDSN != "":
		s, err := postgres.NewStore(ctx, jc.PostgresDSN)
		if err != nil {
			return err
		}
		a.journal = s
		a.pinger = s.Pool()
		slog.Info("app: journal ready", "backend", "postgres")
	case jc.BadgerDir != "":
		s, err := badger.Open(badger.Options{Dir: jc.BadgerDir})
		if err != nil {
			return err
		}
		a.journal = s
		slog.Info("app: journal ready", "backend", "badger", "dir", jc.BadgerDir)
	default:
		a.journal = journal.NewMemory(jc.Capacity)
		slog.Debug("app: journal ready", "backend", "memory", "capacity", jc.Capacity)
	}
	a.closers = append(a.closers, a.journal.Close)
	return nil
}

// routes builds the diagnostics mux.
func (a *App) routes() http.Handler {
	checkers := []health.Checker{health.Pipeline(a.orch)}
	if a.pinger != nil {
		jc := health.Ping("journal", a.pinger)
		jc.Optional = true
		checkers = append(checkers, jc)
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	if a.promH != nil {
		mux.Handle("GET /metrics", a.promH)
	}
	mux.Handle("GET /events", a.hub)
	mux.HandleFunc("GET /journal", a.serveJournal)
	return observe.Middleware(a.metrics)(mux)
}

// serveJournal returns the newest journal entries. The optional limit query
// parameter caps the count (default 50).
func (a *App) serveJournal(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := a.journal.Recent(r.Context(), limit)
	if err != nil {
		slog.Warn("app: read journal", "err", err)
		http.Error(w, "journal unavailable", http.StatusServiceUnavailable)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		slog.Debug("app: encode journal", "err", err)
	}
}

// Handler returns the diagnostics handler.
func (a *App) Handler() http.Handler { return a.handler }

// Pipeline returns the orchestrator.
func (a *App) Pipeline() *pipeline.Orchestrator { return a.orch }

// Events returns the websocket event hub.
func (a *App) Events() *events.Hub { return a.hub }

// Journal returns the journal the pipeline records to.
func (a *App) Journal() journal.Store { return a.journal }

// Ready is closed once the pipeline has started.
func (a *App) Ready() <-chan struct{} { return a.ready }

// Run starts the pipeline and the diagnostics listener and blocks until ctx
// is cancelled or the listener fails. A pipeline construction failure is
// returned immediately.
func (a *App) Run(ctx context.Context) error {
	if err := a.orch.Start(ctx); err != nil {
		return fmt.Errorf("app: start pipeline: %w", err)
	}
	close(a.ready)

	g, gctx := errgroup.WithContext(ctx)
	if l, err := a.listen(); err != nil {
		return err
	} else if l != nil {
		srv := &http.Server{
			Handler:           a.handler,
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return gctx },
		}
		slog.Info("app: diagnostics listening", "addr", l.Addr().String())
		g.Go(func() error {
			if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: diagnostics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				slog.Warn("app: diagnostics shutdown", "err", err)
				return srv.Close()
			}
			return nil
		})
	}

	slog.Info("app running", "state", a.orch.State().String())
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (a *App) listen() (net.Listener, error) {
	if a.listener != nil {
		return a.listener, nil
	}
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		return nil, nil
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("app: listen %s: %w", addr, err)
	}
	return l, nil
}

// Reload applies a changed configuration. The log level takes effect
// immediately; every other change is logged and waits for a restart, so the
// App keeps serving the config it was built with. Reload may run
// concurrently with Run.
func (a *App) Reload(_ *config.Config, diff config.ConfigDiff) {
	if diff.LogLevelChanged && a.level != nil {
		a.level.Set(diff.NewLogLevel.Slog())
		slog.Info("app: log level changed", "level", string(diff.NewLogLevel))
	}
	if len(diff.RestartRequired) > 0 {
		slog.Warn("app: configuration changes need a restart", "fields", diff.RestartRequired)
	}
}

// Shutdown stops the pipeline and runs the closers in order. If ctx expires
// before all closers finish, the remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))

		if err := a.orch.Stop(); err != nil {
			slog.Warn("app: pipeline stop error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}

		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}

func (a *App) closeAll() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			slog.Warn("app: closer error", "err", err)
		}
	}
	a.closers = nil
}
