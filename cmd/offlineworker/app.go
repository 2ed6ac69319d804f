package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/offlineworker/bgsync"
	"github.com/jonwraymond/offlineworker/cache"
	"github.com/jonwraymond/offlineworker/config"
	"github.com/jonwraymond/offlineworker/health"
	"github.com/jonwraymond/offlineworker/observe"
	"github.com/jonwraymond/offlineworker/push"
	"github.com/jonwraymond/offlineworker/secret"
	"github.com/jonwraymond/offlineworker/storage/sqlite"
	"github.com/jonwraymond/offlineworker/worker"
)

const shutdownTimeout = 10 * time.Second

type app struct {
	cfg    *config.Config
	obs    observe.Observer
	log    observe.Logger
	worker *worker.Worker
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ResolveSecrets(ctx, secret.NewResolver(true)); err != nil {
		return nil, err
	}

	obs, err := observe.NewObserver(ctx, cfg.Observe)
	if err != nil {
		return nil, err
	}
	log := obs.Logger()
	metrics, err := observe.NewMetrics(obs.Meter())
	if err != nil {
		return nil, errors.Join(err, obs.Shutdown(ctx))
	}
	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return nil, errors.Join(err, obs.Shutdown(ctx))
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, errors.Join(err, obs.Shutdown(ctx))
	}
	display, err := displayer(cfg, log)
	if err != nil {
		return nil, errors.Join(err, obs.Shutdown(ctx))
	}

	w, err := worker.New(worker.Options{
		Config:     cfg,
		Store:      store,
		Displayer:  display,
		Logger:     log,
		Metrics:    metrics,
		Middleware: mw,
	})
	if err != nil {
		return nil, errors.Join(err, obs.Shutdown(ctx))
	}
	return &app{cfg: cfg, obs: obs, log: log, worker: w}, nil
}

func openStore(cfg *config.Config) (cache.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return sqlite.Open(cfg.Store.Path)
	default:
		return cache.NewMemoryStore(), nil
	}
}

func displayer(cfg *config.Config, log observe.Logger) (push.Displayer, error) {
	if len(cfg.Push.DisplayURLs) == 0 {
		return push.LogDisplayer{Logger: log}, nil
	}
	return push.NewShoutrrrDisplayer(cfg.Push.DisplayURLs...)
}

func syncTags() []string {
	tags := bgsync.Tags()
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}

// sync fires one tag against the store. The release is installed first only
// when the store does not already hold it.
func (a *app) sync(ctx context.Context, tag string) (bgsync.Report, error) {
	installed, err := a.worker.Installed(ctx)
	if err != nil {
		return bgsync.Report{}, err
	}
	if !installed {
		if _, err := a.worker.Install(ctx); err != nil {
			return bgsync.Report{}, err
		}
	}
	return a.worker.Sync(ctx, bgsync.Tag(tag))
}

func (a *app) handler() http.Handler {
	mux := http.NewServeMux()
	health.RegisterHandlers(mux, a.worker.Health())
	if a.cfg.Observe.Metrics.Enabled && a.cfg.Observe.Metrics.Exporter == "prometheus" {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	mux.Handle("/_worker/", a.worker.ControlHandler())
	mux.Handle("/", a.worker)
	return mux
}

func (a *app) serve(ctx context.Context) error {
	defer a.close(context.WithoutCancel(ctx))

	if err := a.worker.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	srv := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()
	a.log.Info(ctx, "serving",
		observe.F("listen", a.cfg.Listen),
		observe.F("origin", a.cfg.Origin),
		observe.F("version", a.cfg.Version))

	ticker := time.NewTicker(a.cfg.Sync.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown http server: %w", err)
			}
			return nil
		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("serve http: %w", err)
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

// tick fires registered sync intents and delivers due deferred pushes.
func (a *app) tick(ctx context.Context) {
	for _, rep := range a.worker.Online(ctx) {
		if err := rep.Err(); err != nil {
			a.log.Warn(ctx, "background sync incomplete", observe.F("tag", string(rep.Tag)), observe.Err(err))
		}
	}
	delivered, err := a.worker.FlushPending(ctx)
	if err != nil {
		a.log.Warn(ctx, "deferred notification delivery failed", observe.Err(err))
	}
	if len(delivered) > 0 {
		a.log.Info(ctx, "delivered deferred notifications", observe.F("count", len(delivered)))
	}
}

func (a *app) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := errors.Join(a.worker.Close(), a.obs.Shutdown(ctx)); err != nil {
		a.log.Error(ctx, "shutdown", observe.Err(err))
	}
}
