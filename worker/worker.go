// Package worker assembles the offline engine: cache tiers, fetch strategies,
// lifecycle, background sync, push and notification clicks.
//
// A Worker sits between the platform's pages and its origin. Fetch is the
// interception point; ServeHTTP exposes it as a reverse proxy.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jonwraymond/offlineworker/bgsync"
	"github.com/jonwraymond/offlineworker/cache"
	"github.com/jonwraymond/offlineworker/clients"
	"github.com/jonwraymond/offlineworker/config"
	"github.com/jonwraymond/offlineworker/health"
	"github.com/jonwraymond/offlineworker/interaction"
	"github.com/jonwraymond/offlineworker/lifecycle"
	"github.com/jonwraymond/offlineworker/observe"
	"github.com/jonwraymond/offlineworker/push"
	"github.com/jonwraymond/offlineworker/resilience"
	"github.com/jonwraymond/offlineworker/route"
	"github.com/jonwraymond/offlineworker/strategy"
)

// ErrNoStore is returned when Options has no cache store.
var ErrNoStore = errors.New("worker: cache store is required")

// Options wires a Worker. Only Config and Store are required.
type Options struct {
	Config *config.Config
	Store  cache.Store

	// Client performs upstream requests. Default: a client with Config.Fetch.Timeout.
	Client *http.Client

	Displayer  push.Displayer
	Effects    interaction.SideEffects
	Logger     observe.Logger
	Metrics    observe.Metrics
	Middleware *observe.Middleware
	Now        func() time.Time
}

// Worker is one release of the offline engine.
type Worker struct {
	cfg     *config.Config
	origin  *url.URL
	log     observe.Logger
	store   cache.Store
	reg     *cache.Registry
	tiers   cache.TierSet
	machine *lifecycle.Machine

	fetcher  strategy.Fetcher
	breaker  *resilience.Breaker
	router   *strategy.Router
	detached *strategy.Detached

	installer *lifecycle.Installer
	activator *lifecycle.Activator
	sync      *bgsync.Scheduler
	push      *push.Pipeline
	clicks    *interaction.Router
	clients   *clients.Registry
	health    *health.Aggregator
}

// New assembles a worker. Nothing is fetched until Start or Install.
func New(opts Options) (*Worker, error) {
	if opts.Config == nil {
		return nil, errors.New("worker: config is required")
	}
	if opts.Store == nil {
		return nil, ErrNoStore
	}
	if opts.Logger == nil {
		opts.Logger = observe.NopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = observe.NopMetrics()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Displayer == nil {
		opts.Displayer = push.LogDisplayer{Logger: opts.Logger}
	}
	cfg := opts.Config
	log := opts.Logger
	origin := cfg.OriginURL()

	reg, err := cache.NewRegistry(opts.Store,
		cache.WithClock(opts.Now),
		cache.WithErrorHandler(func(ctx context.Context, op, name string, err error) {
			log.Warn(ctx, "cache store error", observe.F("op", op), observe.F("cache", name), observe.Err(err))
		}),
	)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		cfg:      cfg,
		origin:   origin,
		log:      log,
		store:    opts.Store,
		reg:      reg,
		tiers:    cache.NewTierSet(cfg.App, cfg.Version, cfg.Cache.MaxEntryBytes),
		machine:  lifecycle.NewMachine(),
		clients:  clients.NewRegistry(),
		detached: strategy.NewDetached(log),
	}

	w.fetcher = w.newFetcher(opts.Client)
	w.router = strategy.NewRouter(&strategy.Deps{
		Registry:   reg,
		Tiers:      w.tiers,
		Fetcher:    w.fetcher,
		Classifier: route.DefaultClassifier(origin),
		Detached:   w.detached,
		Logger:     log.With(observe.EventMeta{Component: "strategy"}),
	}, opts.Middleware)

	w.installer = &lifecycle.Installer{
		Registry: reg,
		Tiers:    w.tiers,
		Fetcher:  w.fetcher,
		Origin:   origin,
		Manifest: cfg.Cache.Manifest,
		Machine:  w.machine,
		Logger:   log,
	}
	w.activator = &lifecycle.Activator{
		Registry:   reg,
		Tiers:      w.tiers,
		StateCache: cfg.Cache.StateCache,
		Version:    cfg.Version,
		Clients:    w.clients,
		Machine:    w.machine,
		Logger:     log,
	}

	w.sync = bgsync.New(bgsync.Config{
		Registry:   reg,
		Tiers:      w.tiers,
		Fetcher:    w.fetcher,
		Origin:     origin,
		Categories: cfg.Cache.Manifest.CulturalCategories,
		Retry: resilience.NewRetry(resilience.RetryConfig{
			Attempts: cfg.Sync.Attempts,
			Delay:    cfg.Sync.Delay,
			Jitter:   true,
		}),
		Logger:  log,
		Metrics: opts.Metrics,
	})

	w.push = push.New(push.Config{
		Brand:        push.Brand{App: cfg.App, Title: cfg.Push.Title},
		QuietHours:   cfg.QuietHours(),
		DailyCeiling: cfg.Push.DailyCeiling,
		Registry:     reg,
		StateCache:   cfg.Cache.StateCache,
		Displayer:    opts.Displayer,
		Logger:       log,
		Metrics:      opts.Metrics,
		Now:          opts.Now,
	})

	effects := opts.Effects
	if effects == nil {
		effects = interaction.HTTPSideEffects{Client: &http.Client{Transport: fetcherTransport{w.fetcher}}, Origin: origin}
	}
	w.clicks = &interaction.Router{
		Origin:  origin,
		Windows: w.clients,
		Effects: effects,
		History: w.push.History(),
		Logger:  log,
	}
	if c, ok := opts.Displayer.(interaction.Closer); ok {
		w.clicks.Closer = c
	}

	w.health = health.NewAggregator(health.AggregatorConfig{})
	w.health.Register(health.LifecycleChecker(w.machine.Current))
	w.health.Register(health.BreakerChecker(w.breaker))
	if p, ok := opts.Store.(health.Pinger); ok {
		w.health.Register(health.StoreChecker(p))
	}
	return w, nil
}

func (w *Worker) newFetcher(client *http.Client) strategy.Fetcher {
	if client == nil {
		client = &http.Client{Timeout: w.cfg.Fetch.Timeout}
	}
	w.breaker = resilience.NewBreaker(resilience.BreakerConfig{
		Threshold: w.cfg.Fetch.Breaker.Threshold,
		Cooldown:  w.cfg.Fetch.Breaker.Cooldown,
		OnTransition: func(from, to resilience.State) {
			w.log.Warn(context.Background(), "upstream breaker changed state",
				observe.F("from", from.String()), observe.F("to", to.String()))
		},
	})
	guard := resilience.NewGuard(
		resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: w.cfg.Fetch.MaxConcurrent})),
		resilience.WithBreaker(w.breaker),
	)
	var f strategy.Fetcher = strategy.NewHTTPFetcher(client,
		strategy.WithUpstream(w.origin, w.cfg.UpstreamURL()),
		strategy.WithGuard(guard),
	)
	if w.cfg.Fetch.Coalesce {
		f = strategy.NewCoalescer(f)
	}
	return f
}

// Start installs the release, activates it, loads push state and prunes
// the notification history.
func (w *Worker) Start(ctx context.Context) error {
	res, err := w.Install(ctx)
	if err != nil {
		return err
	}
	if res.SkipWaiting {
		if _, err := w.Activate(ctx); err != nil {
			return err
		}
	}
	if err := w.push.Init(ctx); err != nil {
		return err
	}
	if w.cfg.Push.HistoryMaxAge > 0 {
		if n, err := w.push.History().Prune(ctx, w.cfg.Push.HistoryMaxAge); err != nil {
			w.log.Warn(ctx, "prune notification history failed", observe.Err(err))
		} else if n > 0 {
			w.log.Info(ctx, "pruned notification history", observe.F("records", n))
		}
	}
	return nil
}

// Install precaches the release.
func (w *Worker) Install(ctx context.Context) (lifecycle.InstallResult, error) {
	return w.installer.Install(ctx)
}

// Installed reports whether the store already holds this release's core assets.
func (w *Worker) Installed(ctx context.Context) (bool, error) {
	return w.installer.Installed(ctx)
}

// Activate removes other releases' caches and claims clients.
func (w *Worker) Activate(ctx context.Context) (lifecycle.ActivateResult, error) {
	return w.activator.Activate(ctx)
}

// State returns the lifecycle state.
func (w *Worker) State() lifecycle.State { return w.machine.Current() }

// Fetch handles one request. Requests outside the worker's scope, and all
// requests before activation, go straight to the network.
func (w *Worker) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	if w.machine.Current() != lifecycle.StateActivated || !w.router.Intercepts(req) {
		return w.fetcher.Fetch(ctx, req)
	}
	return w.router.Handle(ctx, req)
}

// RegisterSync records a background sync intent.
func (w *Worker) RegisterSync(tag bgsync.Tag) error { return w.sync.Register(tag) }

// Sync runs the sync event for tag now.
func (w *Worker) Sync(ctx context.Context, tag bgsync.Tag) (bgsync.Report, error) {
	return w.sync.Fire(ctx, tag)
}

// Online fires every registered sync intent.
func (w *Worker) Online(ctx context.Context) []bgsync.Report { return w.sync.OnOnline(ctx) }

// Push handles an incoming push message.
func (w *Worker) Push(ctx context.Context, data []byte) (push.Outcome, error) {
	return w.push.Handle(ctx, data)
}

// FlushPending delivers deferred pushes whose quiet-hours window has ended.
// It backs up the redelivery timers, which are lost when they miss.
func (w *Worker) FlushPending(ctx context.Context) (map[string]push.Outcome, error) {
	return w.push.Flush(ctx)
}

// Click handles a notification interaction.
func (w *Worker) Click(ctx context.Context, c interaction.Click) (interaction.Result, error) {
	return w.clicks.Handle(ctx, c)
}

// Clients returns the open-client registry.
func (w *Worker) Clients() *clients.Registry { return w.clients }

// History returns the notification log.
func (w *Worker) History() *push.History { return w.push.History() }

// Health returns the worker's health checks.
func (w *Worker) Health() *health.Aggregator { return w.health }

// Registry returns the cache registry.
func (w *Worker) Registry() *cache.Registry { return w.reg }

// Tiers returns the release's cache tiers.
func (w *Worker) Tiers() cache.TierSet { return w.tiers }

// Close waits for background refreshes and stops push timers.
func (w *Worker) Close() error {
	w.detached.Wait()
	w.push.Close()
	if c, ok := w.store.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("worker: close store: %w", err)
		}
	}
	return nil
}

// fetcherTransport sends side-effect requests through the guarded fetcher.
type fetcherTransport struct{ f strategy.Fetcher }

func (t fetcherTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.f.Fetch(req.Context(), req)
}
