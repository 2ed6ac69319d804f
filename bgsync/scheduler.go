package bgsync

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/offlineworker/cache"
	"github.com/jonwraymond/offlineworker/observe"
	"github.com/jonwraymond/offlineworker/resilience"
	"github.com/jonwraymond/offlineworker/strategy"
)

var (
	// ErrUnknownTag is returned when firing a tag with no endpoint set.
	ErrUnknownTag = errors.New("bgsync: unknown tag")

	// ErrStatus marks a target whose response was not ok.
	ErrStatus = errors.New("bgsync: unexpected status")
)

// Report lists the outcome of one sync run.
type Report struct {
	Tag       Tag
	Succeeded []string
	Failed    map[string]error
}

// Err joins every target failure, or nil.
func (r Report) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for _, path := range slices.Sorted(maps.Keys(r.Failed)) {
		errs = append(errs, fmt.Errorf("%s: %w", path, r.Failed[path]))
	}
	return errors.Join(errs...)
}

// Config wires a Scheduler.
type Config struct {
	Registry   *cache.Registry
	Tiers      cache.TierSet
	Fetcher    strategy.Fetcher
	Origin     *url.URL
	Categories []string

	// Retry wraps each target individually. Nil means one attempt.
	Retry   *resilience.Retry
	Logger  observe.Logger
	Metrics observe.Metrics

	// Concurrency bounds parallel target fetches. Default: 4
	Concurrency int
}

// Scheduler holds registered sync intents and runs them.
type Scheduler struct {
	cfg Config

	mu      sync.Mutex
	pending map[Tag]struct{}
}

// New creates a scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NopMetrics()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Scheduler{cfg: cfg, pending: make(map[Tag]struct{})}
}

// Register records an intent to sync tag once connectivity returns.
func (s *Scheduler) Register(tag Tag) error {
	if len(Targets(tag, s.cfg.Categories)) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
	s.mu.Lock()
	s.pending[tag] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Pending returns the registered tags in sorted order.
func (s *Scheduler) Pending() []Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := make([]Tag, 0, len(s.pending))
	for t := range s.pending {
		tags = append(tags, t)
	}
	slices.Sort(tags)
	return tags
}

// OnOnline fires every registered intent. An intent stays registered only
// when all of its targets failed.
func (s *Scheduler) OnOnline(ctx context.Context) []Report {
	var reports []Report
	for _, tag := range s.Pending() {
		report, err := s.Fire(ctx, tag)
		if err != nil {
			continue
		}
		reports = append(reports, report)
		if len(report.Succeeded) > 0 {
			s.mu.Lock()
			delete(s.pending, tag)
			s.mu.Unlock()
		}
	}
	return reports
}

// Fire runs the endpoint set for tag. Target failures are reported, not returned.
func (s *Scheduler) Fire(ctx context.Context, tag Tag) (Report, error) {
	targets := Targets(tag, s.cfg.Categories)
	if len(targets) == 0 {
		return Report{}, fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
	log := s.cfg.Logger.With(observe.EventMeta{Component: "bgsync", Operation: string(tag)})

	results := make([]error, len(targets))
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, target := range targets {
		g.Go(func() error {
			results[i] = s.syncTarget(ctx, target)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Tag: tag, Failed: map[string]error{}}
	for i, err := range results {
		path := targets[i].Path
		s.cfg.Metrics.RecordSync(ctx, string(tag), err)
		if err != nil {
			report.Failed[path] = err
			log.Warn(ctx, "sync target failed", observe.F("target", path), observe.Err(err))
			continue
		}
		report.Succeeded = append(report.Succeeded, path)
	}
	log.Info(ctx, "sync finished",
		observe.F("succeeded", len(report.Succeeded)),
		observe.F("failed", len(report.Failed)),
	)
	return report, nil
}

func (s *Scheduler) syncTarget(ctx context.Context, target Target) error {
	once := func(ctx context.Context) error { return s.fetchAndStore(ctx, target) }
	if s.cfg.Retry == nil {
		return once(ctx)
	}
	return s.cfg.Retry.Do(ctx, once)
}

func (s *Scheduler) fetchAndStore(ctx context.Context, target Target) error {
	ref, err := url.Parse(target.Path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Origin.ResolveReference(ref).String(), nil)
	if err != nil {
		return err
	}
	resp, err := s.cfg.Fetcher.Fetch(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: HTTP %d", ErrStatus, resp.StatusCode)
	}
	return s.cfg.Registry.Put(ctx, target.Dest.tier(s.cfg.Tiers), req, resp)
}
