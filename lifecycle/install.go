package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/offlineworker/cache"
	"github.com/jonwraymond/offlineworker/observe"
	"github.com/jonwraymond/offlineworker/strategy"
)

// ErrInstallFailed is returned when a core asset could not be precached.
var ErrInstallFailed = errors.New("lifecycle: install failed")

const fetchConcurrency = 6

// InstallResult summarizes an installation.
type InstallResult struct {
	// SkipWaiting asks for activation without waiting for old clients to close.
	SkipWaiting bool
	CoreAssets  int
	Prewarmed   int
	PrewarmFail int
}

// Installer precaches a release.
type Installer struct {
	Registry *cache.Registry
	Tiers    cache.TierSet
	Fetcher  strategy.Fetcher
	Origin   *url.URL
	Manifest Manifest
	Machine  *Machine
	Logger   observe.Logger
}

// Install fetches every core asset and stores them in the core tier. If any
// asset fails, nothing is written and the release becomes redundant. Cultural
// pre-warm runs afterwards; its failures are logged and ignored.
func (in *Installer) Install(ctx context.Context) (InstallResult, error) {
	if err := in.Machine.Transition(StateInstalling); err != nil {
		return InstallResult{}, err
	}
	log := in.Logger.With(observe.EventMeta{Component: "lifecycle", Operation: "install", Tier: in.Tiers.Core.Name})

	entries, err := in.fetchCore(ctx)
	if err == nil {
		err = in.storeCore(ctx, entries)
	}
	if err != nil {
		_ = in.Machine.Transition(StateRedundant)
		log.Error(ctx, "install failed", observe.Err(err))
		return InstallResult{}, err
	}

	res := InstallResult{SkipWaiting: true, CoreAssets: len(entries)}
	res.Prewarmed, res.PrewarmFail = in.prewarm(ctx, log)

	if err := in.Machine.Transition(StateInstalled); err != nil {
		return res, err
	}
	log.Info(ctx, "installed",
		observe.F("core_assets", res.CoreAssets),
		observe.F("prewarmed", res.Prewarmed),
		observe.F("prewarm_failed", res.PrewarmFail),
	)
	return res, nil
}

// Installed reports whether the store already holds every core asset of this
// release, as left by an earlier successful install.
func (in *Installer) Installed(ctx context.Context) (bool, error) {
	names, err := in.Registry.Names(ctx)
	if err != nil {
		return false, err
	}
	if !slices.Contains(names, in.Tiers.Core.Name) {
		return false, nil
	}
	for _, path := range in.Manifest.Core {
		req, err := in.request(ctx, path)
		if err != nil {
			return false, err
		}
		resp, ok := in.Registry.Match(ctx, in.Tiers.Core, req)
		if !ok {
			return false, nil
		}
		_ = resp.Body.Close()
	}
	return true, nil
}

func (in *Installer) fetchCore(ctx context.Context) ([]*cache.Entry, error) {
	entries := make([]*cache.Entry, len(in.Manifest.Core))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	for i, path := range in.Manifest.Core {
		g.Go(func() error {
			entry, err := in.fetchEntry(gctx, path)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInstallFailed, path, err)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (in *Installer) fetchEntry(ctx context.Context, path string) (*cache.Entry, error) {
	req, err := in.request(ctx, path)
	if err != nil {
		return nil, err
	}
	resp, err := in.Fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return cache.Snapshot(req, resp)
}

// storeCore writes all entries or none. A failed write restores what the
// tier held before, so a failed reinstall keeps an earlier install intact.
func (in *Installer) storeCore(ctx context.Context, entries []*cache.Entry) error {
	core := in.Tiers.Core
	if err := in.Registry.Open(ctx, core); err != nil {
		return err
	}

	type undo struct {
		entry    *cache.Entry
		previous *cache.Entry
	}
	var written []undo
	rollback := func() {
		for _, u := range slices.Backward(written) {
			if u.previous != nil {
				_ = in.Registry.PutEntry(ctx, core, u.previous)
				continue
			}
			if req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.entry.URL, nil); err == nil {
				_ = in.Registry.Delete(ctx, core, req)
			}
		}
	}

	for _, entry := range entries {
		previous, _, err := in.Registry.Entry(ctx, core, entry.Key)
		if err == nil {
			err = in.Registry.PutEntry(ctx, core, entry)
		}
		if err != nil {
			rollback()
			return fmt.Errorf("%w: %w", ErrInstallFailed, err)
		}
		written = append(written, undo{entry: entry, previous: previous})
	}
	return nil
}

func (in *Installer) prewarm(ctx context.Context, log observe.Logger) (ok, failed int) {
	results := make([]error, len(in.Manifest.CulturalCategories))
	var g errgroup.Group
	g.SetLimit(fetchConcurrency)

	for i, category := range in.Manifest.CulturalCategories {
		g.Go(func() error {
			results[i] = in.prewarmOne(ctx, category)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range results {
		if err != nil {
			failed++
			log.Warn(ctx, "cultural pre-warm failed", observe.F("category", in.Manifest.CulturalCategories[i]), observe.Err(err))
			continue
		}
		ok++
	}
	return ok, failed
}

func (in *Installer) prewarmOne(ctx context.Context, category string) error {
	entry, err := in.fetchEntry(ctx, PrewarmPath(category))
	if err != nil {
		return err
	}
	return in.Registry.PutEntry(ctx, in.Tiers.Cultural, entry)
}

func (in *Installer) request(ctx context.Context, path string) (*http.Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, in.Origin.ResolveReference(ref).String(), nil)
}
