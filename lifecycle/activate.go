package lifecycle

import (
	"context"
	"fmt"

	"github.com/jonwraymond/offlineworker/cache"
	"github.com/jonwraymond/offlineworker/observe"
)

// Claimer takes control of open clients.
type Claimer interface {
	Claim(ctx context.Context, version string) (int, error)
}

// ActivateResult summarizes an activation.
type ActivateResult struct {
	Deleted []string
	Claimed int
}

// Activator sweeps caches from other releases and claims clients.
type Activator struct {
	Registry *cache.Registry
	Tiers    cache.TierSet
	// StateCache is the name of the cache holding worker state documents.
	StateCache string
	Version    string
	Clients    Claimer
	Machine    *Machine
	Logger     observe.Logger
}

// Keep returns the cache names that survive activation.
func (a *Activator) Keep() []string {
	keep := a.Tiers.Retained()
	if a.StateCache != "" {
		keep = append(keep, a.StateCache)
	}
	return keep
}

// Activate deletes every cache not in Keep and claims open clients. Running
// it again with the same release deletes nothing further.
func (a *Activator) Activate(ctx context.Context) (ActivateResult, error) {
	if err := a.Machine.Transition(StateActivating); err != nil {
		return ActivateResult{}, err
	}
	log := a.Logger.With(observe.EventMeta{Component: "lifecycle", Operation: "activate"})

	deleted, err := a.Registry.Sweep(ctx, a.Keep())
	if err != nil {
		_ = a.Machine.Transition(StateInstalled)
		return ActivateResult{Deleted: deleted}, fmt.Errorf("lifecycle: sweep: %w", err)
	}
	for _, name := range deleted {
		log.Info(ctx, "deleted old cache", observe.F("cache", name))
	}

	res := ActivateResult{Deleted: deleted}
	if a.Clients != nil {
		n, err := a.Clients.Claim(ctx, a.Version)
		if err != nil {
			log.Warn(ctx, "claim clients failed", observe.Err(err))
		}
		res.Claimed = n
	}

	if err := a.Machine.Transition(StateActivated); err != nil {
		return res, err
	}
	log.Info(ctx, "activated", observe.F("version", a.Version), observe.F("claimed", res.Claimed))
	return res, nil
}
