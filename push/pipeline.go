package push

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/offlineworker/cache"
	"github.com/jonwraymond/offlineworker/observe"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("push: pipeline closed")

const (
	policyDoc     = "policy"
	pendingPrefix = "pending/"
)

// Outcome is what happened to one push.
type Outcome string

const (
	OutcomeShown    Outcome = "shown"
	OutcomeDeferred Outcome = "deferred"
	OutcomeDropped  Outcome = "dropped"
	OutcomeFallback Outcome = "fallback"
)

// Config wires a Pipeline.
type Config struct {
	Brand        Brand
	QuietHours   QuietHours
	DailyCeiling int

	// Registry and StateCache hold policy state, pending pushes and history.
	Registry   *cache.Registry
	StateCache string

	Displayer Displayer
	Logger    observe.Logger
	Metrics   observe.Metrics
	Now       func() time.Time
}

// Pipeline applies quiet hours and the daily ceiling to pushes.
// It owns the policy state and pending notifications.
type Pipeline struct {
	cfg     Config
	history *History

	mu     sync.Mutex
	state  PolicyState
	timers map[string]*time.Timer
	closed bool
	wg     sync.WaitGroup
}

// New creates a pipeline. Call Init before Handle.
func New(cfg Config) *Pipeline {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NopMetrics()
	}
	if cfg.DailyCeiling <= 0 {
		cfg.DailyCeiling = DefaultDailyCeiling
	}
	if cfg.Displayer == nil {
		cfg.Displayer = LogDisplayer{Logger: cfg.Logger}
	}
	return &Pipeline{
		cfg:     cfg,
		history: NewHistory(cfg.Registry, cfg.StateCache, cfg.Now),
		timers:  make(map[string]*time.Timer),
	}
}

// History returns the notification log.
func (p *Pipeline) History() *History { return p.history }

// State returns a copy of the policy state.
func (p *Pipeline) State() PolicyState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

func (p *Pipeline) log() observe.Logger {
	return p.cfg.Logger.With(observe.EventMeta{Component: "push", Operation: "handle"})
}

func (p *Pipeline) today() string {
	return dayKey(p.cfg.QuietHours.local(p.cfg.Now()))
}

// Init loads persisted policy state, resets it on a new day, destroys pending
// pushes whose window already closed and re-arms timers for the rest.
func (p *Pipeline) Init(ctx context.Context) error {
	var st PolicyState
	if _, err := p.cfg.Registry.GetDocument(ctx, p.cfg.StateCache, policyDoc, &st); err != nil {
		return fmt.Errorf("push: load policy: %w", err)
	}

	p.mu.Lock()
	p.state = st
	reset := p.state.rollover(p.today())
	snapshot := p.state
	p.mu.Unlock()
	if reset {
		if err := p.cfg.Registry.PutDocument(ctx, p.cfg.StateCache, policyDoc, snapshot); err != nil {
			return fmt.Errorf("push: save policy: %w", err)
		}
	}

	pending, err := p.Pending(ctx)
	if err != nil {
		return err
	}
	now := p.cfg.Now()
	for _, pn := range pending {
		if !pn.ScheduledFor.After(now) {
			p.log().Info(ctx, "discarding pending notification", observe.F("id", pn.ID))
			if err := p.cfg.Registry.DeleteDocument(ctx, p.cfg.StateCache, pendingPrefix+pn.ID); err != nil {
				return err
			}
			continue
		}
		p.arm(pn)
	}
	return nil
}

// Handle processes one push message.
func (p *Pipeline) Handle(ctx context.Context, data []byte) (Outcome, error) {
	if p.isClosed() {
		return "", ErrClosed
	}
	payload, err := ParsePayload(data)
	if err != nil {
		p.log().Warn(ctx, "malformed push", observe.Err(err))
		return p.fallback(ctx)
	}

	now := p.cfg.Now()
	if !payload.Urgent() && p.cfg.QuietHours.Contains(now) {
		return p.postpone(ctx, payload, now)
	}
	return p.deliver(ctx, payload)
}

func (p *Pipeline) fallback(ctx context.Context) (Outcome, error) {
	n := Fallback(p.cfg.Brand, p.cfg.Now())
	if err := p.cfg.Displayer.Display(ctx, n); err != nil {
		return OutcomeFallback, err
	}
	p.cfg.Metrics.RecordNotification(ctx, TypeGeneric.String(), string(OutcomeFallback))
	_, err := p.history.Append(ctx, Record{Tag: n.Tag, Action: RecordFallback, Type: TypeGeneric.String()})
	return OutcomeFallback, err
}

func (p *Pipeline) postpone(ctx context.Context, payload Payload, now time.Time) (Outcome, error) {
	pn := Pending{
		ID:           uuid.NewString(),
		Payload:      payload,
		ReceivedAt:   now,
		ScheduledFor: p.cfg.QuietHours.NextEnd(now),
	}
	if err := p.cfg.Registry.PutDocument(ctx, p.cfg.StateCache, pendingPrefix+pn.ID, pn); err != nil {
		return "", fmt.Errorf("push: store pending: %w", err)
	}
	p.arm(pn)
	p.cfg.Metrics.RecordNotification(ctx, payload.Kind().String(), string(OutcomeDeferred))
	p.log().Info(ctx, "quiet hours, deferring notification",
		observe.F("id", pn.ID),
		observe.F("scheduled_for", pn.ScheduledFor.Format(time.RFC3339)),
	)
	return OutcomeDeferred, nil
}

// deliver reserves a slot under the ceiling, then displays and records. The
// slot is released when the display fails.
func (p *Pipeline) deliver(ctx context.Context, payload Payload) (Outcome, error) {
	kind := payload.Kind()
	n := Build(p.cfg.Brand, payload, p.cfg.Now())

	day, ok := p.reserve(kind)
	if !ok {
		p.log().Info(ctx, "daily notification ceiling reached",
			observe.F("type", kind.String()),
			observe.F("ceiling", p.cfg.DailyCeiling),
		)
		p.cfg.Metrics.RecordNotification(ctx, kind.String(), string(OutcomeDropped))
		_, err := p.history.Append(ctx, Record{Tag: n.Tag, Action: RecordDropped, Type: kind.String()})
		return OutcomeDropped, err
	}

	if err := p.cfg.Displayer.Display(ctx, n); err != nil {
		p.release(day, kind)
		return "", err
	}

	p.mu.Lock()
	snapshot := p.state.clone()
	p.mu.Unlock()

	p.cfg.Metrics.RecordNotification(ctx, kind.String(), string(OutcomeShown))
	if err := p.cfg.Registry.PutDocument(ctx, p.cfg.StateCache, policyDoc, snapshot); err != nil {
		p.log().Warn(ctx, "persist policy state failed", observe.Err(err))
	}
	_, err := p.history.Append(ctx, Record{Tag: n.Tag, Action: RecordShown, Type: kind.String()})
	return OutcomeShown, err
}

// reserve counts one notification of kind against today's ceiling. It
// returns the day the slot belongs to, or false when the ceiling is reached.
func (p *Pipeline) reserve(kind NotificationType) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.rollover(p.today())
	if p.state.Count(kind) >= p.cfg.DailyCeiling {
		return "", false
	}
	p.state.incr(kind)
	return p.state.Day, true
}

// release gives back a slot taken by reserve on day.
func (p *Pipeline) release(day string, kind NotificationType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Day == day {
		p.state.decr(kind)
	}
}

// Pending lists deferred pushes.
func (p *Pipeline) Pending(ctx context.Context) ([]Pending, error) {
	ids, err := p.cfg.Registry.Documents(ctx, p.cfg.StateCache, pendingPrefix)
	if err != nil {
		return nil, fmt.Errorf("push: list pending: %w", err)
	}
	out := make([]Pending, 0, len(ids))
	for _, id := range ids {
		var pn Pending
		ok, err := p.cfg.Registry.GetDocument(ctx, p.cfg.StateCache, id, &pn)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, pn)
		}
	}
	return out, nil
}

// Redeliver delivers one pending push and destroys its record.
func (p *Pipeline) Redeliver(ctx context.Context, id string) (Outcome, error) {
	id = strings.TrimPrefix(id, pendingPrefix)
	var pn Pending
	ok, err := p.cfg.Registry.GetDocument(ctx, p.cfg.StateCache, pendingPrefix+id, &pn)
	if err != nil || !ok {
		return "", err
	}
	p.disarm(id)
	if err := p.cfg.Registry.DeleteDocument(ctx, p.cfg.StateCache, pendingPrefix+id); err != nil {
		return "", err
	}
	return p.deliver(ctx, pn.Payload)
}

// Flush redelivers every pending push whose window has ended.
func (p *Pipeline) Flush(ctx context.Context) (map[string]Outcome, error) {
	pending, err := p.Pending(ctx)
	if err != nil {
		return nil, err
	}
	now := p.cfg.Now()
	out := map[string]Outcome{}
	var errs []error
	for _, pn := range pending {
		if pn.ScheduledFor.After(now) {
			continue
		}
		outcome, err := p.Redeliver(ctx, pn.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[pn.ID] = outcome
	}
	return out, errors.Join(errs...)
}

// arm schedules best-effort redelivery. Timers do not survive restarts.
func (p *Pipeline) arm(pn Pending) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if t, ok := p.timers[pn.ID]; ok {
		t.Stop()
	}
	delay := max(pn.ScheduledFor.Sub(p.cfg.Now()), 0)
	p.timers[pn.ID] = time.AfterFunc(delay, func() {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}
		p.wg.Add(1)
		p.mu.Unlock()
		defer p.wg.Done()
		ctx := context.Background()
		if _, err := p.Redeliver(ctx, pn.ID); err != nil {
			p.log().Warn(ctx, "redelivery failed", observe.F("id", pn.ID), observe.Err(err))
		}
	})
}

func (p *Pipeline) disarm(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.timers[id]; ok {
		t.Stop()
		delete(p.timers, id)
	}
}

func (p *Pipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close stops redelivery timers. Pending records stay in the store.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
