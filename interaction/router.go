// Package interaction resolves notification clicks into navigation or side effects.
package interaction

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jonwraymond/offlineworker/clients"
	"github.com/jonwraymond/offlineworker/observe"
	"github.com/jonwraymond/offlineworker/push"
)

// DefaultDirectionsLocation is searched when a directions click has no location.
const DefaultDirectionsLocation = "London"

// Click is a user interaction with a displayed notification.
type Click struct {
	Tag    string    `json:"tag"`
	Action string    `json:"action"`
	Data   push.Data `json:"data"`
}

// Windows enumerates and drives open clients.
type Windows interface {
	MatchAll(ctx context.Context) ([]clients.Client, error)
	Navigate(ctx context.Context, id, url string) error
	Focus(ctx context.Context, id string) error
	OpenWindow(ctx context.Context, url string) (clients.Client, error)
}

// SideEffects performs the background work behind some actions.
type SideEffects interface {
	RSVP(ctx context.Context, data push.Data, answer string) error
	Share(ctx context.Context, data push.Data) error
}

// Closer dismisses a displayed notification.
type Closer interface {
	CloseNotification(ctx context.Context, tag string) error
}

// Result describes what a click did.
type Result struct {
	Action    string
	URL       string
	ClientID  string
	Reused    bool
	Opened    bool
	EffectErr error
}

// Router dispatches clicks on their action.
type Router struct {
	Origin  *url.URL
	Windows Windows
	Effects SideEffects
	Closer  Closer
	History *push.History
	Logger  observe.Logger
}

// Target resolves the URL a click navigates to. It returns false for
// actions that never navigate.
func Target(action string, d push.Data) (string, bool) {
	switch action {
	case push.ActionShareEvent:
		return "", false
	case push.ActionViewEvent, push.ActionRSVPYes:
		return or(d.EventURL, "/events"), true
	case push.ActionViewMatch:
		return or(d.MatchURL, "/matches"), true
	case push.ActionSendMessage:
		return or(d.MessageURL, "/messages"), true
	case push.ActionGetDirections:
		if d.DirectionsURL != "" {
			return d.DirectionsURL, true
		}
		return "https://maps.google.com/?q=" + url.QueryEscape(or(d.Location, DefaultDirectionsLocation)), true
	default:
		return or(d.URL, "/"), true
	}
}

// Handle closes the notification, runs any side effect, then focuses a
// same-origin client or opens a new one. The click is always recorded.
func (r *Router) Handle(ctx context.Context, c Click) (res Result, err error) {
	log := r.Logger.With(observe.EventMeta{Component: "interaction", Operation: actionName(c.Action)})
	res.Action = c.Action
	defer func() {
		r.record(ctx, log, c, res, err)
	}()

	if r.Closer != nil {
		if cerr := r.Closer.CloseNotification(ctx, c.Tag); cerr != nil {
			log.Debug(ctx, "close notification failed", observe.Err(cerr))
		}
	}

	switch c.Action {
	case push.ActionShareEvent:
		res.EffectErr = r.effect(ctx, func(e SideEffects) error { return e.Share(ctx, c.Data) })
	case push.ActionRSVPYes:
		res.EffectErr = r.effect(ctx, func(e SideEffects) error { return e.RSVP(ctx, c.Data, "yes") })
	}

	target, navigate := Target(c.Action, c.Data)
	if !navigate {
		return res, nil
	}
	abs, err := r.resolve(target)
	if err != nil {
		return res, err
	}
	res.URL = abs
	err = r.open(ctx, abs, &res)
	return res, err
}

func (r *Router) effect(ctx context.Context, run func(SideEffects) error) error {
	if r.Effects == nil {
		return nil
	}
	return run(r.Effects)
}

func (r *Router) resolve(target string) (string, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("interaction: bad target %q: %w", target, err)
	}
	if r.Origin == nil {
		return ref.String(), nil
	}
	return r.Origin.ResolveReference(ref).String(), nil
}

func (r *Router) open(ctx context.Context, target string, res *Result) error {
	open, err := r.Windows.MatchAll(ctx)
	if err != nil {
		return fmt.Errorf("interaction: list clients: %w", err)
	}
	if c, ok := r.pick(open); ok {
		if err := r.Windows.Navigate(ctx, c.ID, target); err != nil {
			return fmt.Errorf("interaction: navigate: %w", err)
		}
		if err := r.Windows.Focus(ctx, c.ID); err != nil {
			return fmt.Errorf("interaction: focus: %w", err)
		}
		res.ClientID, res.Reused = c.ID, true
		return nil
	}
	c, err := r.Windows.OpenWindow(ctx, target)
	if err != nil {
		return fmt.Errorf("interaction: open window: %w", err)
	}
	res.ClientID, res.Opened = c.ID, true
	return nil
}

// pick prefers a focused same-origin client.
func (r *Router) pick(open []clients.Client) (clients.Client, bool) {
	var first *clients.Client
	for i := range open {
		if !r.sameOrigin(open[i].URL) {
			continue
		}
		if open[i].Focused {
			return open[i], true
		}
		if first == nil {
			first = &open[i]
		}
	}
	if first == nil {
		return clients.Client{}, false
	}
	return *first, true
}

func (r *Router) sameOrigin(raw string) bool {
	if r.Origin == nil {
		return true
	}
	u, err := url.Parse(raw)
	return err == nil && u.Scheme == r.Origin.Scheme && u.Host == r.Origin.Host
}

func (r *Router) record(ctx context.Context, log observe.Logger, c Click, res Result, err error) {
	fields := []observe.Field{
		observe.F("tag", c.Tag),
		observe.F("url", res.URL),
		observe.F("reused", res.Reused),
	}
	if res.EffectErr != nil {
		fields = append(fields, observe.F("effect_error", res.EffectErr.Error()))
	}
	if err != nil {
		log.Warn(ctx, "notification interaction failed", append(fields, observe.Err(err))...)
	} else {
		log.Info(ctx, "notification interaction", fields...)
	}
	if r.History == nil {
		return
	}
	if _, herr := r.History.Append(ctx, push.Record{Tag: c.Tag, Action: actionName(c.Action), Type: c.Data.Type}); herr != nil {
		log.Warn(ctx, "record interaction failed", observe.Err(herr))
	}
}

func actionName(action string) string {
	if action == "" {
		return "default"
	}
	return action
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
