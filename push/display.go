package push

import (
	"context"
	"errors"
	"fmt"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/jonwraymond/offlineworker/observe"
)

// Displayer shows a built notification to the user.
type Displayer interface {
	Display(ctx context.Context, n Notification) error
}

// DisplayerFunc adapts a function to Displayer.
type DisplayerFunc func(ctx context.Context, n Notification) error

// Display calls f.
func (f DisplayerFunc) Display(ctx context.Context, n Notification) error { return f(ctx, n) }

// LogDisplayer writes notifications to a logger.
type LogDisplayer struct {
	Logger observe.Logger
}

// Display logs n at info level.
func (d LogDisplayer) Display(ctx context.Context, n Notification) error {
	actions := make([]string, 0, len(n.Actions))
	for _, a := range n.Actions {
		actions = append(actions, a.Action)
	}
	d.Logger.Info(ctx, "notification",
		observe.F("title", n.Title),
		observe.F("body", n.Body),
		observe.F("tag", n.Tag),
		observe.F("lang", n.Language.String()),
		observe.F("actions", actions),
	)
	return nil
}

// CloseNotification logs the dismissal of the notification with tag.
func (d LogDisplayer) CloseNotification(ctx context.Context, tag string) error {
	d.Logger.Info(ctx, "notification closed", observe.F("tag", tag))
	return nil
}

type sender interface {
	Send(message string, params *types.Params) []error
}

// ShoutrrrDisplayer delivers notifications through shoutrrr service URLs
// such as ntfy://host/topic.
type ShoutrrrDisplayer struct {
	sender sender
}

// NewShoutrrrDisplayer creates a displayer for one or more service URLs.
func NewShoutrrrDisplayer(urls ...string) (*ShoutrrrDisplayer, error) {
	if len(urls) == 0 {
		return nil, errors.New("push: no display URLs configured")
	}
	s, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("push: create sender: %w", err)
	}
	return &ShoutrrrDisplayer{sender: s}, nil
}

// Display sends n to every configured service.
func (d *ShoutrrrDisplayer) Display(_ context.Context, n Notification) error {
	params := types.Params{}
	params.SetTitle(n.Title)
	message := n.Body
	if n.Data.URL != "" && n.Data.URL != "/" {
		message += "\n" + n.Data.URL
	}

	var errs []error
	for _, err := range d.sender.Send(message, &params) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("push: display: %w", err)
	}
	return nil
}

// CloseNotification is a no-op: messages already delivered to a shoutrrr
// service cannot be recalled.
func (d *ShoutrrrDisplayer) CloseNotification(context.Context, string) error { return nil }
