package interaction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/jonwraymond/offlineworker/push"
)

// ErrEffectRejected is returned when the API answers a side effect with a non-2xx status.
var ErrEffectRejected = errors.New("interaction: side effect rejected")

// HTTPSideEffects posts RSVP and share requests to the platform API.
type HTTPSideEffects struct {
	Client *http.Client
	Origin *url.URL
}

type rsvpRequest struct {
	EventURL string `json:"eventUrl"`
	Response string `json:"response"`
}

type shareRequest struct {
	EventURL string `json:"eventUrl"`
	URL      string `json:"url"`
}

// RSVP records the user's answer for the event in d.
func (s HTTPSideEffects) RSVP(ctx context.Context, d push.Data, answer string) error {
	return s.post(ctx, "/api/events/rsvp", rsvpRequest{EventURL: or(d.EventURL, d.URL), Response: answer})
}

// Share records a share of the event in d.
func (s HTTPSideEffects) Share(ctx context.Context, d push.Data) error {
	return s.post(ctx, "/api/events/share", shareRequest{EventURL: d.EventURL, URL: d.URL})
}

func (s HTTPSideEffects) post(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	endpoint := s.Origin.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("interaction: %s: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned %d", ErrEffectRejected, path, resp.StatusCode)
	}
	return nil
}
