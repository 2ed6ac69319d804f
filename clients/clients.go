// Package clients tracks the open pages (windows) the worker controls.
package clients

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownClient is returned for operations on a client that is not open.
var ErrUnknownClient = errors.New("clients: unknown client")

// Client is one open window of the platform.
type Client struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Focused    bool   `json:"focused"`
	Controlled bool   `json:"controlled"`
	Version    string `json:"version,omitempty"`
}

// Registry holds the open clients in registration order.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Returned Client values are copies.
type Registry struct {
	mu      sync.Mutex
	order   []string
	clients map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Register records a newly opened window at url.
func (r *Registry) Register(url string) Client {
	c := &Client{ID: uuid.NewString(), URL: url}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, c.ID)
	r.clients[c.ID] = c
	return *c
}

// Remove forgets a closed window. Idempotent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; !ok {
		return
	}
	delete(r.clients, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// MatchAll returns every open client, controlled or not.
func (r *Registry) MatchAll(_ context.Context) ([]Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Client, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.clients[id])
	}
	return out, nil
}

// Navigate points an open client at url.
func (r *Registry) Navigate(_ context.Context, id, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return ErrUnknownClient
	}
	c.URL = url
	return nil
}

// Focus brings an open client to the front. Other clients lose focus.
func (r *Registry) Focus(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; !ok {
		return ErrUnknownClient
	}
	for cid, c := range r.clients {
		c.Focused = cid == id
	}
	return nil
}

// OpenWindow opens a new focused client at url.
func (r *Registry) OpenWindow(ctx context.Context, url string) (Client, error) {
	c := r.Register(url)
	if err := r.Focus(ctx, c.ID); err != nil {
		return Client{}, err
	}
	c.Focused = true
	return c, nil
}

// Claim takes control of every open client for version and returns how many
// changed controller.
func (r *Registry) Claim(_ context.Context, version string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.clients {
		if !c.Controlled || c.Version != version {
			n++
		}
		c.Controlled = true
		c.Version = version
	}
	return n, nil
}
