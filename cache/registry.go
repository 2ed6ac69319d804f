package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"
)

// ErrorHandler receives storage failures that the registry absorbs as misses.
type ErrorHandler func(ctx context.Context, op, name string, err error)

// Registry owns the cache tiers. Every read and write of cached responses goes
// through it; callers never hold store handles across calls.
//
// Contract:
// - Concurrency: safe for concurrent use. Writes for the same key are last-write-wins.
// - Put stores a clone: the caller's response body remains readable afterwards.
// - Match never errors: storage failures go to the ErrorHandler and count as a miss.
type Registry struct {
	store   Store
	now     func() time.Time
	onError ErrorHandler
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the clock used for StoredAt timestamps.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// WithErrorHandler sets the handler for absorbed storage failures.
func WithErrorHandler(h ErrorHandler) RegistryOption {
	return func(r *Registry) {
		r.onError = h
	}
}

// NewRegistry creates a registry over store.
func NewRegistry(store Store, opts ...RegistryOption) (*Registry, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	r := &Registry{
		store:   store,
		now:     time.Now,
		onError: func(context.Context, string, string, error) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Open ensures the tier's cache exists.
func (r *Registry) Open(ctx context.Context, tier Tier) error {
	if err := r.store.Open(ctx, tier.Name); err != nil {
		return fmt.Errorf("cache: open %s: %w", tier.Name, err)
	}
	return nil
}

// Names lists every cache currently in the store.
func (r *Registry) Names(ctx context.Context) ([]string, error) {
	return r.store.Names(ctx)
}

// Put stores a clone of resp under the canonical key of req. Ranged requests
// and 206 responses are refused with ErrPartialContent.
func (r *Registry) Put(ctx context.Context, tier Tier, req *http.Request, resp *http.Response) error {
	if req != nil && req.Header.Get("Range") != "" {
		return ErrPartialContent
	}
	entry, err := Snapshot(req, resp)
	if err != nil {
		return err
	}
	return r.PutEntry(ctx, tier, entry)
}

// PutEntry stores an already captured entry.
func (r *Registry) PutEntry(ctx context.Context, tier Tier, entry *Entry) error {
	if entry.Method != http.MethodGet {
		return ErrMethodNotCacheable
	}
	if entry.Status == http.StatusPartialContent {
		return ErrPartialContent
	}
	if !tier.Admits(entry.Size()) {
		return fmt.Errorf("%w: %d bytes > %d in %s", ErrEntryTooLarge, entry.Size(), tier.MaxEntryBytes, tier.Name)
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = r.now()
	}
	if err := r.store.Set(ctx, tier.Name, entry); err != nil {
		return fmt.Errorf("cache: put %s in %s: %w", entry.Key, tier.Name, err)
	}
	return nil
}

// Match returns a fresh response for req from the tier, or (nil, false) on miss.
func (r *Registry) Match(ctx context.Context, tier Tier, req *http.Request) (*http.Response, bool) {
	entry, ok := r.lookup(ctx, tier.Name, req)
	if !ok {
		return nil, false
	}
	return entry.Response(req), true
}

// Entry returns the stored entry for key in the tier.
func (r *Registry) Entry(ctx context.Context, tier Tier, key string) (*Entry, bool, error) {
	return r.store.Get(ctx, tier.Name, key)
}

func (r *Registry) lookup(ctx context.Context, name string, req *http.Request) (*Entry, bool) {
	if req == nil || req.Method != http.MethodGet {
		return nil, false
	}
	key, err := RequestKey(req)
	if err != nil {
		return nil, false
	}
	entry, ok, err := r.store.Get(ctx, name, key)
	if err != nil {
		r.onError(ctx, "match", name, err)
		return nil, false
	}
	return entry, ok
}

// Delete removes the entry for req from the tier.
func (r *Registry) Delete(ctx context.Context, tier Tier, req *http.Request) error {
	key, err := RequestKey(req)
	if err != nil {
		return err
	}
	return r.store.Delete(ctx, tier.Name, key)
}

// Sweep deletes every cache whose name is not in keep and returns the deleted names.
// Sweeping with an unchanged keep set is idempotent.
func (r *Registry) Sweep(ctx context.Context, keep []string) ([]string, error) {
	names, err := r.store.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("cache: list caches: %w", err)
	}

	var deleted []string
	for _, name := range names {
		if slices.Contains(keep, name) {
			continue
		}
		existed, err := r.store.Drop(ctx, name)
		if err != nil {
			return deleted, fmt.Errorf("cache: delete %s: %w", name, err)
		}
		if existed {
			deleted = append(deleted, name)
		}
	}
	return deleted, nil
}

// Snapshot captures resp as an Entry keyed by req. The response body is read fully
// and replaced with an equivalent reader so the caller can still consume it.
func Snapshot(req *http.Request, resp *http.Response) (*Entry, error) {
	if req == nil || resp == nil {
		return nil, ErrInvalidKey
	}
	if req.Method != http.MethodGet {
		return nil, ErrMethodNotCacheable
	}
	key, err := RequestKey(req)
	if err != nil {
		return nil, err
	}

	var body []byte
	if resp.Body != nil {
		body, err = io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("cache: read response body: %w", err)
		}
	}

	return &Entry{
		Key:    key,
		Method: req.Method,
		URL:    CanonicalURL(req.URL),
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}

// Response builds a new response from the entry. Each call returns an independent
// body reader.
func (e *Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

const documentPrefix = "DOC "

// PutDocument stores v as JSON under id in the named cache. Documents share the
// Store with cached responses so worker state persists the same way.
func (r *Registry) PutDocument(ctx context.Context, name, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode document %s: %w", id, err)
	}
	entry := &Entry{
		Key:      documentPrefix + id,
		Method:   http.MethodGet,
		URL:      "doc:" + id,
		Status:   http.StatusOK,
		Header:   http.Header{"Content-Type": []string{"application/json"}},
		Body:     data,
		StoredAt: r.now(),
	}
	if err := r.store.Set(ctx, name, entry); err != nil {
		return fmt.Errorf("cache: put document %s: %w", id, err)
	}
	return nil
}

// GetDocument decodes the document id into v. Returns false when absent.
func (r *Registry) GetDocument(ctx context.Context, name, id string, v any) (bool, error) {
	entry, ok, err := r.store.Get(ctx, name, documentPrefix+id)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(entry.Body, v); err != nil {
		return false, fmt.Errorf("cache: decode document %s: %w", id, err)
	}
	return true, nil
}

// DeleteDocument removes the document id. Idempotent.
func (r *Registry) DeleteDocument(ctx context.Context, name, id string) error {
	return r.store.Delete(ctx, name, documentPrefix+id)
}

// Documents lists document ids with the given prefix in sorted order.
func (r *Registry) Documents(ctx context.Context, name, prefix string) ([]string, error) {
	if err := r.store.Open(ctx, name); err != nil {
		return nil, err
	}
	keys, err := r.store.Keys(ctx, name)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, k := range keys {
		id, ok := strings.CutPrefix(k, documentPrefix)
		if ok && strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
