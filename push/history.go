package push

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/offlineworker/cache"
)

const historyPrefix = "history/"

// Record is one entry of the notification log.
type Record struct {
	ID        string    `json:"id"`
	Tag       string    `json:"tag"`
	Action    string    `json:"action"`
	Type      string    `json:"type,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Record actions written by the pipeline. Clicks record the clicked action.
const (
	RecordShown    = "shown"
	RecordDropped  = "dropped"
	RecordFallback = "fallback"
	RecordDeferred = "deferred"
)

// History is an append-only notification log stored as documents.
type History struct {
	reg   *cache.Registry
	cache string
	now   func() time.Time
}

// NewHistory creates a log in the named cache.
func NewHistory(reg *cache.Registry, cacheName string, now func() time.Time) *History {
	if now == nil {
		now = time.Now
	}
	return &History{reg: reg, cache: cacheName, now: now}
}

// Append stores rec, filling ID and Timestamp when unset.
func (h *History) Append(ctx context.Context, rec Record) (Record, error) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = h.now()
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if err := h.reg.PutDocument(ctx, h.cache, h.docID(rec), rec); err != nil {
		return rec, fmt.Errorf("push: append history: %w", err)
	}
	return rec, nil
}

// docID sorts lexically by time.
func (h *History) docID(rec Record) string {
	return fmt.Sprintf("%s%020d-%s", historyPrefix, rec.Timestamp.UnixNano(), rec.ID)
}

// List returns every record, oldest first.
func (h *History) List(ctx context.Context) ([]Record, error) {
	ids, err := h.reg.Documents(ctx, h.cache, historyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		var rec Record
		ok, err := h.reg.GetDocument(ctx, h.cache, id, &rec)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Prune deletes records older than maxAge and returns how many were removed.
func (h *History) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	ids, err := h.reg.Documents(ctx, h.cache, historyPrefix)
	if err != nil {
		return 0, err
	}
	cutoff := h.now().Add(-maxAge).UnixNano()
	n := 0
	for _, id := range ids {
		stamp, _, _ := strings.Cut(strings.TrimPrefix(id, historyPrefix), "-")
		ts, err := strconv.ParseInt(stamp, 10, 64)
		if err != nil || ts >= cutoff {
			continue
		}
		if err := h.reg.DeleteDocument(ctx, h.cache, id); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
