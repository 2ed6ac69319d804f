package cache

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 2048

// Sentinel errors for cache operations.
var (
	ErrNilStore           = errors.New("cache: store is nil")
	ErrInvalidKey         = errors.New("cache: key is invalid")
	ErrKeyTooLong         = errors.New("cache: key exceeds max length")
	ErrMethodNotCacheable = errors.New("cache: only GET requests are cacheable")
	ErrEntryTooLarge      = errors.New("cache: entry exceeds tier size limit")
	ErrPartialContent     = errors.New("cache: partial responses are not cacheable")
	ErrUnknownCache       = errors.New("cache: cache does not exist")
)

// Entry is a stored response snapshot.
type Entry struct {
	Key      string      `json:"key"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// Size returns the body size in bytes.
func (e *Entry) Size() int64 {
	return int64(len(e.Body))
}

// Store is the storage abstraction behind the registry. It holds named caches, each
// a flat key space of entries.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Get returns (nil, false, nil) on miss; errors are reserved for storage failures.
// - Open is idempotent; Drop reports whether the cache existed.
// - Set on a cache that was never opened creates it.
type Store interface {
	Names(ctx context.Context) ([]string, error)
	Open(ctx context.Context, name string) error
	Drop(ctx context.Context, name string) (bool, error)
	Get(ctx context.Context, name, key string) (*Entry, bool, error)
	Set(ctx context.Context, name string, entry *Entry) error
	Delete(ctx context.Context, name, key string) error
	Keys(ctx context.Context, name string) ([]string, error)
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
