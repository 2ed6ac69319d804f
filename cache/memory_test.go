package cache

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"testing"
)

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	entry := &Entry{Key: "GET https://a/", Method: http.MethodGet, Status: 200, Body: []byte("olá"), Header: http.Header{"X": []string{"1"}}}
	if err := s.Set(ctx, "core", entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	entry.Body[0] = 'X'

	got, ok, err := s.Get(ctx, "core", "GET https://a/")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if string(got.Body) != "olá" {
		t.Errorf("stored body mutated through caller slice: %q", got.Body)
	}
	got.Header.Set("X", "2")
	again, _, _ := s.Get(ctx, "core", "GET https://a/")
	if again.Header.Get("X") != "1" {
		t.Errorf("stored header mutated through returned entry")
	}
}

func TestMemoryStore_DropAndKeys(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Keys(ctx, "missing"); !errors.Is(err, ErrUnknownCache) {
		t.Errorf("Keys(missing) error = %v, want ErrUnknownCache", err)
	}
	if err := s.Open(ctx, "core"); err != nil {
		t.Fatal(err)
	}
	keys, err := s.Keys(ctx, "core")
	if err != nil || len(keys) != 0 {
		t.Errorf("Keys(empty) = %v, %v", keys, err)
	}

	existed, _ := s.Drop(ctx, "core")
	if !existed {
		t.Error("Drop() existed = false, want true")
	}
	existed, _ = s.Drop(ctx, "core")
	if existed {
		t.Error("second Drop() existed = true")
	}
}

func TestMemoryStore_SetRejectsInvalidKey(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Set(context.Background(), "core", &Entry{Key: ""}); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Set(empty key) error = %v, want ErrInvalidKey", err)
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "GET https://a/" + string(rune('a'+i))
			_ = s.Set(ctx, "core", &Entry{Key: key, Method: http.MethodGet, Status: 200})
			_, _, _ = s.Get(ctx, "core", key)
			_, _ = s.Names(ctx)
		}(i)
	}
	wg.Wait()

	keys, _ := s.Keys(ctx, "core")
	if len(keys) != 20 {
		t.Errorf("len(keys) = %d, want 20", len(keys))
	}
	if !slices.IsSorted(keys) {
		t.Errorf("keys not sorted: %v", keys)
	}
}
