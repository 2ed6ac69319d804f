package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(NewMemoryStore(), WithClock(func() time.Time {
		return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	}))
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}, "X-Cultural": []string{"fado"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestNewRegistry_NilStore(t *testing.T) {
	if _, err := NewRegistry(nil); !errors.Is(err, ErrNilStore) {
		t.Errorf("NewRegistry(nil) error = %v, want ErrNilStore", err)
	}
}

func TestRegistry_PutMatchRoundTrip(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	tiers := NewTierSet("lusotown", "3.0.1", DefaultTierLimits())

	req := httptest.NewRequest(http.MethodGet, "https://lusotown.example/api/events?lang=pt", nil)
	resp := jsonResponse(http.StatusOK, `{"events":["fado"]}`)

	if err := reg.Put(ctx, tiers.API, req, resp); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// The caller's body must still be readable after Put.
	original, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read original body: %v", err)
	}
	if string(original) != `{"events":["fado"]}` {
		t.Errorf("original body = %q after Put", original)
	}

	got, ok := reg.Match(ctx, tiers.API, req)
	if !ok {
		t.Fatal("Match() miss after Put")
	}
	body, _ := io.ReadAll(got.Body)
	if !bytes.Equal(body, original) {
		t.Errorf("matched body = %q, want %q", body, original)
	}
	if got.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", got.StatusCode)
	}
	if got.Header.Get("X-Cultural") != "fado" || got.Header.Get("Content-Type") != "application/json" {
		t.Errorf("headers not preserved: %v", got.Header)
	}
}

func TestRegistry_MatchReturnsIndependentBodies(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	tier := Tier{Name: "t"}
	req := httptest.NewRequest(http.MethodGet, "https://lusotown.example/a.css", nil)
	if err := reg.Put(ctx, tier, req, jsonResponse(200, "body")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	first, _ := reg.Match(ctx, tier, req)
	second, _ := reg.Match(ctx, tier, req)
	_, _ = io.ReadAll(first.Body)
	b, _ := io.ReadAll(second.Body)
	if string(b) != "body" {
		t.Errorf("second body = %q, want %q", b, "body")
	}
}

func TestRegistry_PutRejectsNonGET(t *testing.T) {
	reg := newTestRegistry(t)
	req := httptest.NewRequest(http.MethodPost, "https://lusotown.example/api/events", nil)
	err := reg.Put(context.Background(), Tier{Name: "t"}, req, jsonResponse(200, "{}"))
	if !errors.Is(err, ErrMethodNotCacheable) {
		t.Errorf("Put(POST) error = %v, want ErrMethodNotCacheable", err)
	}
	names, _ := reg.Names(context.Background())
	if len(names) != 0 {
		t.Errorf("caches created for rejected put: %v", names)
	}
}

func TestRegistry_PutRefusesPartialContent(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	tier := Tier{Name: "core"}
	target := "https://lusotown-portuguese-streams.b-cdn.net/live/fado.mp4"

	req := httptest.NewRequest(http.MethodGet, target, nil)
	if err := reg.Put(ctx, tier, req, jsonResponse(http.StatusPartialContent, "first")); !errors.Is(err, ErrPartialContent) {
		t.Errorf("Put(206) error = %v, want ErrPartialContent", err)
	}

	ranged := httptest.NewRequest(http.MethodGet, target, nil)
	ranged.Header.Set("Range", "bytes=0-99")
	if err := reg.Put(ctx, tier, ranged, jsonResponse(http.StatusOK, "whole")); !errors.Is(err, ErrPartialContent) {
		t.Errorf("Put(Range) error = %v, want ErrPartialContent", err)
	}

	if _, ok := reg.Match(ctx, tier, req); ok {
		t.Error("partial content was stored")
	}
}

func TestRegistry_PutEnforcesMaxEntryBytes(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	tier := Tier{Name: "images", MaxEntryBytes: 4}
	req := httptest.NewRequest(http.MethodGet, "https://lusotown.example/images/pasteis.jpg", nil)
	resp := jsonResponse(200, "too-large")

	err := reg.Put(ctx, tier, req, resp)
	if !errors.Is(err, ErrEntryTooLarge) {
		t.Fatalf("Put() error = %v, want ErrEntryTooLarge", err)
	}
	if _, ok := reg.Match(ctx, tier, req); ok {
		t.Error("oversized entry was stored")
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "too-large" {
		t.Errorf("caller body = %q after refused put", body)
	}
}

func TestRegistry_MatchMiss(t *testing.T) {
	reg := newTestRegistry(t)
	req := httptest.NewRequest(http.MethodGet, "https://lusotown.example/nothing", nil)
	if _, ok := reg.Match(context.Background(), Tier{Name: "absent"}, req); ok {
		t.Error("Match() hit on empty registry")
	}
}

func TestRegistry_SweepIsIdempotent(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	current := NewTierSet("lusotown", "3.0.1", DefaultTierLimits())
	old := NewTierSet("lusotown", "3.0.0", DefaultTierLimits())

	for _, tier := range append(current.All(), old.All()...) {
		if err := reg.Open(ctx, tier); err != nil {
			t.Fatalf("Open(%s) error = %v", tier.Name, err)
		}
	}

	deleted, err := reg.Sweep(ctx, current.Retained())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if len(deleted) != 7 {
		t.Errorf("first sweep deleted %d caches (%v), want 7", len(deleted), deleted)
	}
	afterFirst, _ := reg.Names(ctx)

	deleted, err = reg.Sweep(ctx, current.Retained())
	if err != nil {
		t.Fatalf("second Sweep() error = %v", err)
	}
	if len(deleted) != 0 {
		t.Errorf("second sweep deleted %v, want none", deleted)
	}
	afterSecond, _ := reg.Names(ctx)

	if !slices.Equal(afterFirst, afterSecond) {
		t.Errorf("surviving sets differ: %v vs %v", afterFirst, afterSecond)
	}
	want := current.Retained()
	slices.Sort(want)
	if !slices.Equal(afterSecond, want) {
		t.Errorf("survivors = %v, want %v", afterSecond, want)
	}
}

func TestRegistry_Documents(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	type state struct {
		Count int `json:"count"`
	}

	if err := reg.PutDocument(ctx, "state", "pending/b", state{Count: 2}); err != nil {
		t.Fatalf("PutDocument() error = %v", err)
	}
	if err := reg.PutDocument(ctx, "state", "pending/a", state{Count: 1}); err != nil {
		t.Fatalf("PutDocument() error = %v", err)
	}
	if err := reg.PutDocument(ctx, "state", "policy", state{Count: 9}); err != nil {
		t.Fatalf("PutDocument() error = %v", err)
	}

	ids, err := reg.Documents(ctx, "state", "pending/")
	if err != nil {
		t.Fatalf("Documents() error = %v", err)
	}
	if !slices.Equal(ids, []string{"pending/a", "pending/b"}) {
		t.Errorf("Documents() = %v", ids)
	}

	var got state
	ok, err := reg.GetDocument(ctx, "state", "policy", &got)
	if err != nil || !ok {
		t.Fatalf("GetDocument() = %v, %v", ok, err)
	}
	if got.Count != 9 {
		t.Errorf("Count = %d, want 9", got.Count)
	}

	if err := reg.DeleteDocument(ctx, "state", "policy"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	ok, err = reg.GetDocument(ctx, "state", "policy", &got)
	if err != nil || ok {
		t.Errorf("GetDocument() after delete = %v, %v", ok, err)
	}
}

type failingStore struct {
	*MemoryStore
}

func (f failingStore) Get(context.Context, string, string) (*Entry, bool, error) {
	return nil, false, errors.New("disk on fire")
}

func TestRegistry_MatchReportsStoreErrors(t *testing.T) {
	var reported []string
	reg, err := NewRegistry(failingStore{NewMemoryStore()}, WithErrorHandler(func(_ context.Context, op, name string, err error) {
		reported = append(reported, op+":"+name)
	}))
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "https://lusotown.example/x", nil)
	if _, ok := reg.Match(context.Background(), Tier{Name: "core"}, req); ok {
		t.Error("Match() hit with failing store")
	}
	if !slices.Equal(reported, []string{"match:core"}) {
		t.Errorf("reported = %v", reported)
	}
}

func TestTierSet_Names(t *testing.T) {
	tiers := NewTierSet("lusotown", "3.0.1", DefaultTierLimits())
	want := []string{
		"lusotown-v3.0.1-core",
		"lusotown-cultural-v3.0.1",
		"lusotown-api-v3.0.1",
		"lusotown-images-v3.0.1",
		"lusotown-static-v3.0.1",
	}
	var got []string
	for _, tier := range tiers.All() {
		got = append(got, tier.Name)
	}
	if !slices.Equal(got, want) {
		t.Errorf("tier names = %v, want %v", got, want)
	}
	if tiers.Images.MaxEntryBytes != 500*1024 {
		t.Errorf("Images.MaxEntryBytes = %d, want 512000", tiers.Images.MaxEntryBytes)
	}
}
