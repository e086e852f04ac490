package audiocache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeReader struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
	gates map[string]chan struct{} // per-path block until closed
	calls []string
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		files: map[string][]byte{},
		gates: map[string]chan struct{}{},
	}
}

func (r *fakeReader) read(ctx context.Context, path string) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, path)
	gate := r.gates[path]
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	data, ok := r.files[path]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

func (r *fakeReader) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func nextResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fetch result")
		return Result{}
	}
}

func noResult(t *testing.T, ch <-chan Result, wait time.Duration) {
	t.Helper()
	select {
	case res := <-ch:
		t.Fatalf("unexpected result: %+v", res)
	case <-time.After(wait):
	}
}

func newTestFetcher(cache *Cache, rd *fakeReader) (*Fetcher, chan Result) {
	results := make(chan Result, 32)
	f := NewFetcher(cache, rd.read, func(res Result) { results <- res })
	return f, results
}

func TestCacheHitNoLoadingNoRead(t *testing.T) {
	cache := New()
	cache.Put("x.wav", []byte("cached"))
	rd := newFakeReader()
	f, results := newTestFetcher(cache, rd)
	defer f.Close()

	f.SetPath("x.wav")

	res := nextResult(t, results)
	if res.Loading {
		t.Error("cache hit went through a loading transition")
	}
	if string(res.Blob) != "cached" {
		t.Errorf("Blob = %q, want cached", res.Blob)
	}
	if rd.callCount() != 0 {
		t.Errorf("remote read issued on cache hit: %d calls", rd.callCount())
	}
}

func TestMissFetchesAndCaches(t *testing.T) {
	cache := New()
	rd := newFakeReader()
	rd.files["a.wav"] = []byte("fresh")
	f, results := newTestFetcher(cache, rd)
	defer f.Close()

	f.SetPath("a.wav")

	if res := nextResult(t, results); !res.Loading {
		t.Errorf("expected loading transition first, got %+v", res)
	}
	res := nextResult(t, results)
	if string(res.Blob) != "fresh" || res.Err != "" {
		t.Errorf("got %+v, want fresh blob", res)
	}
	if got, ok := cache.Get("a.wav"); !ok || string(got) != "fresh" {
		t.Error("successful fetch was not cached")
	}
}

func TestStaleRequestSuppressed(t *testing.T) {
	cache := New()
	rd := newFakeReader()
	rd.files["p1.wav"] = []byte("one")
	rd.files["p2.wav"] = []byte("two")
	gate1 := make(chan struct{})
	rd.gates["p1.wav"] = gate1
	f, results := newTestFetcher(cache, rd)
	defer f.Close()

	f.SetPath("p1.wav")
	if res := nextResult(t, results); !res.Loading || res.Path != "p1.wav" {
		t.Fatalf("expected p1 loading, got %+v", res)
	}

	// supersede p1 while its read is blocked
	f.SetPath("p2.wav")
	if res := nextResult(t, results); !res.Loading || res.Path != "p2.wav" {
		t.Fatalf("expected p2 loading, got %+v", res)
	}
	close(gate1)

	res := nextResult(t, results)
	if res.Path != "p2.wav" || string(res.Blob) != "two" {
		t.Errorf("visible state mutated by stale request: %+v", res)
	}
	noResult(t, results, 100*time.Millisecond)
}

func TestDebounceCoalesces(t *testing.T) {
	cache := New()
	rd := newFakeReader()
	rd.files["c.wav"] = []byte("c")
	f, results := newTestFetcher(cache, rd)
	defer f.Close()

	f.SetPath("a.wav")
	f.SetPath("b.wav")
	f.SetPath("c.wav")

	if res := nextResult(t, results); !res.Loading || res.Path != "c.wav" {
		t.Fatalf("expected only c.wav to fetch, got %+v", res)
	}
	nextResult(t, results)
	if rd.callCount() != 1 {
		t.Errorf("read called %d times, want 1 (debounce should absorb a and b)", rd.callCount())
	}
}

func TestFetchErrorSurfacedNotCached(t *testing.T) {
	cache := New()
	rd := newFakeReader()
	f, results := newTestFetcher(cache, rd)
	defer f.Close()

	f.SetPath("gone.wav")

	nextResult(t, results) // loading
	res := nextResult(t, results)
	if res.Err == "" || res.Loading {
		t.Errorf("expected error result, got %+v", res)
	}
	if cache.Len() != 0 {
		t.Error("failed fetch was cached")
	}
}

func TestCloseDiscardsInFlight(t *testing.T) {
	cache := New()
	rd := newFakeReader()
	rd.files["a.wav"] = []byte("a")
	gate := make(chan struct{})
	rd.gates["a.wav"] = gate
	f, results := newTestFetcher(cache, rd)

	f.SetPath("a.wav")
	nextResult(t, results) // loading

	f.Close()
	close(gate)

	noResult(t, results, 100*time.Millisecond)
}

func TestClearPathCancelsPending(t *testing.T) {
	cache := New()
	rd := newFakeReader()
	rd.files["a.wav"] = []byte("a")
	f, results := newTestFetcher(cache, rd)
	defer f.Close()

	f.SetPath("a.wav")
	f.SetPath("") // before debounce fires

	noResult(t, results, 150*time.Millisecond)
	if rd.callCount() != 0 {
		t.Errorf("read issued despite cleared path: %d calls", rd.callCount())
	}
}
