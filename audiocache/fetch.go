package audiocache

import (
	"context"
	"sync"
	"time"
)

const debounceDelay = 50 * time.Millisecond

// Result is what a Fetcher reports to its consumer. Exactly one of Blob,
// Err, or Loading is meaningful per delivery.
type Result struct {
	Path    string
	Blob    []byte
	Err     string
	Loading bool
}

// ReadFunc reads a finished recording's bytes; backend.Recorder.ReadAudioFile
// satisfies it.
type ReadFunc func(ctx context.Context, path string) ([]byte, error)

// Fetcher resolves audio paths for one consumer. Path changes are debounced,
// cache hits resolve immediately, and a new request cancels and supersedes
// any in-flight one, so a stale fetch can never overwrite current state.
//
// onResult is invoked with the fetcher's internal lock held and must not
// call back into the Fetcher.
type Fetcher struct {
	mu       sync.Mutex
	cache    *Cache
	read     ReadFunc
	onResult func(Result)
	debounce *time.Timer
	cancel   context.CancelFunc
	gen      uint64
	closed   bool
}

func NewFetcher(cache *Cache, read ReadFunc, onResult func(Result)) *Fetcher {
	return &Fetcher{cache: cache, read: read, onResult: onResult}
}

// SetPath schedules a fetch for path after a short quiet period. Rapid
// successive calls coalesce into one fetch of the last path. An empty path
// cancels any pending or in-flight work.
func (f *Fetcher) SetPath(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if f.debounce != nil {
		f.debounce.Stop()
		f.debounce = nil
	}
	if path == "" {
		f.supersede()
		return
	}
	f.debounce = time.AfterFunc(debounceDelay, func() { f.fetch(path) })
}

// supersede invalidates the outstanding request, if any. Caller holds f.mu.
func (f *Fetcher) supersede() {
	f.gen++
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

func (f *Fetcher) fetch(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.supersede()

	if blob, ok := f.cache.Get(path); ok {
		f.onResult(Result{Path: path, Blob: blob})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	gen := f.gen
	f.onResult(Result{Path: path, Loading: true})

	go func() {
		blob, err := f.read(ctx, path)
		cancel()

		f.mu.Lock()
		defer f.mu.Unlock()
		// Discard silently if this request was superseded or the fetcher
		// was torn down while the read was in flight.
		if f.closed || gen != f.gen {
			return
		}
		f.cancel = nil
		if err != nil {
			f.onResult(Result{Path: path, Err: err.Error()})
			return
		}
		f.cache.Put(path, blob)
		f.onResult(Result{Path: path, Blob: blob})
	}()
}

// Close cancels the debounce timer and any in-flight fetch. No results are
// delivered after Close returns.
func (f *Fetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.debounce != nil {
		f.debounce.Stop()
		f.debounce = nil
	}
	f.supersede()
}
