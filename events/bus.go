package events

import "sync"

// Event names pushed by the native backend.
const (
	RecordingStateChanged = "recording-state-changed"
	RecordingProgress     = "recording-progress"
	ProcessingComplete    = "processing-complete"
	PushToTalkPressed     = "push-to-talk-pressed"
	PushToTalkReleased    = "push-to-talk-released"
)

// StateRecording is the one StateChangedPayload.State value that means a
// recording is active; every other value maps to idle.
const StateRecording = "recording"

type StateChangedPayload struct {
	State string `json:"state"`
}

// ProgressPayload mirrors the backend's progress enum. At most one variant
// is set.
type ProgressPayload struct {
	Recording *ProgressRecording `json:"Recording,omitempty"`
	Stopping  *ProgressStopping  `json:"Stopping,omitempty"`
	Idle      bool               `json:"Idle,omitempty"`
}

type ProgressRecording struct {
	Filename  string `json:"filename"`
	StartTime int64  `json:"start_time"` // ms since epoch
}

type ProgressStopping struct {
	Filename string `json:"filename"`
}

type Handler func(payload any)

// Bus fans typed named events out to subscribers. Delivery to a single
// subscriber is FIFO; there is no ordering across different event names.
// Emit never blocks the emitter.
type Bus struct {
	mu     sync.Mutex
	subs   map[string][]*subscriber
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]*subscriber)}
}

// Subscribe registers fn for the named event and returns a cancellation
// handle. The handle is idempotent.
func (b *Bus) Subscribe(name string, fn Handler) (cancel func()) {
	s := newSubscriber(fn)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.stop()
		return func() {}
	}
	b.subs[name] = append(b.subs[name], s)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			list := b.subs[name]
			for i, sub := range list {
				if sub == s {
					b.subs[name] = append(list[:i], list[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
			s.stop()
		})
	}
}

// Emit queues payload for every subscriber of name.
func (b *Bus) Emit(name string, payload any) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	list := make([]*subscriber, len(b.subs[name]))
	copy(list, b.subs[name])
	b.mu.Unlock()

	for _, s := range list {
		s.push(payload)
	}
}

// Close stops all dispatch goroutines. Events emitted after Close are
// dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*subscriber
	for _, list := range b.subs {
		all = append(all, list...)
	}
	b.subs = make(map[string][]*subscriber)
	b.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
}

// subscriber owns an unbounded FIFO queue drained by one goroutine, so a
// slow handler can never block Emit or reorder its own deliveries.
type subscriber struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []any
	done  bool
	fn    Handler
}

func newSubscriber(fn Handler) *subscriber {
	s := &subscriber{fn: fn}
	s.cond = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

func (s *subscriber) push(payload any) {
	s.mu.Lock()
	if !s.done {
		s.queue = append(s.queue, payload)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscriber) loop() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.done {
			s.cond.Wait()
		}
		if s.done {
			s.mu.Unlock()
			return
		}
		payload := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.fn(payload)
	}
}

func (s *subscriber) stop() {
	s.mu.Lock()
	s.done = true
	s.cond.Signal()
	s.mu.Unlock()
}
