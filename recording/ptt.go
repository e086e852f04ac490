package recording

import (
	"context"
	"sync"
	"time"

	"github.com/arach/scout-sub000/events"
	"github.com/arach/scout-sub000/log"
)

const (
	// pressCooldown suppresses key chatter: a re-press this soon after the
	// previous press is ignored.
	pressCooldown = 300 * time.Millisecond

	// minHold is the nominal push-to-talk hold. Releases shorter than this
	// are logged but still stop the recording; swallowing them is how
	// recordings get stuck.
	minHold = 200 * time.Millisecond
)

// Monitor drives a Session from the engine's push-to-talk press/release
// events. Overlapping presses cannot start a second recording; that guard
// lives in Session.Start.
type Monitor struct {
	session *Session

	mu        sync.Mutex
	lastPress time.Time
	pressedAt time.Time // zero when not held
}

func NewMonitor(session *Session) *Monitor {
	return &Monitor{session: session}
}

// Start subscribes to press/release events. The returned stop releases both
// subscriptions exactly once; callers invoke it when push-to-talk is
// disabled or the owning scope ends.
func (m *Monitor) Start(bus *events.Bus) (stop func()) {
	cancels := []func(){
		bus.Subscribe(events.PushToTalkPressed, func(any) { m.handlePress() }),
		bus.Subscribe(events.PushToTalkReleased, func(any) { m.handleRelease() }),
	}
	return sync.OnceFunc(func() {
		for _, cancel := range cancels {
			cancel()
		}
	})
}

func (m *Monitor) handlePress() {
	m.mu.Lock()
	now := time.Now()
	if !m.lastPress.IsZero() && now.Sub(m.lastPress) < pressCooldown {
		m.mu.Unlock()
		log.Info("ptt_press_ignored_cooldown")
		return
	}
	m.lastPress = now
	m.pressedAt = now
	m.mu.Unlock()

	m.session.Start(context.Background())
}

func (m *Monitor) handleRelease() {
	m.mu.Lock()
	held := time.Duration(0)
	if !m.pressedAt.IsZero() {
		held = time.Since(m.pressedAt)
	}
	m.pressedAt = time.Time{}
	m.mu.Unlock()

	if held > 0 && held < minHold {
		log.Info("ptt_release_before_min_hold")
	}
	m.session.Stop(context.Background())
}
