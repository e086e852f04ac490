// Package recording owns the client-side recording lifecycle: optimistic
// state around the engine's start/stop/cancel procedures, reconciled against
// the engine's pushed events, which are authoritative.
package recording

import (
	"context"
	"sync"
	"time"

	"github.com/arach/scout-sub000/backend"
	"github.com/arach/scout-sub000/events"
	"github.com/arach/scout-sub000/log"
)

// DefaultDeviceLabel is the sentinel the settings surface uses for the
// system default microphone. The engine expects nil for the default, so the
// sentinel is never sent over the wire.
const DefaultDeviceLabel = "Default microphone"

const toggleCooldown = 300 * time.Millisecond

type Config struct {
	// Device is the microphone label; empty or DefaultDeviceLabel selects
	// the system default.
	Device string

	SoundsEnabled bool

	OnRecordingStart    func()
	OnRecordingComplete func()
	OnTranscriptCreated func(payload any)
}

// Session is the recording state machine. One instance exists per window;
// all state changes go through its operations and event handlers.
type Session struct {
	rec backend.Recorder
	cfg Config

	mu         sync.Mutex
	recording  bool
	starting   bool
	startTime  time.Time // zero until the engine confirms
	lastToggle time.Time
}

func NewSession(rec backend.Recorder, cfg Config) *Session {
	return &Session{rec: rec, cfg: cfg}
}

func (s *Session) IsRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

func (s *Session) IsStarting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starting
}

// StartTime returns when the engine confirmed the recording began, if it has.
func (s *Session) StartTime() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime, !s.startTime.IsZero()
}

// resolveDevice maps the UI label to the wire representation.
func resolveDevice(label string) *string {
	if label == "" || label == DefaultDeviceLabel {
		return nil
	}
	return &label
}

// Start begins a recording. A start while one is already starting or active
// is refused without touching the engine. Failures are resolved locally;
// the engine reporting "already in progress" counts as success.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.recording || s.starting {
		s.mu.Unlock()
		log.Info("start_ignored_already_active")
		return nil
	}
	s.starting = true
	s.mu.Unlock()

	err := s.rec.StartRecording(ctx, resolveDevice(s.cfg.Device))
	if err != nil && backend.Classify(err) == backend.KindAlreadyRecording {
		// The engine is authoritative and is already recording.
		log.Warn("start_already_in_progress_adopted")
		err = nil
	}

	s.mu.Lock()
	s.starting = false
	if err != nil {
		s.recording = false
		s.startTime = time.Time{}
		s.mu.Unlock()
		log.Errorf("start_recording failed: %v", err)
		return err
	}
	s.recording = true
	s.startTime = time.Now() // refined by the recording-progress event
	s.mu.Unlock()

	log.RecordingStarted(s.cfg.Device)
	if cb := s.cfg.OnRecordingStart; cb != nil {
		cb()
	}
	s.playSound(ctx, s.rec.PlayStartSound)
	return nil
}

// Stop finalizes the active recording. The engine's status is checked first
// so local drift never produces a spurious stop call.
func (s *Session) Stop(ctx context.Context) error {
	active, err := s.rec.IsRecording(ctx)
	if err != nil {
		log.Errorf("is_recording query failed during stop: %v", err)
		s.reset()
		return err
	}
	if !active {
		log.Info("stop_with_idle_engine_reset")
		s.reset()
		return nil
	}

	dur := s.elapsed()
	if err := s.rec.StopRecording(ctx); err != nil {
		if backend.Classify(err) == backend.KindNotRecording {
			// The recording ended between the status query and the stop
			// call; same drift repair as the pre-query path.
			log.Info("stop_with_idle_engine_reset")
			s.reset()
			return nil
		}
		log.Errorf("stop_recording failed: %v", err)
		s.reset()
		return err
	}
	s.reset()

	log.RecordingStopped(dur)
	s.playSound(ctx, s.rec.PlayStopSound)
	if cb := s.cfg.OnRecordingComplete; cb != nil {
		cb()
	}
	return nil
}

// Cancel discards the active recording. A cancel while idle is a no-op.
// Once issued, local state is idle regardless of the engine's answer.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.rec.CancelRecording(ctx); err != nil {
		log.Errorf("cancel_recording failed: %v", err)
	}
	s.reset()
	log.RecordingCancelled()
	return nil
}

// Toggle stops if recording, starts otherwise. Two toggles inside the
// cooldown window collapse into one, guarding against a hotkey and a UI
// click firing for the same intent.
func (s *Session) Toggle(ctx context.Context) error {
	s.mu.Lock()
	now := time.Now()
	if now.Sub(s.lastToggle) < toggleCooldown {
		s.mu.Unlock()
		log.Info("toggle_ignored_cooldown")
		return nil
	}
	s.lastToggle = now
	active := s.recording
	s.mu.Unlock()

	if active {
		return s.Stop(ctx)
	}
	return s.Start(ctx)
}

// Attach reconciles against the engine once and subscribes to its events.
// The returned detach releases every subscription exactly once.
func (s *Session) Attach(ctx context.Context, bus *events.Bus) (detach func()) {
	active, err := s.rec.IsRecording(ctx)
	if err != nil {
		log.Errorf("is_recording query failed on attach: %v", err)
		s.reset()
	} else {
		s.adopt(active)
	}

	cancels := []func(){
		bus.Subscribe(events.RecordingStateChanged, s.handleStateChanged),
		bus.Subscribe(events.RecordingProgress, s.handleProgress),
		bus.Subscribe(events.ProcessingComplete, s.handleProcessingComplete),
	}
	return sync.OnceFunc(func() {
		for _, cancel := range cancels {
			cancel()
		}
	})
}

// handleStateChanged adopts the engine's pushed state, overriding any local
// optimism.
func (s *Session) handleStateChanged(payload any) {
	sc, ok := payload.(events.StateChangedPayload)
	if !ok {
		return
	}
	s.adopt(sc.State == events.StateRecording)
}

func (s *Session) handleProgress(payload any) {
	pp, ok := payload.(events.ProgressPayload)
	if !ok || pp.Recording == nil {
		return
	}
	s.mu.Lock()
	s.startTime = time.UnixMilli(pp.Recording.StartTime)
	s.mu.Unlock()
}

func (s *Session) handleProcessingComplete(payload any) {
	if cb := s.cfg.OnTranscriptCreated; cb != nil {
		cb(payload)
	}
}

func (s *Session) adopt(active bool) {
	s.mu.Lock()
	s.recording = active
	s.starting = false
	if !active {
		s.startTime = time.Time{}
	}
	s.mu.Unlock()
}

func (s *Session) reset() {
	s.mu.Lock()
	s.recording = false
	s.starting = false
	s.startTime = time.Time{}
	s.mu.Unlock()
}

func (s *Session) elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

// playSound fires one of the engine's sound procedures. Sound failures are
// logged and swallowed; they never affect recording state.
func (s *Session) playSound(ctx context.Context, play func(context.Context) error) {
	if !s.cfg.SoundsEnabled {
		return
	}
	if err := play(ctx); err != nil {
		log.Warnf("sound playback failed: %v", err)
	}
}
