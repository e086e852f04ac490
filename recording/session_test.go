package recording

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arach/scout-sub000/backend"
	"github.com/arach/scout-sub000/events"
)

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func TestStartDeviceResolution(t *testing.T) {
	cases := []struct {
		label string
		want  *string
	}{
		{"Default microphone", nil},
		{"", nil},
		{"Built-in Microphone", ptr("Built-in Microphone")},
	}
	for _, c := range cases {
		fake := backend.NewFakeRecorder()
		s := NewSession(fake, Config{Device: c.label})
		if err := s.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		calls := fake.StartCalls()
		if len(calls) != 1 {
			t.Fatalf("device %q: %d start calls, want 1", c.label, len(calls))
		}
		got := calls[0]
		switch {
		case c.want == nil && got != nil:
			t.Errorf("device %q: engine received %q, want nil", c.label, *got)
		case c.want != nil && (got == nil || *got != *c.want):
			t.Errorf("device %q: engine received %v, want %q", c.label, got, *c.want)
		}
	}
}

func ptr(s string) *string { return &s }

func TestConcurrentStartsSingleEngineCall(t *testing.T) {
	fake := backend.NewFakeRecorder()
	s := NewSession(fake, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Start(context.Background())
		}()
	}
	wg.Wait()

	if got := len(fake.StartCalls()); got != 1 {
		t.Errorf("engine start called %d times, want 1", got)
	}
	if !s.IsRecording() {
		t.Error("not recording after start")
	}
}

func TestStartAlreadyInProgressIsSuccess(t *testing.T) {
	fake := backend.NewFakeRecorder()
	fake.StartErr = errors.New("Recording already in progress")
	starts := 0
	s := NewSession(fake, Config{OnRecordingStart: func() { starts++ }})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("expected adoption, got error: %v", err)
	}
	if !s.IsRecording() {
		t.Error("isRecording = false; engine already recording must count as success")
	}
	if s.IsStarting() {
		t.Error("isStarting stuck true")
	}
	if starts != 1 {
		t.Errorf("OnRecordingStart fired %d times, want 1", starts)
	}
}

func TestStartFailureResetsState(t *testing.T) {
	fake := backend.NewFakeRecorder()
	fake.StartErr = errors.New("device busy")
	s := NewSession(fake, Config{})

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if s.IsRecording() || s.IsStarting() {
		t.Error("state not reset after start failure")
	}
	if _, ok := s.StartTime(); ok {
		t.Error("startTime set after failed start")
	}
}

func TestStopCompletesOnce(t *testing.T) {
	fake := backend.NewFakeRecorder()
	completes := 0
	s := NewSession(fake, Config{SoundsEnabled: true, OnRecordingComplete: func() { completes++ }})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.StartTime(); !ok {
		t.Fatal("startTime unset after confirmed start")
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.IsRecording() {
		t.Error("still recording after stop")
	}
	if _, ok := s.StartTime(); ok {
		t.Error("startTime survived stop")
	}
	if completes != 1 {
		t.Errorf("OnRecordingComplete fired %d times, want 1", completes)
	}
	if _, stop := fake.SoundCalls(); stop != 1 {
		t.Errorf("stop sound played %d times, want 1", stop)
	}
}

func TestStopWithIdleEngineResetsLocally(t *testing.T) {
	fake := backend.NewFakeRecorder()
	completes := 0
	s := NewSession(fake, Config{OnRecordingComplete: func() { completes++ }})

	s.Start(context.Background())
	fake.SetRecording(false) // engine lost the recording behind our back

	if err := s.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fake.StopCalls() != 0 {
		t.Error("stop_recording issued although the engine was idle")
	}
	if s.IsRecording() {
		t.Error("local state not reset")
	}
	if completes != 0 {
		t.Error("OnRecordingComplete fired for a drift reset")
	}
}

func TestStopNotRecordingErrorResetsLocally(t *testing.T) {
	fake := backend.NewFakeRecorder()
	completes := 0
	s := NewSession(fake, Config{OnRecordingComplete: func() { completes++ }})

	s.Start(context.Background())
	// Recording ends between the status query and the stop call.
	fake.StopErr = errors.New("No recording in progress")

	if err := s.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.IsRecording() {
		t.Error("local state not reset")
	}
	if completes != 0 {
		t.Error("OnRecordingComplete fired for a drift reset")
	}
}

func TestCancelNoopWhenIdle(t *testing.T) {
	fake := backend.NewFakeRecorder()
	s := NewSession(fake, Config{})

	if err := s.Cancel(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fake.CancelCalls() != 0 {
		t.Error("cancel_recording issued while idle")
	}
}

func TestCancelResetsDespiteEngineError(t *testing.T) {
	fake := backend.NewFakeRecorder()
	s := NewSession(fake, Config{})

	s.Start(context.Background())
	fake.CancelErr = errors.New("ipc down")

	if err := s.Cancel(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fake.CancelCalls() != 1 {
		t.Errorf("cancel_recording called %d times, want 1", fake.CancelCalls())
	}
	if s.IsRecording() {
		t.Error("cancel must be honored locally regardless of engine outcome")
	}
}

func TestToggleCooldown(t *testing.T) {
	fake := backend.NewFakeRecorder()
	s := NewSession(fake, Config{})

	if err := s.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !s.IsRecording() {
		t.Fatal("first toggle did not start")
	}
	// double-fire from overlapping hotkey + click
	if err := s.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !s.IsRecording() {
		t.Error("second toggle inside cooldown stopped the recording")
	}
	if fake.StopCalls() != 0 {
		t.Error("engine stop issued inside cooldown window")
	}
}

func TestSoundFailureDoesNotAffectState(t *testing.T) {
	fake := backend.NewFakeRecorder()
	fake.StartSoundErr = errors.New("no audio output")
	s := NewSession(fake, Config{SoundsEnabled: true})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("sound failure propagated: %v", err)
	}
	if !s.IsRecording() {
		t.Error("sound failure affected recording state")
	}
}

func TestSoundsDisabled(t *testing.T) {
	fake := backend.NewFakeRecorder()
	s := NewSession(fake, Config{SoundsEnabled: false})

	s.Start(context.Background())
	s.Stop(context.Background())

	if start, stop := fake.SoundCalls(); start != 0 || stop != 0 {
		t.Errorf("sounds played despite being disabled: start=%d stop=%d", start, stop)
	}
}

func TestAttachAdoptsEngineState(t *testing.T) {
	fake := backend.NewFakeRecorder()
	fake.SetRecording(true)
	bus := events.NewBus()
	defer bus.Close()

	s := NewSession(fake, Config{})
	detach := s.Attach(context.Background(), bus)
	defer detach()

	if !s.IsRecording() {
		t.Error("attach did not adopt the engine's recording state")
	}
}

func TestAttachQueryFailureResetsToIdle(t *testing.T) {
	fake := backend.NewFakeRecorder()
	fake.IsRecordingErr = errors.New("ipc down")
	bus := events.NewBus()
	defer bus.Close()

	s := NewSession(fake, Config{})
	s.mu.Lock()
	s.recording = true // stale optimism
	s.mu.Unlock()

	detach := s.Attach(context.Background(), bus)
	defer detach()

	if s.IsRecording() {
		t.Error("uncertain engine state must resolve to idle")
	}
}

func TestStateChangedEventIsAuthoritative(t *testing.T) {
	fake := backend.NewFakeRecorder()
	bus := events.NewBus()
	defer bus.Close()

	s := NewSession(fake, Config{})
	detach := s.Attach(context.Background(), bus)
	defer detach()

	bus.Emit(events.RecordingStateChanged, events.StateChangedPayload{State: events.StateRecording})
	waitFor(t, "recording adopted", s.IsRecording)

	bus.Emit(events.RecordingStateChanged, events.StateChangedPayload{State: "idle"})
	waitFor(t, "idle adopted", func() bool { return !s.IsRecording() })
	if _, ok := s.StartTime(); ok {
		t.Error("startTime survived the idle event")
	}
}

func TestProgressEventAdoptsStartTime(t *testing.T) {
	fake := backend.NewFakeRecorder()
	bus := events.NewBus()
	defer bus.Close()

	s := NewSession(fake, Config{})
	detach := s.Attach(context.Background(), bus)
	defer detach()

	const startMs = int64(1700000000123)
	bus.Emit(events.RecordingProgress, events.ProgressPayload{
		Recording: &events.ProgressRecording{Filename: "recording_1.wav", StartTime: startMs},
	})

	waitFor(t, "start time adopted", func() bool {
		got, ok := s.StartTime()
		return ok && got.UnixMilli() == startMs
	})
}

func TestProcessingCompleteFiresCallback(t *testing.T) {
	fake := backend.NewFakeRecorder()
	bus := events.NewBus()
	defer bus.Close()

	got := make(chan any, 1)
	s := NewSession(fake, Config{OnTranscriptCreated: func(p any) { got <- p }})
	detach := s.Attach(context.Background(), bus)
	defer detach()

	bus.Emit(events.ProcessingComplete, "transcript-42")

	select {
	case p := <-got:
		if p != "transcript-42" {
			t.Errorf("payload = %v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("OnTranscriptCreated not invoked")
	}
}

func TestDetachReleasesSubscriptions(t *testing.T) {
	fake := backend.NewFakeRecorder()
	bus := events.NewBus()
	defer bus.Close()

	s := NewSession(fake, Config{})
	detach := s.Attach(context.Background(), bus)
	detach()
	detach() // exactly-once discipline is on the caller; the handle is idempotent

	bus.Emit(events.RecordingStateChanged, events.StateChangedPayload{State: events.StateRecording})
	time.Sleep(50 * time.Millisecond)
	if s.IsRecording() {
		t.Error("event applied after detach")
	}
}
