package backend

import (
	"context"
	"fmt"
	"sync"
)

// FakeRecorder scripts engine behavior for tests.
type FakeRecorder struct {
	mu sync.Mutex

	StartErr       error
	StopErr        error
	CancelErr      error
	IsRecordingErr error
	ReadErr        error
	StartSoundErr  error
	StopSoundErr   error

	Recording bool // what IsRecording reports
	Files     map[string][]byte

	// ReadGate, when non-nil, blocks ReadAudioFile until it receives a
	// value or the call's context is cancelled.
	ReadGate chan struct{}

	starts      []*string
	stops       int
	cancels     int
	reads       []string
	startSounds int
	stopSounds  int
}

func NewFakeRecorder() *FakeRecorder {
	return &FakeRecorder{Files: make(map[string][]byte)}
}

func (f *FakeRecorder) StartRecording(_ context.Context, device *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, device)
	if f.StartErr != nil {
		return f.StartErr
	}
	f.Recording = true
	return nil
}

func (f *FakeRecorder) StopRecording(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.StopErr != nil {
		return f.StopErr
	}
	f.Recording = false
	return nil
}

func (f *FakeRecorder) CancelRecording(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	if f.CancelErr != nil {
		return f.CancelErr
	}
	f.Recording = false
	return nil
}

func (f *FakeRecorder) IsRecording(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.IsRecordingErr != nil {
		return false, f.IsRecordingErr
	}
	return f.Recording, nil
}

func (f *FakeRecorder) ReadAudioFile(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	gate := f.ReadGate
	f.reads = append(f.reads, path)
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	data, ok := f.Files[path]
	if !ok {
		return nil, fmt.Errorf("no such audio file: %s", path)
	}
	return data, nil
}

func (f *FakeRecorder) PlayStartSound(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startSounds++
	return f.StartSoundErr
}

func (f *FakeRecorder) PlayStopSound(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopSounds++
	return f.StopSoundErr
}

func (f *FakeRecorder) StartCalls() []*string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*string, len(f.starts))
	copy(out, f.starts)
	return out
}

func (f *FakeRecorder) StopCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *FakeRecorder) CancelCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}

func (f *FakeRecorder) ReadCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.reads))
	copy(out, f.reads)
	return out
}

func (f *FakeRecorder) SoundCalls() (start, stop int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startSounds, f.stopSounds
}

func (f *FakeRecorder) SetRecording(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Recording = on
}
