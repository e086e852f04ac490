package backend

import "context"

// Recorder is the contract with the native capture/transcription engine.
// Every call is a remote procedure; the engine owns devices, files and
// sound playback.
type Recorder interface {
	// StartRecording begins capture on the named device. A nil device
	// selects the system default.
	StartRecording(ctx context.Context, device *string) error

	// StopRecording finalizes the active recording and hands it to the
	// processing pipeline.
	StopRecording(ctx context.Context) error

	// CancelRecording stops the active recording and discards its audio.
	CancelRecording(ctx context.Context) error

	// IsRecording reports the engine's authoritative recording state.
	IsRecording(ctx context.Context) (bool, error)

	// ReadAudioFile returns the raw bytes of a finished recording.
	ReadAudioFile(ctx context.Context, path string) ([]byte, error)

	// Sound playback is best-effort; callers ignore failures.
	PlayStartSound(ctx context.Context) error
	PlayStopSound(ctx context.Context) error
}
