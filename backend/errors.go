package backend

import "strings"

// Kind classifies the engine's stringly-typed errors once, at the boundary,
// so call sites never match raw text themselves.
type Kind int

const (
	KindOther Kind = iota
	KindAlreadyRecording
	KindNotRecording
)

// Exact texts produced by the engine. Matching is case-sensitive; the texts
// are part of the wire contract.
const (
	alreadyRecordingText = "Recording already in progress"
	notRecordingText     = "No recording in progress"
)

func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, alreadyRecordingText):
		return KindAlreadyRecording
	case strings.Contains(msg, notRecordingText):
		return KindNotRecording
	default:
		return KindOther
	}
}
