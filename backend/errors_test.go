package backend

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, KindOther},
		{errors.New("Recording already in progress"), KindAlreadyRecording},
		{fmt.Errorf("start_recording: %w", errors.New("Recording already in progress")), KindAlreadyRecording},
		{errors.New("No recording in progress"), KindNotRecording},
		{errors.New("recording already in progress"), KindOther}, // case-sensitive
		{errors.New("device busy"), KindOther},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Errorf("Classify(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
