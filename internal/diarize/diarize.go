// Package diarize implements heuristic speaker diarization over normalized
// PCM audio. The shipped implementation is a pause-alternation heuristic, not
// learned speaker clustering: it infers at most two speakers and assumes
// strict turn-taking dialogue. Callers must not read more accuracy into its
// labels than "speakers alternate on detected pauses".
package diarize

import "context"

// TimeSegment is one interval of the speech/silence partition. Segments are
// ordered, contiguous and cover [0, duration] without gaps or overlaps.
type TimeSegment struct {
	StartSec  float64
	EndSec    float64
	IsSilence bool
}

// SpeakerSegment is a speech interval attributed to a heuristic speaker id.
type SpeakerSegment struct {
	Speaker  int     `json:"speaker"`
	StartSec float64 `json:"start"`
	EndSec   float64 `json:"end"`
}

type Result struct {
	DurationSec float64          `json:"duration"`
	NumSpeakers int              `json:"num_speakers"`
	Segments    []SpeakerSegment `json:"segments"`
}

// Diarizer is pluggable so a learned-clustering implementation can replace
// the heuristic without touching callers.
type Diarizer interface {
	Diarize(ctx context.Context, wavPath string) (*Result, error)
}
