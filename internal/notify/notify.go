package notify

import "context"

// CompletionPayload is sent to the configured webhook when a recording
// finishes processing, in either terminal state.
type CompletionPayload struct {
	RecordingID string  `json:"recording_id"`
	SessionID   string  `json:"session_id"`
	Status      string  `json:"status"`
	Transcript  string  `json:"transcript,omitempty"`
	Diarization string  `json:"diarization,omitempty"`
	Error       string  `json:"error,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`
}

type Sender interface {
	SendCompletion(ctx context.Context, payload CompletionPayload) error
}
