package transcribe

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Model is the remote speech-to-text tier. The concrete model ids behind each
// tier come from configuration.
type Model string

const (
	ModelBaseline Model = "baseline"
	ModelFast     Model = "fast"
	ModelAccurate Model = "accurate"
)

type Request struct {
	AudioPath string
	Model     Model
	Language  string
	Prompt    string
	// Detailed asks the API for per-segment timestamps.
	Detailed bool
}

type Segment struct {
	StartSec float64 `json:"start"`
	EndSec   float64 `json:"end"`
	Text     string  `json:"text"`
}

type Result struct {
	Text           string
	Segments       []Segment
	DurationSec    float64
	ProcessingTime time.Duration
	EstimatedCost  float64
}

// Transcriber is the remote speech-to-text collaborator boundary.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (*Result, error)
}

// Labeler is the optional secondary pass that adds speaker labels to a raw
// transcript without altering its wording.
type Labeler interface {
	LabelSpeakers(ctx context.Context, transcript string) (string, error)
}

// ErrUnavailable means the service cannot be used at all, typically because
// no credentials are configured.
var ErrUnavailable = errors.New("transcription service unavailable")

type ErrorKind string

const (
	KindModelNotFound ErrorKind = "model_not_found"
	KindOversize      ErrorKind = "oversize"
	KindRemote        ErrorKind = "remote"
)

// ModelError is a remote failure classified for the orchestrator's fallback
// policy.
type ModelError struct {
	Model      string
	StatusCode int
	Kind       ErrorKind
	Message    string
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %s failed (%s, http %d): %s", e.Model, e.Kind, e.StatusCode, e.Message)
}

// Per-tier price per second of audio. Derived approximations for budgeting
// and logging only, not authoritative billing figures.
var costPerSecond = map[Model]float64{
	ModelBaseline: 0.0001,
	ModelFast:     0.00005,
	ModelAccurate: 0.0002,
}

func EstimateCost(durationSec float64, model Model) float64 {
	if durationSec < 0 {
		return 0
	}
	return durationSec * costPerSecond[model]
}
