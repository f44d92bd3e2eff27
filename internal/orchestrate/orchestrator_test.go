package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/marmolab/zvukozap/internal/recording"
	"github.com/marmolab/zvukozap/internal/segment"
	"github.com/marmolab/zvukozap/internal/transcribe"
	"github.com/marmolab/zvukozap/internal/transcode"
)

type mockTranscriber struct {
	mu       sync.Mutex
	requests []transcribe.Request
	// respond decides the result per request; nil means echo the path.
	respond func(req transcribe.Request) (*transcribe.Result, error)
}

func (m *mockTranscriber) Transcribe(_ context.Context, req transcribe.Request) (*transcribe.Result, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.respond != nil {
		return m.respond(req)
	}
	return &transcribe.Result{Text: "text:" + filepath.Base(req.AudioPath)}, nil
}

func (m *mockTranscriber) calls() []transcribe.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transcribe.Request(nil), m.requests...)
}

type mockLabeler struct {
	response string
	err      error
}

func (m *mockLabeler) LabelSpeakers(_ context.Context, _ string) (string, error) {
	return m.response, m.err
}

type mockTranscoder struct {
	duration float64
	probeErr error
}

func (m *mockTranscoder) Convert(_ context.Context, req transcode.ConvertRequest) (string, error) {
	return req.OutputPath, nil
}

func (m *mockTranscoder) Probe(_ context.Context, _ string) (float64, error) {
	if m.probeErr != nil {
		return 0, m.probeErr
	}
	return m.duration, nil
}

func (m *mockTranscoder) Cut(_ context.Context, req transcode.CutRequest) (string, error) {
	return req.OutputPath, nil
}

func (m *mockTranscoder) Compress(_ context.Context, _, _ string) (string, error) {
	return "", &transcode.ConversionError{Path: "x", ExitCode: 1}
}

func writeFileOfSize(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.wav")
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func newTestOrchestrator(tr transcribe.Transcriber, tc transcode.Transcoder, labeler transcribe.Labeler, opts Options) *Orchestrator {
	return NewOrchestrator(tr, segment.NewSegmenter(tc), labeler, 4, opts)
}

func TestSelectModel_DecisionTable(t *testing.T) {
	o := newTestOrchestrator(&mockTranscriber{}, &mockTranscoder{}, nil, Options{})
	cases := []struct {
		language string
		speed    recording.SpeedPreference
		want     transcribe.Model
	}{
		{"ru", recording.SpeedFast, transcribe.ModelFast},
		{"ru", recording.SpeedAccurate, transcribe.ModelAccurate},
		{"ru", recording.SpeedUnset, transcribe.ModelFast},
		{"en", recording.SpeedFast, transcribe.ModelBaseline},
		{"en", recording.SpeedAccurate, transcribe.ModelBaseline},
		{"", recording.SpeedFast, transcribe.ModelFast},
		{"", recording.SpeedUnset, transcribe.ModelFast},
	}
	for _, tc := range cases {
		if got := o.SelectModel(tc.language, tc.speed); got != tc.want {
			t.Fatalf("SelectModel(%q, %q) = %s, want %s", tc.language, tc.speed, got, tc.want)
		}
	}
}

func TestSelectModel_UsesDefaultLanguage(t *testing.T) {
	o := newTestOrchestrator(&mockTranscriber{}, &mockTranscoder{}, nil, Options{DefaultLanguage: "ru"})
	if got := o.SelectModel("", recording.SpeedAccurate); got != transcribe.ModelAccurate {
		t.Fatalf("expected default language to drive the table, got %s", got)
	}
}

func TestTranscribe_FallsBackOnceOnModelNotFound(t *testing.T) {
	tr := &mockTranscriber{respond: func(req transcribe.Request) (*transcribe.Result, error) {
		if req.Model != transcribe.ModelBaseline {
			return nil, &transcribe.ModelError{Model: string(req.Model), StatusCode: 404, Kind: transcribe.KindModelNotFound}
		}
		return &transcribe.Result{Text: "fallback text"}, nil
	}}
	o := newTestOrchestrator(tr, &mockTranscoder{}, nil, Options{SizeLimitBytes: 1 << 20})

	outcome, err := o.Transcribe(context.Background(), Job{
		AudioPath: writeFileOfSize(t, 100),
		Language:  "ru",
		Speed:     recording.SpeedFast,
	})
	if err != nil {
		t.Fatalf("expected fallback success, got %v", err)
	}
	if !outcome.FellBack {
		t.Fatal("expected FellBack to be set")
	}
	if outcome.Model != transcribe.ModelBaseline {
		t.Fatalf("expected baseline model on outcome, got %s", outcome.Model)
	}
	if outcome.Text != "fallback text" {
		t.Fatalf("unexpected text: %q", outcome.Text)
	}
	calls := tr.calls()
	if len(calls) != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", len(calls))
	}
	if calls[0].Model != transcribe.ModelFast || calls[1].Model != transcribe.ModelBaseline {
		t.Fatalf("unexpected attempt models: %+v", calls)
	}
}

func TestTranscribe_OtherErrorsSurfaceWithoutRetry(t *testing.T) {
	tr := &mockTranscriber{respond: func(req transcribe.Request) (*transcribe.Result, error) {
		return nil, &transcribe.ModelError{Model: string(req.Model), StatusCode: 500, Kind: transcribe.KindRemote}
	}}
	o := newTestOrchestrator(tr, &mockTranscoder{}, nil, Options{SizeLimitBytes: 1 << 20})

	_, err := o.Transcribe(context.Background(), Job{AudioPath: writeFileOfSize(t, 100), Language: "ru"})
	var modelErr *transcribe.ModelError
	if !errors.As(err, &modelErr) {
		t.Fatalf("expected ModelError to surface, got %v", err)
	}
	if len(tr.calls()) != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", len(tr.calls()))
	}
}

func TestTranscribe_BaselineNotFoundDoesNotLoop(t *testing.T) {
	tr := &mockTranscriber{respond: func(req transcribe.Request) (*transcribe.Result, error) {
		return nil, &transcribe.ModelError{Model: string(req.Model), StatusCode: 404, Kind: transcribe.KindModelNotFound}
	}}
	o := newTestOrchestrator(tr, &mockTranscoder{}, nil, Options{SizeLimitBytes: 1 << 20})

	_, err := o.Transcribe(context.Background(), Job{AudioPath: writeFileOfSize(t, 100), Language: "en"})
	if err == nil {
		t.Fatal("expected error when baseline itself is missing")
	}
	if len(tr.calls()) != 1 {
		t.Fatalf("baseline must not retry against itself, got %d attempts", len(tr.calls()))
	}
}

func TestTranscribe_OversizeGoesChunkedWithMarkers(t *testing.T) {
	tr := &mockTranscriber{respond: func(req transcribe.Request) (*transcribe.Result, error) {
		if strings.Contains(req.AudioPath, "part001") {
			return nil, &transcribe.ModelError{Model: string(req.Model), StatusCode: 500, Kind: transcribe.KindRemote}
		}
		return &transcribe.Result{Text: "chunk:" + filepath.Base(req.AudioPath)}, nil
	}}
	// Compress fails, so the file stays oversized and must be split.
	tc := &mockTranscoder{duration: 1000}
	o := newTestOrchestrator(tr, tc, nil, Options{SizeLimitBytes: 50, SegmentDurationSec: 300})

	outcome, err := o.Transcribe(context.Background(), Job{AudioPath: writeFileOfSize(t, 200), Language: "ru"})
	if err != nil {
		t.Fatalf("chunked transcription: %v", err)
	}
	if outcome.TotalChunks != 4 {
		t.Fatalf("expected 4 chunks for 1000s/300s, got %d", outcome.TotalChunks)
	}
	if outcome.FailedChunks != 1 {
		t.Fatalf("expected 1 failed chunk, got %d", outcome.FailedChunks)
	}
	parts := strings.Split(outcome.Text, chunkSeparator)
	if len(parts) != 4 {
		t.Fatalf("expected 4 joined parts, got %d: %q", len(parts), outcome.Text)
	}
	if parts[1] != "[unresolved segment 2]" {
		t.Fatalf("expected unresolved marker at position 2, got %q", parts[1])
	}
	for i, part := range parts {
		if i == 1 {
			continue
		}
		if !strings.Contains(part, fmt.Sprintf("part%03d", i)) {
			t.Fatalf("chunk order not preserved: part %d is %q", i, part)
		}
	}
	// Chunks are priced locally from their planned window lengths: the
	// successful windows cover 300+300+100 seconds on the fast tier.
	want := transcribe.EstimateCost(700, transcribe.ModelFast)
	if math.Abs(outcome.EstimatedCost-want) > 1e-9 {
		t.Fatalf("expected cost %v from window durations, got %v", want, outcome.EstimatedCost)
	}
}

func TestTranscribe_AllChunksFailedIsAnError(t *testing.T) {
	tr := &mockTranscriber{respond: func(req transcribe.Request) (*transcribe.Result, error) {
		return nil, &transcribe.ModelError{Model: string(req.Model), StatusCode: 500, Kind: transcribe.KindRemote}
	}}
	tc := &mockTranscoder{duration: 600}
	o := newTestOrchestrator(tr, tc, nil, Options{SizeLimitBytes: 50, SegmentDurationSec: 300})

	if _, err := o.Transcribe(context.Background(), Job{AudioPath: writeFileOfSize(t, 200)}); err == nil {
		t.Fatal("expected error when every chunk failed")
	}
}

func TestTranscribe_SplitProbeFailureSendsUnsplitFile(t *testing.T) {
	tr := &mockTranscriber{}
	tc := &mockTranscoder{probeErr: &transcode.ConversionError{Path: "x", ExitCode: 1}}
	o := newTestOrchestrator(tr, tc, nil, Options{SizeLimitBytes: 50, SegmentDurationSec: 300})

	outcome, err := o.Transcribe(context.Background(), Job{AudioPath: writeFileOfSize(t, 200)})
	if err != nil {
		t.Fatalf("expected whole-file fallback, got %v", err)
	}
	calls := tr.calls()
	if len(calls) != 1 {
		t.Fatalf("expected one whole-file attempt, got %d", len(calls))
	}
	if outcome.TotalChunks != 1 {
		t.Fatalf("unexpected chunk count: %d", outcome.TotalChunks)
	}
}

func TestApplySpeakerLabels_RefusalFallsBackToSingleSpeaker(t *testing.T) {
	labeler := &mockLabeler{response: "Извините, я не могу определить говорящих."}
	tr := &mockTranscriber{respond: func(_ transcribe.Request) (*transcribe.Result, error) {
		return &transcribe.Result{Text: "привет мир"}, nil
	}}
	o := newTestOrchestrator(tr, &mockTranscoder{}, labeler, Options{SizeLimitBytes: 1 << 20, SpeakerLabeling: true})

	outcome, err := o.Transcribe(context.Background(), Job{AudioPath: writeFileOfSize(t, 100), Language: "ru"})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if outcome.Text != "Speaker 1: привет мир" {
		t.Fatalf("expected single-speaker fallback, got %q", outcome.Text)
	}
}

func TestApplySpeakerLabels_KeepsLabeledTranscript(t *testing.T) {
	labeler := &mockLabeler{response: "Speaker 1: привет\nSpeaker 2: здравствуйте"}
	tr := &mockTranscriber{respond: func(_ transcribe.Request) (*transcribe.Result, error) {
		return &transcribe.Result{Text: "привет здравствуйте"}, nil
	}}
	o := newTestOrchestrator(tr, &mockTranscoder{}, labeler, Options{SizeLimitBytes: 1 << 20, SpeakerLabeling: true})

	outcome, err := o.Transcribe(context.Background(), Job{AudioPath: writeFileOfSize(t, 100), Language: "ru"})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if !strings.Contains(outcome.Text, "Speaker 2:") {
		t.Fatalf("expected labeled transcript kept, got %q", outcome.Text)
	}
}

func TestApplySpeakerLabels_LabelerErrorFallsBack(t *testing.T) {
	labeler := &mockLabeler{err: errors.New("boom")}
	tr := &mockTranscriber{respond: func(_ transcribe.Request) (*transcribe.Result, error) {
		return &transcribe.Result{Text: "text"}, nil
	}}
	o := newTestOrchestrator(tr, &mockTranscoder{}, labeler, Options{SizeLimitBytes: 1 << 20, SpeakerLabeling: true})

	outcome, err := o.Transcribe(context.Background(), Job{AudioPath: writeFileOfSize(t, 100)})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if outcome.Text != "Speaker 1: text" {
		t.Fatalf("expected single-speaker fallback on labeler error, got %q", outcome.Text)
	}
}
