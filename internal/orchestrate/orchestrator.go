package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/marmolab/zvukozap/internal/recording"
	"github.com/marmolab/zvukozap/internal/segment"
	"github.com/marmolab/zvukozap/internal/transcribe"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const chunkSeparator = "\n\n"

type Options struct {
	DefaultLanguage string
	SizeLimitBytes  int64
	// SegmentDurationSec bounds each chunk when the file must be split.
	SegmentDurationSec float64
	SpeakerLabeling    bool
}

type Job struct {
	AudioPath string
	Language  string
	Speed     recording.SpeedPreference
	Prompt    string
}

type Outcome struct {
	Text     string
	Model    transcribe.Model
	Segments []transcribe.Segment
	// FellBack is set when the primary model was unavailable and the
	// baseline answered instead.
	FellBack bool
	// FailedChunks counts chunks replaced by unresolved-segment markers; the
	// job as a whole still succeeds when at least one chunk resolved.
	FailedChunks   int
	TotalChunks    int
	EstimatedCost  float64
	ProcessingTime time.Duration
}

// Orchestrator selects a speech-to-text model per job, applies the
// fallback/retry policy and degrades oversized input to bounded-window
// chunked transcription. A shared weighted semaphore caps simultaneous
// remote calls across all jobs.
type Orchestrator struct {
	transcriber transcribe.Transcriber
	segmenter   *segment.Segmenter
	labeler     transcribe.Labeler
	limiter     *semaphore.Weighted
	opts        Options
}

func NewOrchestrator(transcriber transcribe.Transcriber, segmenter *segment.Segmenter, labeler transcribe.Labeler, maxConcurrentCalls int64, opts Options) *Orchestrator {
	return &Orchestrator{
		transcriber: transcriber,
		segmenter:   segmenter,
		labeler:     labeler,
		limiter:     semaphore.NewWeighted(maxConcurrentCalls),
		opts:        opts,
	}
}

// SelectModel is the (language, speed) decision table. Russian gets the
// tiered models, other known languages the baseline, and an unset language
// the fast tier as the balanced default.
func (o *Orchestrator) SelectModel(language string, speed recording.SpeedPreference) transcribe.Model {
	if language == "" {
		language = o.opts.DefaultLanguage
	}
	switch {
	case language == "":
		return transcribe.ModelFast
	case language == "ru" && speed == recording.SpeedAccurate:
		return transcribe.ModelAccurate
	case language == "ru":
		return transcribe.ModelFast
	default:
		return transcribe.ModelBaseline
	}
}

func (o *Orchestrator) Transcribe(ctx context.Context, job Job) (*Outcome, error) {
	language := job.Language
	if language == "" {
		language = o.opts.DefaultLanguage
	}
	model := o.SelectModel(job.Language, job.Speed)

	path := job.AudioPath
	if oversized, err := o.exceedsSizeLimit(path); err != nil {
		return nil, err
	} else if oversized {
		path = o.segmenter.OptimizeForTranscription(ctx, path)
		still, err := o.exceedsSizeLimit(path)
		if err != nil {
			return nil, err
		}
		if still {
			return o.transcribeChunked(ctx, path, language, job.Prompt)
		}
	}

	result, fellBack, err := o.attemptWithFallback(ctx, transcribe.Request{
		AudioPath: path,
		Model:     model,
		Language:  language,
		Prompt:    job.Prompt,
		Detailed:  true,
	})
	if err != nil {
		return nil, err
	}
	if fellBack {
		model = transcribe.ModelBaseline
	}
	outcome := &Outcome{
		Text:           result.Text,
		Model:          model,
		Segments:       result.Segments,
		FellBack:       fellBack,
		TotalChunks:    1,
		EstimatedCost:  result.EstimatedCost,
		ProcessingTime: result.ProcessingTime,
	}
	o.applySpeakerLabels(ctx, outcome)
	return outcome, nil
}

// attemptWithFallback runs one request and retries exactly once against the
// baseline model when the primary reports a not-found class failure. Every
// other failure class surfaces directly.
func (o *Orchestrator) attemptWithFallback(ctx context.Context, req transcribe.Request) (*transcribe.Result, bool, error) {
	result, err := o.attempt(ctx, req)
	if err == nil {
		return result, false, nil
	}
	var modelErr *transcribe.ModelError
	if !errors.As(err, &modelErr) || modelErr.Kind != transcribe.KindModelNotFound || req.Model == transcribe.ModelBaseline {
		return nil, false, err
	}
	slog.Warn("primary model unavailable; retrying with baseline",
		"model", string(req.Model), "error", err)
	req.Model = transcribe.ModelBaseline
	result, err = o.attempt(ctx, req)
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

func (o *Orchestrator) attempt(ctx context.Context, req transcribe.Request) (*transcribe.Result, error) {
	if err := o.limiter.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer o.limiter.Release(1)
	return o.transcriber.Transcribe(ctx, req)
}

// transcribeChunked splits the oversized file, transcribes each chunk under
// the shared call limiter and reassembles the texts in window order. Chunks
// use the fast tier to bound cost. A failed chunk degrades to an explicit
// unresolved-segment marker instead of failing the job.
func (o *Orchestrator) transcribeChunked(ctx context.Context, path, language, prompt string) (*Outcome, error) {
	chunks, windows, err := o.segmenter.Split(ctx, path, o.opts.SegmentDurationSec)
	if err != nil {
		// Probe failures leave only the unsplit file; send it whole and let
		// the remote side accept or reject it.
		slog.Warn("split failed; sending unsplit file", "path", path, "error", err)
		result, fellBack, aerr := o.attemptWithFallback(ctx, transcribe.Request{
			AudioPath: path,
			Model:     transcribe.ModelFast,
			Language:  language,
			Prompt:    prompt,
			Detailed:  true,
		})
		if aerr != nil {
			return nil, aerr
		}
		outcome := &Outcome{
			Text:           result.Text,
			Model:          transcribe.ModelFast,
			Segments:       result.Segments,
			FellBack:       fellBack,
			TotalChunks:    1,
			EstimatedCost:  result.EstimatedCost,
			ProcessingTime: result.ProcessingTime,
		}
		o.applySpeakerLabels(ctx, outcome)
		return outcome, nil
	}

	texts := make([]string, len(chunks))
	results := make([]*transcribe.Result, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, chunkPath := range chunks {
		i, chunkPath := i, chunkPath
		g.Go(func() error {
			result, _, err := o.attemptWithFallback(gctx, transcribe.Request{
				AudioPath: chunkPath,
				Model:     transcribe.ModelFast,
				Language:  language,
				Prompt:    prompt,
			})
			if err != nil {
				slog.Warn("chunk transcription failed", "chunk", i, "path", chunkPath, "error", err)
				texts[i] = fmt.Sprintf("[unresolved segment %d]", i+1)
				return nil
			}
			texts[i] = result.Text
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Model:       transcribe.ModelFast,
		TotalChunks: len(chunks),
	}
	for i, r := range results {
		if r == nil {
			outcome.FailedChunks++
			continue
		}
		// Chunk responses are plain JSON without a remote duration; price
		// each chunk from its planned window length instead.
		outcome.EstimatedCost += transcribe.EstimateCost(windows[i].EndSec-windows[i].StartSec, transcribe.ModelFast)
		outcome.ProcessingTime += r.ProcessingTime
	}
	if outcome.FailedChunks == len(chunks) {
		return nil, fmt.Errorf("all %d chunks of %s failed to transcribe", len(chunks), path)
	}
	outcome.Text = strings.Join(texts, chunkSeparator)
	if outcome.FailedChunks > 0 {
		slog.Warn("partial segment failure",
			"path", path, "failed_chunks", outcome.FailedChunks, "total_chunks", outcome.TotalChunks)
	}
	o.applySpeakerLabels(ctx, outcome)
	return outcome, nil
}

func (o *Orchestrator) exceedsSizeLimit(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat audio file: %w", err)
	}
	return info.Size() > o.opts.SizeLimitBytes, nil
}

// applySpeakerLabels runs the optional secondary pass. Degenerate responses
// are discarded and the whole raw text is attributed to a single speaker.
func (o *Orchestrator) applySpeakerLabels(ctx context.Context, outcome *Outcome) {
	if !o.opts.SpeakerLabeling || o.labeler == nil || outcome.Text == "" {
		return
	}
	labeled, err := o.labeler.LabelSpeakers(ctx, outcome.Text)
	if err != nil {
		slog.Warn("speaker labeling failed; keeping single-speaker transcript", "error", err)
		outcome.Text = singleSpeaker(outcome.Text)
		return
	}
	if labeled == "" || isRefusal(labeled) {
		slog.Warn("speaker labeling returned a degenerate response; discarding it")
		outcome.Text = singleSpeaker(outcome.Text)
		return
	}
	outcome.Text = labeled
}

func singleSpeaker(text string) string {
	return "Speaker 1: " + text
}

// Phrases that mark a degenerate labeler response: meta-commentary, refusals
// and apologies instead of the labeled transcript. English plus Russian,
// since most recordings are Russian dialogue.
var refusalPhrases = []string{
	"i'm sorry",
	"i am sorry",
	"i cannot",
	"i can't",
	"unable to",
	"as an ai",
	"as a language model",
	"извин",
	"не могу",
	"к сожалению",
}

func isRefusal(response string) bool {
	lowered := strings.ToLower(response)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}
