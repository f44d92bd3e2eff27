package diarize

import (
	"context"
	"log/slog"
	"math"
)

const (
	rmsWindowSec = 0.05
	// When the first pass finds no speech at all, the noise floor is relaxed
	// once by this amount before giving up on detection.
	relaxThresholdDB = 15
	// Fallback segment length when detection finds nothing even relaxed.
	uniformSegmentSec = 1.5
)

type PauseDiarizerConfig struct {
	// SilenceThresholdDB is the noise floor in dBFS; windows below it count
	// as silence.
	SilenceThresholdDB float64
	// MinSegmentSec is the minimum duration a segment must have; shorter
	// ones are merged into their neighbor.
	MinSegmentSec float64
	// TurnGapSec is the pause length treated as a speaker turn boundary.
	TurnGapSec float64
}

// PauseDiarizer detects speech via windowed RMS energy against a noise floor
// and assigns alternating speaker ids on pauses longer than the turn
// threshold. Two inferred speakers at most; see the package comment for the
// accuracy limitation.
type PauseDiarizer struct {
	cfg PauseDiarizerConfig
}

func NewPauseDiarizer(cfg PauseDiarizerConfig) *PauseDiarizer {
	return &PauseDiarizer{cfg: cfg}
}

func (d *PauseDiarizer) Diarize(ctx context.Context, wavPath string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	samples, sampleRate, err := readMonoPCM(wavPath)
	if err != nil {
		return nil, err
	}
	duration := 0.0
	if sampleRate > 0 {
		duration = float64(len(samples)) / float64(sampleRate)
	}

	speech := d.detectSpeech(samples, sampleRate, duration, d.cfg.SilenceThresholdDB)
	if len(speech) == 0 {
		slog.Info("no speech detected; relaxing noise floor once",
			"path", wavPath, "threshold_db", d.cfg.SilenceThresholdDB)
		speech = d.detectSpeech(samples, sampleRate, duration, d.cfg.SilenceThresholdDB-relaxThresholdDB)
	}
	if len(speech) == 0 {
		return uniformFallback(duration), nil
	}

	segments, numSpeakers := assignSpeakers(speech, d.cfg.TurnGapSec)
	slog.Info("diarization completed",
		"path", wavPath,
		"duration_sec", duration,
		"speech_segments", len(segments),
		"num_speakers", numSpeakers)
	return &Result{
		DurationSec: duration,
		NumSpeakers: numSpeakers,
		Segments:    segments,
	}, nil
}

// detectSpeech runs the silence scan and the merge passes, returning ordered
// speech-only segments.
func (d *PauseDiarizer) detectSpeech(samples []float64, sampleRate int, duration, thresholdDB float64) []TimeSegment {
	cover := classifyWindows(samples, sampleRate, duration, thresholdDB)
	cover = mergeShort(cover, d.cfg.MinSegmentSec)
	cover = coalesce(cover)

	var speech []TimeSegment
	for _, seg := range cover {
		if !seg.IsSilence {
			speech = append(speech, seg)
		}
	}
	return speech
}

// classifyWindows partitions [0, duration] into contiguous segments by
// windowed RMS energy. The result always has at least one segment.
func classifyWindows(samples []float64, sampleRate int, duration, thresholdDB float64) []TimeSegment {
	if len(samples) == 0 || sampleRate <= 0 {
		return []TimeSegment{{StartSec: 0, EndSec: duration, IsSilence: true}}
	}
	windowSize := int(float64(sampleRate) * rmsWindowSec)
	if windowSize < 1 {
		windowSize = 1
	}

	var segments []TimeSegment
	for offset := 0; offset < len(samples); offset += windowSize {
		end := offset + windowSize
		if end > len(samples) {
			end = len(samples)
		}
		silent := windowDB(samples[offset:end]) < thresholdDB
		startSec := float64(offset) / float64(sampleRate)
		endSec := float64(end) / float64(sampleRate)

		if n := len(segments); n > 0 && segments[n-1].IsSilence == silent {
			segments[n-1].EndSec = endSec
			continue
		}
		segments = append(segments, TimeSegment{StartSec: startSec, EndSec: endSec, IsSilence: silent})
	}
	// Close the cover exactly at the reported duration.
	segments[len(segments)-1].EndSec = duration
	return segments
}

func windowDB(window []float64) float64 {
	if len(window) == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, s := range window {
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(len(window)))
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}

// mergeShort folds segments shorter than minSec into their left neighbor (or
// right neighbor for the head), preserving the gap-free cover.
func mergeShort(segments []TimeSegment, minSec float64) []TimeSegment {
	if len(segments) <= 1 {
		return segments
	}
	out := make([]TimeSegment, 0, len(segments))
	for _, seg := range segments {
		short := seg.EndSec-seg.StartSec < minSec
		if short && len(out) > 0 {
			out[len(out)-1].EndSec = seg.EndSec
			continue
		}
		if short && len(out) == 0 {
			// No left neighbor: adopt the type of the segment that follows.
			// The input alternates types, so flipping is equivalent.
			seg.IsSilence = !seg.IsSilence
		}
		out = append(out, seg)
	}
	return out
}

// coalesce merges adjacent segments of the same type.
func coalesce(segments []TimeSegment) []TimeSegment {
	if len(segments) <= 1 {
		return segments
	}
	out := segments[:1]
	for _, seg := range segments[1:] {
		if out[len(out)-1].IsSilence == seg.IsSilence {
			out[len(out)-1].EndSec = seg.EndSec
			continue
		}
		out = append(out, seg)
	}
	return out
}

// assignSpeakers labels ordered speech segments. A single pause exceeding the
// turn threshold anywhere switches the whole file into two-party alternation;
// otherwise everything belongs to one speaker.
func assignSpeakers(speech []TimeSegment, turnGapSec float64) ([]SpeakerSegment, int) {
	turnTaking := false
	for i := 1; i < len(speech); i++ {
		if speech[i].StartSec-speech[i-1].EndSec > turnGapSec {
			turnTaking = true
			break
		}
	}

	segments := make([]SpeakerSegment, 0, len(speech))
	for i, seg := range speech {
		speaker := 0
		if turnTaking {
			speaker = i % 2
		}
		segments = append(segments, SpeakerSegment{
			Speaker:  speaker,
			StartSec: seg.StartSec,
			EndSec:   seg.EndSec,
		})
	}
	numSpeakers := 1
	if turnTaking && len(speech) > 1 {
		numSpeakers = 2
	}
	return segments, numSpeakers
}

// uniformFallback synthesizes fixed-duration single-speaker segments so the
// engine never returns an empty result, even for silent or empty input.
func uniformFallback(duration float64) *Result {
	if duration <= 0 {
		return &Result{
			DurationSec: 0,
			NumSpeakers: 1,
			Segments:    []SpeakerSegment{{Speaker: 0, StartSec: 0, EndSec: 0}},
		}
	}
	var segments []SpeakerSegment
	for start := 0.0; start < duration; start += uniformSegmentSec {
		end := math.Min(start+uniformSegmentSec, duration)
		segments = append(segments, SpeakerSegment{Speaker: 0, StartSec: start, EndSec: end})
	}
	return &Result{
		DurationSec: duration,
		NumSpeakers: 1,
		Segments:    segments,
	}
}
