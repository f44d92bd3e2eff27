package diarize

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

const testSampleRate = 16000

// audioSection is a span of constant-amplitude samples; amplitude is in
// [0, 1] and maps directly to RMS for the detector.
type audioSection struct {
	durationSec float64
	amplitude   float64
}

func writeWAV(t *testing.T, sections []audioSection) string {
	t.Helper()
	var samples []int16
	for _, sec := range sections {
		n := int(sec.durationSec * testSampleRate)
		v := int16(sec.amplitude * math.MaxInt16)
		for i := 0; i < n; i++ {
			samples = append(samples, v)
		}
	}

	var data bytes.Buffer
	for _, s := range samples {
		_ = binary.Write(&data, binary.LittleEndian, s)
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(testSampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(testSampleRate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())

	path := filepath.Join(t.TempDir(), "audio.wav")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func newTestDiarizer() *PauseDiarizer {
	return NewPauseDiarizer(PauseDiarizerConfig{
		SilenceThresholdDB: -40,
		MinSegmentSec:      0.5,
		TurnGapSec:         1.5,
	})
}

func TestDiarize_TwoBurstsAlternateSpeakers(t *testing.T) {
	path := writeWAV(t, []audioSection{
		{durationSec: 2, amplitude: 0.5}, // burst A
		{durationSec: 2, amplitude: 0},   // pause above turn threshold
		{durationSec: 2, amplitude: 0.5}, // burst B
	})

	result, err := newTestDiarizer().Diarize(context.Background(), path)
	if err != nil {
		t.Fatalf("diarize: %v", err)
	}
	if result.NumSpeakers != 2 {
		t.Fatalf("expected 2 speakers, got %d", result.NumSpeakers)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("expected 2 speech segments, got %d", len(result.Segments))
	}
	if result.Segments[0].Speaker != 0 || result.Segments[1].Speaker != 1 {
		t.Fatalf("expected alternating labels in temporal order, got %+v", result.Segments)
	}
	if result.Segments[0].EndSec > result.Segments[1].StartSec {
		t.Fatalf("segments out of temporal order: %+v", result.Segments)
	}
}

func TestDiarize_ContinuousSpeechSingleSpeaker(t *testing.T) {
	path := writeWAV(t, []audioSection{
		{durationSec: 3, amplitude: 0.5},
		{durationSec: 0.8, amplitude: 0}, // pause below turn threshold
		{durationSec: 2, amplitude: 0.5},
	})

	result, err := newTestDiarizer().Diarize(context.Background(), path)
	if err != nil {
		t.Fatalf("diarize: %v", err)
	}
	if result.NumSpeakers != 1 {
		t.Fatalf("expected 1 speaker, got %d", result.NumSpeakers)
	}
	for _, seg := range result.Segments {
		if seg.Speaker != 0 {
			t.Fatalf("expected all segments on speaker 0, got %+v", result.Segments)
		}
	}
}

func TestDiarize_SilentInputNeverEmpty(t *testing.T) {
	path := writeWAV(t, []audioSection{{durationSec: 4, amplitude: 0}})

	result, err := newTestDiarizer().Diarize(context.Background(), path)
	if err != nil {
		t.Fatalf("diarize: %v", err)
	}
	if len(result.Segments) == 0 {
		t.Fatal("diarization must never return an empty segment list")
	}
	if result.NumSpeakers != 1 {
		t.Fatalf("expected single synthetic speaker, got %d", result.NumSpeakers)
	}
	// Uniform fallback segments cover the whole file.
	last := result.Segments[len(result.Segments)-1]
	if math.Abs(last.EndSec-result.DurationSec) > 0.01 {
		t.Fatalf("fallback segments do not span the file: last end %v, duration %v", last.EndSec, result.DurationSec)
	}
}

func TestDiarize_EmptyDataChunk(t *testing.T) {
	path := writeWAV(t, nil)

	result, err := newTestDiarizer().Diarize(context.Background(), path)
	if err != nil {
		t.Fatalf("diarize: %v", err)
	}
	if len(result.Segments) != 1 {
		t.Fatalf("expected one degenerate segment, got %d", len(result.Segments))
	}
}

func TestDiarize_RelaxedThresholdRecoversQuietSpeech(t *testing.T) {
	// -50 dBFS: below the -40 floor, above the relaxed -55 floor.
	quiet := math.Pow(10, -50.0/20)
	path := writeWAV(t, []audioSection{{durationSec: 3, amplitude: quiet}})

	result, err := newTestDiarizer().Diarize(context.Background(), path)
	if err != nil {
		t.Fatalf("diarize: %v", err)
	}
	if result.NumSpeakers != 1 {
		t.Fatalf("expected quiet speech recovered as one speaker, got %d", result.NumSpeakers)
	}
	if len(result.Segments) != 1 {
		t.Fatalf("expected a single speech segment, got %+v", result.Segments)
	}
}

func TestDiarize_ShortSilenceBlipMerged(t *testing.T) {
	path := writeWAV(t, []audioSection{
		{durationSec: 2, amplitude: 0.5},
		{durationSec: 0.2, amplitude: 0}, // below MinSegmentSec, must merge away
		{durationSec: 2, amplitude: 0.5},
	})

	result, err := newTestDiarizer().Diarize(context.Background(), path)
	if err != nil {
		t.Fatalf("diarize: %v", err)
	}
	if len(result.Segments) != 1 {
		t.Fatalf("expected blip merged into one speech segment, got %+v", result.Segments)
	}
	if result.NumSpeakers != 1 {
		t.Fatalf("expected 1 speaker, got %d", result.NumSpeakers)
	}
}

func TestClassifyWindows_GapFreeCover(t *testing.T) {
	samples := make([]float64, testSampleRate*2)
	for i := testSampleRate / 2; i < testSampleRate; i++ {
		samples[i] = 0.5
	}
	duration := 2.0

	segments := classifyWindows(samples, testSampleRate, duration, -40)
	if len(segments) == 0 {
		t.Fatal("expected at least one segment")
	}
	if segments[0].StartSec != 0 {
		t.Fatalf("cover must start at 0, got %v", segments[0].StartSec)
	}
	if segments[len(segments)-1].EndSec != duration {
		t.Fatalf("cover must end at duration, got %v", segments[len(segments)-1].EndSec)
	}
	for i := 1; i < len(segments); i++ {
		if segments[i].StartSec != segments[i-1].EndSec {
			t.Fatalf("gap or overlap between segments %d and %d: %+v", i-1, i, segments)
		}
		if segments[i].IsSilence == segments[i-1].IsSilence {
			t.Fatalf("adjacent segments share a type: %+v", segments)
		}
	}
}

func TestAssignSpeakers_AllSameWithoutQualifyingPause(t *testing.T) {
	speech := []TimeSegment{
		{StartSec: 0, EndSec: 1},
		{StartSec: 1.5, EndSec: 3},
	}
	segments, n := assignSpeakers(speech, 1.5)
	if n != 1 {
		t.Fatalf("expected 1 speaker, got %d", n)
	}
	for _, s := range segments {
		if s.Speaker != 0 {
			t.Fatalf("unexpected speaker ids: %+v", segments)
		}
	}
}
