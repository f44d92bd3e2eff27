package segment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"

	"github.com/marmolab/zvukozap/internal/transcode"
)

// Window is one bounded time range of the split plan.
type Window struct {
	Index    int
	StartSec float64
	EndSec   float64
}

// Segmenter splits oversized audio into bounded windows the remote API
// accepts, and shrinks audio ahead of upload.
type Segmenter struct {
	transcoder transcode.Transcoder
}

func NewSegmenter(transcoder transcode.Transcoder) *Segmenter {
	return &Segmenter{transcoder: transcoder}
}

// OptimizeForTranscription re-encodes the file to a smaller mono low-bitrate
// variant. It never fails: when the tool errors the original path is returned
// and the caller proceeds with the unoptimized file.
func (s *Segmenter) OptimizeForTranscription(ctx context.Context, path string) string {
	outPath := trimExt(path) + "_optimized.mp3"
	optimized, err := s.transcoder.Compress(ctx, path, outPath)
	if err != nil {
		slog.Warn("audio optimization failed; using original file", "path", path, "error", err)
		return path
	}
	return optimized
}

// Plan computes the split windows for a file of the given duration:
// ceil(duration/segmentDuration) windows, the last truncated at the total
// duration. Degenerate durations yield a single window.
func Plan(durationSec, segmentDurationSec float64) []Window {
	if durationSec <= 0 || segmentDurationSec <= 0 {
		return []Window{{Index: 0, StartSec: 0, EndSec: math.Max(durationSec, 0)}}
	}
	count := int(math.Ceil(durationSec / segmentDurationSec))
	windows := make([]Window, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * segmentDurationSec
		end := math.Min(start+segmentDurationSec, durationSec)
		windows = append(windows, Window{Index: i, StartSec: start, EndSec: end})
	}
	return windows
}

// Split probes the file duration and cuts it into windows of at most
// segmentDurationSec, returning the chunk paths in time order along with the
// planned windows. A probe failure aborts the split; the caller decides
// whether to fall back to the unsplit file.
func (s *Segmenter) Split(ctx context.Context, path string, segmentDurationSec float64) ([]string, []Window, error) {
	duration, err := s.transcoder.Probe(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("probe %s: %w", path, err)
	}
	windows := Plan(duration, segmentDurationSec)
	paths := make([]string, 0, len(windows))
	for _, w := range windows {
		outPath := fmt.Sprintf("%s_part%03d%s", trimExt(path), w.Index, filepath.Ext(path))
		cut, err := s.transcoder.Cut(ctx, transcode.CutRequest{
			InputPath:  path,
			OutputPath: outPath,
			StartSec:   w.StartSec,
			EndSec:     w.EndSec,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("cut window %d of %s: %w", w.Index, path, err)
		}
		paths = append(paths, cut)
	}
	slog.Info("audio split", "path", path, "duration_sec", duration, "segments", len(paths))
	return paths, windows, nil
}

func trimExt(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}
