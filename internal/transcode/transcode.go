package transcode

import (
	"context"
	"fmt"
)

type ConvertRequest struct {
	InputPath  string
	OutputPath string
	Channels   int
	SampleRate int
}

type CutRequest struct {
	InputPath  string
	OutputPath string
	StartSec   float64
	EndSec     float64
}

// Transcoder abstracts the external media tool. Implementations map process
// failures to *ConversionError so callers can distinguish tool errors from
// plumbing errors.
type Transcoder interface {
	// Convert normalizes the input to the requested channel count and sample
	// rate (16-bit PCM WAV) and returns the output path.
	Convert(ctx context.Context, req ConvertRequest) (string, error)
	// Probe returns the media duration in seconds.
	Probe(ctx context.Context, path string) (float64, error)
	// Cut extracts the [StartSec, EndSec) range without re-encoding.
	Cut(ctx context.Context, req CutRequest) (string, error)
	// Compress re-encodes to a smaller mono low-bitrate file.
	Compress(ctx context.Context, inputPath, outputPath string) (string, error)
}

// ConversionError reports a failed tool invocation. A missing output file is
// reported with ExitCode 0.
type ConversionError struct {
	Path     string
	ExitCode int
	Stderr   string
}

func (e *ConversionError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("conversion of %s failed with exit code %d", e.Path, e.ExitCode)
	}
	return fmt.Sprintf("conversion of %s failed with exit code %d: %s", e.Path, e.ExitCode, e.Stderr)
}
