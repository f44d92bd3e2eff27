package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/marmolab/zvukozap/internal/transcode"
)

type Transcoder struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
}

func NewTranscoder(timeout time.Duration) transcode.Transcoder {
	return &Transcoder{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		timeout:     timeout,
	}
}

func (t *Transcoder) Convert(ctx context.Context, req transcode.ConvertRequest) (string, error) {
	args := convertArgs(req)
	if err := t.runFFmpeg(ctx, req.InputPath, args); err != nil {
		return "", err
	}
	return req.OutputPath, nil
}

func (t *Transcoder) Probe(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.ffprobePath, probeArgs(path)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, &transcode.ConversionError{Path: path, ExitCode: exitCode(err), Stderr: trimStderr(stderr.String())}
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("unparsable ffprobe duration %q: %w", stdout.String(), err)
	}
	return duration, nil
}

func (t *Transcoder) Cut(ctx context.Context, req transcode.CutRequest) (string, error) {
	args := cutArgs(req)
	if err := t.runFFmpeg(ctx, req.InputPath, args); err != nil {
		return "", err
	}
	return req.OutputPath, nil
}

func (t *Transcoder) Compress(ctx context.Context, inputPath, outputPath string) (string, error) {
	args := compressArgs(inputPath, outputPath)
	if err := t.runFFmpeg(ctx, inputPath, args); err != nil {
		return "", err
	}
	return outputPath, nil
}

func (t *Transcoder) runFFmpeg(ctx context.Context, inputPath string, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	slog.Debug("invoking ffmpeg", "input", inputPath, "args", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &transcode.ConversionError{Path: inputPath, ExitCode: exitCode(err), Stderr: trimStderr(stderr.String())}
	}
	// ffmpeg can exit zero without producing output on some container errors.
	out := args[len(args)-1]
	if _, err := os.Stat(out); err != nil {
		return &transcode.ConversionError{Path: inputPath, Stderr: "output file missing after conversion"}
	}
	return nil
}

func convertArgs(req transcode.ConvertRequest) []string {
	return []string{
		"-y", "-i", req.InputPath,
		"-ac", strconv.Itoa(req.Channels),
		"-ar", strconv.Itoa(req.SampleRate),
		"-sample_fmt", "s16",
		req.OutputPath,
	}
}

func probeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
}

func cutArgs(req transcode.CutRequest) []string {
	return []string{
		"-y", "-i", req.InputPath,
		"-ss", formatSeconds(req.StartSec),
		"-to", formatSeconds(req.EndSec),
		"-c", "copy",
		req.OutputPath,
	}
}

func compressArgs(inputPath, outputPath string) []string {
	return []string{
		"-y", "-i", inputPath,
		"-ac", "1",
		"-ar", "16000",
		"-b:a", "32k",
		outputPath,
	}
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func trimStderr(s string) string {
	s = strings.TrimSpace(s)
	const max = 512
	if len(s) > max {
		return s[len(s)-max:]
	}
	return s
}
