package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmolab/zvukozap/internal/transcribe"
)

const requestTimeout = 30 * time.Minute

type Config struct {
	APIKey        string
	BaseURL       string
	BaselineModel string
	FastModel     string
	AccurateModel string
}

// Client talks to the speech-to-text API over multipart HTTP.
type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) transcribe.Transcriber {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: requestTimeout},
	}
}

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *Client) Transcribe(ctx context.Context, req transcribe.Request) (*transcribe.Result, error) {
	if c.cfg.APIKey == "" {
		return nil, transcribe.ErrUnavailable
	}
	modelID := c.modelID(req.Model)
	started := time.Now()

	body, contentType, err := buildMultipartBody(req, modelID)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/transcriptions", body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return nil, classifyError(modelID, resp)
	}

	var decoded transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}

	result := &transcribe.Result{
		Text:           strings.TrimSpace(decoded.Text),
		DurationSec:    decoded.Duration,
		ProcessingTime: time.Since(started),
		EstimatedCost:  transcribe.EstimateCost(decoded.Duration, req.Model),
	}
	for _, s := range decoded.Segments {
		result.Segments = append(result.Segments, transcribe.Segment{
			StartSec: s.Start,
			EndSec:   s.End,
			Text:     strings.TrimSpace(s.Text),
		})
	}
	slog.Info("transcription completed",
		"model", modelID,
		"processing_ms", result.ProcessingTime.Milliseconds(),
		"duration_sec", result.DurationSec,
		"segments", len(result.Segments))
	return result, nil
}

func (c *Client) modelID(model transcribe.Model) string {
	switch model {
	case transcribe.ModelFast:
		return c.cfg.FastModel
	case transcribe.ModelAccurate:
		return c.cfg.AccurateModel
	default:
		return c.cfg.BaselineModel
	}
}

func buildMultipartBody(req transcribe.Request, modelID string) (*bytes.Buffer, string, error) {
	f, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, "", fmt.Errorf("open audio file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", modelID); err != nil {
		return nil, "", err
	}
	if req.Language != "" {
		if err := mw.WriteField("language", req.Language); err != nil {
			return nil, "", err
		}
	}
	if req.Prompt != "" {
		if err := mw.WriteField("prompt", req.Prompt); err != nil {
			return nil, "", err
		}
	}
	if req.Detailed {
		if err := mw.WriteField("response_format", "verbose_json"); err != nil {
			return nil, "", err
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &body, mw.FormDataContentType(), nil
}

func classifyError(modelID string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var decoded errorResponse
	_ = json.Unmarshal(raw, &decoded)

	message := decoded.Error.Message
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	kind := transcribe.KindRemote
	switch {
	case decoded.Error.Code == "model_not_found",
		resp.StatusCode == http.StatusNotFound,
		strings.Contains(strings.ToLower(message), "model") && strings.Contains(strings.ToLower(message), "not found"):
		kind = transcribe.KindModelNotFound
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		kind = transcribe.KindOversize
	}
	return &transcribe.ModelError{
		Model:      modelID,
		StatusCode: resp.StatusCode,
		Kind:       kind,
		Message:    message,
	}
}
