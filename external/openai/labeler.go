package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/marmolab/zvukozap/internal/transcribe"
)

const labelInstruction = "Add speaker labels (Speaker 1:, Speaker 2:, ...) to the transcript below. " +
	"Preserve the wording exactly, only add speaker labels. Do not summarize, comment or translate."

type LabelerConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ChatLabeler runs the secondary speaker-labeling pass through a
// general-purpose chat model.
type ChatLabeler struct {
	cfg    LabelerConfig
	client *http.Client
}

func NewChatLabeler(cfg LabelerConfig) transcribe.Labeler {
	return &ChatLabeler{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (l *ChatLabeler) LabelSpeakers(ctx context.Context, transcript string) (string, error) {
	if l.cfg.APIKey == "" {
		return "", transcribe.ErrUnavailable
	}
	payload, err := json.Marshal(chatRequest{
		Model: l.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: labelInstruction},
			{Role: "user", Content: transcript},
		},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+l.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("labeling request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("labeling returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode labeling response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("labeling response has no choices")
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}
