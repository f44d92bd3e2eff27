package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	internalconfig "github.com/marmolab/zvukozap/internal/config"
)

type envConfig struct {
	Env         string `env:"ENV" envDefault:"production"`
	DataDir     string `env:"DATA_DIR,required"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`

	DefaultLanguage string `env:"DEFAULT_TRANSCRIBE_LANGUAGE"`
	BaselineModel   string `env:"BASELINE_MODEL" envDefault:"whisper-1"`
	FastModel       string `env:"FAST_MODEL" envDefault:"gpt-4o-mini-transcribe"`
	AccurateModel   string `env:"ACCURATE_MODEL" envDefault:"gpt-4o-transcribe"`
	LabelModel      string `env:"LABEL_MODEL" envDefault:"gpt-4o"`
	SpeakerLabeling bool   `env:"SPEAKER_LABELING" envDefault:"false"`

	APISizeLimitMB      int `env:"API_SIZE_LIMIT_MB" envDefault:"25"`
	SegmentDurationSec  int `env:"SEGMENT_DURATION_SEC" envDefault:"600"`
	MaxConcurrentCalls  int `env:"MAX_CONCURRENT_TRANSCRIPTIONS" envDefault:"4"`
	MaxConcurrentJobs   int `env:"MAX_CONCURRENT_JOBS" envDefault:"2"`
	WorkerPollSec       int `env:"WORKER_POLL_SEC" envDefault:"5"`
	TranscodeTimeoutSec int `env:"TRANSCODE_TIMEOUT_SEC" envDefault:"300"`

	SilenceThresholdDB float64 `env:"SILENCE_THRESHOLD_DB" envDefault:"-40"`
	MinSilenceSec      float64 `env:"MIN_SILENCE_SEC" envDefault:"0.5"`
	TurnGapSec         float64 `env:"TURN_GAP_SEC" envDefault:"1.5"`

	TranscriptWebhookURL string `env:"TRANSCRIPT_WEBHOOK_URL"`
}

func Load() (*internalconfig.Config, error) {
	// Best-effort: a missing .env file is the normal case in production.
	_ = godotenv.Load()

	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                  raw.Env,
		DataDir:              raw.DataDir,
		DatabaseURL:          raw.DatabaseURL,
		OpenAIAPIKey:         raw.OpenAIAPIKey,
		OpenAIBaseURL:        raw.OpenAIBaseURL,
		DefaultLanguage:      raw.DefaultLanguage,
		BaselineModel:        raw.BaselineModel,
		FastModel:            raw.FastModel,
		AccurateModel:        raw.AccurateModel,
		LabelModel:           raw.LabelModel,
		SpeakerLabeling:      raw.SpeakerLabeling,
		APISizeLimitMB:       raw.APISizeLimitMB,
		SegmentDurationSec:   raw.SegmentDurationSec,
		MaxConcurrentCalls:   raw.MaxConcurrentCalls,
		MaxConcurrentJobs:    raw.MaxConcurrentJobs,
		WorkerPollSec:        raw.WorkerPollSec,
		TranscodeTimeoutSec:  raw.TranscodeTimeoutSec,
		SilenceThresholdDB:   raw.SilenceThresholdDB,
		MinSilenceSec:        raw.MinSilenceSec,
		TurnGapSec:           raw.TurnGapSec,
		TranscriptWebhookURL: raw.TranscriptWebhookURL,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
