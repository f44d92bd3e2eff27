package config

import "fmt"

type Config struct {
	Env         string
	DataDir     string
	DatabaseURL string

	OpenAIAPIKey  string
	OpenAIBaseURL string

	DefaultLanguage string
	BaselineModel   string
	FastModel       string
	AccurateModel   string
	LabelModel      string
	SpeakerLabeling bool

	APISizeLimitMB      int
	SegmentDurationSec  int
	MaxConcurrentCalls  int
	MaxConcurrentJobs   int
	WorkerPollSec       int
	TranscodeTimeoutSec int

	SilenceThresholdDB float64
	MinSilenceSec      float64
	TurnGapSec         float64

	TranscriptWebhookURL string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	for _, pos := range c.positiveFieldChecks() {
		if pos.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", pos.name, pos.value)
		}
	}
	if c.SilenceThresholdDB >= 0 {
		return fmt.Errorf("SILENCE_THRESHOLD_DB must be negative dBFS, got %v", c.SilenceThresholdDB)
	}
	if c.MinSilenceSec <= 0 {
		return fmt.Errorf("MIN_SILENCE_SEC must be positive, got %v", c.MinSilenceSec)
	}
	if c.TurnGapSec <= 0 {
		return fmt.Errorf("TURN_GAP_SEC must be positive, got %v", c.TurnGapSec)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DATA_DIR", value: c.DataDir},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "BASELINE_MODEL", value: c.BaselineModel},
		{name: "FAST_MODEL", value: c.FastModel},
		{name: "ACCURATE_MODEL", value: c.AccurateModel},
	}
}

type positiveEnvField struct {
	name  string
	value int
}

func (c *Config) positiveFieldChecks() []positiveEnvField {
	return []positiveEnvField{
		{name: "API_SIZE_LIMIT_MB", value: c.APISizeLimitMB},
		{name: "SEGMENT_DURATION_SEC", value: c.SegmentDurationSec},
		{name: "MAX_CONCURRENT_TRANSCRIPTIONS", value: c.MaxConcurrentCalls},
		{name: "MAX_CONCURRENT_JOBS", value: c.MaxConcurrentJobs},
		{name: "WORKER_POLL_SEC", value: c.WorkerPollSec},
		{name: "TRANSCODE_TIMEOUT_SEC", value: c.TranscodeTimeoutSec},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
