package recording

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

type SpeedPreference string

const (
	SpeedUnset    SpeedPreference = ""
	SpeedFast     SpeedPreference = "fast"
	SpeedAccurate SpeedPreference = "accurate"
)

// Fragment is one uploaded chunk of a continuous capture. Identity is
// (SessionID, Index); a fragment is immutable once written.
type Fragment struct {
	ID          string
	SessionID   string
	Index       int
	TimestampMs int64
	SizeBytes   int64
	Filename    string
	RecordingID string
	Processed   bool
	CreatedAt   time.Time
}

type Recording struct {
	ID              string
	SessionID       string
	Status          Status
	Language        string
	SpeedPreference SpeedPreference
	Transcript      string
	DiarizationJSON []byte
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
