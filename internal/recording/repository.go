package recording

import (
	"context"
	"time"
)

type CreateFragmentInput struct {
	SessionID   string
	Index       int
	TimestampMs int64
	SizeBytes   int64
	Filename    string
	RecordingID string
}

type SaveResultInput struct {
	RecordingID     string
	Transcript      string
	DiarizationJSON []byte
	CompletedAt     time.Time
}

type FragmentRepository interface {
	CreateFragmentRecord(ctx context.Context, input CreateFragmentInput) (*Fragment, error)
	// ListFragmentsBySession returns fragments in unspecified order; callers
	// that need reassembly order must sort by Index themselves.
	ListFragmentsBySession(ctx context.Context, sessionID string) ([]Fragment, error)
	MarkFragmentsProcessed(ctx context.Context, sessionID string) error
	DeleteFragmentsBySession(ctx context.Context, sessionID string) error
}

type RecordingRepository interface {
	GetRecordingByID(ctx context.Context, id string) (*Recording, error)
	ListPendingRecordings(ctx context.Context, limit int) ([]Recording, error)
	UpdateRecordingStatus(ctx context.Context, id string, status Status, failureReason string) error
	SaveRecordingResult(ctx context.Context, input SaveResultInput) error
}

type Repository interface {
	FragmentRepository
	RecordingRepository
}
