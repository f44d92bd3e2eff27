package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/marmolab/zvukozap/internal/recording"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) recording.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateFragmentRecord(ctx context.Context, input recording.CreateFragmentInput) (*recording.Fragment, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO fragments (session_id, fragment_index, timestamp_ms, size_bytes, filename, recording_id)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		 RETURNING id, session_id, fragment_index, timestamp_ms, size_bytes, filename, COALESCE(recording_id::text, ''), processed, created_at`,
		input.SessionID, input.Index, input.TimestampMs, input.SizeBytes, input.Filename, input.RecordingID)
	var f recording.Fragment
	if err := row.Scan(&f.ID, &f.SessionID, &f.Index, &f.TimestampMs, &f.SizeBytes, &f.Filename, &f.RecordingID, &f.Processed, &f.CreatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *PostgresRepository) ListFragmentsBySession(ctx context.Context, sessionID string) ([]recording.Fragment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, fragment_index, timestamp_ms, size_bytes, filename, COALESCE(recording_id::text, ''), processed, created_at
		 FROM fragments WHERE session_id = $1`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []recording.Fragment
	for rows.Next() {
		var f recording.Fragment
		if err := rows.Scan(&f.ID, &f.SessionID, &f.Index, &f.TimestampMs, &f.SizeBytes, &f.Filename, &f.RecordingID, &f.Processed, &f.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, f)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) MarkFragmentsProcessed(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE fragments SET processed = TRUE WHERE session_id = $1`,
		sessionID)
	return err
}

func (r *PostgresRepository) DeleteFragmentsBySession(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM fragments WHERE session_id = $1`,
		sessionID)
	return err
}

func (r *PostgresRepository) GetRecordingByID(ctx context.Context, id string) (*recording.Recording, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, session_id, status, language, speed_preference, transcript, diarization, failure_reason, created_at, updated_at
		 FROM recordings WHERE id = $1`,
		id)
	rec, err := scanRecording(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (r *PostgresRepository) ListPendingRecordings(ctx context.Context, limit int) ([]recording.Recording, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, status, language, speed_preference, transcript, diarization, failure_reason, created_at, updated_at
		 FROM recordings WHERE status = 'pending' ORDER BY created_at ASC LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []recording.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) UpdateRecordingStatus(ctx context.Context, id string, status recording.Status, failureReason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE recordings SET status = $2, failure_reason = $3, updated_at = NOW() WHERE id = $1`,
		id, string(status), failureReason)
	return err
}

func (r *PostgresRepository) SaveRecordingResult(ctx context.Context, input recording.SaveResultInput) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE recordings
		 SET status = 'completed', transcript = $2, diarization = $3, updated_at = $4
		 WHERE id = $1`,
		input.RecordingID, input.Transcript, input.DiarizationJSON, input.CompletedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecording(row rowScanner) (*recording.Recording, error) {
	var rec recording.Recording
	var diarization []byte
	var status, speed string
	err := row.Scan(&rec.ID, &rec.SessionID, &status, &rec.Language, &speed, &rec.Transcript, &diarization, &rec.FailureReason, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = recording.Status(status)
	rec.SpeedPreference = recording.SpeedPreference(speed)
	rec.DiarizationJSON = diarization
	return &rec, nil
}
