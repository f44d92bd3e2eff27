package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE recording_status AS ENUM ('pending', 'processing', 'completed', 'failed'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS recordings (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		session_id TEXT NOT NULL,
		status recording_status NOT NULL DEFAULT 'pending',
		language TEXT NOT NULL DEFAULT '',
		speed_preference TEXT NOT NULL DEFAULT '',
		transcript TEXT NOT NULL DEFAULT '',
		diarization JSONB,
		failure_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_recordings_pending ON recordings (created_at) WHERE status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS fragments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		session_id TEXT NOT NULL,
		fragment_index INTEGER NOT NULL,
		timestamp_ms BIGINT NOT NULL,
		size_bytes BIGINT NOT NULL,
		filename TEXT NOT NULL,
		recording_id UUID REFERENCES recordings(id) ON DELETE SET NULL,
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(session_id, fragment_index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fragments_session ON fragments (session_id, fragment_index)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
