package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmolab/zvukozap/internal/diarize"
	"github.com/marmolab/zvukozap/internal/fragment"
	"github.com/marmolab/zvukozap/internal/notify"
	"github.com/marmolab/zvukozap/internal/orchestrate"
	"github.com/marmolab/zvukozap/internal/recording"
	"golang.org/x/sync/semaphore"
)

// Worker drives pending recordings through the processing pipeline: combine
// fragments, normalize, transcribe, diarize, persist, notify, clean up. It
// claims a recording by flipping its status to processing before spawning the
// job, so one database row is never processed twice. There is no cancellation
// of a claimed job; status polling is the only observation mechanism.
type Worker struct {
	repo         recording.Repository
	store        *fragment.Store
	orchestrator *orchestrate.Orchestrator
	diarizer     diarize.Diarizer
	sender       notify.Sender
	pollInterval time.Duration
	jobs         *semaphore.Weighted
}

func NewWorker(
	repo recording.Repository,
	store *fragment.Store,
	orchestrator *orchestrate.Orchestrator,
	diarizer diarize.Diarizer,
	sender notify.Sender,
	pollInterval time.Duration,
	maxConcurrentJobs int64,
) *Worker {
	return &Worker{
		repo:         repo,
		store:        store,
		orchestrator: orchestrator,
		diarizer:     diarizer,
		sender:       sender,
		pollInterval: pollInterval,
		jobs:         semaphore.NewWeighted(maxConcurrentJobs),
	}
}

// Run polls for pending recordings until ctx is canceled, then waits for
// in-flight jobs to finish.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("pipeline worker started", "poll_interval", w.pollInterval)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			slog.Info("pipeline worker stopping; waiting for in-flight jobs")
			wg.Wait()
			return nil
		case <-ticker.C:
			w.dispatchPending(ctx, &wg)
		}
	}
}

func (w *Worker) dispatchPending(ctx context.Context, wg *sync.WaitGroup) {
	pending, err := w.repo.ListPendingRecordings(ctx, 10)
	if err != nil {
		slog.Error("failed to list pending recordings", "error", err)
		return
	}
	for _, rec := range pending {
		if err := w.jobs.Acquire(ctx, 1); err != nil {
			return
		}
		if err := w.repo.UpdateRecordingStatus(ctx, rec.ID, recording.StatusProcessing, ""); err != nil {
			slog.Error("failed to claim recording", "recording_id", rec.ID, "error", err)
			w.jobs.Release(1)
			continue
		}
		rec := rec
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer w.jobs.Release(1)
			w.process(ctx, rec)
		}()
	}
}

func (w *Worker) process(ctx context.Context, rec recording.Recording) {
	// A claimed job must reach completed or failed even when the poll loop's
	// context is canceled; otherwise the row stays processing forever, and
	// pending-only polling would never pick it up again.
	ctx = context.WithoutCancel(ctx)
	jobID := uuid.NewString()
	logger := slog.With("job_id", jobID, "recording_id", rec.ID, "session_id", rec.SessionID)
	logger.Info("processing recording")
	started := time.Now()

	combinedPath, err := w.store.Combine(ctx, rec.SessionID)
	if err != nil {
		w.fail(ctx, logger, rec, "combine fragments: "+err.Error())
		return
	}
	wavPath, err := w.store.ConvertToCanonicalFormat(ctx, combinedPath)
	if err != nil {
		w.fail(ctx, logger, rec, "normalize audio: "+err.Error())
		return
	}

	outcome, err := w.orchestrator.Transcribe(ctx, orchestrate.Job{
		AudioPath: wavPath,
		Language:  rec.Language,
		Speed:     rec.SpeedPreference,
	})
	if err != nil {
		w.fail(ctx, logger, rec, "transcribe: "+err.Error())
		return
	}

	// Diarization is best-effort. A transcript without speaker timing is
	// still a useful result, so failures degrade instead of failing the job.
	var diarizationJSON []byte
	var durationSec float64
	if diarization, derr := w.diarizer.Diarize(ctx, wavPath); derr != nil {
		logger.Warn("diarization failed; saving transcript without it", "error", derr)
	} else {
		durationSec = diarization.DurationSec
		diarizationJSON, derr = json.Marshal(diarization)
		if derr != nil {
			logger.Warn("failed to encode diarization result", "error", derr)
			diarizationJSON = nil
		}
	}

	if err := w.repo.SaveRecordingResult(ctx, recording.SaveResultInput{
		RecordingID:     rec.ID,
		Transcript:      outcome.Text,
		DiarizationJSON: diarizationJSON,
		CompletedAt:     time.Now(),
	}); err != nil {
		w.fail(ctx, logger, rec, "save result: "+err.Error())
		return
	}

	w.notifyCompletion(ctx, logger, notify.CompletionPayload{
		RecordingID: rec.ID,
		SessionID:   rec.SessionID,
		Status:      string(recording.StatusCompleted),
		Transcript:  outcome.Text,
		Diarization: string(diarizationJSON),
		DurationSec: durationSec,
	})

	if err := w.store.Cleanup(ctx, rec.SessionID); err != nil {
		logger.Warn("cleanup failed; artifacts left on disk", "error", err)
	}
	logger.Info("recording processed",
		"model", string(outcome.Model),
		"fell_back", outcome.FellBack,
		"failed_chunks", outcome.FailedChunks,
		"total_chunks", outcome.TotalChunks,
		"estimated_cost", outcome.EstimatedCost,
		"elapsed", time.Since(started))
}

// fail records the terminal failure. Session artifacts are intentionally left
// on disk for manual recovery.
func (w *Worker) fail(ctx context.Context, logger *slog.Logger, rec recording.Recording, reason string) {
	logger.Error("recording failed", "reason", reason)
	if err := w.repo.UpdateRecordingStatus(ctx, rec.ID, recording.StatusFailed, reason); err != nil {
		logger.Error("failed to mark recording failed", "error", err)
	}
	w.notifyCompletion(ctx, logger, notify.CompletionPayload{
		RecordingID: rec.ID,
		SessionID:   rec.SessionID,
		Status:      string(recording.StatusFailed),
		Error:       reason,
	})
}

func (w *Worker) notifyCompletion(ctx context.Context, logger *slog.Logger, payload notify.CompletionPayload) {
	if err := w.sender.SendCompletion(ctx, payload); err != nil {
		logger.Warn("completion webhook delivery failed", "error", err)
	}
}
