package fragment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/marmolab/zvukozap/internal/recording"
	"github.com/marmolab/zvukozap/internal/transcode"
)

// ErrMissingFragments is returned by Combine when the session has no fragments.
var ErrMissingFragments = errors.New("session has no fragments")

const (
	canonicalChannels   = 1
	canonicalSampleRate = 16000
)

// Store persists uploaded capture fragments and reassembles them. All state is
// held on the instance; combination and cleanup for one session are serialized
// on a per-session lock because they share the combined artifact.
type Store struct {
	dataDir    string
	repo       recording.Repository
	transcoder transcode.Transcoder

	mu    sync.Mutex
	locks map[string]*sessionLock
}

func NewStore(dataDir string, repo recording.Repository, transcoder transcode.Transcoder) *Store {
	return &Store{
		dataDir:    dataDir,
		repo:       repo,
		transcoder: transcoder,
		locks:      make(map[string]*sessionLock),
	}
}

// sessionLock is reference counted so the locks map does not grow by one
// entry per session over the process lifetime.
type sessionLock struct {
	sync.Mutex
	refs int
}

// FragmentFilename is a deterministic function of (sessionID, index).
func FragmentFilename(sessionID string, index int) string {
	return fmt.Sprintf("%s_%06d.webm", sessionID, index)
}

// CombinedFilename is a deterministic function of sessionID.
func CombinedFilename(sessionID string) string {
	return fmt.Sprintf("combined_%s.webm", sessionID)
}

func (s *Store) lockSession(sessionID string) *sessionLock {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return l
}

func (s *Store) unlockSession(sessionID string, l *sessionLock) {
	l.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, sessionID)
	}
	s.mu.Unlock()
}

// SaveFragment writes the fragment blob under its deterministic name and
// records its metadata. A new sessionID is created implicitly. Concurrent
// saves for one session are safe because each index owns a distinct file.
func (s *Store) SaveFragment(ctx context.Context, sessionID string, index int, timestampMs int64, data []byte) (*recording.Fragment, error) {
	if index < 0 {
		return nil, fmt.Errorf("fragment index must be non-negative, got %d", index)
	}
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	filename := FragmentFilename(sessionID, index)
	path := filepath.Join(s.dataDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write fragment file: %w", err)
	}
	frag, err := s.repo.CreateFragmentRecord(ctx, recording.CreateFragmentInput{
		SessionID:   sessionID,
		Index:       index,
		TimestampMs: timestampMs,
		SizeBytes:   int64(len(data)),
		Filename:    filename,
	})
	if err != nil {
		return nil, fmt.Errorf("record fragment metadata: %w", err)
	}
	slog.Info("fragment saved", "session_id", sessionID, "index", index, "size_bytes", len(data))
	return frag, nil
}

// SessionFragments returns the session's fragments sorted ascending by index,
// regardless of how the repository stores them.
func (s *Store) SessionFragments(ctx context.Context, sessionID string) ([]recording.Fragment, error) {
	fragments, err := s.repo.ListFragmentsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sort.Slice(fragments, func(i, j int) bool {
		return fragments[i].Index < fragments[j].Index
	})
	return fragments, nil
}

// Combine concatenates all fragments of the session in index order into the
// combined artifact and returns its path. The raw capture container tolerates
// byte-level segment concatenation, so no re-encoding happens here.
// Unreadable fragments are skipped; they only fail the combination when no
// fragment could be read at all. The output is a pure function of the
// fragment set, so repeated calls rewrite identical bytes.
func (s *Store) Combine(ctx context.Context, sessionID string) (string, error) {
	lock := s.lockSession(sessionID)
	defer s.unlockSession(sessionID, lock)

	fragments, err := s.SessionFragments(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if len(fragments) == 0 {
		return "", fmt.Errorf("combine session %s: %w", sessionID, ErrMissingFragments)
	}

	outPath := filepath.Join(s.dataDir, CombinedFilename(sessionID))
	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("create combined file: %w", err)
	}
	defer func() {
		_ = out.Close()
	}()

	written := 0
	for _, frag := range fragments {
		data, err := os.ReadFile(filepath.Join(s.dataDir, frag.Filename))
		if err != nil {
			slog.Warn("skipping unreadable fragment", "session_id", sessionID, "index", frag.Index, "error", err)
			continue
		}
		if _, err := out.Write(data); err != nil {
			return "", fmt.Errorf("append fragment %d: %w", frag.Index, err)
		}
		written++
	}
	if written == 0 {
		return "", fmt.Errorf("combine session %s: no fragment could be read", sessionID)
	}
	if err := s.repo.MarkFragmentsProcessed(ctx, sessionID); err != nil {
		slog.Warn("failed to mark fragments processed", "session_id", sessionID, "error", err)
	}
	slog.Info("fragments combined", "session_id", sessionID, "fragments", written, "path", outPath)
	return outPath, nil
}

// ConvertToCanonicalFormat normalizes the combined artifact to mono 16 kHz
// PCM WAV. On failure the raw combined file is left in place for manual
// recovery and the *transcode.ConversionError is returned.
func (s *Store) ConvertToCanonicalFormat(ctx context.Context, path string) (string, error) {
	outPath := trimExt(path) + ".wav"
	converted, err := s.transcoder.Convert(ctx, transcode.ConvertRequest{
		InputPath:  path,
		OutputPath: outPath,
		Channels:   canonicalChannels,
		SampleRate: canonicalSampleRate,
	})
	if err != nil {
		return "", fmt.Errorf("normalize %s: %w", path, err)
	}
	return converted, nil
}

// Cleanup deletes the session's fragment files, combined and derived
// artifacts and metadata. Individual deletion failures are logged and do not
// abort the rest; calling it twice is a no-op the second time.
func (s *Store) Cleanup(ctx context.Context, sessionID string) error {
	lock := s.lockSession(sessionID)
	defer s.unlockSession(sessionID, lock)

	fragments, err := s.repo.ListFragmentsBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, frag := range fragments {
		if err := os.Remove(filepath.Join(s.dataDir, frag.Filename)); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to delete fragment file", "session_id", sessionID, "index", frag.Index, "error", err)
		}
	}
	s.removeDerivedArtifacts(sessionID)
	if err := s.repo.DeleteFragmentsBySession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete fragment records: %w", err)
	}
	slog.Info("session cleaned up", "session_id", sessionID, "fragments", len(fragments))
	return nil
}

// removeDerivedArtifacts deletes the combined file and everything derived
// from it: the canonical wav, the optimized variant and split chunks. All of
// them carry the deterministic combined-name prefix followed by "." or "_",
// so a directory scan catches every derived name without matching other
// sessions whose id shares a prefix.
func (s *Store) removeDerivedArtifacts(sessionID string) {
	prefix := strings.TrimSuffix(CombinedFilename(sessionID), filepath.Ext(CombinedFilename(sessionID)))
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		slog.Warn("failed to scan data dir for derived artifacts", "session_id", sessionID, "error", err)
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok || rest == "" || (rest[0] != '.' && rest[0] != '_') {
			continue
		}
		if err := os.Remove(filepath.Join(s.dataDir, name)); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to delete derived artifact", "session_id", sessionID, "path", name, "error", err)
		}
	}
}

func trimExt(path string) string {
	return path[:len(path)-len(filepath.Ext(path))]
}
