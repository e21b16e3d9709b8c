package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scourlabs/scour/pkg/models"
)

// RecordVersion is the session record schema version this build reads and
// writes. Records carrying any other version refuse to load.
const RecordVersion = 1

// SessionStore persists research sessions to PostgreSQL. Every save rewrites
// the full record together with its validation digest in one transaction; a
// per-session mutex serialises the mutating operations while reads observe
// committed values concurrently.
type SessionStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSessionStore creates a SessionStore on the given connection pool.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{
		pool:   pool,
		logger: slog.With("component", "session_store"),
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *SessionStore) sessionLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Save upserts the session and its recomputed validation digest atomically.
func (s *SessionStore) Save(ctx context.Context, session *models.Session) error {
	l := s.sessionLock(session.SessionID)
	l.Lock()
	defer l.Unlock()
	return s.saveLocked(ctx, session)
}

func (s *SessionStore) saveLocked(ctx context.Context, session *models.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	record, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	digest, err := CanonicalDigest(record)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions
			(session_id, user_id, user_query, status, started_at, ended_at, last_iteration, record, record_version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (session_id) DO UPDATE SET
			user_id        = EXCLUDED.user_id,
			user_query     = EXCLUDED.user_query,
			status         = EXCLUDED.status,
			started_at     = EXCLUDED.started_at,
			ended_at       = EXCLUDED.ended_at,
			last_iteration = EXCLUDED.last_iteration,
			record         = EXCLUDED.record,
			record_version = EXCLUDED.record_version,
			updated_at     = now()`,
		session.SessionID, session.UserID, session.UserQuery, string(session.Status),
		session.StartTime, session.EndTime, session.CurrentIteration(), record, RecordVersion)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO session_digests (session_id, digest, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (session_id) DO UPDATE SET
			digest     = EXCLUDED.digest,
			updated_at = now()`,
		session.SessionID, digest)
	if err != nil {
		return fmt.Errorf("failed to upsert session digest: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit session save: %w", err)
	}
	return nil
}

// Load returns the full session record, verifying its version and digest.
// Record and digest are read in one statement so a concurrent save can never
// pair one save's record with another save's digest.
func (s *SessionStore) Load(ctx context.Context, sessionID string) (*models.Session, error) {
	var (
		record       []byte
		version      int
		storedDigest *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT s.record, s.record_version, d.digest
		FROM sessions s
		LEFT JOIN session_digests d ON d.session_id = s.session_id
		WHERE s.session_id = $1`, sessionID,
	).Scan(&record, &version, &storedDigest)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if version != RecordVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, version, RecordVersion)
	}
	if storedDigest == nil {
		return nil, fmt.Errorf("%w: validation digest missing", ErrCorrupt)
	}

	computed, err := CanonicalDigest(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if computed != *storedDigest {
		s.logger.Error("session digest mismatch", "session_id", sessionID)
		return nil, fmt.Errorf("%w: digest mismatch", ErrCorrupt)
	}

	var session models.Session
	if err := json.Unmarshal(record, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &session, nil
}

// List returns session summaries ordered by start time descending,
// optionally filtered by user id.
func (s *SessionStore) List(ctx context.Context, userID string) ([]models.SessionSummary, error) {
	query := `SELECT session_id, user_query, user_id, status, started_at, ended_at, last_iteration FROM sessions`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY started_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	summaries := []models.SessionSummary{}
	for rows.Next() {
		var (
			sum    models.SessionSummary
			status string
		)
		err := rows.Scan(&sum.SessionID, &sum.UserQuery, &sum.UserID, &status,
			&sum.StartTime, &sum.EndTime, &sum.CurrentIteration)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sum.Status = models.SessionStatus(status)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session rows: %w", err)
	}
	return summaries, nil
}

// Delete removes the session and its digest row, reporting whether a record
// existed.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	l := s.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	// The digest row goes with it via ON DELETE CASCADE.
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Resume loads a session for continuation, refusing terminal states.
func (s *SessionStore) Resume(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.StatusCompleted || session.Status == models.StatusError {
		return nil, fmt.Errorf("%w: status is %s", ErrNotResumable, session.Status)
	}
	return session, nil
}

// History returns the session's iteration records.
func (s *SessionStore) History(ctx context.Context, sessionID string) ([]models.IterationRecord, error) {
	session, err := s.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.Iterations, nil
}

// Rollback truncates the session to iterations <= iteration, recomputes the
// aggregated projection, clears the report and end time, marks the session
// interrupted, and persists the result. The target must be a completed
// iteration number; calling it again with the same target is a no-op apart
// from the timestamps.
func (s *SessionStore) Rollback(ctx context.Context, sessionID string, iteration int) (*models.Session, error) {
	l := s.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	session, err := s.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	last := session.Aggregated.LastCompletedIteration
	if iteration < 1 || iteration > last {
		return nil, fmt.Errorf("%w: session has iterations 1..%d, requested %d",
			ErrIterationOutOfRange, last, iteration)
	}

	session.Iterations = session.Iterations[:iteration]
	session.Aggregated = models.RecomputeAggregated(session.Iterations)
	session.Status = models.StatusInterrupted
	session.FinalReport = nil
	session.ErrorMessage = nil
	session.EndTime = nil

	if err := s.saveLocked(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("session rolled back", "session_id", sessionID, "iteration", iteration)
	return session, nil
}
