package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nexus-voice/internal/domain/entity"
	"nexus-voice/internal/observability/metrics"
)

// CreateSession persists a new session for userID and returns its id.
func (m *Manager) CreateSession(ctx context.Context, userID string) (string, error) {
	return m.createSession(ctx, userID, metrics.SessionReasonNew)
}

func (m *Manager) createSession(ctx context.Context, userID, reason string) (string, error) {
	if userID == "" {
		return "", &entity.ValidationError{Field: "user_id", Message: "is required"}
	}

	id := m.newID()
	now := m.now().UTC()
	err := m.ExecuteShared(ctx, func(ctx context.Context, q Querier) error {
		_, err := q.ExecContext(ctx, `
INSERT INTO user_sessions (session_id, user_id, created_at, last_activity_at)
VALUES ($1, $2, $3, $3)`, id, userID, now)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	metrics.RecordSessionCreated(reason)
	m.logger.Info("session created",
		slog.String("session_id", id),
		slog.String("user_id", userID),
		slog.String("reason", reason))
	return id, nil
}

// ValidateOrReuseSession returns sessionID when it belongs to userID, has not
// been ended and was active less than timeout ago. Otherwise a new session is
// created and its id returned.
func (m *Manager) ValidateOrReuseSession(ctx context.Context, userID, sessionID string, timeout time.Duration) (string, error) {
	if sessionID == "" {
		return m.CreateSession(ctx, userID)
	}

	var last time.Time
	err := m.Execute(ctx, func(ctx context.Context, q Querier) error {
		return q.QueryRowContext(ctx, `
SELECT last_activity_at FROM user_sessions
WHERE session_id = $1 AND user_id = $2 AND ended_at IS NULL`, sessionID, userID).Scan(&last)
	})
	switch {
	case errors.Is(err, sql.ErrNoRows):
		m.logger.Info("session not found, creating a new one",
			slog.String("session_id", sessionID),
			slog.String("user_id", userID))
		return m.createSession(ctx, userID, metrics.SessionReasonUnknown)
	case err != nil:
		return "", fmt.Errorf("lookup session: %w", err)
	}

	now := m.now().UTC()
	idle := now.Sub(last)
	if idle >= timeout {
		m.logger.Info("session expired, creating a new one",
			slog.String("session_id", sessionID),
			slog.Duration("idle", idle),
			slog.Duration("timeout", timeout))
		return m.createSession(ctx, userID, metrics.SessionReasonExpired)
	}

	err = m.ExecuteShared(ctx, func(ctx context.Context, q Querier) error {
		_, err := q.ExecContext(ctx,
			`UPDATE user_sessions SET last_activity_at = $1 WHERE session_id = $2`, now, sessionID)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("touch session: %w", err)
	}
	metrics.RecordSessionReused()
	return sessionID, nil
}

// EndSession marks the session ended. Ending an unknown or already ended
// session is not an error.
func (m *Manager) EndSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return &entity.ValidationError{Field: "session_id", Message: "is required"}
	}

	var affected int64
	err := m.ExecuteShared(ctx, func(ctx context.Context, q Querier) error {
		res, err := q.ExecContext(ctx,
			`UPDATE user_sessions SET ended_at = $1 WHERE session_id = $2 AND ended_at IS NULL`,
			m.now().UTC(), sessionID)
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}

	if affected > 0 {
		m.logger.Info("session ended", slog.String("session_id", sessionID))
	}
	return nil
}

// LookupSession returns the stored session. A missing id yields an error of
// kind KindSessionNotFound.
func (m *Manager) LookupSession(ctx context.Context, sessionID string) (*entity.Session, error) {
	var (
		s     entity.Session
		ended sql.NullTime
	)
	err := m.Execute(ctx, func(ctx context.Context, q Querier) error {
		return q.QueryRowContext(ctx, `
SELECT session_id, user_id, created_at, last_activity_at, ended_at
FROM user_sessions WHERE session_id = $1`, sessionID).
			Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.LastActivityAt, &ended)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.NewError(entity.KindSessionNotFound, "lookup session", entity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if ended.Valid {
		t := ended.Time
		s.EndedAt = &t
	}
	return &s, nil
}

// LogInteraction records one user exchange and refreshes the session's last
// activity in the same transaction.
func (m *Manager) LogInteraction(ctx context.Context, in entity.Interaction) error {
	if err := in.Validate(); err != nil {
		return err
	}

	now := m.now().UTC()
	var sessionID sql.NullString
	if in.SessionID != "" {
		sessionID = sql.NullString{String: in.SessionID, Valid: true}
	}

	err := m.ExecuteTx(ctx, func(ctx context.Context, q Querier) error {
		if _, err := q.ExecContext(ctx, `
INSERT INTO interactions
    (user_id, session_id, interaction_type, content, response, duration_ms, success, error_message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			in.UserID, sessionID, string(in.Type), in.Content, in.Response,
			in.Duration.Milliseconds(), in.Success, in.ErrorMessage, now); err != nil {
			return err
		}
		if !sessionID.Valid {
			return nil
		}
		_, err := q.ExecContext(ctx,
			`UPDATE user_sessions SET last_activity_at = $1 WHERE session_id = $2 AND ended_at IS NULL`,
			now, in.SessionID)
		return err
	})
	if err != nil {
		return fmt.Errorf("log interaction: %w", err)
	}
	metrics.RecordInteraction(string(in.Type), in.Success)
	return nil
}

// PruneSessions deletes sessions inactive or ended for longer than olderThan,
// together with interactions older than the same cutoff. It returns the number
// of deleted sessions.
func (m *Manager) PruneSessions(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, &entity.ValidationError{Field: "older_than", Message: "must be positive"}
	}
	cutoff := m.now().UTC().Add(-olderThan)

	var deleted int64
	err := m.ExecuteTx(ctx, func(ctx context.Context, q Querier) error {
		if _, err := q.ExecContext(ctx,
			`DELETE FROM interactions WHERE created_at < $1`, cutoff); err != nil {
			return err
		}
		res, err := q.ExecContext(ctx,
			`DELETE FROM user_sessions WHERE COALESCE(ended_at, last_activity_at) < $1`, cutoff)
		if err != nil {
			return err
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}

	metrics.RecordSessionsPruned(deleted)
	m.logger.Info("sessions pruned",
		slog.Int64("deleted", deleted),
		slog.Time("cutoff", cutoff))
	return deleted, nil
}
