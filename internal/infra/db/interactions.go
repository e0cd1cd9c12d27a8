package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"nexus-voice/internal/domain/entity"
)

// ListInteractions returns one page of userID's interactions, newest first,
// together with the total number stored for the user.
func (m *Manager) ListInteractions(ctx context.Context, userID string, limit, offset int) ([]entity.InteractionRecord, int64, error) {
	if userID == "" {
		return nil, 0, &entity.ValidationError{Field: "user_id", Message: "is required"}
	}
	if limit < 1 || offset < 0 {
		return nil, 0, &entity.ValidationError{Field: "limit", Message: "must be positive with a non-negative offset"}
	}

	var (
		total   int64
		records []entity.InteractionRecord
	)
	err := m.Execute(ctx, func(ctx context.Context, q Querier) error {
		if err := q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM interactions WHERE user_id = $1`, userID).Scan(&total); err != nil {
			return err
		}
		if total == 0 {
			return nil
		}

		rows, err := q.QueryContext(ctx, `
SELECT id, user_id, session_id, interaction_type, content, response, duration_ms, success, error_message, created_at
FROM interactions
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, userID, limit, offset)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		records = make([]entity.InteractionRecord, 0, limit)
		for rows.Next() {
			var (
				r                                      entity.InteractionRecord
				sessionID, content, response, errorMsg sql.NullString
				durationMS                             int64
				kind                                   string
			)
			if err := rows.Scan(&r.ID, &r.UserID, &sessionID, &kind, &content, &response,
				&durationMS, &r.Success, &errorMsg, &r.CreatedAt); err != nil {
				return err
			}
			r.SessionID = sessionID.String
			r.Type = entity.InteractionType(kind)
			r.Content = content.String
			r.Response = response.String
			r.Duration = time.Duration(durationMS) * time.Millisecond
			r.ErrorMessage = errorMsg.String
			records = append(records, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list interactions: %w", err)
	}
	if records == nil {
		records = []entity.InteractionRecord{}
	}
	return records, total, nil
}

// InteractionStats aggregates interactions newer than window by type.
// Durations are in milliseconds. An empty userID covers every user.
func (m *Manager) InteractionStats(ctx context.Context, userID string, window time.Duration) (*entity.InteractionStats, error) {
	if window <= 0 {
		return nil, &entity.ValidationError{Field: "window", Message: "must be positive"}
	}
	stats := &entity.InteractionStats{
		UserID: userID,
		Since:  m.now().UTC().Add(-window),
		ByType: []entity.InteractionTypeStats{},
	}

	err := m.Execute(ctx, func(ctx context.Context, q Querier) error {
		rows, err := q.QueryContext(ctx, `
SELECT interaction_type,
       COUNT(*),
       COALESCE(AVG(duration_ms), 0),
       COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0)
FROM interactions
WHERE created_at >= $1 AND ($2 = '' OR user_id = $2)
GROUP BY interaction_type
ORDER BY interaction_type`, stats.Since, userID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var (
				s    entity.InteractionTypeStats
				kind string
			)
			if err := rows.Scan(&kind, &s.Count, &s.AvgDurationMS, &s.Successes, &s.Failures); err != nil {
				return err
			}
			s.Type = entity.InteractionType(kind)
			stats.ByType = append(stats.ByType, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("interaction stats: %w", err)
	}

	var weighted float64
	for _, s := range stats.ByType {
		stats.Total.Count += s.Count
		stats.Total.Successes += s.Successes
		stats.Total.Failures += s.Failures
		weighted += s.AvgDurationMS * float64(s.Count)
	}
	if stats.Total.Count > 0 {
		stats.Total.AvgDurationMS = weighted / float64(stats.Total.Count)
	}
	return stats, nil
}
