package db

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-voice/internal/domain/entity"
	"nexus-voice/internal/observability/metrics"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func sequentialIDs() func() string {
	var n atomic.Int32
	return func() string { return fmt.Sprintf("sess-%d", n.Add(1)) }
}

func newSessionManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	m, mock, _ := newTestManager(t,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(sequentialIDs()))
	return m, mock
}

func TestCreateSession(t *testing.T) {
	m, mock := newSessionManager(t)
	mock.ExpectPing()
	mock.ExpectExec("INSERT INTO user_sessions").
		WithArgs("sess-1", "user01", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := m.CreateSession(context.Background(), "user01")

	require.NoError(t, err)
	assert.Equal(t, "sess-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSession_RequiresUser(t *testing.T) {
	m, mock := newSessionManager(t)

	_, err := m.CreateSession(context.Background(), "")

	var vErr *entity.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "user_id", vErr.Field)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateOrReuseSession(t *testing.T) {
	tests := []struct {
		name   string
		idle   time.Duration
		wantID string
	}{
		{name: "active three minutes ago is reused", idle: 3 * time.Minute, wantID: "sess-old"},
		{name: "idle ten minutes gets a new session", idle: 10 * time.Minute, wantID: "sess-1"},
		{name: "exactly at timeout gets a new session", idle: 5 * time.Minute, wantID: "sess-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			m, mock := newSessionManager(t)
			mock.ExpectPing()
			mock.ExpectQuery("SELECT last_activity_at FROM user_sessions").
				WithArgs("sess-old", "user01").
				WillReturnRows(sqlmock.NewRows([]string{"last_activity_at"}).AddRow(fixedNow.Add(-tt.idle)))

			mock.ExpectPing()
			if tt.wantID == "sess-old" {
				mock.ExpectExec("UPDATE user_sessions SET last_activity_at").
					WithArgs(fixedNow, "sess-old").
					WillReturnResult(sqlmock.NewResult(0, 1))
			} else {
				mock.ExpectExec("INSERT INTO user_sessions").
					WithArgs("sess-1", "user01", fixedNow).
					WillReturnResult(sqlmock.NewResult(0, 1))
			}

			// Act
			id, err := m.ValidateOrReuseSession(context.Background(), "user01", "sess-old", 5*time.Minute)

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestValidateOrReuseSession_UnknownSession(t *testing.T) {
	m, mock := newSessionManager(t)
	mock.ExpectPing()
	mock.ExpectQuery("SELECT last_activity_at FROM user_sessions").
		WillReturnRows(sqlmock.NewRows([]string{"last_activity_at"}))
	mock.ExpectPing()
	mock.ExpectExec("INSERT INTO user_sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	created := metrics.SessionsCreatedTotal.WithLabelValues(metrics.SessionReasonUnknown)
	before := testutil.ToFloat64(created)

	id, err := m.ValidateOrReuseSession(context.Background(), "user01", "missing", 5*time.Minute)

	require.NoError(t, err)
	assert.Equal(t, "sess-1", id)
	assert.Equal(t, before+1, testutil.ToFloat64(created))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateOrReuseSession_EmptyID(t *testing.T) {
	m, mock := newSessionManager(t)
	mock.ExpectPing()
	mock.ExpectExec("INSERT INTO user_sessions").WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := m.ValidateOrReuseSession(context.Background(), "user01", "", 5*time.Minute)

	require.NoError(t, err)
	assert.Equal(t, "sess-1", id)
}

func TestEndSession_Idempotent(t *testing.T) {
	m, mock := newSessionManager(t)
	mock.ExpectPing()
	mock.ExpectExec("UPDATE user_sessions SET ended_at").
		WithArgs(fixedNow, "sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPing()
	mock.ExpectExec("UPDATE user_sessions SET ended_at").
		WithArgs(fixedNow, "sess-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, m.EndSession(context.Background(), "sess-1"))
	require.NoError(t, m.EndSession(context.Background(), "sess-1"), "ending twice is not an error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupSession(t *testing.T) {
	m, mock := newSessionManager(t)
	created := fixedNow.Add(-time.Hour)
	ended := fixedNow.Add(-time.Minute)

	mock.ExpectPing()
	mock.ExpectQuery("SELECT session_id, user_id, created_at, last_activity_at, ended_at").
		WithArgs("sess-9").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "user_id", "created_at", "last_activity_at", "ended_at"}).
			AddRow("sess-9", "user01", created, ended, ended))

	s, err := m.LookupSession(context.Background(), "sess-9")

	require.NoError(t, err)
	assert.Equal(t, "user01", s.UserID)
	assert.Equal(t, created, s.CreatedAt)
	require.NotNil(t, s.EndedAt)
	assert.False(t, s.Active())
	assert.Equal(t, time.Minute, s.IdleFor(fixedNow))
}

func TestLookupSession_NotFound(t *testing.T) {
	m, mock := newSessionManager(t)
	mock.ExpectPing()
	mock.ExpectQuery("SELECT session_id").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "user_id", "created_at", "last_activity_at", "ended_at"}))

	_, err := m.LookupSession(context.Background(), "nope")

	require.Error(t, err)
	assert.Equal(t, entity.KindSessionNotFound, entity.KindOf(err))
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestLogInteraction(t *testing.T) {
	m, mock := newSessionManager(t)
	mock.ExpectPing()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO interactions").
		WithArgs("user01", "sess-1", "tts", "你好", "", int64(1500), true, "", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE user_sessions SET last_activity_at").
		WithArgs(fixedNow, "sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := m.LogInteraction(context.Background(), entity.Interaction{
		UserID:    "user01",
		SessionID: "sess-1",
		Type:      entity.InteractionTTS,
		Content:   "你好",
		Duration:  1500 * time.Millisecond,
		Success:   true,
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogInteraction_WithoutSession(t *testing.T) {
	m, mock := newSessionManager(t)
	mock.ExpectPing()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO interactions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := m.LogInteraction(context.Background(), entity.Interaction{
		UserID: "user01",
		Type:   entity.InteractionTextInput,
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogInteraction_Invalid(t *testing.T) {
	m, mock := newSessionManager(t)

	err := m.LogInteraction(context.Background(), entity.Interaction{Type: entity.InteractionTTS})

	var vErr *entity.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPruneSessions(t *testing.T) {
	m, mock := newSessionManager(t)
	cutoff := fixedNow.Add(-90 * 24 * time.Hour)

	mock.ExpectPing()
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM interactions").WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 12))
	mock.ExpectExec("DELETE FROM user_sessions").WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	n, err := m.PruneSessions(context.Background(), 90*24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = m.PruneSessions(context.Background(), 0)
	assert.Error(t, err)
}
