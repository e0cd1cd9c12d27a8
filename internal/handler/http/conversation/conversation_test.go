package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-voice/internal/domain/entity"
	"nexus-voice/internal/infra/chat"
)

type replierFunc func(ctx context.Context, history []chat.Message) (string, error)

func (f replierFunc) Reply(ctx context.Context, history []chat.Message) (string, error) {
	return f(ctx, history)
}

type fakeStore struct {
	sessionErr   error
	reuseID      string
	gotTimeout   time.Duration
	interactions []entity.Interaction
	sessions     map[string]*entity.Session
	ended        []string
}

func (s *fakeStore) CreateSession(_ context.Context, userID string) (string, error) {
	if userID == "" {
		return "", &entity.ValidationError{Field: "user_id", Message: "is required"}
	}
	if s.sessionErr != nil {
		return "", s.sessionErr
	}
	return "sess-new", nil
}

func (s *fakeStore) ValidateOrReuseSession(_ context.Context, _, _ string, timeout time.Duration) (string, error) {
	s.gotTimeout = timeout
	if s.sessionErr != nil {
		return "", s.sessionErr
	}
	return s.reuseID, nil
}

func (s *fakeStore) LookupSession(_ context.Context, id string) (*entity.Session, error) {
	if s.sessionErr != nil {
		return nil, s.sessionErr
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, entity.NewError(entity.KindSessionNotFound, "lookup session", entity.ErrNotFound)
	}
	return sess, nil
}

func (s *fakeStore) EndSession(_ context.Context, id string) error {
	if s.sessionErr != nil {
		return s.sessionErr
	}
	s.ended = append(s.ended, id)
	return nil
}

func (s *fakeStore) LogInteraction(_ context.Context, in entity.Interaction) error {
	s.interactions = append(s.interactions, in)
	return s.sessionErr
}

var fixedNow = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestMux(h *Handler) *http.ServeMux {
	h.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	h.now = func() time.Time { return fixedNow }
	mux := http.NewServeMux()
	Register(mux, h)
	return mux
}

func postJSON(mux http.Handler, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func TestChatReply(t *testing.T) {
	var gotHistory []chat.Message
	store := &fakeStore{reuseID: "sess-1"}
	mux := newTestMux(&Handler{
		Chat: replierFunc(func(_ context.Context, history []chat.Message) (string, error) {
			gotHistory = history
			return "今天晴天。", nil
		}),
		Store:          store,
		SessionTimeout: 10 * time.Minute,
	})

	rec := postJSON(mux, "/api/chat", `{
		"message": " 今天天气怎么样 ",
		"user_id": "u1",
		"session_id": "sess-1",
		"conversation_history": [
			{"role": "user", "content": "你好"},
			{"role": "assistant", "content": "你好！"},
			{"role": "system", "content": "ignored"},
			{"role": "user", "content": "  "}
		]
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var got ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, ChatResponse{Response: "今天晴天。", SessionID: "sess-1", Timestamp: "2026-03-01T08:00:00Z"}, got)

	want := []chat.Message{
		{Role: chat.RoleUser, Content: "你好"},
		{Role: chat.RoleAssistant, Content: "你好！"},
		{Role: chat.RoleUser, Content: "今天天气怎么样"},
	}
	if diff := cmp.Diff(want, gotHistory); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 10*time.Minute, store.gotTimeout)

	require.Len(t, store.interactions, 1)
	in := store.interactions[0]
	assert.Equal(t, entity.InteractionTextInput, in.Type)
	assert.Equal(t, "sess-1", in.SessionID)
	assert.Equal(t, "今天晴天。", in.Response)
	assert.True(t, in.Success)
}

func TestChatReply_StoreDownStillAnswers(t *testing.T) {
	store := &fakeStore{sessionErr: entity.NewError(entity.KindConnectionLost, "lookup session", errors.New("dial tcp: refused"))}
	mux := newTestMux(&Handler{
		Chat:  replierFunc(func(context.Context, []chat.Message) (string, error) { return "好的", nil }),
		Store: store,
	})

	rec := postJSON(mux, "/api/chat", `{"message":"hi","user_id":"u1","session_id":"client-sess"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var got ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "client-sess", got.SessionID)
	assert.Equal(t, "好的", got.Response)
}

func TestChatReply_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		replyErr   error
		wantStatus int
		wantKind   string
	}{
		{name: "missing message", body: `{"user_id":"u1"}`, wantStatus: http.StatusBadRequest},
		{name: "blank message", body: `{"message":"  ","user_id":"u1"}`, wantStatus: http.StatusBadRequest},
		{name: "missing user", body: `{"message":"hi"}`, wantStatus: http.StatusBadRequest},
		{name: "malformed", body: `[`, wantStatus: http.StatusBadRequest},
		{
			name:       "upstream timeout",
			body:       `{"message":"hi","user_id":"u1"}`,
			replyErr:   entity.NewError(entity.KindTimeout, "chat reply", context.DeadlineExceeded),
			wantStatus: http.StatusGatewayTimeout,
			wantKind:   "timeout",
		},
		{
			name:       "upstream failure",
			body:       `{"message":"hi","user_id":"u1"}`,
			replyErr:   entity.NewError(entity.KindUpstreamException, "chat reply", errors.New("401 sk-secret")),
			wantStatus: http.StatusBadGateway,
			wantKind:   "upstream_exception",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(&Handler{
				Chat: replierFunc(func(context.Context, []chat.Message) (string, error) {
					return "", tt.replyErr
				}),
			})

			rec := postJSON(mux, "/api/chat", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotContains(t, rec.Body.String(), "sk-secret")
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantKind, body["kind"])
		})
	}
}

func TestSessions(t *testing.T) {
	created := fixedNow.Add(-time.Hour)
	store := &fakeStore{sessions: map[string]*entity.Session{
		"s1": {ID: "s1", UserID: "u1", CreatedAt: created, LastActivityAt: fixedNow},
	}}
	mux := newTestMux(&Handler{Store: store})

	t.Run("create", func(t *testing.T) {
		rec := postJSON(mux, "/api/sessions", `{"user_id":"u1"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.JSONEq(t, `{"session_id":"sess-new","user_id":"u1","active":true}`, rec.Body.String())
	})

	t.Run("create without user", func(t *testing.T) {
		rec := postJSON(mux, "/api/sessions", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/s1", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var got SessionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "s1", got.SessionID)
		assert.True(t, got.Active)
		require.NotNil(t, got.CreatedAt)
		assert.True(t, created.Equal(*got.CreatedAt))
	})

	t.Run("get unknown", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("end", func(t *testing.T) {
		rec := postJSON(mux, "/api/sessions/s1/end", ``)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"session_id":"s1","ended":true}`, rec.Body.String())
		assert.Equal(t, []string{"s1"}, store.ended)
	})
}

func TestSessions_StoreDown(t *testing.T) {
	store := &fakeStore{sessionErr: entity.NewError(entity.KindConnectionLost, "end session", errors.New("broken pipe"))}
	mux := newTestMux(&Handler{Store: store})

	rec := postJSON(mux, "/api/sessions/s1/end", ``)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "broken pipe")
}

func TestRegister_OptionalRoutes(t *testing.T) {
	mux := newTestMux(&Handler{})

	assert.Equal(t, http.StatusNotFound, postJSON(mux, "/api/chat", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, postJSON(mux, "/api/sessions", `{}`).Code)
}
