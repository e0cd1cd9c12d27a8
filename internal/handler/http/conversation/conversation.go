// Package conversation serves text chat and session lifecycle endpoints.
//
// Chat keeps answering while the store is down: session bookkeeping and
// interaction logging degrade to log lines and the client's session id is
// echoed back unchanged.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nexus-voice/internal/domain/entity"
	"nexus-voice/internal/handler/http/respond"
	"nexus-voice/internal/infra/chat"
)

// Replier produces the assistant's next message.
type Replier interface {
	Reply(ctx context.Context, history []chat.Message) (string, error)
}

// SessionStore persists sessions and interactions.
type SessionStore interface {
	CreateSession(ctx context.Context, userID string) (string, error)
	ValidateOrReuseSession(ctx context.Context, userID, sessionID string, timeout time.Duration) (string, error)
	LookupSession(ctx context.Context, sessionID string) (*entity.Session, error)
	EndSession(ctx context.Context, sessionID string) error
	LogInteraction(ctx context.Context, in entity.Interaction) error
}

// Handler holds the conversation endpoints. Chat and Store are each optional.
type Handler struct {
	Chat           Replier
	Store          SessionStore
	SessionTimeout time.Duration
	Logger         *slog.Logger
	now            func() time.Time
}

// Register mounts the chat route when a chat service is configured and the
// session routes when a store is configured.
func Register(mux *http.ServeMux, h *Handler) {
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	if h.SessionTimeout <= 0 {
		h.SessionTimeout = 5 * time.Minute
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.Chat != nil {
		mux.HandleFunc("POST /api/chat", h.ChatReply)
	}
	if h.Store != nil {
		mux.HandleFunc("POST /api/sessions", h.CreateSession)
		mux.HandleFunc("GET /api/sessions/{id}", h.GetSession)
		mux.HandleFunc("POST /api/sessions/{id}/end", h.EndSession)
	}
}

type chatRequest struct {
	Message             string         `json:"message"`
	UserID              string         `json:"user_id"`
	SessionID           string         `json:"session_id"`
	ConversationHistory []chat.Message `json:"conversation_history"`
}

// ChatResponse is the body of POST /api/chat.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ChatReply handles POST /api/chat.
func (h *Handler) ChatReply(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		respond.Error(w, http.StatusBadRequest, &entity.ValidationError{Field: "message", Message: "is required"})
		return
	}
	if req.UserID == "" {
		respond.Error(w, http.StatusBadRequest, &entity.ValidationError{Field: "user_id", Message: "is required"})
		return
	}

	sessionID := h.resolveSession(r.Context(), req.UserID, req.SessionID)

	history := make([]chat.Message, 0, len(req.ConversationHistory)+1)
	for _, m := range req.ConversationHistory {
		if (m.Role == chat.RoleUser || m.Role == chat.RoleAssistant) && strings.TrimSpace(m.Content) != "" {
			history = append(history, m)
		}
	}
	history = append(history, chat.Message{Role: chat.RoleUser, Content: req.Message})

	start := h.now()
	reply, err := h.Chat.Reply(r.Context(), history)
	h.logInteraction(r.Context(), entity.Interaction{
		UserID:       req.UserID,
		SessionID:    sessionID,
		Type:         entity.InteractionTextInput,
		Content:      req.Message,
		Response:     reply,
		Duration:     h.now().Sub(start),
		Success:      err == nil,
		ErrorMessage: errorKind(err),
	})
	if err != nil {
		respond.Classified(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, ChatResponse{
		Response:  reply,
		SessionID: sessionID,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// resolveSession reuses or replaces the client's session. Store failures
// keep the client's id.
func (h *Handler) resolveSession(ctx context.Context, userID, sessionID string) string {
	if h.Store == nil {
		return sessionID
	}
	id, err := h.Store.ValidateOrReuseSession(ctx, userID, sessionID, h.SessionTimeout)
	if err != nil {
		h.Logger.WarnContext(ctx, "session bookkeeping unavailable",
			slog.String("user_id", userID),
			slog.String("kind", entity.KindOf(err).String()),
			slog.String("error", respond.SanitizeError(err)))
		return sessionID
	}
	return id
}

func (h *Handler) logInteraction(ctx context.Context, in entity.Interaction) {
	if h.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.Store.LogInteraction(ctx, in); err != nil {
		h.Logger.WarnContext(ctx, "failed to log interaction",
			slog.String("user_id", in.UserID),
			slog.String("type", string(in.Type)),
			slog.String("error", respond.SanitizeError(err)))
	}
}

func errorKind(err error) string {
	if err == nil {
		return ""
	}
	return entity.KindOf(err).String()
}

// SessionResponse is the JSON form of entity.Session.
type SessionResponse struct {
	SessionID      string     `json:"session_id"`
	UserID         string     `json:"user_id,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Active         bool       `json:"active"`
}

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	id, err := h.Store.CreateSession(r.Context(), req.UserID)
	if err != nil {
		respond.Classified(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, SessionResponse{SessionID: id, UserID: req.UserID, Active: true})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.Store.LookupSession(r.Context(), r.PathValue("id"))
	if err != nil {
		respond.Classified(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, SessionResponse{
		SessionID:      s.ID,
		UserID:         s.UserID,
		CreatedAt:      &s.CreatedAt,
		LastActivityAt: &s.LastActivityAt,
		EndedAt:        s.EndedAt,
		Active:         s.Active(),
	})
}

// EndSession is idempotent.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Store.EndSession(r.Context(), id); err != nil {
		respond.Classified(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"session_id": id, "ended": true})
}
