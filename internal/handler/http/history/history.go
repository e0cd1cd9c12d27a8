// Package history serves a user's logged interactions and aggregate
// interaction statistics.
package history

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nexus-voice/internal/common/pagination"
	"nexus-voice/internal/domain/entity"
	"nexus-voice/internal/handler/http/respond"
)

// Store reads logged interactions.
type Store interface {
	ListInteractions(ctx context.Context, userID string, limit, offset int) ([]entity.InteractionRecord, int64, error)
	InteractionStats(ctx context.Context, userID string, window time.Duration) (*entity.InteractionStats, error)
}

const (
	defaultStatsDays = 30
	maxStatsDays     = 365
)

// Handler holds the history endpoints.
type Handler struct {
	Store      Store
	Pagination pagination.Config
	Logger     *slog.Logger
}

// Register mounts the history routes. Without a store nothing is mounted.
func Register(mux *http.ServeMux, h *Handler) {
	if h.Store == nil {
		return
	}
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	if h.Pagination.MaxLimit <= 0 {
		h.Pagination = pagination.DefaultConfig()
	}
	mux.HandleFunc("GET /api/users/{user_id}/interactions", h.ListInteractions)
	mux.HandleFunc("GET /api/interactions/stats", h.Stats)
}

// InteractionDTO is one entry of the history listing.
type InteractionDTO struct {
	ID           int64  `json:"id"`
	SessionID    string `json:"session_id,omitempty"`
	Type         string `json:"interaction_type"`
	Content      string `json:"content,omitempty"`
	Response     string `json:"response,omitempty"`
	DurationMS   int64  `json:"duration_ms"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func toDTO(r entity.InteractionRecord) InteractionDTO {
	return InteractionDTO{
		ID:           r.ID,
		SessionID:    r.SessionID,
		Type:         string(r.Type),
		Content:      r.Content,
		Response:     r.Response,
		DurationMS:   r.Duration.Milliseconds(),
		Success:      r.Success,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ListInteractions handles GET /api/users/{user_id}/interactions.
func (h *Handler) ListInteractions(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.PathValue("user_id"))
	params, err := pagination.ParseQueryParams(r, h.Pagination)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, err)
		return
	}

	records, total, err := h.Store.ListInteractions(r.Context(), userID, params.Limit, params.Offset())
	if err != nil {
		respond.Classified(w, err)
		return
	}

	dtos := make([]InteractionDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, toDTO(rec))
	}
	h.Logger.Debug("interaction history served",
		slog.String("user_id", userID),
		slog.Int("page", params.Page),
		slog.Int("returned", len(dtos)),
		slog.Int64("total", total))
	respond.JSON(w, http.StatusOK, pagination.NewResponse(dtos, params, total))
}

// Stats handles GET /api/interactions/stats?user_id=&days=.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	days := defaultStatsDays
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxStatsDays {
			respond.Error(w, http.StatusBadRequest, &entity.ValidationError{
				Field: "days", Message: "must be an integer between 1 and " + strconv.Itoa(maxStatsDays),
			})
			return
		}
		days = n
	}

	stats, err := h.Store.InteractionStats(r.Context(),
		strings.TrimSpace(r.URL.Query().Get("user_id")), time.Duration(days)*24*time.Hour)
	if err != nil {
		respond.Classified(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, stats)
}
