// Package voice serves speech synthesis and recognition over HTTP.
package voice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"nexus-voice/internal/domain/entity"
	"nexus-voice/internal/handler/http/respond"
	"nexus-voice/internal/infra/asr"
	"nexus-voice/internal/usecase/synthesis"
)

// Synthesizer is the synthesis pipeline as seen by the handlers.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) synthesis.Result
	InFlight() int
	Limit() int
	CacheEnabled() bool
	CacheLen() int
	PurgeCache() int
	Catalog() *synthesis.Catalog
}

// Recognizer turns recorded audio into text.
type Recognizer interface {
	Recognize(ctx context.Context, audio []byte, format string) (asr.Transcript, error)
}

// InteractionLogger persists user interactions. Failures are logged and
// never fail the request.
type InteractionLogger interface {
	LogInteraction(ctx context.Context, in entity.Interaction) error
}

// Handler holds the voice endpoints. ASR and Interactions are optional.
type Handler struct {
	Synth        Synthesizer
	ASR          Recognizer
	Interactions InteractionLogger
	Logger       *slog.Logger
}

// Register mounts the voice routes on mux. The transcription route is only
// mounted when a recognizer is configured.
func Register(mux *http.ServeMux, h *Handler) {
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	mux.HandleFunc("POST /api/tts", h.Synthesize)
	mux.HandleFunc("GET /api/tts/status", h.Status)
	mux.HandleFunc("GET /api/tts/voices", h.Voices)
	mux.HandleFunc("POST /api/tts/cache/clear", h.ClearCache)
	if h.ASR != nil {
		mux.HandleFunc("POST /api/transcribe", h.Transcribe)
	}
}

type synthesizeRequest struct {
	Text      *string `json:"text"`
	Voice     string  `json:"voice"`
	UserID    string  `json:"user_id"`
	SessionID string  `json:"session_id"`
}

// Synthesize handles POST /api/tts and answers with audio/mpeg.
func (h *Handler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.Text == nil {
		respond.Error(w, http.StatusBadRequest, &entity.ValidationError{Field: "text", Message: "is required"})
		return
	}

	start := time.Now()
	res := h.Synth.Synthesize(r.Context(), *req.Text, req.Voice)
	h.logInteraction(r.Context(), req.UserID, req.SessionID, *req.Text, time.Since(start), res)

	if !res.OK() {
		if res.Kind == entity.KindConcurrencyExceeded {
			w.Header().Set("Retry-After", "1")
		}
		respond.Classified(w, res.Err())
		return
	}

	cache := "miss"
	if res.Cached {
		cache = "hit"
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", `attachment; filename="speech.mp3"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Audio)))
	w.Header().Set("X-TTS-Voice", res.Voice)
	w.Header().Set("X-TTS-Cache", cache)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Audio)
}

func (h *Handler) logInteraction(ctx context.Context, userID, sessionID, text string, d time.Duration, res synthesis.Result) {
	if h.Interactions == nil || userID == "" {
		return
	}
	in := entity.Interaction{
		UserID:    userID,
		SessionID: sessionID,
		Type:      entity.InteractionTTS,
		Content:   text,
		Duration:  d,
		Success:   res.OK(),
	}
	if !res.OK() {
		in.ErrorMessage = res.Kind.String()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.Interactions.LogInteraction(ctx, in); err != nil {
		h.Logger.Warn("failed to log tts interaction",
			slog.String("user_id", userID),
			slog.String("error", respond.SanitizeError(err)))
	}
}

// StatusResponse is the body of GET /api/tts/status.
type StatusResponse struct {
	Available       bool   `json:"available"`
	ConcurrentCount int    `json:"concurrent_count"`
	ConcurrentLimit int    `json:"concurrent_limit"`
	CacheEnabled    bool   `json:"cache_enabled"`
	CacheSize       int    `json:"cache_size"`
	DefaultVoice    string `json:"default_voice"`
}

// Status reports gate occupancy and cache size.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	inFlight, limit := h.Synth.InFlight(), h.Synth.Limit()
	respond.JSON(w, http.StatusOK, StatusResponse{
		Available:       inFlight < limit,
		ConcurrentCount: inFlight,
		ConcurrentLimit: limit,
		CacheEnabled:    h.Synth.CacheEnabled(),
		CacheSize:       h.Synth.CacheLen(),
		DefaultVoice:    h.Synth.Catalog().Default(),
	})
}

// Voices lists the voice catalog.
func (h *Handler) Voices(w http.ResponseWriter, r *http.Request) {
	c := h.Synth.Catalog()
	respond.JSON(w, http.StatusOK, map[string]any{
		"default": c.Default(),
		"voices":  c.Voices(),
	})
}

// ClearCache purges the audio cache.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	n := h.Synth.PurgeCache()
	h.Logger.Info("tts cache cleared", slog.Int("entries", n))
	respond.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"purged":  n,
	})
}

// multipart framing on top of the largest accepted clip
const formOverhead = 1 << 20

// Transcribe handles POST /api/transcribe with a multipart "audio" file.
// The format comes from the "format" field or the file extension.
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, asr.MaxAudioBytes+formOverhead)
	file, header, err := r.FormFile("audio")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.Error(w, http.StatusRequestEntityTooLarge, errors.New("audio too large"))
			return
		}
		respond.Error(w, http.StatusBadRequest, &entity.ValidationError{Field: "audio", Message: "is required"})
		return
	}
	defer func() { _ = file.Close() }()

	audio, err := io.ReadAll(file)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, errors.New("invalid audio upload"))
		return
	}

	format := r.FormValue("format")
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	}

	start := time.Now()
	t, err := h.ASR.Recognize(r.Context(), audio, format)
	h.logTranscription(r.Context(), r.FormValue("user_id"), r.FormValue("session_id"), t, time.Since(start), err)
	if err != nil {
		respond.Classified(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, t)
}

func (h *Handler) logTranscription(ctx context.Context, userID, sessionID string, t asr.Transcript, d time.Duration, recErr error) {
	if h.Interactions == nil || userID == "" {
		return
	}
	in := entity.Interaction{
		UserID:    userID,
		SessionID: sessionID,
		Type:      entity.InteractionVoiceInput,
		Response:  t.Text,
		Duration:  d,
		Success:   recErr == nil,
	}
	if recErr != nil {
		in.ErrorMessage = entity.KindOf(recErr).String()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.Interactions.LogInteraction(ctx, in); err != nil {
		h.Logger.Warn("failed to log voice interaction",
			slog.String("user_id", userID),
			slog.String("error", respond.SanitizeError(err)))
	}
}
