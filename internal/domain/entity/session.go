package entity

import "time"

// Session is a conversation continuity token tied to a user.
// A session is reused while the gap since LastActivityAt stays below the
// caller's timeout and superseded by a new session afterwards.
type Session struct {
	ID             string
	UserID         string
	CreatedAt      time.Time
	LastActivityAt time.Time
	EndedAt        *time.Time
}

// Active reports whether the session has not been ended.
func (s *Session) Active() bool {
	return s.EndedAt == nil
}

// IdleFor returns how long the session has been idle at now.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt)
}

// InteractionType categorises logged interactions.
type InteractionType string

const (
	InteractionVoiceInput InteractionType = "voice_input"
	InteractionTextInput  InteractionType = "text_input"
	InteractionAIResponse InteractionType = "ai_response"
	InteractionTTS        InteractionType = "tts"
	InteractionStory      InteractionType = "story_progress"
)

// Interaction is one logged user exchange.
type Interaction struct {
	UserID       string
	SessionID    string
	Type         InteractionType
	Content      string
	Response     string
	Duration     time.Duration
	Success      bool
	ErrorMessage string
}

// Validate checks the fields required for persistence.
func (i *Interaction) Validate() error {
	if i.UserID == "" {
		return &ValidationError{Field: "user_id", Message: "is required"}
	}
	if i.Type == "" {
		return &ValidationError{Field: "type", Message: "is required"}
	}
	if i.Duration < 0 {
		return &ValidationError{Field: "duration", Message: "must not be negative"}
	}
	return nil
}

// InteractionRecord is a stored interaction.
type InteractionRecord struct {
	ID int64
	Interaction
	CreatedAt time.Time
}

// InteractionTypeStats aggregates one interaction type.
type InteractionTypeStats struct {
	Type          InteractionType `json:"interaction_type,omitempty"`
	Count         int64           `json:"count"`
	AvgDurationMS float64         `json:"avg_duration_ms"`
	Successes     int64           `json:"success_count"`
	Failures      int64           `json:"failure_count"`
}

// InteractionStats aggregates interactions since a cutoff, optionally for
// one user. Total sums every type.
type InteractionStats struct {
	UserID string                 `json:"user_id,omitempty"`
	Since  time.Time              `json:"since"`
	ByType []InteractionTypeStats `json:"by_type"`
	Total  InteractionTypeStats   `json:"total"`
}
