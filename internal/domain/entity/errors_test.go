package entity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "with cause",
			err:      NewError(KindTimeout, "synthesis", context.DeadlineExceeded),
			expected: "synthesis: timeout: context deadline exceeded",
		},
		{
			name:     "without cause",
			err:      NewError(KindConcurrencyExceeded, "synthesis", nil),
			expected: "synthesis: concurrency_exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestKindOf(t *testing.T) {
	cause := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil", err: nil, want: KindNone},
		{name: "plain error", err: cause, want: KindUpstreamException},
		{name: "classified", err: NewError(KindConnectionLost, "store", cause), want: KindConnectionLost},
		{
			name: "wrapped classified",
			err:  fmt.Errorf("log interaction: %w", NewError(KindSessionNotFound, "lookup", nil)),
			want: KindSessionNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestError_IsMatchesKind(t *testing.T) {
	cause := errors.New("broken pipe")
	err := fmt.Errorf("execute: %w", NewError(KindConnectionLost, "store", cause))

	assert.True(t, errors.Is(err, &Error{Kind: KindConnectionLost}))
	assert.False(t, errors.Is(err, &Error{Kind: KindTimeout}))
	assert.True(t, errors.Is(err, cause), "cause must stay reachable")
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Field: "user_id", Message: "is required"}
	assert.Equal(t, "validation error on field 'user_id': is required", err.Error())
}

func TestParseCapability(t *testing.T) {
	tests := []struct {
		in   string
		want Capability
	}{
		{"tts", CapabilitySynthesis},
		{"synthesis", CapabilitySynthesis},
		{" ASR ", CapabilityRecognition},
		{"chat", CapabilityChat},
		{"db", CapabilityStorage},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCapability(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Valid())
		})
	}

	_, err := ParseCapability("video")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCapability)
}

func TestAllCapabilities_FixedOrder(t *testing.T) {
	assert.Equal(t, []Capability{
		CapabilitySynthesis, CapabilityRecognition, CapabilityChat, CapabilityStorage,
	}, AllCapabilities())
}

func TestInteraction_Validate(t *testing.T) {
	ok := Interaction{UserID: "user01", Type: InteractionTextInput}
	assert.NoError(t, ok.Validate())

	missingUser := Interaction{Type: InteractionTextInput}
	var vErr *ValidationError
	require.ErrorAs(t, missingUser.Validate(), &vErr)
	assert.Equal(t, "user_id", vErr.Field)

	missingType := Interaction{UserID: "user01"}
	require.ErrorAs(t, missingType.Validate(), &vErr)
	assert.Equal(t, "type", vErr.Field)
}
