package entity

import (
	"fmt"
	"strings"
)

// Capability is a downstream function protected by the resilience layer.
type Capability string

const (
	// CapabilitySynthesis is text-to-speech.
	CapabilitySynthesis Capability = "synthesis"
	// CapabilityRecognition is speech-to-text.
	CapabilityRecognition Capability = "recognition"
	// CapabilityChat is the conversational model.
	CapabilityChat Capability = "chat"
	// CapabilityStorage is the persistent relational store.
	CapabilityStorage Capability = "storage"
)

// AllCapabilities returns every capability in a fixed order.
// The recovery loop and health reports iterate in this order.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilitySynthesis,
		CapabilityRecognition,
		CapabilityChat,
		CapabilityStorage,
	}
}

// String returns the capability name.
func (c Capability) String() string {
	return string(c)
}

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	switch c {
	case CapabilitySynthesis, CapabilityRecognition, CapabilityChat, CapabilityStorage:
		return true
	}
	return false
}

// ParseCapability converts a client supplied name into a Capability.
// The short names used by existing mobile clients ("tts", "asr", "db") are accepted.
func ParseCapability(name string) (Capability, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "synthesis", "tts":
		return CapabilitySynthesis, nil
	case "recognition", "asr", "stt":
		return CapabilityRecognition, nil
	case "chat":
		return CapabilityChat, nil
	case "storage", "db", "database":
		return CapabilityStorage, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCapability, name)
}
