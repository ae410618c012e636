package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSide indicates a side identifier other than A or B.
var ErrUnknownSide = errors.New("unknown side")

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents a single conversational message in the unified schema.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// UserMessage is shorthand for a user-authored message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage is shorthand for an assistant-authored message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ProviderID names one of the supported vendors.
type ProviderID string

const (
	ProviderOpenAI    ProviderID = "openai"
	ProviderAnthropic ProviderID = "anthropic"
	ProviderGoogle    ProviderID = "google"
)

// Providers lists every supported provider in display order.
var Providers = []ProviderID{ProviderOpenAI, ProviderAnthropic, ProviderGoogle}

// Valid reports whether p is one of the supported providers.
func (p ProviderID) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
		return true
	}
	return false
}

// DisplayName returns the human readable vendor name.
func (p ProviderID) DisplayName() string {
	switch p {
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderAnthropic:
		return "Anthropic"
	case ProviderGoogle:
		return "Google Gemini"
	}
	return string(p)
}

// ModelDescriptor identifies a selectable model. Only ID is sent to the vendor.
type ModelDescriptor struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"displayName" yaml:"displayName"`
}

// CatalogEntry lists the models known for a provider.
type CatalogEntry struct {
	Provider    ProviderID        `json:"provider"`
	DisplayName string            `json:"displayName"`
	Models      []ModelDescriptor `json:"models"`
}

// Side is one of the two comparison slots.
type Side string

const (
	SideA Side = "a"
	SideB Side = "b"
)

// Sides lists both sides in display order.
var Sides = []Side{SideA, SideB}

// ParseSide accepts "a"/"b" in any case.
func ParseSide(raw string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(raw))) {
	case SideA:
		return SideA, nil
	case SideB:
		return SideB, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSide, raw)
}

func (s Side) String() string {
	return strings.ToUpper(string(s))
}

// SideConfig holds the independently mutable configuration of one side.
// The credential is not stored here; it is resolved from settings by provider at send time.
type SideConfig struct {
	Provider     ProviderID `json:"provider" yaml:"provider"`
	Model        string     `json:"model" yaml:"model"`
	SystemPrompt string     `json:"systemPrompt" yaml:"systemPrompt"`
	Label        string     `json:"label" yaml:"label"`
}
