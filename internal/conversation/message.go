package conversation

import (
	"errors"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ErrEmptyUserContent is returned when a user message would carry no text.
var ErrEmptyUserContent = errors.New("user message content is empty")

// Message is a model-agnostic chat message. It is passed and stored by value.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage wraps the persona text sent first on every request.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage builds a user message from already trimmed input.
func UserMessage(text string) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, ErrEmptyUserContent
	}
	return Message{Role: RoleUser, Content: text}, nil
}

// AssistantMessage wraps a model reply. Empty content is allowed.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}
