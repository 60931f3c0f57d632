package config

import (
	"errors"
	"os"
	"strings"
)

// Messages are the user-facing strings of the chat loop.
type Messages struct {
	Greeting   string `json:"greeting" toml:"greeting" yaml:"greeting"`
	Prompt     string `json:"prompt" toml:"prompt" yaml:"prompt"`
	EmptyInput string `json:"emptyInput" toml:"emptyInput" yaml:"emptyInput"`
	Exit       string `json:"exit" toml:"exit" yaml:"exit"`
}

// DefaultMessages returns the built-in strings.
func DefaultMessages() Messages {
	return Messages{
		Greeting:   "Salve, seeker of wisdom. What would you like to know about our glorious Roman and Byzantine leaders?",
		Prompt:     "Quaeris quid (What is your question)?",
		EmptyInput: "Me paenitet, non audivi te. (I'm sorry, I didn't hear you)",
		Exit:       "Vale et gratias tibi ago for using Magnus Liber Imperatorum.",
	}
}

// LoadMessages reads display strings from path. Blank or absent fields keep
// their built-in value. A missing file falls back to the defaults unless
// explicit is set.
func LoadMessages(path string, explicit bool) (Messages, error) {
	defaults := DefaultMessages()
	if path == "" {
		return defaults, nil
	}
	var loaded Messages
	if err := decodeFile(path, &loaded); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return defaults, nil
		}
		return Messages{}, err
	}
	return Messages{
		Greeting:   orDefault(loaded.Greeting, defaults.Greeting),
		Prompt:     orDefault(loaded.Prompt, defaults.Prompt),
		EmptyInput: orDefault(loaded.EmptyInput, defaults.EmptyInput),
		Exit:       orDefault(loaded.Exit, defaults.Exit),
	}, nil
}

// MessagesExplicit reports whether the messages file was configured rather
// than left at its default name.
func (c Config) MessagesExplicit() bool {
	return c.MessagesFile != DefaultMessagesFile
}

// LoadSystemMessage reads the persona text verbatim.
func LoadSystemMessage(path string) (string, error) {
	if path == "" {
		return "", &Error{Missing: []string{"system message file (systemMessageFile / MAGNUS_SYSTEM_MESSAGE_FILE)"}}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &Error{Source: path, Err: err}
	}
	return string(data), nil
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
