package config

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestLoadMessages_DefaultWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	msgs, err := LoadMessages(filepath.Join(dir, DefaultMessagesFile), false)
	if err != nil {
		t.Fatal(err)
	}
	if msgs != DefaultMessages() {
		t.Fatalf("expected defaults, got %+v", msgs)
	}
}

func TestLoadMessages_ExplicitMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadMessages(filepath.Join(dir, "custom.json"), true)
	var cfgErr *Error
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
}

func TestLoadMessages_PartialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Messages.json")
	writeFile(t, path, `{
		// only two overridden
		"greeting": "Hello",
		"exit": "Goodbye",
		"prompt": "   ",
	}`)

	msgs, err := LoadMessages(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defaults := DefaultMessages()
	if msgs.Greeting != "Hello" || msgs.Exit != "Goodbye" {
		t.Fatalf("overrides not applied: %+v", msgs)
	}
	if msgs.Prompt != defaults.Prompt || msgs.EmptyInput != defaults.EmptyInput {
		t.Fatalf("blank fields should fall back: %+v", msgs)
	}
}

func TestMessagesExplicit(t *testing.T) {
	cfg := Default()
	if cfg.MessagesExplicit() {
		t.Fatal("default messages file should not be explicit")
	}
	cfg.MessagesFile = "other.json"
	if !cfg.MessagesExplicit() {
		t.Fatal("custom messages file should be explicit")
	}
}

func TestLoadSystemMessage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "SystemMessage.txt")
	writeFile(t, path, "You are Magnus Liber.\nAnswer about emperors.\n")

	text, err := LoadSystemMessage(path)
	if err != nil {
		t.Fatal(err)
	}
	if text != "You are Magnus Liber.\nAnswer about emperors.\n" {
		t.Fatalf("system message must be verbatim, got %q", text)
	}

	var cfgErr *Error
	if _, err := LoadSystemMessage(filepath.Join(dir, "missing.txt")); !errors.As(err, &cfgErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if _, err := LoadSystemMessage(""); !errors.As(err, &cfgErr) {
		t.Fatalf("expected *Error for empty path, got %v", err)
	}
}
