package config

import (
	"fmt"
	"strings"
)

// Error is returned for every startup configuration failure: a missing or
// unreadable file, an unparseable value, or absent required fields.
type Error struct {
	// Source names the file path or environment key at fault, if any.
	Source  string
	Missing []string
	Err     error
}

func (e *Error) Error() string {
	var parts []string
	if e.Source != "" {
		parts = append(parts, e.Source)
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required "+strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if len(parts) == 0 {
		return "invalid configuration"
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

func sourceErr(source string, format string, args ...any) *Error {
	return &Error{Source: source, Err: fmt.Errorf(format, args...)}
}
