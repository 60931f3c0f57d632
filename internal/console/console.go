// Package console reads user input one line at a time and renders replies.
package console

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

// maxLineBytes bounds a single piped input line.
const maxLineBytes = 1 << 20

// Reader is the input source of the chat loop. ReadLine returns io.EOF when
// input ends or the user aborts.
type Reader interface {
	ReadLine() (string, error)
	Close() error
}

// NewReader returns a line-editing reader when in is a terminal and a plain
// scanner otherwise.
func NewReader(in *os.File) Reader {
	if term.IsTerminal(int(in.Fd())) {
		return NewTerminalReader()
	}
	return NewScannerReader(in)
}

// ScannerReader reads newline-terminated lines from any io.Reader.
type ScannerReader struct {
	scanner *bufio.Scanner
}

func NewScannerReader(r io.Reader) *ScannerReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &ScannerReader{scanner: s}
}

func (r *ScannerReader) ReadLine() (string, error) {
	if r.scanner.Scan() {
		return r.scanner.Text(), nil
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (r *ScannerReader) Close() error {
	return nil
}

// TerminalReader provides line editing and in-session input history.
// Ctrl-C and Ctrl-D both end input.
type TerminalReader struct {
	line *liner.State
}

func NewTerminalReader() *TerminalReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return &TerminalReader{line: line}
}

// ReadLine reads one line. The prompt text is printed by the caller on its
// own line, so liner is given an empty prompt.
func (r *TerminalReader) ReadLine() (string, error) {
	text, err := r.line.Prompt("")
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", io.EOF
		}
		return "", err
	}
	if strings.TrimSpace(text) != "" {
		r.line.AppendHistory(text)
	}
	return text, nil
}

func (r *TerminalReader) Close() error {
	return r.line.Close()
}
