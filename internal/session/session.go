// Package session runs the interactive chat loop: read a line, classify it,
// and on content drive the transcript, assembler and completion gateway.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stupiduntilnot/magnus/internal/config"
	"github.com/stupiduntilnot/magnus/internal/console"
	"github.com/stupiduntilnot/magnus/internal/control"
	"github.com/stupiduntilnot/magnus/internal/conversation"
	"github.com/stupiduntilnot/magnus/internal/db"
	modelpkg "github.com/stupiduntilnot/magnus/internal/model"
)

// Journal records turn metadata. Implementations must not store message text.
type Journal interface {
	Log(parentID *int64, eventType string, payload map[string]any) (int64, error)
}

type noopJournal struct{}

func (noopJournal) Log(*int64, string, map[string]any) (int64, error) { return 0, nil }

// Options wires a Session.
type Options struct {
	Reader        console.Reader
	Out           io.Writer
	Renderer      console.Renderer
	Messages      config.Messages
	SystemMessage conversation.Message
	Capacity      int
	Assembler     conversation.Assembler
	Provider      modelpkg.Provider
	ProviderName  string
	Model         string
	Params        modelpkg.SamplingParameters
	Journal       Journal
}

// Session owns the transcript for the lifetime of one chat.
type Session struct {
	id         string
	reader     console.Reader
	out        io.Writer
	renderer   console.Renderer
	messages   config.Messages
	system     conversation.Message
	transcript *conversation.Transcript
	assembler  conversation.Assembler
	provider   modelpkg.Provider
	provName   string
	model      string
	params     modelpkg.SamplingParameters
	journal    Journal
	machine    *control.Machine

	rootID *int64
	turns  int
}

func New(opts Options) (*Session, error) {
	if opts.Reader == nil {
		return nil, errors.New("session: reader is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("session: provider is required")
	}
	if opts.Capacity <= 0 {
		return nil, fmt.Errorf("session: history capacity must be positive, got %d", opts.Capacity)
	}
	if opts.SystemMessage.Role != conversation.RoleSystem {
		return nil, fmt.Errorf("session: system message has role %q", opts.SystemMessage.Role)
	}

	s := &Session{
		id:         uuid.NewString(),
		reader:     opts.Reader,
		out:        opts.Out,
		renderer:   opts.Renderer,
		messages:   opts.Messages,
		system:     opts.SystemMessage,
		transcript: conversation.NewTranscript(opts.Capacity),
		assembler:  opts.Assembler,
		provider:   opts.Provider,
		provName:   opts.ProviderName,
		model:      opts.Model,
		params:     opts.Params,
		journal:    opts.Journal,
		machine:    control.NewMachine(),
	}
	if s.out == nil {
		s.out = os.Stdout
	}
	if s.renderer == nil {
		s.renderer = console.PlainRenderer{}
	}
	if s.assembler == nil {
		s.assembler = &conversation.StandardAssembler{}
	}
	if s.journal == nil {
		s.journal = noopJournal{}
	}
	return s, nil
}

// ID is the random identifier recorded on the journal root event.
func (s *Session) ID() string {
	return s.id
}

// State reports the loop state.
func (s *Session) State() control.State {
	return s.machine.State()
}

// Transcript returns a copy of the retained history.
func (s *Session) Transcript() []conversation.Message {
	return s.transcript.Snapshot()
}

// Run prints the greeting and processes input until exit, end of input,
// cancellation of ctx, or a gateway failure. Cancellation ends the session
// between turns and never aborts a request in flight. A failed turn's error
// is returned unwrapped and the transcript is left as it was.
func (s *Session) Run(ctx context.Context) (err error) {
	s.start()
	reason := "exit"
	defer func() {
		if err != nil {
			reason = "error"
		}
		s.logEvent(s.rootID, db.EventProcessExited, map[string]any{
			"turns":  s.turns,
			"reason": reason,
		})
	}()

	s.println(s.messages.Greeting)
	for {
		if ctx.Err() != nil {
			reason = "interrupted"
			return s.terminate()
		}

		s.println(s.messages.Prompt)
		line, readErr := s.readLine(ctx)
		if ctx.Err() != nil {
			reason = "interrupted"
			return s.terminate()
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				reason = "eof"
				return s.terminate()
			}
			return fmt.Errorf("read input: %w", readErr)
		}

		kind, text := control.Classify(line)
		if err := s.machine.To(control.Next(kind)); err != nil {
			return err
		}

		switch kind {
		case control.InputEmpty:
			s.println(s.messages.EmptyInput)
			if err := s.machine.To(control.StateAwaitingInput); err != nil {
				return err
			}
		case control.InputExit:
			s.println(s.messages.Exit)
			return nil
		default:
			if err := s.processTurn(ctx, text); err != nil {
				if tErr := s.machine.To(control.StateTerminated); tErr != nil {
					log.Printf("[magnus] %v", tErr)
				}
				return err
			}
			if err := s.machine.To(control.StateAwaitingInput); err != nil {
				return err
			}
		}
	}
}

func (s *Session) start() {
	id, err := s.journal.Log(nil, db.EventProcessStarted, map[string]any{
		"session_id":       s.id,
		"pid":              os.Getpid(),
		"provider":         s.provName,
		"deployment":       s.model,
		"history_capacity": s.transcript.Capacity(),
	})
	if err != nil {
		log.Printf("[magnus] failed to log process.started: %v", err)
		return
	}
	s.rootID = &id
}

// readLine waits for the next input line or for ctx to end, whichever comes
// first.
func (s *Session) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := s.reader.ReadLine()
		ch <- result{line: line, err: err}
	}()
	select {
	case r := <-ch:
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// terminate handles end of input the same way as an exit command.
func (s *Session) terminate() error {
	if err := s.machine.To(control.StateTerminated); err != nil {
		return err
	}
	s.println(s.messages.Exit)
	return nil
}

func (s *Session) processTurn(ctx context.Context, text string) error {
	s.turns++
	turnID := s.logEvent(s.rootID, db.EventTurnStarted, map[string]any{
		"turn":       s.turns,
		"model_name": s.model,
	})

	// The request leaves out the pair to evict; the store drops it only after
	// a successful reply.
	history, evicted := s.transcript.Window()
	messages, err := s.assembler.Assemble(s.system, history, text)
	if err != nil {
		return err
	}
	s.logEvent(turnID, db.EventContextAssembled, map[string]any{
		"transcript_count": len(history),
		"evicted_count":    evicted,
		"request_count":    len(messages),
		"system_tokens":    estimateTokens(s.system.Content),
		"history_tokens":   estimateTokensFromMessages(history),
		"user_tokens":      estimateTokens(text),
	})

	start := time.Now()
	// An issued request always runs to completion or failure.
	resp, err := s.provider.ChatCompletion(context.WithoutCancel(ctx), modelpkg.Request{
		Model:    s.model,
		Messages: messages,
		Params:   s.params,
	})
	latencyMs := time.Since(start).Milliseconds()
	if err != nil {
		s.logEvent(turnID, db.EventTurnFailed, map[string]any{
			"latency_ms":  latencyMs,
			"error_class": errorClass(err),
			"error":       truncate(err.Error(), 200),
		})
		log.Printf("[magnus] turn=%d failed latency_ms=%d: %v", s.turns, latencyMs, err)
		return err
	}

	if n := s.transcript.EnforceCapacity(); n > 0 {
		s.logEvent(turnID, db.EventTranscriptEvicted, map[string]any{
			"evicted_count":  n,
			"transcript_len": s.transcript.Len(),
			"capacity":       s.transcript.Capacity(),
		})
		log.Printf("[magnus] turn=%d evicted=%d capacity=%d", s.turns, n, s.transcript.Capacity())
	}
	user := messages[len(messages)-1]
	if err := s.transcript.AppendTurn(user, conversation.AssistantMessage(resp.Content)); err != nil {
		return err
	}
	s.logEvent(turnID, db.EventTurnCompleted, map[string]any{
		"latency_ms":     latencyMs,
		"input_tokens":   resp.InputTokens,
		"output_tokens":  resp.OutputTokens,
		"reply_chars":    len([]rune(resp.Content)),
		"transcript_len": s.transcript.Len(),
	})
	log.Printf("[magnus] turn=%d completed latency_ms=%d transcript_len=%d", s.turns, latencyMs, s.transcript.Len())

	s.println(s.renderer.Render(strings.TrimSpace(resp.Content)))
	s.println("")
	return nil
}

// logEvent writes to the journal and returns the new event id, or parent if
// the write failed. Journal failures never affect the turn.
func (s *Session) logEvent(parent *int64, eventType string, payload map[string]any) *int64 {
	id, err := s.journal.Log(parent, eventType, payload)
	if err != nil {
		log.Printf("[magnus] failed to log %s: %v", eventType, err)
		return parent
	}
	return &id
}

func (s *Session) println(text string) {
	fmt.Fprintln(s.out, text)
}

func errorClass(err error) string {
	var gwErr *modelpkg.GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Class()
	}
	return "internal"
}

func estimateTokens(text string) int {
	chars := len([]rune(text))
	if chars <= 0 {
		return 0
	}
	return (chars + 3) / 4
}

func estimateTokensFromMessages(messages []conversation.Message) int {
	totalChars := 0
	for _, msg := range messages {
		totalChars += len([]rune(msg.Content))
	}
	if totalChars <= 0 {
		return 0
	}
	return (totalChars + 3) / 4
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars]) + "..."
}
