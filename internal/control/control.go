package control

import (
	"fmt"
	"strings"
)

// State is a phase of the interaction loop.
type State string

const (
	StateAwaitingInput  State = "awaiting_input"
	StateEmptyInput     State = "empty_input"
	StateProcessingTurn State = "processing_turn"
	StateTerminated     State = "terminated"
)

// InputKind classifies one line of user input.
type InputKind int

const (
	InputEmpty InputKind = iota
	InputExit
	InputContent
)

func (k InputKind) String() string {
	switch k {
	case InputEmpty:
		return "empty"
	case InputExit:
		return "exit"
	case InputContent:
		return "content"
	default:
		return fmt.Sprintf("InputKind(%d)", int(k))
	}
}

// exitCommands end the session. Matching is exact and case-sensitive.
var exitCommands = map[string]bool{
	"exit": true,
	"quit": true,
}

// Classify trims surrounding whitespace from line and reports what it is.
// The trimmed text is returned for content lines.
func Classify(line string) (InputKind, string) {
	text := strings.TrimSpace(line)
	switch {
	case text == "":
		return InputEmpty, ""
	case exitCommands[text]:
		return InputExit, text
	default:
		return InputContent, text
	}
}

// Next returns the state entered from StateAwaitingInput for an input kind.
func Next(kind InputKind) State {
	switch kind {
	case InputEmpty:
		return StateEmptyInput
	case InputExit:
		return StateTerminated
	default:
		return StateProcessingTurn
	}
}

// TransitionError reports a state change the loop must never make.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition from=%s to=%s", e.From, e.To)
}

var allowed = map[State]map[State]bool{
	StateAwaitingInput: {
		StateEmptyInput:     true,
		StateProcessingTurn: true,
		StateTerminated:     true,
	},
	StateEmptyInput:     {StateAwaitingInput: true},
	StateProcessingTurn: {StateAwaitingInput: true, StateTerminated: true},
}

// Machine tracks the current state and rejects illegal transitions.
type Machine struct {
	state State
}

// NewMachine starts in StateAwaitingInput.
func NewMachine() *Machine {
	return &Machine{state: StateAwaitingInput}
}

func (m *Machine) State() State {
	return m.state
}

// To moves the machine to next.
func (m *Machine) To(next State) error {
	if !allowed[m.state][next] {
		return &TransitionError{From: m.state, To: next}
	}
	m.state = next
	return nil
}

// Done reports whether the machine reached its final state.
func (m *Machine) Done() bool {
	return m.state == StateTerminated
}
