package conversation

import "fmt"

// Transcript keeps completed (user, assistant) pairs, oldest first, bounded
// by a message-count capacity. It is owned by a single goroutine and does no
// locking.
//
// Eviction is decided on the pre-turn length: EnforceCapacity runs before a
// request is assembled and AppendTurn only after the reply arrives. With an
// even capacity the length therefore never exceeds it; with an odd capacity
// it may hold one pair beyond until the next turn's eviction.
type Transcript struct {
	capacity int
	messages []Message
}

// NewTranscript returns an empty transcript holding at most capacity messages
// at the start of each turn.
func NewTranscript(capacity int) *Transcript {
	return &Transcript{capacity: capacity}
}

// Capacity returns the configured maximum message count.
func (t *Transcript) Capacity() int {
	return t.capacity
}

// Len returns the number of stored messages. It is always even.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// AppendTurn appends a completed turn. Both messages are added together or
// not at all.
func (t *Transcript) AppendTurn(user, assistant Message) error {
	if user.Role != RoleUser {
		return fmt.Errorf("append turn: first message has role %q, want %q", user.Role, RoleUser)
	}
	if assistant.Role != RoleAssistant {
		return fmt.Errorf("append turn: second message has role %q, want %q", assistant.Role, RoleAssistant)
	}
	t.messages = append(t.messages, user, assistant)
	return nil
}

// Window returns the history the next turn is built from: a copy of the
// stored messages with the oldest pair left out when the transcript has
// reached its capacity. The store itself is not changed; EnforceCapacity
// applies the same eviction. The second result is the number of messages
// left out.
func (t *Transcript) Window() ([]Message, int) {
	drop := t.evictable()
	out := make([]Message, len(t.messages)-drop)
	copy(out, t.messages[drop:])
	return out, drop
}

func (t *Transcript) evictable() int {
	if len(t.messages) < 2 || len(t.messages) < t.capacity {
		return 0
	}
	return 2
}

// EnforceCapacity drops the oldest pair when the transcript has reached its
// capacity. It removes at most one pair per call and returns the number of
// messages removed.
func (t *Transcript) EnforceCapacity() int {
	if t.evictable() == 0 {
		return 0
	}
	// Shift in place; the backing array stays bounded.
	n := copy(t.messages, t.messages[2:])
	clear(t.messages[n:])
	t.messages = t.messages[:n]
	return 2
}

// Snapshot returns a copy of the stored messages in order.
func (t *Transcript) Snapshot() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}
