// Package conversation holds the chat data model, the bounded transcript of
// past turns, and the assembler that builds each request sent to the model.
package conversation

// Assembler combines system message, transcript snapshot, and user text into a final message list.
type Assembler interface {
	Assemble(system Message, history []Message, userText string) ([]Message, error)
}
