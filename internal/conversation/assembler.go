package conversation

// StandardAssembler combines system message, history, and user message
// into a single ordered message list.
type StandardAssembler struct{}

// Assemble builds the final message list: system + history + user.
// The result never aliases history, so later transcript mutation cannot
// change a request that was already built.
func (a *StandardAssembler) Assemble(system Message, history []Message, userText string) ([]Message, error) {
	user, err := UserMessage(userText)
	if err != nil {
		return nil, err
	}
	messages := make([]Message, 0, 1+len(history)+1)
	messages = append(messages, system)
	messages = append(messages, history...)
	messages = append(messages, user)
	return messages, nil
}
