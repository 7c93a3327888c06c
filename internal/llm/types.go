package llm

import "context"

// Message is one prior exchange entry in a conversation
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Generator produces a reply to a user utterance given the running
// conversation history.
type Generator interface {
	Reply(ctx context.Context, history []Message, userText string) (string, error)
}
