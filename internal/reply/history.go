package reply

import "github.com/voximind/voice-bridge/internal/llm"

// History is the running conversation transcript for one connection. It is
// threaded through the pipeline explicitly rather than shared process-wide,
// so multiple connections never see each other's conversations. Reply turns
// run one at a time, so no locking is needed.
type History struct {
	messages []llm.Message
	maxTurns int
}

// NewHistory creates a history bounded to maxTurns user/assistant exchanges
func NewHistory(maxTurns int) *History {
	return &History{maxTurns: maxTurns}
}

// Append records one completed exchange
func (h *History) Append(userText, assistantText string) {
	h.messages = append(h.messages,
		llm.Message{Role: "user", Content: userText},
		llm.Message{Role: "assistant", Content: assistantText},
	)
	if h.maxTurns > 0 && len(h.messages) > h.maxTurns*2 {
		h.messages = h.messages[len(h.messages)-h.maxTurns*2:]
	}
}

// Messages returns a copy of the history in order
func (h *History) Messages() []llm.Message {
	out := make([]llm.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of stored messages
func (h *History) Len() int {
	return len(h.messages)
}
