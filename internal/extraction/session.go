package extraction

import (
	"sync"

	"github.com/sashabaranov/go-openai"

	"certpipe/internal/constants"
)

// SessionStore keeps per-session conversation history for the model.
// The system prompt stays pinned at position zero; the rest of the
// history is trimmed to the cap from the oldest end.
type SessionStore struct {
	mu       sync.Mutex
	cap      int
	sessions map[string][]openai.ChatCompletionMessage
}

func NewSessionStore(cap int) *SessionStore {
	if cap <= 0 {
		cap = constants.DefaultSessionCap
	}
	return &SessionStore{
		cap:      cap,
		sessions: make(map[string][]openai.ChatCompletionMessage),
	}
}

// Messages returns the history for a session, initializing it with the
// system prompt on first use, with the user message appended.
func (s *SessionStore) Messages(sessionID, systemPrompt, userMessage string) []openai.ChatCompletionMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.sessions[sessionID]
	if !ok && systemPrompt != "" {
		history = []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		}}
	}

	history = append(history, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMessage,
	})
	history = s.trim(history)
	s.sessions[sessionID] = history

	out := make([]openai.ChatCompletionMessage, len(history))
	copy(out, history)
	return out
}

// Record appends the assistant reply to the session history.
func (s *SessionStore) Record(sessionID, assistantMessage string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.sessions[sessionID], openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: assistantMessage,
	})
	s.sessions[sessionID] = s.trim(history)
}

// Clear removes one session, or all sessions when id is empty.
func (s *SessionStore) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID == "" {
		s.sessions = make(map[string][]openai.ChatCompletionMessage)
		return
	}
	delete(s.sessions, sessionID)
}

func (s *SessionStore) Len(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions[sessionID])
}

func (s *SessionStore) trim(history []openai.ChatCompletionMessage) []openai.ChatCompletionMessage {
	if len(history) <= s.cap {
		return history
	}

	if history[0].Role == openai.ChatMessageRoleSystem {
		trimmed := make([]openai.ChatCompletionMessage, 0, s.cap)
		trimmed = append(trimmed, history[0])
		trimmed = append(trimmed, history[len(history)-(s.cap-1):]...)
		return trimmed
	}
	return history[len(history)-s.cap:]
}
