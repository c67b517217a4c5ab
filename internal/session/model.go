package session

import (
	"github.com/gollm/gollm-chat/internal/chat"
)

// DefaultTitle is the placeholder a session carries until its first user
// turn names it.
const DefaultTitle = "New Chat"

// titleRuneLimit bounds the auto-derived title length.
const titleRuneLimit = 20

// Session is one conversation thread. The id is stable for the thread's
// lifetime; messages stay in chronological order. Only the last message may
// be mutated in place, and only while a reply is streaming into it.
type Session struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Messages []chat.Message `json:"messages"`
}

// clone returns a deep copy so callers can't reach into store-owned state.
func (s *Session) clone() Session {
	out := Session{ID: s.ID, Title: s.Title}
	if s.Messages != nil {
		out.Messages = make([]chat.Message, len(s.Messages))
		copy(out.Messages, s.Messages)
	}
	return out
}

// deriveTitle truncates the first user text to the title limit, counted in
// runes so multi-byte text isn't split.
func deriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) > titleRuneLimit {
		runes = runes[:titleRuneLimit]
	}
	return string(runes)
}
