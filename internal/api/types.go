package api

import (
	"time"

	"github.com/gollm/gollm-chat/internal/chat"
	"github.com/gollm/gollm-chat/internal/compare"
)

// ChatRequest is the body of POST /chat. SessionID scopes server-held
// conversation memory; Stream selects the event-stream response.
type ChatRequest struct {
	Provider  string            `json:"provider"`
	Model     string            `json:"model"`
	Messages  []chat.Message    `json:"messages"`
	SessionID string            `json:"session_id,omitempty"`
	Stream    bool              `json:"stream,omitempty"`
	Tpl       string            `json:"tpl,omitempty"`
	Vars      map[string]string `json:"vars,omitempty"`
	System    string            `json:"system,omitempty"`
}

// Usage reports token accounting for a completion. The backend serializes
// the fields without tags, so the wire names are the Go field names.
type Usage struct {
	PromptTokens     int `json:"PromptTokens"`
	CompletionTokens int `json:"CompletionTokens"`
}

// ChatResponse is the non-streaming completion envelope.
type ChatResponse struct {
	Text   string `json:"text,omitempty"`
	Usage  Usage  `json:"usage"`
	ErrMsg string `json:"error,omitempty"`
}

// Template is a prompt template record as stored by the backend.
type Template struct {
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	Prompt    string    `json:"prompt"`
	System    string    `json:"system,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// variantRequest is the body of POST /optimizer/run: resolve the variant's
// template with vars, execute it under the variant's provider/model, and
// score the answer server-side.
type variantRequest struct {
	Variant compare.Variant   `json:"variant"`
	Vars    map[string]string `json:"vars"`
}
