package chat

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gollm/gollm-chat/internal/stream"
)

// ErrSendInProgress rejects a send while a reply is still streaming in.
var ErrSendInProgress = errors.New("a reply is already streaming")

// Streamer opens a streaming chat request and hands back the live response
// body. *api.Client satisfies it.
type Streamer interface {
	StreamConversation(ctx context.Context, provider, model, sessionID string, msgs []Message) (io.ReadCloser, error)
}

// Conversation is the slice of the session store a send cycle needs.
type Conversation interface {
	PushUserTurn(text string)
	AppendDelta(delta string)
	ActiveID() string
	ActiveMessages() []Message
}

// Sender drives one send cycle at a time: push the user turn, stream the
// reply into the conversation's open assistant slot, release the sending
// state when the stream finishes for any reason.
type Sender struct {
	backend  Streamer
	conv     Conversation
	provider string
	model    string

	mu      sync.Mutex
	sending bool
	dec     *stream.Decoder
}

// NewSender composes a sender over an explicit store and transport; there
// is no ambient lookup.
func NewSender(backend Streamer, conv Conversation, provider, model string) *Sender {
	return &Sender{backend: backend, conv: conv, provider: provider, model: model}
}

// Send pushes text as a user turn on the active session and starts
// streaming the reply into it. onDelta, when non-nil, observes each delta
// after it has been merged (display hook). The returned channel closes when
// the stream has finished and the sending state is released.
func (s *Sender) Send(ctx context.Context, text string, onDelta func(delta string)) (<-chan struct{}, error) {
	s.mu.Lock()
	if s.sending {
		s.mu.Unlock()
		return nil, ErrSendInProgress
	}
	s.sending = true
	s.mu.Unlock()

	// History sent to the backend is everything up to and including the
	// new user turn; the empty assistant slot stays local.
	s.conv.PushUserTurn(text)
	msgs := s.conv.ActiveMessages()
	if n := len(msgs); n > 0 && msgs[n-1].Role == RoleAssistant && msgs[n-1].Content == "" {
		msgs = msgs[:n-1]
	}

	streamCtx, cancel := context.WithCancel(ctx)
	body, err := s.backend.StreamConversation(streamCtx, s.provider, s.model, s.conv.ActiveID(), msgs)
	if err != nil {
		cancel()
		s.mu.Lock()
		s.sending = false
		s.mu.Unlock()
		return nil, err
	}

	dec := stream.NewDecoder(cancel)
	s.mu.Lock()
	s.dec = dec
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		err := dec.Run(body,
			func(delta string) {
				s.conv.AppendDelta(delta)
				if onDelta != nil {
					onDelta(delta)
				}
			},
			func() {
				s.mu.Lock()
				s.sending = false
				s.dec = nil
				s.mu.Unlock()
			},
		)
		_ = body.Close()
		if err != nil {
			// The reply ends wherever it got to; already-merged
			// deltas stay in the session.
			log.Warn().Err(err).Str("session_id", s.conv.ActiveID()).Msg("reply stream ended early")
		}
	}()
	return done, nil
}

// Stop aborts the in-flight stream, if any. No delta is merged after Stop
// returns; the finish callback still releases the sending state.
func (s *Sender) Stop() {
	s.mu.Lock()
	dec := s.dec
	s.mu.Unlock()
	if dec != nil {
		dec.Stop()
	}
}

// Sending reports whether a reply is currently streaming.
func (s *Sender) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}
