package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gollm/gollm-chat/internal/chat"
	"github.com/gollm/gollm-chat/internal/storage"
)

// Fixed record keys in the durable store.
const (
	sessionsKey = "sessions"
	activeKey   = "active_id"
)

// memoryClearTimeout bounds the fire-and-forget backend notification when a
// session is deleted.
const memoryClearTimeout = 10 * time.Second

// KV is the durable store the session collection writes through to.
// *storage.KV satisfies it; tests supply an in-memory fake.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// MemoryClearer releases server-held conversation memory for a session id.
// *api.Client satisfies it.
type MemoryClearer interface {
	ClearMemory(ctx context.Context, sessionID string) error
}

// Store owns the set of conversation threads and the active-thread pointer.
// All mutation goes through its methods, serialized by one mutex, and every
// committed mutation is written through to the durable store before the
// method returns. There is no package-level instance; callers receive a
// Store by explicit composition.
type Store struct {
	mu       sync.Mutex
	sessions []*Session
	activeID string

	kv  KV
	mem MemoryClearer
}

// New loads the last committed collection from kv, or starts empty when no
// state exists or the persisted state cannot be decoded. A corrupt record is
// never fatal. mem may be nil when no backend notification is wanted.
func New(ctx context.Context, kv KV, mem MemoryClearer) *Store {
	s := &Store{kv: kv, mem: mem}
	s.load(ctx)
	return s
}

func (s *Store) load(ctx context.Context) {
	if s.kv == nil {
		return
	}
	raw, err := s.kv.Get(ctx, sessionsKey)
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		// First run.
	case err != nil:
		log.Warn().Err(err).Msg("could not read persisted sessions, starting empty")
	default:
		var sessions []*Session
		if err := json.Unmarshal(raw, &sessions); err != nil {
			log.Warn().Err(err).Msg("persisted sessions are corrupt, starting empty")
		} else {
			s.sessions = sessions
		}
	}

	active, err := s.kv.Get(ctx, activeKey)
	if err == nil {
		s.activeID = string(active)
	}
	// The active id must reference a member; anything else falls back to
	// the first session.
	if s.indexOf(s.activeID) < 0 {
		s.activeID = ""
		if len(s.sessions) > 0 {
			s.activeID = s.sessions[0].ID
		}
	}
}

// persistLocked writes the collection and active id through to the durable
// store. Callers hold s.mu. Write failures are logged, not propagated: the
// in-memory state stays authoritative for this process.
func (s *Store) persistLocked() {
	if s.kv == nil {
		return
	}
	ctx := context.Background()
	raw, err := json.Marshal(s.sessions)
	if err != nil {
		log.Error().Err(err).Msg("could not serialize sessions")
		return
	}
	if err := s.kv.Put(ctx, sessionsKey, raw); err != nil {
		log.Error().Err(err).Msg("could not persist sessions")
	}
	if err := s.kv.Put(ctx, activeKey, []byte(s.activeID)); err != nil {
		log.Error().Err(err).Msg("could not persist active session id")
	}
}

func (s *Store) indexOf(id string) int {
	for i, sess := range s.sessions {
		if sess.ID == id {
			return i
		}
	}
	return -1
}

// newSessionLocked appends a fresh empty session and makes it active.
func (s *Store) newSessionLocked() *Session {
	sess := &Session{
		ID:       uuid.NewString(),
		Title:    DefaultTitle,
		Messages: []chat.Message{},
	}
	s.sessions = append(s.sessions, sess)
	s.activeID = sess.ID
	return sess
}

// CreateSession allocates a new thread, makes it active, and returns its id.
func (s *Store) CreateSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.newSessionLocked()
	s.persistLocked()
	log.Debug().Str("session_id", sess.ID).Msg("session created")
	return sess.ID
}

// DeleteSession removes the thread. When the active thread is deleted, the
// first remaining one becomes active, or a fresh session is created and
// activated when none remain; both happen atomically with the removal. The
// backend is asked to discard its memory for the id, fire-and-forget.
func (s *Store) DeleteSession(id string) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	if s.activeID == id {
		if len(s.sessions) > 0 {
			s.activeID = s.sessions[0].ID
		} else {
			s.newSessionLocked()
		}
	}
	s.persistLocked()
	s.mu.Unlock()

	s.clearRemoteMemory(id)
}

// clearRemoteMemory notifies the backend in the background; local deletion
// never waits on it.
func (s *Store) clearRemoteMemory(id string) {
	if s.mem == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), memoryClearTimeout)
		defer cancel()
		if err := s.mem.ClearMemory(ctx, id); err != nil {
			log.Warn().Err(err).Str("session_id", id).Msg("backend memory clear failed")
		}
	}()
}

// PushUserTurn appends a user message to the active session followed by the
// empty assistant slot the streamed reply will fill. The first user turn
// also names the session. Creates a session when none is active yet.
func (s *Store) PushUserTurn(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.activeLocked()
	if sess == nil {
		sess = s.newSessionLocked()
	}
	if sess.Title == DefaultTitle {
		sess.Title = deriveTitle(text)
	}
	sess.Messages = append(sess.Messages,
		chat.Message{Role: chat.RoleUser, Content: text},
		chat.Message{Role: chat.RoleAssistant, Content: ""},
	)
	s.persistLocked()
}

// AppendDelta folds one streamed fragment into the open assistant slot of
// the active session. Other messages are never touched. A delta arriving
// with no open slot is dropped.
func (s *Store) AppendDelta(delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.activeLocked()
	if sess == nil || len(sess.Messages) == 0 {
		return
	}
	last := &sess.Messages[len(sess.Messages)-1]
	if last.Role != chat.RoleAssistant {
		return
	}
	last.Content = mergeDelta(last.Content, delta)
	s.persistLocked()
}

// ClearActive discards the backend's memory for the active session, then
// empties its message list in place. Id and title are preserved. The local
// clear only happens once the backend acknowledged, mirroring the ordering
// the backend's memory semantics require.
func (s *Store) ClearActive(ctx context.Context) error {
	s.mu.Lock()
	sess := s.activeLocked()
	if sess == nil {
		s.mu.Unlock()
		return nil
	}
	id := sess.ID
	s.mu.Unlock()

	if s.mem != nil {
		if err := s.mem.ClearMemory(ctx, id); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// The session may have been deleted while the request was in flight.
	if sess := s.activeLocked(); sess != nil && sess.ID == id {
		sess.Messages = sess.Messages[:0]
		s.persistLocked()
	}
	return nil
}

// SetActive switches the active pointer. Unknown ids are a no-op.
func (s *Store) SetActive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(id) < 0 {
		return
	}
	s.activeID = id
	s.persistLocked()
}

func (s *Store) activeLocked() *Session {
	if idx := s.indexOf(s.activeID); idx >= 0 {
		return s.sessions[idx]
	}
	return nil
}

// ActiveID returns the active session id, or "" when the collection is
// empty.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Active returns a copy of the active session.
func (s *Store) Active() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.activeLocked()
	if sess == nil {
		return Session{}, false
	}
	return sess.clone(), true
}

// ActiveMessages returns a copy of the active session's message history.
func (s *Store) ActiveMessages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.activeLocked()
	if sess == nil {
		return nil
	}
	msgs := make([]chat.Message, len(sess.Messages))
	copy(msgs, sess.Messages)
	return msgs
}

// Sessions returns copies of all threads in creation order.
func (s *Store) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.clone())
	}
	return out
}

// Len reports the number of threads.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
