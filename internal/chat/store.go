package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mushfiqur/botadmin/internal/bus"
)

// Event kinds published on the bus when session state changes.
const (
	EventUpdated       = "chat.updated"
	EventSessionOpened = "chat.session_opened"
	EventSessionClosed = "chat.session_closed"
	EventNotice        = "chat.notice"
)

var validTransitions = map[State][]State{
	StateIdle:    {StateLoading},
	StateLoading: {StateSynced, StateIdle},
	StateSynced:  {StateLoading},
}

func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type session struct {
	user      User
	instance  string
	messages  []Message
	draft     string
	minimized bool
	state     State
	prevState State
	notice    string
	pending   int
}

// Session is an immutable snapshot of one open chat session, safe to read
// without holding the store lock.
type Session struct {
	User      User
	Instance  string
	Messages  []Message
	Draft     string
	Minimized bool
	State     State
	Notice    string
}

// Store holds all open chat sessions keyed by user ID, preserving open
// order. Every open session gets a fresh instance token; mutations that
// race a close or reopen carry the token and are dropped when it no longer
// matches, so stale fetch results can never land in a new session.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	order    []string
	bus      *bus.Bus
}

func NewStore(b *bus.Bus) *Store {
	return &Store{
		sessions: make(map[string]*session),
		bus:      b,
	}
}

// Open creates a session for the user and returns its instance token.
// Opening an already-open session discards the old one entirely, including
// its draft and any in-flight work keyed to the old token.
func (s *Store) Open(user User) string {
	s.mu.Lock()
	if _, ok := s.sessions[user.ID]; ok {
		s.removeLocked(user.ID)
	}
	sess := &session{
		user:     user,
		instance: uuid.NewString(),
		state:    StateIdle,
	}
	s.sessions[user.ID] = sess
	s.order = append(s.order, user.ID)
	instance := sess.instance
	s.mu.Unlock()

	s.publish(EventSessionOpened, user.ID)
	return instance
}

// Close removes the session. In-flight fetches for it become no-ops.
func (s *Store) Close(userID string) {
	s.mu.Lock()
	_, ok := s.sessions[userID]
	if ok {
		s.removeLocked(userID)
	}
	s.mu.Unlock()

	if ok {
		s.publish(EventSessionClosed, userID)
	}
}

func (s *Store) removeLocked(userID string) {
	delete(s.sessions, userID)
	for i, id := range s.order {
		if id == userID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Has reports whether a session is open for the user.
func (s *Store) Has(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[userID]
	return ok
}

// Instance returns the current instance token for an open session.
func (s *Store) Instance(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return "", false
	}
	return sess.instance, true
}

// ToggleMinimize flips the minimized flag. Message and draft state are
// untouched; a minimized session keeps syncing.
func (s *Store) ToggleMinimize(userID string) {
	s.mu.Lock()
	if sess, ok := s.sessions[userID]; ok {
		sess.minimized = !sess.minimized
	}
	s.mu.Unlock()
	s.publish(EventUpdated, userID)
}

// SetDraft stores the composer text for the session.
func (s *Store) SetDraft(userID, text string) {
	s.mu.Lock()
	if sess, ok := s.sessions[userID]; ok {
		sess.draft = text
	}
	s.mu.Unlock()
}

// Draft returns the composer text for the session.
func (s *Store) Draft(userID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[userID]; ok {
		return sess.draft
	}
	return ""
}

// BeginLoad marks the session as loading if the instance token still
// matches and the transition is valid.
func (s *Store) BeginLoad(userID, instance string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok || sess.instance != instance {
		return false
	}
	if !canTransition(sess.state, StateLoading) {
		return false
	}
	sess.prevState = sess.state
	sess.state = StateLoading
	return true
}

// AbortLoad reverts a loading session to the state it was in before
// BeginLoad, leaving messages, drafts, and the pending tail untouched.
// Used when a fetch fails so the operator keeps whatever was on screen.
func (s *Store) AbortLoad(userID, instance string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if !ok || sess.instance != instance || sess.state != StateLoading {
		s.mu.Unlock()
		return false
	}
	sess.state = sess.prevState
	s.mu.Unlock()

	s.publish(EventUpdated, userID)
	return true
}

// ReplaceHistory swaps the session's entire message list for the confirmed
// server log. Any pending tail is discarded along with the rest. Returns
// false without touching anything when the session is gone or was reopened
// since the fetch began.
func (s *Store) ReplaceHistory(userID, instance string, msgs []Message) bool {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if !ok || sess.instance != instance {
		s.mu.Unlock()
		return false
	}
	sess.messages = make([]Message, len(msgs))
	copy(sess.messages, msgs)
	sess.pending = 0
	sess.state = StateSynced
	s.mu.Unlock()

	s.publish(EventUpdated, userID)
	return true
}

// AppendPending appends an optimistic operator text message and returns
// the instance token plus the new pending count, so the caller can roll
// back exactly what it inserted if the send fails.
func (s *Store) AppendPending(userID, text string) (instance string, pending int, ok bool) {
	now := time.Now()
	s.mu.Lock()
	sess, present := s.sessions[userID]
	if !present {
		s.mu.Unlock()
		return "", 0, false
	}
	sess.messages = append(sess.messages, Message{
		Sender:    SenderOperator,
		Kind:      KindText,
		Text:      text,
		Timestamp: &now,
		Pending:   true,
	})
	sess.pending++
	instance, pending = sess.instance, sess.pending
	s.mu.Unlock()

	s.publish(EventUpdated, userID)
	return instance, pending, true
}

// RollbackPending removes up to n pending messages from the session tail
// and returns how many were removed. A refetch that landed in between has
// already cleared the pending tail, in which case nothing is removed.
func (s *Store) RollbackPending(userID, instance string, n int) int {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if !ok || sess.instance != instance {
		s.mu.Unlock()
		return 0
	}
	removed := 0
	for removed < n && len(sess.messages) > 0 {
		last := sess.messages[len(sess.messages)-1]
		if !last.Pending {
			break
		}
		sess.messages = sess.messages[:len(sess.messages)-1]
		removed++
	}
	sess.pending -= removed
	s.mu.Unlock()

	if removed > 0 {
		s.publish(EventUpdated, userID)
	}
	return removed
}

// SetNotice attaches a transient error banner to the session.
func (s *Store) SetNotice(userID, text string) {
	s.mu.Lock()
	if sess, ok := s.sessions[userID]; ok {
		sess.notice = text
	}
	s.mu.Unlock()
	s.publish(EventNotice, userID)
}

// ClearNotice removes the session's error banner.
func (s *Store) ClearNotice(userID string) {
	s.SetNotice(userID, "")
}

// Snapshot returns a copy of the session for rendering.
func (s *Store) Snapshot(userID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return snapshotLocked(sess), true
}

// Sessions returns snapshots of all open sessions in open order.
func (s *Store) Sessions() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, snapshotLocked(s.sessions[id]))
	}
	return out
}

// OpenIDs returns the user IDs of all open sessions in open order.
func (s *Store) OpenIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func snapshotLocked(sess *session) Session {
	msgs := make([]Message, len(sess.messages))
	copy(msgs, sess.messages)
	return Session{
		User:      sess.user,
		Instance:  sess.instance,
		Messages:  msgs,
		Draft:     sess.draft,
		Minimized: sess.minimized,
		State:     sess.state,
		Notice:    sess.notice,
	}
}

func (s *Store) publish(kind, userID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: userID})
}
