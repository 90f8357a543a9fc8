// Package memory holds per-session conversation logs.
//
// The Store is an explicit, injected component with a bounded lifetime: it
// is created at process start, capped at a maximum session count with LRU
// eviction, and owns nothing beyond in-process state. Conversations are
// append-only ordered logs of {role, content} turns.
package memory

import (
	"container/list"
	"log/slog"
	"sync"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    string
	Content string
}

// Conversation is one session's ordered, append-only message log.
// Individual methods are safe for concurrent use; callers that need a whole
// request serialized against other requests on the same session use
// Store.Lock.
type Conversation struct {
	id string

	mu       sync.Mutex
	messages []Message
	indexed  int // messages[:indexed] have been absorbed into the history index
}

// ID returns the session identifier this conversation belongs to.
func (c *Conversation) ID() string { return c.id }

// Append adds a turn to the end of the log.
func (c *Conversation) Append(role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, Message{Role: role, Content: content})
}

// Messages returns a copy of the full log in insertion order.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// Unindexed returns the contents of turns not yet absorbed into the history
// index, in insertion order.
func (c *Conversation) Unindexed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.messages)-c.indexed)
	for _, m := range c.messages[c.indexed:] {
		out = append(out, m.Content)
	}
	return out
}

// MarkIndexed advances the absorption cursor by n turns.
func (c *Conversation) MarkIndexed(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexed += n
	if c.indexed > len(c.messages) {
		c.indexed = len(c.messages)
	}
}

// Transcript renders the full log as "role: content" lines for prompt
// injection.
func (c *Conversation) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b []byte
	for i, m := range c.messages {
		if i > 0 {
			b = append(b, '\n')
		}
		b = append(b, m.Role...)
		b = append(b, ": "...)
		b = append(b, m.Content...)
	}
	return string(b)
}

// entry is one LRU element payload.
type entry struct {
	sessionID string
	conv      *Conversation
	reqMu     *sync.Mutex
	pins      int // Lock holders and waiters; a pinned entry is never evicted
}

// Store is the process-wide keyed store of session conversations.
// Sessions are created lazily on first access and evicted least-recently
// used once MaxSessions is exceeded.
//
// Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*list.Element
	lru      *list.List // front = most recently used
	max      int
	logger   *slog.Logger
}

// DefaultMaxSessions bounds the session map when no limit is configured.
const DefaultMaxSessions = 1000

// NewStore creates a Store holding at most maxSessions conversations
// (0 = DefaultMaxSessions).
func NewStore(maxSessions int, logger *slog.Logger) *Store {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions: make(map[string]*list.Element),
		lru:      list.New(),
		max:      maxSessions,
		logger:   logger,
	}
}

// Get returns the conversation for sessionID, creating an empty one on
// first reference.
func (s *Store) Get(sessionID string) *Conversation {
	return s.lookup(sessionID, false).conv
}

// Lock acquires the per-session request mutex and returns its unlock
// function. Serializing whole requests per session keeps memory append
// order equal to request arrival order. The session is pinned against LRU
// eviction until unlock; evicting it mid-request would hand the next
// request a fresh mutex and break the serialization.
func (s *Store) Lock(sessionID string) func() {
	e := s.lookup(sessionID, true)
	e.reqMu.Lock()
	return func() {
		e.reqMu.Unlock()
		s.mu.Lock()
		e.pins--
		s.evictLocked(nil)
		s.mu.Unlock()
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// lookup finds or creates the entry for sessionID, marking it most recently
// used and evicting the coldest session over capacity. With pin set the
// entry is held against eviction until the caller releases it.
func (s *Store) lookup(sessionID string, pin bool) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var e *entry
	if el, ok := s.sessions[sessionID]; ok {
		s.lru.MoveToFront(el)
		e = el.Value.(*entry)
	} else {
		e = &entry{
			sessionID: sessionID,
			conv:      &Conversation{id: sessionID},
			reqMu:     &sync.Mutex{},
		}
		s.sessions[sessionID] = s.lru.PushFront(e)
	}

	if pin {
		e.pins++
	}
	s.evictLocked(e)
	return e
}

// evictLocked removes cold sessions while over capacity, coldest first,
// skipping keep and any pinned entry. The store may stay over capacity
// while every cold entry is pinned; the excess drains as pins release.
// Caller holds s.mu.
func (s *Store) evictLocked(keep *entry) {
	el := s.lru.Back()
	for s.lru.Len() > s.max && el != nil {
		prev := el.Prev()
		old := el.Value.(*entry)
		if old != keep && old.pins == 0 {
			s.lru.Remove(el)
			delete(s.sessions, old.sessionID)
			s.logger.Debug("evicted session memory", "session_id", old.sessionID)
		}
		el = prev
	}
}
