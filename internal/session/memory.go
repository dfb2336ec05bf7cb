package session

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/varsilias/siap-chat/internal/chat"
	"github.com/varsilias/siap-chat/pkg/types"
)

var ErrNotFound = errors.New("session not found")

// Store hands out the conversation for each browser session.
type Store interface {
	Open(sessionID string) (*chat.Conversation, error)
	Get(sessionID string) (*chat.Conversation, error)
	New() *chat.Conversation
	List() []Summary
}

// MemoryStore keeps conversations for the life of the process.
type MemoryStore struct {
	log      *slog.Logger
	backend  chat.Backend
	defaults types.Credentials
	opts     []chat.Option

	mu   sync.RWMutex
	data map[string]*chat.Conversation
}

func NewMemoryStore(log *slog.Logger, b chat.Backend, defaults types.Credentials, opts ...chat.Option) *MemoryStore {
	return &MemoryStore{
		log:      log,
		backend:  b,
		defaults: defaults,
		opts:     opts,
		data:     make(map[string]*chat.Conversation),
	}
}

// Open returns the conversation for sessionID, creating it on first use.
func (s *MemoryStore) Open(sessionID string) (*chat.Conversation, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("empty session id")
	}

	s.mu.RLock()
	c, ok := s.data[sessionID]
	s.mu.RUnlock()
	if ok {
		return c, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.data[sessionID]; ok {
		return c, nil
	}
	c = chat.NewConversation(sessionID, s.backend, s.defaults, s.log, s.opts...)
	s.data[sessionID] = c
	s.log.Debug("session opened", "session_id", sessionID)
	return c, nil
}

func (s *MemoryStore) Get(sessionID string) (*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.data[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// New creates a conversation under a fresh random id.
func (s *MemoryStore) New() *chat.Conversation {
	c, _ := s.Open(uuid.NewString())
	return c
}

// Summary is a lightweight listing entry.
type Summary struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Count   int       `json:"messages"`
	Updated time.Time `json:"updated"`
}

// List returns all sessions, most recently active first.
func (s *MemoryStore) List() []Summary {
	s.mu.RLock()
	convs := make([]*chat.Conversation, 0, len(s.data))
	for _, c := range s.data {
		convs = append(convs, c)
	}
	s.mu.RUnlock()

	out := make([]Summary, 0, len(convs))
	for _, c := range convs {
		st := c.Snapshot()
		out = append(out, Summary{ID: st.ID, Title: titleFrom(st.Messages), Count: len(st.Messages), Updated: st.Updated})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Updated.After(out[j].Updated) })
	return out
}

func titleFrom(msgs []types.Message) string {
	for _, m := range msgs {
		if m.Sender == types.SenderUser {
			return clip(words(m.Text), 8)
		}
	}
	return ""
}

func words(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	parts := strings.Fields(s)
	if len(parts) <= 12 {
		return strings.Join(parts, " ")
	}
	return strings.Join(parts[:12], " ")
}

// clip shortens s to about n*2 runes.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n*2 {
		return s
	}
	return string(r[:n*2]) + "…"
}
