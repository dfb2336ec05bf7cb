package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/varsilias/siap-chat/internal/backend"
	"github.com/varsilias/siap-chat/internal/metrics"
	"github.com/varsilias/siap-chat/pkg/types"
)

var (
	ErrEmptyDraft = errors.New("draft is empty")
	ErrBusy       = errors.New("a message is already being sent")
)

// EventKind says which part of the conversation changed.
type EventKind int

const (
	EventMessage EventKind = iota
	EventDraft
	EventLoading
	EventCredentials
)

// Event is delivered to subscribers after every mutation.
type Event struct {
	Kind    EventKind
	Message types.Message
	Loading bool
}

// State is a point-in-time copy of a conversation.
type State struct {
	ID          string
	Messages    []types.Message
	Draft       string
	Credentials types.Credentials
	Loading     bool
	Updated     time.Time
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithSerializedSubmits rejects a submit with ErrBusy while another turn is
// still waiting on the backend.
func WithSerializedSubmits() Option {
	return func(c *Conversation) { c.serialize = true }
}

// Conversation is one chat session: an append-only transcript, the draft,
// the credentials and the loading flag.
type Conversation struct {
	id        string
	log       *slog.Logger
	backend   Backend
	serialize bool

	mu       sync.Mutex
	messages []types.Message
	draft    string
	creds    types.Credentials
	loading  bool
	updated  time.Time

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

func NewConversation(id string, b Backend, creds types.Credentials, log *slog.Logger, opts ...Option) *Conversation {
	c := &Conversation{
		id:      id,
		log:     log.With("session_id", id),
		backend: b,
		creds:   creds,
		updated: time.Now(),
		subs:    make(map[int]func(Event)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Conversation) ID() string { return c.id }

// Messages returns a copy of the transcript in insertion order.
func (c *Conversation) Messages() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

func (c *Conversation) SetDraft(s string) {
	c.mu.Lock()
	c.draft = s
	c.mu.Unlock()
	c.emit(Event{Kind: EventDraft})
}

func (c *Conversation) Credentials() types.Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds
}

func (c *Conversation) SetCredentials(creds types.Credentials) {
	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
	c.emit(Event{Kind: EventCredentials})
}

func (c *Conversation) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *Conversation) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]types.Message, len(c.messages))
	copy(msgs, c.messages)
	return State{
		ID:          c.id,
		Messages:    msgs,
		Draft:       c.draft,
		Credentials: c.creds,
		Loading:     c.loading,
		Updated:     c.updated,
	}
}

// Subscribe registers fn for every future event. fn runs on the goroutine
// that made the change and must not block.
func (c *Conversation) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

func (c *Conversation) emit(e Event) {
	c.subMu.Lock()
	fns := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		c.notify(fn, e)
	}
}

// notify runs one subscriber; a panicking subscriber is logged and skipped.
func (c *Conversation) notify(fn func(Event), e Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("subscriber panicked", "err", r, "event", int(e.Kind))
		}
	}()
	fn(e)
}

// Submit commits the draft as a user message and starts the backend call.
// The user message, the cleared draft and loading=true are all visible
// before Submit returns. The call outlives ctx cancellation.
func (c *Conversation) Submit(ctx context.Context) (*Turn, error) {
	c.mu.Lock()
	return c.submitLocked(ctx, c.draft, true)
}

// SubmitText is Submit for text that did not come from the shared draft,
// such as one HTTP request's form value. The check and the append happen
// under one lock, so concurrent callers never see each other's text. The
// draft is left alone.
func (c *Conversation) SubmitText(ctx context.Context, text string) (*Turn, error) {
	c.mu.Lock()
	return c.submitLocked(ctx, text, false)
}

// submitLocked must be entered with c.mu held; it releases it.
func (c *Conversation) submitLocked(ctx context.Context, query string, fromDraft bool) (*Turn, error) {
	if strings.TrimSpace(query) == "" {
		c.mu.Unlock()
		metrics.SubmissionsRejected.WithLabelValues("empty").Inc()
		return nil, ErrEmptyDraft
	}
	if c.serialize && c.loading {
		c.mu.Unlock()
		metrics.SubmissionsRejected.WithLabelValues("busy").Inc()
		return nil, ErrBusy
	}

	history := History(c.messages)
	user := c.appendLocked(query, types.SenderUser)
	if fromDraft {
		c.draft = ""
	}
	c.loading = true
	creds := c.creds
	c.mu.Unlock()

	c.emit(Event{Kind: EventMessage, Message: user})
	if fromDraft {
		c.emit(Event{Kind: EventDraft})
	}
	c.emit(Event{Kind: EventLoading, Loading: true})

	t := &Turn{User: user, done: make(chan struct{})}
	req := backend.Request{UsersID: creds.UserID, Query: query, History: history}
	go c.exchange(context.WithoutCancel(ctx), t, creds.BearerToken, req)
	return t, nil
}

func (c *Conversation) exchange(ctx context.Context, t *Turn, token string, req backend.Request) {
	metrics.SubmissionsInFlight.Inc()
	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("panic: %v", r)
			c.log.Error("backend call panicked", "err", r)
			// A reply that already landed keeps its place; only a turn
			// without one gets the failure message.
			if t.Reply.ID == "" {
				t.Reply = c.append(FailureText(t.err), types.SenderBot)
			}
		}
		metrics.SubmissionsInFlight.Dec()

		c.mu.Lock()
		c.loading = false
		c.mu.Unlock()
		c.emit(Event{Kind: EventLoading, Loading: false})
		close(t.done)
	}()

	reply, err := c.backend.Chat(ctx, token, req)
	if err != nil {
		t.err = err
		c.log.Warn("chat turn failed", "err", err.Error(), "history", len(req.History))
		t.Reply = c.append(FailureText(err), types.SenderBot)
		return
	}
	c.log.Info("chat turn", "latency_ms", reply.Latency.Milliseconds(), "history", len(req.History))
	t.Reply = c.append(reply.Summary, types.SenderBot)
}

func (c *Conversation) append(text string, from types.Sender) types.Message {
	c.mu.Lock()
	m := c.appendLocked(text, from)
	c.mu.Unlock()
	c.emit(Event{Kind: EventMessage, Message: m})
	return m
}

func (c *Conversation) appendLocked(text string, from types.Sender) types.Message {
	m := types.Message{ID: uuid.NewString(), Text: text, Sender: from, Timestamp: time.Now()}
	c.messages = append(c.messages, m)
	c.updated = m.Timestamp
	return m
}

// Turn tracks one submitted message until its reply lands.
type Turn struct {
	User  types.Message
	Reply types.Message

	done chan struct{}
	err  error
}

// Done is closed once the reply (or failure message) is in the transcript
// and loading has been cleared.
func (t *Turn) Done() <-chan struct{} { return t.done }

// Wait blocks until the turn finishes or ctx ends. The returned error is
// the backend failure, if any; the transcript already shows it either way.
func (t *Turn) Wait(ctx context.Context) (types.Message, error) {
	select {
	case <-t.done:
		return t.Reply, t.err
	case <-ctx.Done():
		return types.Message{}, ctx.Err()
	}
}
