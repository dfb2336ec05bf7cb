package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/varsilias/siap-chat/internal/backend"
	"github.com/varsilias/siap-chat/pkg/types"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var creds = types.Credentials{UserID: "123", BearerToken: "your-auth-token"}

type recorder struct {
	mu    sync.Mutex
	calls []backend.Request
	reply func(backend.Request) (backend.Reply, error)
}

func (r *recorder) Chat(_ context.Context, _ string, req backend.Request) (backend.Reply, error) {
	r.mu.Lock()
	r.calls = append(r.calls, req)
	r.mu.Unlock()
	return r.reply(req)
}

func (r *recorder) Calls() []backend.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]backend.Request(nil), r.calls...)
}

func echo() *recorder {
	return &recorder{reply: func(req backend.Request) (backend.Reply, error) {
		return backend.Reply{Summary: "re: " + req.Query}, nil
	}}
}

func submit(t *testing.T, c *Conversation, text string) *Turn {
	t.Helper()
	c.SetDraft(text)
	turn, err := c.Submit(context.Background())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = turn.Wait(ctx)
	return turn
}

func TestSubmitRejectsBlankDraft(t *testing.T) {
	b := echo()
	c := NewConversation("s", b, creds, quiet())

	for _, draft := range []string{"", "   ", "\n\t "} {
		c.SetDraft(draft)
		turn, err := c.Submit(context.Background())
		require.ErrorIs(t, err, ErrEmptyDraft)
		require.Nil(t, turn)
	}
	require.Empty(t, c.Messages())
	require.Empty(t, b.Calls())
	require.False(t, c.Loading())
}

func TestSubmitSuccessAppendsUserThenBot(t *testing.T) {
	c := NewConversation("s", echo(), creds, quiet())
	turn := submit(t, c, "hello")

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, types.SenderUser, msgs[0].Sender)
	require.Equal(t, "hello", msgs[0].Text)
	require.Equal(t, types.SenderBot, msgs[1].Sender)
	require.Equal(t, "re: hello", msgs[1].Text)
	require.Equal(t, msgs[1], turn.Reply)
}

func TestSubmitFailureWithDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"bad token"}`))
	}))
	defer srv.Close()

	c := NewConversation("s", backend.NewClient(srv.URL, "", 0, quiet()), creds, quiet())
	c.SetDraft("hi")
	turn, err := c.Submit(context.Background())
	require.NoError(t, err)
	_, callErr := turn.Wait(context.Background())
	require.Error(t, callErr)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, types.SenderUser, msgs[0].Sender)
	require.Equal(t, types.SenderBot, msgs[1].Sender)
	require.Contains(t, msgs[1].Text, "bad token")
	require.Contains(t, msgs[1].Text, "Sorry, something went wrong.")
}

func TestSubmitFailureWithoutJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway on fire", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewConversation("s", backend.NewClient(srv.URL, "", 0, quiet()), creds, quiet())
	submit(t, c, "hi")

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	require.Contains(t, msgs[1].Text, "503")
	require.Contains(t, msgs[1].Text, "Service Unavailable")
}

func TestSubmitNetworkFailureShowsError(t *testing.T) {
	b := &recorder{reply: func(backend.Request) (backend.Reply, error) {
		return backend.Reply{}, errors.New("dial tcp: connection refused")
	}}
	c := NewConversation("s", b, creds, quiet())
	submit(t, c, "hi")

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "Sorry, something went wrong. (dial tcp: connection refused)", msgs[1].Text)
}

func TestSecondSubmitCarriesPriorHistory(t *testing.T) {
	b := echo()
	c := NewConversation("s", b, creds, quiet())
	submit(t, c, "first")
	before := c.Messages()
	submit(t, c, "second")

	calls := b.Calls()
	require.Len(t, calls, 2)
	require.Empty(t, calls[0].History)
	require.NotNil(t, calls[0].History)
	require.Equal(t, History(before), calls[1].History)
	require.Equal(t, []types.HistoryEntry{
		{Role: types.RoleUser, Content: "first"},
		{Role: types.RoleAssistant, Content: "re: first"},
	}, calls[1].History)
	require.Equal(t, "second", calls[1].Query)
	require.Equal(t, "123", calls[1].UsersID)
}

func TestLoadingOnlyWhileSending(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	b := &recorder{reply: func(backend.Request) (backend.Reply, error) {
		close(entered)
		<-release
		return backend.Reply{Summary: "done"}, nil
	}}
	c := NewConversation("s", b, creds, quiet())
	require.False(t, c.Loading())

	c.SetDraft("slow one")
	turn, err := c.Submit(context.Background())
	require.NoError(t, err)

	// User message and cleared draft are visible before the call returns.
	require.True(t, c.Loading())
	require.Equal(t, "", c.Draft())
	msgs := c.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "slow one", msgs[0].Text)

	<-entered
	require.True(t, c.Loading())
	close(release)
	<-turn.Done()
	require.False(t, c.Loading())
	require.Len(t, c.Messages(), 2)
}

func TestLoadingClearedAfterFailure(t *testing.T) {
	b := &recorder{reply: func(backend.Request) (backend.Reply, error) {
		return backend.Reply{}, errors.New("boom")
	}}
	c := NewConversation("s", b, creds, quiet())
	submit(t, c, "x")
	require.False(t, c.Loading())
}

func TestPanickingBackendBecomesMessage(t *testing.T) {
	b := &recorder{reply: func(backend.Request) (backend.Reply, error) {
		panic("nil map")
	}}
	c := NewConversation("s", b, creds, quiet())
	submit(t, c, "x")

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	require.Contains(t, msgs[1].Text, "nil map")
	require.False(t, c.Loading())
}

func TestDraftClearedRegardlessOfOutcome(t *testing.T) {
	b := &recorder{reply: func(backend.Request) (backend.Reply, error) {
		return backend.Reply{}, errors.New("nope")
	}}
	c := NewConversation("s", b, creds, quiet())
	c.SetDraft("text")
	_, err := c.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, "", c.Draft())
}

func TestOverlappingSubmitsAppendInCompletionOrder(t *testing.T) {
	gates := map[string]chan struct{}{"a": make(chan struct{}), "b": make(chan struct{})}
	b := &recorder{reply: func(req backend.Request) (backend.Reply, error) {
		<-gates[req.Query]
		return backend.Reply{Summary: "reply " + req.Query}, nil
	}}
	c := NewConversation("s", b, creds, quiet())

	c.SetDraft("a")
	ta, err := c.Submit(context.Background())
	require.NoError(t, err)
	c.SetDraft("b")
	tb, err := c.Submit(context.Background())
	require.NoError(t, err)

	close(gates["b"])
	<-tb.Done()
	close(gates["a"])
	<-ta.Done()

	var texts []string
	for _, m := range c.Messages() {
		texts = append(texts, m.Text)
	}
	require.Equal(t, []string{"a", "b", "reply b", "reply a"}, texts)
}

func TestSerializedSubmitsRejectWhileBusy(t *testing.T) {
	release := make(chan struct{})
	b := &recorder{reply: func(backend.Request) (backend.Reply, error) {
		<-release
		return backend.Reply{Summary: "ok"}, nil
	}}
	c := NewConversation("s", b, creds, quiet(), WithSerializedSubmits())

	c.SetDraft("one")
	turn, err := c.Submit(context.Background())
	require.NoError(t, err)

	c.SetDraft("two")
	_, err = c.Submit(context.Background())
	require.ErrorIs(t, err, ErrBusy)
	require.Equal(t, "two", c.Draft())

	close(release)
	<-turn.Done()
	_, err = c.Submit(context.Background())
	require.NoError(t, err)
}

func TestCallSurvivesCallerCancel(t *testing.T) {
	var sawCancel bool
	b := BackendFunc(func(ctx context.Context, _ string, _ backend.Request) (backend.Reply, error) {
		time.Sleep(10 * time.Millisecond)
		sawCancel = ctx.Err() != nil
		return backend.Reply{Summary: "still here"}, nil
	})
	c := NewConversation("s", b, creds, quiet())

	ctx, cancel := context.WithCancel(context.Background())
	c.SetDraft("x")
	turn, err := c.Submit(ctx)
	require.NoError(t, err)
	cancel()
	<-turn.Done()

	require.False(t, sawCancel)
	require.Equal(t, "still here", c.Messages()[1].Text)
}

func TestCredentialsSentVerbatim(t *testing.T) {
	var token string
	var user string
	b := BackendFunc(func(_ context.Context, tok string, req backend.Request) (backend.Reply, error) {
		token, user = tok, req.UsersID
		return backend.Reply{Summary: "ok"}, nil
	})
	c := NewConversation("s", b, creds, quiet())
	c.SetCredentials(types.Credentials{UserID: " u-9 ", BearerToken: "abc.def"})
	submit(t, c, "x")

	require.Equal(t, "abc.def", token)
	require.Equal(t, " u-9 ", user)
}

func TestSubscribersSeeEveryChange(t *testing.T) {
	c := NewConversation("s", echo(), creds, quiet())

	var mu sync.Mutex
	var kinds []EventKind
	unsub := c.Subscribe(func(e Event) {
		mu.Lock()
		kinds = append(kinds, e.Kind)
		mu.Unlock()
	})

	submit(t, c, "hey")
	unsub()
	unsub()
	c.SetDraft("ignored")

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []EventKind{
		EventDraft,   // SetDraft("hey")
		EventMessage, // user
		EventDraft,   // cleared
		EventLoading, // true
		EventMessage, // bot
		EventLoading, // false
	}, kinds)
}

func TestSubmitTextKeepsDraftAndRejectsBlank(t *testing.T) {
	c := NewConversation("s", echo(), creds, quiet())
	c.SetDraft("half typed")

	_, err := c.SubmitText(context.Background(), "  \n")
	require.ErrorIs(t, err, ErrEmptyDraft)

	turn, err := c.SubmitText(context.Background(), "from a form")
	require.NoError(t, err)
	require.Equal(t, "from a form", turn.User.Text)
	require.Equal(t, "half typed", c.Draft())

	<-turn.Done()
	require.Equal(t, "re: from a form", c.Messages()[1].Text)
}

func TestConcurrentSubmitTextKeepsEveryMessage(t *testing.T) {
	c := NewConversation("s", echo(), creds, quiet())
	// A subscriber that yields widens any window between check and append.
	c.Subscribe(func(Event) { time.Sleep(time.Microsecond) })

	const n = 100
	var wg sync.WaitGroup
	turns := make(chan *Turn, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			turn, err := c.SubmitText(context.Background(), fmt.Sprintf("msg-%d", i))
			if err != nil {
				t.Error(err)
				return
			}
			turns <- turn
		}(i)
	}
	wg.Wait()
	close(turns)
	for turn := range turns {
		<-turn.Done()
	}

	seen := map[string]int{}
	for _, m := range c.Messages() {
		if m.Sender == types.SenderUser {
			seen[m.Text]++
		}
	}
	require.Len(t, seen, n)
	for text, count := range seen {
		require.Equal(t, 1, count, text)
	}
}

func TestPanickingSubscriberDoesNotDuplicateReply(t *testing.T) {
	c := NewConversation("s", echo(), creds, quiet())
	c.Subscribe(func(e Event) {
		if e.Kind == EventMessage && e.Message.Sender == types.SenderBot {
			panic("render failed")
		}
	})

	turn := submit(t, c, "hi")
	<-turn.Done()

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "re: hi", msgs[1].Text)
	require.False(t, c.Loading())
}
