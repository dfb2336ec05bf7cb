package ui

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/varsilias/siap-chat/internal/chat"
	"github.com/varsilias/siap-chat/pkg/types"
)

const defaultSession = "default"

func RegisterRoutes(mux chi.Router, h *UI) {
	mux.Get("/", h.Home)
	mux.Post("/ui/chat", h.ChatPost)
	mux.Post("/ui/settings", h.SettingsPost)
	mux.Post("/ui/session/new", h.NewSession)
	mux.Get("/ui/transcript", h.Transcript)
	mux.Get("/ui/ws", h.Live)
	mux.Get("/ui/version-pill", h.VersionPill)
}

func sessionID(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return defaultSession
	}
	return v
}

func isHTMX(r *http.Request) bool { return r.Header.Get("HX-Request") == "true" }

// Home shows the chat page. Optional session via query: /?s=<id>
func (u *UI) Home(w http.ResponseWriter, r *http.Request) {
	conv, err := u.sessions.Open(sessionID(r.URL.Query().Get("s")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	st := conv.Snapshot()

	u.render(w, "chat.html", map[string]any{
		"SessionID":  st.ID,
		"Draft":      st.Draft,
		"Transcript": u.transcriptView(st),
		"Settings":   u.settingsView(st),
		"Sessions":   u.sessions.List(),
		"Build":      build(),
	}, http.StatusOK)
}

// ChatPost commits the typed message and returns the transcript with the
// user's bubble and the loading indicator. The reply arrives over /ui/ws or
// the transcript poll.
func (u *UI) ChatPost(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	conv, err := u.sessions.Open(sessionID(r.Form.Get("session_id")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	_, err = conv.SubmitText(r.Context(), r.Form.Get("message"))
	status := http.StatusOK
	switch {
	case errors.Is(err, chat.ErrEmptyDraft):
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, chat.ErrBusy):
		status = http.StatusConflict
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if !isHTMX(r) {
		http.Redirect(w, r, "/?s="+url.QueryEscape(conv.ID()), http.StatusSeeOther)
		return
	}
	u.render(w, "transcript", u.transcriptView(conv.Snapshot()), status)
}

// SettingsPost updates the user id and bearer token for a session.
func (u *UI) SettingsPost(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	conv, err := u.sessions.Open(sessionID(r.Form.Get("session_id")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conv.SetCredentials(types.Credentials{
		UserID:      r.Form.Get("user_id"),
		BearerToken: r.Form.Get("bearer_token"),
	})
	u.log.Info("settings updated", "session_id", conv.ID(), "user_id", r.Form.Get("user_id"))

	if !isHTMX(r) {
		http.Redirect(w, r, "/?s="+url.QueryEscape(conv.ID()), http.StatusSeeOther)
		return
	}
	view := u.settingsView(conv.Snapshot())
	view.Open = true
	u.render(w, "settings", view, http.StatusOK)
}

// Transcript returns the transcript fragment; the page polls it while a
// reply is pending.
func (u *UI) Transcript(w http.ResponseWriter, r *http.Request) {
	conv, err := u.sessions.Get(sessionID(r.URL.Query().Get("s")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	u.render(w, "transcript", u.transcriptView(conv.Snapshot()), http.StatusOK)
}

// NewSession creates a fresh session ID and redirects to /?s=...
func (u *UI) NewSession(w http.ResponseWriter, r *http.Request) {
	conv := u.sessions.New()
	target := "/?s=" + url.QueryEscape(conv.ID())

	if isHTMX(r) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Live pushes an out-of-band transcript fragment on every conversation
// change until the socket closes.
func (u *UI) Live(w http.ResponseWriter, r *http.Request) {
	conv, err := u.sessions.Open(sessionID(r.URL.Query().Get("s")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		u.log.Warn("websocket upgrade", "err", err)
		return
	}
	defer conn.Close()

	changed := make(chan struct{}, 1)
	unsubscribe := conv.Subscribe(func(e chat.Event) {
		if e.Kind == chat.EventDraft || e.Kind == chat.EventCredentials {
			return
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	// Drain client frames so close and pong are processed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-changed:
			view := u.transcriptView(conv.Snapshot())
			view.OOB = true
			var buf bytes.Buffer
			if err := u.tpl.ExecuteTemplate(&buf, "transcript", view); err != nil {
				u.log.Error("template execute", "err", err)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, buf.Bytes()); err != nil {
				u.log.Debug("websocket write", "err", err)
				return
			}
		}
	}
}

func (u *UI) VersionPill(w http.ResponseWriter, r *http.Request) {
	// Fragment response; avoid caching so rollouts show quickly
	w.Header().Set("Cache-Control", "no-store")
	u.render(w, "version-pill.html", build(), http.StatusOK)
}
