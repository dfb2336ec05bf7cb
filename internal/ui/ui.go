package ui

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/varsilias/siap-chat/internal/buildinfo"
	"github.com/varsilias/siap-chat/internal/chat"
	"github.com/varsilias/siap-chat/internal/credentials"
	"github.com/varsilias/siap-chat/internal/render"
	"github.com/varsilias/siap-chat/internal/session"
	"github.com/varsilias/siap-chat/pkg/types"
)

//go:embed templates/*.html templates/partials/*.html
var templateFS embed.FS

type UI struct {
	log      *slog.Logger
	tpl      *template.Template
	sessions session.Store
	md       *render.Markdown
	upgrader websocket.Upgrader
	now      func() time.Time
}

func New(log *slog.Logger, s session.Store, md *render.Markdown) (*UI, error) {
	t, err := template.New("root").ParseFS(templateFS, "templates/*.html", "templates/partials/*.html")
	if err != nil {
		return nil, err
	}

	return &UI{
		log:      log,
		tpl:      t,
		sessions: s,
		md:       md,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		now: time.Now,
	}, nil
}

type MsgView struct {
	ID     string
	Sender string
	HTML   template.HTML
	At     string
}

type TranscriptView struct {
	SessionID string
	Messages  []MsgView
	Loading   bool
	OOB       bool
}

type SettingsView struct {
	SessionID   string
	UserID      string
	BearerToken string
	TokenInfo   string
	Expired     bool
	Open        bool
}

type BuildView struct {
	Version string
	Commit  string
	BuiltAt string
}

func build() BuildView {
	return BuildView{Version: buildinfo.Version, Commit: buildinfo.Commit, BuiltAt: buildinfo.BuiltAt}
}

func (u *UI) messageView(m types.Message) MsgView {
	return MsgView{
		ID:     m.ID,
		Sender: string(m.Sender),
		HTML:   u.md.HTML(m.Text),
		At:     m.Timestamp.Format(time.RFC822),
	}
}

func (u *UI) transcriptView(st chat.State) TranscriptView {
	msgs := make([]MsgView, 0, len(st.Messages))
	for _, m := range st.Messages {
		msgs = append(msgs, u.messageView(m))
	}
	return TranscriptView{SessionID: st.ID, Messages: msgs, Loading: st.Loading}
}

func (u *UI) settingsView(st chat.State) SettingsView {
	info := credentials.Inspect(st.Credentials.BearerToken)
	now := u.now()
	return SettingsView{
		SessionID:   st.ID,
		UserID:      st.Credentials.UserID,
		BearerToken: st.Credentials.BearerToken,
		TokenInfo:   info.Describe(now),
		Expired:     info.Expired(now),
	}
}

func (u *UI) render(w http.ResponseWriter, name string, data any, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := u.tpl.ExecuteTemplate(w, name, data); err != nil {
		u.errTpl(w, err)
	}
}

func (u *UI) errTpl(w http.ResponseWriter, err error) {
	u.log.Error("template execute", "err", err)
	_, _ = w.Write([]byte("<pre>template error: " + template.HTMLEscapeString(err.Error()) + "</pre>"))
}
