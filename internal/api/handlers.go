package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/varsilias/siap-chat/internal/buildinfo"
	"github.com/varsilias/siap-chat/internal/chat"
	"github.com/varsilias/siap-chat/internal/session"
	"github.com/varsilias/siap-chat/pkg/types"
	"github.com/varsilias/siap-chat/pkg/utils"
)

type Handlers struct {
	log      *slog.Logger
	sessions session.Store
}

func NewHandlers(log *slog.Logger, store session.Store) *Handlers {
	return &Handlers{log: log, sessions: store}
}

// Health is a basic liveness endpoint.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, map[string]any{
		"status":    true,
		"message":   "siap-chat",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, map[string]any{
		"version":  buildinfo.Version,
		"commit":   buildinfo.Commit,
		"built_at": buildinfo.BuiltAt,
	})
}

// sessionView is the JSON shape of a conversation. It never carries the
// bearer token.
type sessionView struct {
	SessionID string          `json:"session_id"`
	Messages  []types.Message `json:"messages"`
	Draft     string          `json:"draft"`
	Loading   bool            `json:"loading"`
	UserID    string          `json:"user_id"`
	Updated   time.Time       `json:"updated"`
}

func viewOf(st chat.State) sessionView {
	msgs := st.Messages
	if msgs == nil {
		msgs = []types.Message{}
	}
	return sessionView{
		SessionID: st.ID,
		Messages:  msgs,
		Draft:     st.Draft,
		Loading:   st.Loading,
		UserID:    st.Credentials.UserID,
		Updated:   st.Updated,
	}
}

// ListSessions GET /api/sessions
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, map[string]any{"sessions": h.sessions.List()})
}

// CreateSession POST /api/sessions
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	conv := h.sessions.New()
	utils.JSON(w, http.StatusCreated, viewOf(conv.Snapshot()))
}

// GetSession GET /api/sessions/{id}
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.JSON(w, http.StatusOK, viewOf(conv.Snapshot()))
}

// PostMessage POST /api/sessions/{id}/messages { text }
//
// The reply is not awaited; poll GetSession until loading is false.
func (h *Handlers) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	conv, err := h.sessions.Open(chi.URLParam(r, "id"))
	if err != nil {
		utils.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	turn, err := conv.SubmitText(r.Context(), req.Text)
	switch {
	case errors.Is(err, chat.ErrEmptyDraft):
		utils.Error(w, http.StatusBadRequest, "text is required")
		return
	case errors.Is(err, chat.ErrBusy):
		utils.Error(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		utils.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.JSON(w, http.StatusAccepted, map[string]any{
		"message": turn.User,
		"session": viewOf(conv.Snapshot()),
	})
}

// UpdateSettings PUT /api/sessions/{id}/settings { user_id, bearer_token }
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req types.Credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	conv, err := h.sessions.Open(chi.URLParam(r, "id"))
	if err != nil {
		utils.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	conv.SetCredentials(req)
	utils.JSON(w, http.StatusOK, viewOf(conv.Snapshot()))
}

func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (*chat.Conversation, bool) {
	conv, err := h.sessions.Get(chi.URLParam(r, "id"))
	if errors.Is(err, session.ErrNotFound) {
		utils.Error(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	if err != nil {
		utils.Error(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return conv, true
}
