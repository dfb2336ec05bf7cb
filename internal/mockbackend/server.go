// Package mockbackend is a stand-in for the chat backend. It speaks the same
// wire contract so the page can be tried without the real service.
package mockbackend

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/varsilias/siap-chat/internal/backend"
	"github.com/varsilias/siap-chat/pkg/utils"
)

// Config controls the mock's behaviour.
type Config struct {
	// Token, when set, must match the bearer token exactly.
	Token string
	// Latency is added before every reply.
	Latency time.Duration
}

type Server struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Server {
	return &Server{cfg: cfg, log: log}
}

// Router serves POST /api/chat and GET /healthz.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.JSON(w, http.StatusOK, map[string]any{"status": true})
	})
	r.Post(backend.DefaultPath, s.Chat)
	return r
}

type fieldError struct {
	Loc []string `json:"loc"`
	Msg string   `json:"msg"`
}

// Chat answers one turn. A query of "/fail" returns a plain-text 500 and
// "/slow" doubles the latency.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		utils.JSON(w, http.StatusUnauthorized, map[string]any{"detail": "Not authenticated"})
		return
	}
	if s.cfg.Token != "" && token != s.cfg.Token {
		utils.JSON(w, http.StatusUnauthorized, map[string]any{"detail": "Invalid bearer token"})
		return
	}

	var req backend.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": "invalid JSON body: " + err.Error()})
		return
	}
	var missing []fieldError
	if req.UsersID == "" {
		missing = append(missing, fieldError{Loc: []string{"body", "users_id"}, Msg: "field required"})
	}
	if strings.TrimSpace(req.Query) == "" {
		missing = append(missing, fieldError{Loc: []string{"body", "query"}, Msg: "field required"})
	}
	if len(missing) > 0 {
		utils.JSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": missing})
		return
	}

	delay := s.cfg.Latency
	switch strings.TrimSpace(req.Query) {
	case "/fail":
		http.Error(w, "mock backend failure", http.StatusInternalServerError)
		return
	case "/slow":
		delay *= 2
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	s.log.Info("mock chat", "users_id", req.UsersID, "history", len(req.History))
	utils.JSON(w, http.StatusOK, map[string]any{"summary_string": summarize(req)})
}

func summarize(req backend.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Echo** for user `%s`:\n\n", req.UsersID)
	for _, line := range strings.Split(req.Query, "\n") {
		fmt.Fprintf(&b, "> %s\n", line)
	}
	fmt.Fprintf(&b, "\n_history: %d message(s)_", len(req.History))
	return b.String()
}
