// Command siap-tui chats with the backend from a terminal. It reads the same
// configuration as the web server; logs go to a file so they stay off the
// screen.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/varsilias/siap-chat/internal/backend"
	"github.com/varsilias/siap-chat/internal/buildinfo"
	"github.com/varsilias/siap-chat/internal/chat"
	"github.com/varsilias/siap-chat/internal/config"
	"github.com/varsilias/siap-chat/internal/logging"
	"github.com/varsilias/siap-chat/internal/tui"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	logFile := flag.String("log-file", config.GetEnv("SIAP_TUI_LOG", "siap-tui.log"), "where to write logs")
	style := flag.String("style", config.GetEnv("SIAP_TUI_STYLE", "dark"), "markdown style: dark|light|notty")
	userID := flag.String("user", "", "user id (overrides config)")
	token := flag.String("token", "", "bearer token (overrides config)")
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open log file:", err)
		os.Exit(1)
	}
	defer f.Close()

	boot := logging.NewWithWriter(f, "info", false)
	cfg, err := config.Load(*configPath, boot)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := logging.NewWithWriter(f, cfg.Log.Level, cfg.Log.JSON)
	logger.Info("build", "version", buildinfo.Version, "commit", buildinfo.Commit, "built_at", buildinfo.BuiltAt)

	creds := cfg.Credentials()
	if *userID != "" {
		creds.UserID = *userID
	}
	if *token != "" {
		creds.BearerToken = *token
	}

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Path, cfg.Backend.Timeout, logger)
	var opts []chat.Option
	if cfg.Chat.SerializeSubmits {
		opts = append(opts, chat.WithSerializedSubmits())
	}
	conv := chat.NewConversation("terminal", client, creds, logger, opts...)
	logger.Info("tui starting", "backend", client.URL(), "user_id", creds.UserID)

	p := tea.NewProgram(tui.New(conv, *style), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logger.Error("tui exited", "err", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
