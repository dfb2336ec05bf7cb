package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/varsilias/siap-chat/internal/api"
	"github.com/varsilias/siap-chat/internal/backend"
	"github.com/varsilias/siap-chat/internal/buildinfo"
	"github.com/varsilias/siap-chat/internal/chat"
	"github.com/varsilias/siap-chat/internal/config"
	"github.com/varsilias/siap-chat/internal/logging"
	"github.com/varsilias/siap-chat/internal/metrics"
	"github.com/varsilias/siap-chat/internal/middleware"
	"github.com/varsilias/siap-chat/internal/render"
	"github.com/varsilias/siap-chat/internal/session"
	"github.com/varsilias/siap-chat/internal/ui"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: $SIAP_CONFIG or ./config.yaml)")
	addr := flag.String("addr", "", "HTTP listen address")
	level := flag.String("log-level", "", "log level: debug|info|warn|error")
	jsonLogs := flag.Bool("log-json", false, "log as JSON")
	backendURL := flag.String("backend", "", "chat backend base URL")
	waitBackend := flag.Duration("wait-backend", 0, "wait this long for the backend to accept connections before serving")
	flag.Parse()

	boot := logging.New("info", false)
	cfg, err := config.Load(*configPath, boot)
	if err != nil {
		boot.Error("config", "err", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *level != "" {
		cfg.Log.Level = *level
	}
	if *jsonLogs {
		cfg.Log.JSON = true
	}
	if *backendURL != "" {
		cfg.Backend.BaseURL = *backendURL
	}
	if err := cfg.Validate(); err != nil {
		boot.Error("config", "err", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(logger)
	logger.Info("build", "version", buildinfo.Version, "commit", buildinfo.Commit, "built_at", buildinfo.BuiltAt)

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Path, cfg.Backend.Timeout, logger)
	logger.Info("chat server is listening", "addr", cfg.ListenAddr(), "backend", client.URL(), "serialize_submits", cfg.Chat.SerializeSubmits)

	if *waitBackend > 0 {
		ctxWait, cancel := context.WithTimeout(context.Background(), *waitBackend)
		err := waitForBackend(ctxWait, cfg.Backend.BaseURL, 2*time.Second, logger)
		cancel()
		if err != nil {
			logger.Warn("backend wait timed out; serving anyway", "err", err.Error())
		} else {
			logger.Info("backend is accepting connections")
		}
	}

	var opts []chat.Option
	if cfg.Chat.SerializeSubmits {
		opts = append(opts, chat.WithSerializedSubmits())
	}
	sessionStore := session.NewMemoryStore(logger, client, cfg.Credentials(), opts...)

	uih, err := ui.New(logger, sessionStore, render.NewMarkdown())
	if err != nil {
		logger.Error("ui init", "err", err)
		os.Exit(1)
	}
	h := api.NewHandlers(logger, sessionStore)

	mux := chi.NewRouter()
	mux.Use(chimw.RealIP)

	ui.RegisterRoutes(mux, uih)
	api.RegisterRoutes(mux, h)

	var handler http.Handler = mux
	handler = middleware.Recoverer(logger)(handler)
	handler = middleware.RequestID()(handler)
	handler = middleware.AccessLog(logger)(handler)
	handler = middleware.VersionHeader()(handler)
	handler = metrics.Middleware(handler)

	server := http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// No WriteTimeout: /ui/ws connections stay open for the life of the page.
		IdleTimeout: 120 * time.Second,
	}

	// Graceful shutdown
	errChan := make(chan error, 1)
	go func() { errChan <- server.ListenAndServe() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	case sig := <-sigChan:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	} else {
		logger.Info("server stopped")
	}
}

// waitForBackend dials the backend host until it accepts a TCP connection.
// It says nothing about whether the chat endpoint itself is healthy.
func waitForBackend(ctx context.Context, baseURL string, interval time.Duration, log *slog.Logger) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return err
	}
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var d net.Dialer
	check := func() error {
		conn, err := d.DialContext(ctx, "tcp", host)
		if err != nil {
			return fmt.Errorf("backend not reachable: %w", err)
		}
		return conn.Close()
	}

	// do an immediate attempt first
	if err := check(); err == nil {
		return nil
	}
	log.Info("waiting for backend", "host", host, "interval", interval.String())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := check(); err == nil {
				return nil
			}
		}
	}
}
