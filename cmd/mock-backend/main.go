// Command mock-backend runs a stand-in chat backend that echoes each query
// back as markdown. It checks the bearer token and the request body the same
// way the real service does.
//
// Configuration:
//
//	MOCK_PORT    - Listen port (default: 8000)
//	MOCK_TOKEN   - Required bearer token (default: accept any)
//	MOCK_LATENCY - Delay before each reply (default: 800ms)
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/varsilias/siap-chat/internal/config"
	"github.com/varsilias/siap-chat/internal/logging"
	"github.com/varsilias/siap-chat/internal/mockbackend"
)

func main() {
	port := config.GetEnv("MOCK_PORT", "8000")
	latency, err := time.ParseDuration(config.GetEnv("MOCK_LATENCY", "800ms"))
	if err != nil {
		latency = 800 * time.Millisecond
	}

	logger := logging.New(config.GetEnv("LOG_LEVEL", "info"), config.GetEnv("LOG_JSON", "false") == "true")
	slog.SetDefault(logger)

	mock := mockbackend.New(mockbackend.Config{
		Token:   os.Getenv("MOCK_TOKEN"),
		Latency: latency,
	}, logger)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mock.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("mock backend starting", "port", port, "latency", latency.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("mock backend failed", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
