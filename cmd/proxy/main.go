// Credential proxy for the voice chat client. Holds the provider API
// key server-side and mints ephemeral session credentials.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/voicebridge/voicechat/proxy"
	"github.com/voicebridge/voicechat/shared"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

func main() {
	logger := shared.NewConsoleLogger().With(
		zap.String("component", "proxy"),
		zap.String("version", shared.Version),
	)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	apiKey, err := shared.Getenv(shared.GetenvString, "OPENAI_API_KEY", true, "")
	if err != nil {
		logger.Error("loading API key", err)
		os.Exit(1)
	}
	baseURL := shared.MustGetenv(shared.GetenvString, "OPENAI_BASE_URL", false, "")
	addr := shared.MustGetenv(shared.GetenvString, "PROXY_ADDR", false, ":8080")
	sessionFile := shared.MustGetenv(shared.GetenvString, "SESSION_CONFIG_FILE", false, "")

	session, err := proxy.LoadSessionConfig(sessionFile)
	if err != nil {
		logger.Error("loading session config", err)
		os.Exit(1)
	}

	server, err := proxy.NewServer(logger, apiKey, baseURL, session)
	if err != nil {
		logger.Error("creating proxy server", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Handler(),
	}
	go func() {
		logger.Info("proxy listening", zap.String("addr", addr), zap.String("model", session.Model))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serving", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutting down server", err)
		os.Exit(1)
	}
	logger.Info("graceful shutdown complete")
}
