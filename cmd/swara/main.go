package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/swara/adapters/speaker"
	"github.com/satriahrh/swara/adapters/transport"
	"github.com/satriahrh/swara/domain/entities"
	"github.com/satriahrh/swara/domain/repositories"
	"github.com/satriahrh/swara/internal/api"
	"github.com/satriahrh/swara/internal/config"
	"github.com/satriahrh/swara/internal/logging"
	"github.com/satriahrh/swara/internal/metrics"
	"github.com/satriahrh/swara/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("invalid configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString("invalid logger configuration: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	m := metrics.New()

	// Assemble the session
	agent := transport.NewClient(cfg.AgentURL, nil, logger)
	session := usecase.NewVoiceSession(
		agent,
		func() (repositories.AudioSink, error) {
			return speaker.New(cfg.SampleRate, 1)
		},
		usecase.Config{
			SampleRate:         cfg.SampleRate,
			HistoryCapacity:    cfg.HistoryCapacity,
			ConnectTimeout:     cfg.ConnectTimeout,
			SessionIdleTimeout: cfg.SessionIdleTimeout,
		},
		logger,
		m,
	)
	defer session.Close()

	session.OnTranscript(func(t entities.Transcript) {
		logger.Info("Transcript", zap.String("role", t.Role), zap.String("text", t.Text))
	})
	session.OnError(func(e entities.AgentError) {
		logger.Warn("Agent error", zap.String("code", e.Code), zap.String("message", e.Message))
	})

	if err := session.Connect(context.Background()); err != nil {
		if errors.Is(err, entities.ErrConnectTimeout) {
			logger.Fatal("Agent connection timed out", zap.String("url", cfg.AgentURL))
		}
		logger.Fatal("Failed to connect to agent", zap.Error(err))
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, session, logger)

	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Voice session running",
		zap.String("agent", cfg.AgentURL),
		zap.String("port", cfg.HTTPPort))

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	if err := session.Close(); err != nil {
		logger.Warn("Session close reported error", zap.Error(err))
	}

	logger.Info("Exited")
}
