// Package api exposes the session's operational surface over HTTP: health,
// diagnostics and Prometheus metrics.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/satriahrh/swara/usecase"
)

// InitRoutes initializes all API routes.
func InitRoutes(e *echo.Echo, session *usecase.VoiceSession, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "swara",
		})
	})

	// Session internals for debugging dropped audio or stuck queues.
	e.GET("/diagnostics", func(c echo.Context) error {
		return c.JSON(http.StatusOK, session.Diagnostics())
	})

	// Visualization signal snapshot, polled by UI clients.
	e.GET("/signals", func(c echo.Context) error {
		return c.JSON(http.StatusOK, session.Signals())
	})

	// Stop playback without dropping the connection.
	e.POST("/playback/stop", func(c echo.Context) error {
		logger.Info("Playback stop requested")
		session.StopPlayback()
		return c.NoContent(http.StatusNoContent)
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
