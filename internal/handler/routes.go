package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"openai-relay-go/internal/config"
	"openai-relay-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
//
// The relay endpoints are registered for every method: the handlers perform
// their own method check so that non-POST requests get a 405 before any
// credential or body handling, rather than Echo's routing-level response.
func RegisterRoutes(e *echo.Echo, relay *RelayHandler, vision *VisionHandler, health *HealthHandler, cfg *config.Config, m *metrics.Metrics) {
	e.GET("/healthz", health.Healthz)
	e.GET("/relay/status", health.Status)

	e.Any("/api/relay", relay.Handle)
	e.Any("/api/vision", vision.Handle)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}
