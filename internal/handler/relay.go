package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"openai-relay-go/internal/service"
)

// bearerPattern matches bearer tokens in error messages that may echo request headers.
var bearerPattern = regexp.MustCompile(`(?i)(bearer\s+)[^\s"]+`)

// errorExcerptLimit caps the length of raw upstream text quoted in the
// structured error message; the full text still travels in the debug field.
const errorExcerptLimit = 200

// RelayHandler forwards arbitrary JSON bodies to a caller-selected upstream
// endpoint and mirrors the upstream reply back.
type RelayHandler struct {
	service *service.RelayService
	logger  *slog.Logger
}

// NewRelayHandler creates a RelayHandler.
func NewRelayHandler(svc *service.RelayService, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		service: svc,
		logger:  logger.With("component", "relay_handler"),
	}
}

// Handle relays the request body verbatim to /v1/<path> upstream.
//
// Validation order is part of the contract: method, then credential, then
// the path parameter, then body syntax. Nothing upstream-facing happens
// until all four pass.
func (h *RelayHandler) Handle(c echo.Context) error {
	req := c.Request()

	if req.Method != http.MethodPost {
		return c.JSON(http.StatusMethodNotAllowed, echo.Map{
			"error":   "method not allowed",
			"message": "only POST is supported",
		})
	}

	if !h.service.CredentialPresent() {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":   "server misconfigured",
			"message": "upstream credential is not configured",
		})
	}

	path := c.QueryParam("path")
	if path == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":   "bad request",
			"message": "missing required query parameter: path",
		})
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":   "bad request",
			"message": "failed to read request body",
		})
	}
	if !json.Valid(body) {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":   "bad request",
			"message": "request body is not valid JSON",
		})
	}

	res, err := h.service.Forward(req.Context(), path, body)
	if err != nil {
		return h.mapError(c, err)
	}

	h.logger.Debug("upstream response",
		"path", path,
		"status", res.StatusCode,
	)

	// The upstream reply is mirrored under its own status code whenever it is
	// valid JSON. Anything else gets wrapped so the frontend always receives
	// JSON, with the raw text preserved for debugging.
	if json.Valid(res.Body) {
		return c.JSONBlob(res.StatusCode, res.Body)
	}

	return c.JSON(res.StatusCode, echo.Map{
		"error":   "OpenAI API Error",
		"message": fmt.Sprintf("upstream returned non-JSON response: %s", truncate(string(res.Body), errorExcerptLimit)),
		"debug":   string(res.Body),
	})
}

func (h *RelayHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("relay error",
		"err", sanitizeError(err),
		"path", c.QueryParam("path"),
	)

	if errors.Is(err, service.ErrMissingAPIKey) {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":   "server misconfigured",
			"message": "upstream credential is not configured",
		})
	}

	if errors.Is(err, service.ErrUpstreamUnreachable) {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":   "upstream unreachable",
			"message": sanitizeError(err),
		})
	}

	return c.JSON(http.StatusInternalServerError, echo.Map{
		"error":   "internal error",
		"message": "request could not be processed",
	})
}

// truncate shortens s to at most n bytes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// sanitizeError redacts bearer tokens from error messages that may echo
// upstream request headers.
func sanitizeError(err error) string {
	return bearerPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
}
