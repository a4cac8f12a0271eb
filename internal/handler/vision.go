package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"openai-relay-go/internal/model"
	"openai-relay-go/internal/service"
)

// VisionHandler accepts a prompt plus base64 images, builds a Responses-API
// multimodal payload, and returns the extracted assistant text. Errors on this
// endpoint are plain text; the frontend renders them directly.
type VisionHandler struct {
	service *service.RelayService
	logger  *slog.Logger
}

// NewVisionHandler creates a VisionHandler.
func NewVisionHandler(svc *service.RelayService, logger *slog.Logger) *VisionHandler {
	return &VisionHandler{
		service: svc,
		logger:  logger.With("component", "vision_handler"),
	}
}

// Handle serves one vision round trip: decode, build payload, forward to the
// fixed responses endpoint, extract text. Upstream failures (non-2xx) pass
// through with their status code and body untouched.
func (h *VisionHandler) Handle(c echo.Context) error {
	req := c.Request()

	if req.Method != http.MethodPost {
		return c.String(http.StatusMethodNotAllowed, "only POST is supported")
	}

	if !h.service.CredentialPresent() {
		return c.String(http.StatusInternalServerError, "upstream credential is not configured")
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return c.String(http.StatusBadRequest, "failed to read request body")
	}

	var vr model.VisionRequest
	if err := json.Unmarshal(body, &vr); err != nil {
		return c.String(http.StatusBadRequest, "request body is not valid JSON")
	}

	payload, err := service.BuildVisionPayload(vr)
	if err != nil {
		return c.String(http.StatusBadRequest, sanitizeError(err))
	}

	res, err := h.service.Forward(req.Context(), service.ResponsesPath, payload)
	if err != nil {
		return h.mapError(c, err)
	}

	if !res.OK() {
		h.logger.Warn("upstream error response",
			"status", res.StatusCode,
			"bytes", len(res.Body),
		)
		// Propagate the upstream failure verbatim.
		return c.Blob(res.StatusCode, echo.MIMETextPlainCharsetUTF8, res.Body)
	}

	text := service.ExtractOutputText(res.Body)

	return c.JSON(http.StatusOK, echo.Map{"text": text})
}

func (h *VisionHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("vision relay error", "err", sanitizeError(err))

	if errors.Is(err, service.ErrMissingAPIKey) {
		return c.String(http.StatusInternalServerError, "upstream credential is not configured")
	}

	if errors.Is(err, service.ErrUpstreamUnreachable) {
		return c.String(http.StatusInternalServerError, "upstream request failed: "+sanitizeError(err))
	}

	return c.String(http.StatusBadRequest, sanitizeError(err))
}
