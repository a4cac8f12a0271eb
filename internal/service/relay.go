// Package service implements the core relay forwarding logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"openai-relay-go/internal/client"
	"openai-relay-go/internal/config"
	"openai-relay-go/internal/model"
)

// ErrMissingAPIKey is returned when no API key is configured. The message
// names the configuration surface but never the key value.
var ErrMissingAPIKey = errors.New("API key is not configured: set openai.api_key in config or the OPENAI_API_KEY environment variable")

// ErrUpstreamUnreachable wraps transport-level failures contacting the
// upstream, as opposed to errors the upstream itself reported.
var ErrUpstreamUnreachable = errors.New("upstream unreachable")

// allowedUpstreamHosts restricts which hosts the relay will forward to.
var allowedUpstreamHosts = map[string]bool{
	"api.openai.com": true,
}

const userAgent = "openai-relay-go/1.0"

// ResponsesPath is the fixed Responses-API endpoint used by the vision relay.
const ResponsesPath = "responses"

// RelayService forwards JSON payloads to the upstream OpenAI API with the
// configured credential attached.
type RelayService struct {
	client  *client.OpenAIClient
	cfg     *config.Config
	logger  *slog.Logger
	baseURL *url.URL
}

// NewRelayService creates a RelayService.
func NewRelayService(c *client.OpenAIClient, cfg *config.Config, logger *slog.Logger) (*RelayService, error) {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}

	if !allowedUpstreamHosts[u.Hostname()] {
		return nil, fmt.Errorf("upstream host %q is not in the allowlist", u.Hostname())
	}

	return &RelayService{
		client:  c,
		cfg:     cfg,
		logger:  logger.With("component", "relay_service"),
		baseURL: u,
	}, nil
}

// NewRelayServiceForTest creates a RelayService without host allowlist validation.
// This is intended only for tests that use httptest servers on localhost.
func NewRelayServiceForTest(c *client.OpenAIClient, cfg *config.Config, logger *slog.Logger) (*RelayService, error) {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}

	return &RelayService{
		client:  c,
		cfg:     cfg,
		logger:  logger.With("component", "relay_service"),
		baseURL: u,
	}, nil
}

// CredentialPresent reports whether an upstream API key is configured.
// The handler checks this before touching the request body so that a
// misconfigured deployment fails fast without any upstream traffic.
func (s *RelayService) CredentialPresent() bool {
	return s.cfg.OpenAI.APIKey != ""
}

// Forward POSTs the payload to <base>/v1/<path> with the credential attached
// as a bearer token. Upstream is always contacted with POST regardless of the
// inbound method; the frontend contract depends on that.
//
// A non-nil error always wraps ErrUpstreamUnreachable (or a request-build
// failure); upstream-reported errors arrive as a normal UpstreamResult with a
// non-2xx status code.
func (s *RelayService) Forward(ctx context.Context, path string, payload []byte) (*model.UpstreamResult, error) {
	if !s.CredentialPresent() {
		return nil, ErrMissingAPIKey
	}

	upstreamURL := s.buildUpstreamURL(path)

	s.logger.Debug("forwarding request",
		"path", path,
		"bytes", len(payload),
	)

	res, err := s.client.Post(ctx, upstreamURL, s.upstreamHeader(), payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}

	return res, nil
}

func (s *RelayService) buildUpstreamURL(path string) string {
	u := *s.baseURL
	u.Path = "/v1/" + strings.TrimPrefix(path, "/")
	return u.String()
}

// upstreamHeader builds the outbound header set. Inbound headers are never
// forwarded; the relay speaks its own minimal dialect to the upstream.
func (s *RelayService) upstreamHeader() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Authorization", "Bearer "+s.cfg.OpenAI.APIKey)
	h.Set("User-Agent", userAgent)
	return h
}
