// Package client provides the upstream HTTP client for the OpenAI API.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"openai-relay-go/internal/config"
	"openai-relay-go/internal/metrics"
	"openai-relay-go/internal/model"
)

// OpenAIClient sends requests to the upstream OpenAI API.
type OpenAIClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewOpenAIClient creates an OpenAIClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewOpenAIClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *OpenAIClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &OpenAIClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "openai_client"),
		metrics: m,
	}
}

// Post sends a JSON POST to the given upstream URL and reads the full response
// body as text. The upstream is never trusted to return well-formed JSON, so
// the raw bytes are handed back along with the status code; classification is
// the caller's job. A returned error always means a transport-level failure,
// never an upstream-reported one.
func (c *OpenAIClient) Post(ctx context.Context, rawURL string, header http.Header, payload []byte) (*model.UpstreamResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header

	endpoint := endpointLabel(rawURL)
	c.logger.Debug("upstream request",
		"endpoint", endpoint,
		"bytes", len(payload),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(endpoint).Observe(duration)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(endpoint).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(endpoint, status).Inc()
	}

	return &model.UpstreamResult{
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

// endpointLabel derives a bounded metrics label from the upstream URL.
func endpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "other"
	}
	return metrics.NormalizeEndpoint(strings.TrimPrefix(u.Path, "/v1"))
}
