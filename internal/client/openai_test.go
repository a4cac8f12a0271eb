package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"openai-relay-go/internal/config"
	"openai-relay-go/internal/metrics"
)

func newTestClient(cfg *config.Config) *OpenAIClient {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewOpenAIClient(cfg, logger, nil)
}

func TestOpenAIClient_Post(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer sk-test")
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"input":"hi"}` {
			t.Errorf("body = %q, want %q", string(body), `{"input":"hi"}`)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
	}
	c := newTestClient(cfg)

	header := make(http.Header)
	header.Set("Authorization", "Bearer sk-test")

	res, err := c.Post(context.Background(), srv.URL+"/v1/responses", header, []byte(`{"input":"hi"}`))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	if res.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if string(res.Body) != `{"status":"ok"}` {
		t.Errorf("body = %q, want %q", string(res.Body), `{"status":"ok"}`)
	}
}

func TestOpenAIClient_Post_UpstreamErrorIsNotTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("forbidden"))
	}))
	defer srv.Close()

	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
	}
	c := newTestClient(cfg)

	res, err := c.Post(context.Background(), srv.URL+"/v1/responses", make(http.Header), []byte(`{}`))
	if err != nil {
		t.Fatalf("Post() error = %v; non-2xx must not be a transport error", err)
	}
	if res.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want %d", res.StatusCode, http.StatusForbidden)
	}
	if res.OK() {
		t.Error("OK() = true for status 403, want false")
	}
	if string(res.Body) != "forbidden" {
		t.Errorf("body = %q, want %q", string(res.Body), "forbidden")
	}
}

func TestOpenAIClient_Post_TransportError(t *testing.T) {
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:  1,
			IdleConnections: 10,
		},
	}
	c := newTestClient(cfg)

	_, err := c.Post(context.Background(), "http://127.0.0.1:1/v1/responses", make(http.Header), []byte(`{}`))
	if err == nil {
		t.Fatal("Post() expected error for unreachable host, got nil")
	}
}

func TestOpenAIClient_Post_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Simulate a slow upstream; the request should be canceled before this completes.
		time.Sleep(5 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:  30,
			IdleConnections: 10,
		},
	}
	c := newTestClient(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := c.Post(ctx, srv.URL+"/v1/responses", make(http.Header), []byte(`{}`))
	if err == nil {
		t.Fatal("Post() expected error for canceled context, got nil")
	}
}

func TestOpenAIClient_Post_RecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	c := NewOpenAIClient(cfg, logger, m)

	if _, err := c.Post(context.Background(), srv.URL+"/v1/responses", make(http.Header), []byte(`{}`)); err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() != "openai_relay_upstream_responses_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["endpoint"] == "responses" && labels["status_code"] == "200" {
				found = true
			}
		}
	}
	if !found {
		t.Error("expected openai_relay_upstream_responses_total{endpoint=responses,status_code=200}")
	}
}

func TestEndpointLabel(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://api.openai.com/v1/responses", "responses"},
		{"https://api.openai.com/v1/chat/completions", "chat/completions"},
		{"https://api.openai.com/v1/secret-path", "other"},
		{"://bad", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := endpointLabel(tt.url); got != tt.want {
				t.Errorf("endpointLabel(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}
