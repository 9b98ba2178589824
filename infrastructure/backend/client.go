// Package backend provides ports.Backend implementations that compute
// metrics in external services, with built-in support for retries, rate
// limiting, circuit breaking, timeouts, metrics and tracing.
//
// The HTTP client is the transport; cross-cutting concerns are layered on
// top through a middleware chain so operational features can be added
// without changing the transport.
//
// Basic usage:
//
//	b, err := backend.New(backend.Config{
//	    Name:    "risk-engine",
//	    BaseURL: "https://risk.example.com/api",
//	})
//	result, err := b.Compute(ctx, ports.BackendRequest{MetricID: "psi_calculator"})
//
// Advanced usage with middleware:
//
//	b, err := backend.New(cfg,
//	    backend.RetryMiddleware(3, 200*time.Millisecond, 5*time.Second),
//	    backend.RateLimitMiddleware(20, 40),
//	    backend.CircuitBreakerMiddleware(5, 30*time.Second),
//	    backend.MetricsMiddleware(collector),
//	)
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 4 << 10

// Middleware wraps a ports.Backend to add cross-cutting functionality.
// Middleware composes: the first middleware passed to New is the outermost.
type Middleware func(ports.Backend) ports.Backend

// Chain applies middleware to b so that mw[0] is the outermost layer.
func Chain(b ports.Backend, mw ...Middleware) ports.Backend {
	for i := len(mw) - 1; i >= 0; i-- {
		b = mw[i](b)
	}
	return b
}

var _ ports.Backend = (*HTTPBackend)(nil)

// HTTPBackend computes metrics by POSTing JSON to {BaseURL}/metrics/{id}.
// The request body is {"inputs": ..., "context": ...}; a 2xx response body
// must be a JSON object whose fields form the metric result. Numbers are
// decoded as json.Number so integer results keep full precision.
type HTTPBackend struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPBackend creates the HTTP transport without any middleware.
// It returns an error if the configuration is invalid.
func NewHTTPBackend(cfg Config) (*HTTPBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPBackend{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
	}, nil
}

// New creates an HTTP backend wrapped in mw. The first middleware is the
// outermost.
func New(cfg Config, mw ...Middleware) (ports.Backend, error) {
	core, err := NewHTTPBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend %q: %w", cfg.Name, err)
	}
	return Chain(core, mw...), nil
}

// Name implements ports.Backend.
func (h *HTTPBackend) Name() string { return h.name }

type computeBody struct {
	Inputs  domain.Inputs     `json:"inputs,omitempty"`
	Context map[string]string `json:"context,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Compute implements ports.Backend.
func (h *HTTPBackend) Compute(ctx context.Context, req ports.BackendRequest) (domain.MetricResult, error) {
	body, err := json.Marshal(computeBody{Inputs: req.Inputs, Context: req.Context})
	if err != nil {
		return nil, ports.NewBackendCallError(h.name, req.MetricID, fmt.Errorf("encode inputs: %w", err))
	}

	endpoint := h.baseURL + "/metrics/" + url.PathEscape(req.MetricID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, ports.NewBackendCallError(h.name, req.MetricID, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if h.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ports.NewBackendCallError(h.name, req.MetricID, fmt.Errorf("%w: %v", ports.ErrServiceUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(h.name, req.MetricID, resp, readErrorMessage(resp.Body))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var result domain.MetricResult
	if err := dec.Decode(&result); err != nil {
		callErr := ports.NewBackendCallError(h.name, req.MetricID, fmt.Errorf("%w: %v", ports.ErrInvalidResponse, err))
		callErr.StatusCode = resp.StatusCode
		return nil, callErr
	}
	if result == nil {
		result = domain.MetricResult{}
	}
	return result, nil
}

// readErrorMessage extracts {"error": "..."} or a short plain-text body.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var eb errorBody
	if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
		return eb.Error
	}
	return strings.TrimSpace(string(data))
}
