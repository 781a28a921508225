package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPOptions configures an HTTP solver client.
type HTTPOptions struct {
	BaseURL string        // e.g. http://localhost:5000
	Timeout time.Duration // per request; default 10s
	Client  *http.Client  // default: otelhttp-instrumented client
}

// HTTP calls the solver's JSON endpoints /api/simulate and /api/measure.
type HTTP struct {
	baseURL string
	client  *http.Client
}

// NewHTTP creates an HTTP solver client.
func NewHTTP(opts HTTPOptions) *HTTP {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &HTTP{baseURL: strings.TrimRight(opts.BaseURL, "/"), client: opts.Client}
}

// Simulate implements Client.
func (c *HTTP) Simulate(ctx context.Context, req Request) (*Result, error) {
	var res Result
	if err := c.post(ctx, "/api/simulate", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Measure implements Client.
func (c *HTTP) Measure(ctx context.Context, req MeasureRequest) (Measurement, error) {
	var m Measurement
	if err := c.post(ctx, "/api/measure", req, &m); err != nil {
		return Measurement{}, err
	}
	if m.Error != "" {
		return Measurement{}, &ServiceError{Status: http.StatusOK, Message: m.Error}
	}
	return m, nil
}

func (c *HTTP) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("solver: encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("solver %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("solver %s: read: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		return &ServiceError{Status: resp.StatusCode, Message: e.Error}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("solver %s: %w", path, ErrEmptyResponse)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("solver %s: decode: %w", path, err)
	}
	return nil
}
