package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/WessleyAI/wessley-schematic/engine/circuit"
	"github.com/WessleyAI/wessley-schematic/pkg/fn"
)

// StatusError is a non-success reply from the persistence service.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("store: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("store: status %d", e.Status)
}

// Unwrap maps 404 replies to ErrNotFound.
func (e *StatusError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// HTTPOptions configures an HTTP store client.
type HTTPOptions struct {
	BaseURL string
	Timeout time.Duration // per attempt; default 10s
	Client  *http.Client  // default: otelhttp-instrumented client
	Retry   fn.RetryOpts  // zero value: 3 attempts from 200ms
}

// HTTP talks to a persistence service exposing /api/saves.
type HTTP struct {
	baseURL string
	client  *http.Client
	retry   fn.RetryOpts
}

// NewHTTP creates an HTTP store client.
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
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = fn.RetryOpts{MaxAttempts: 3, InitialWait: 200 * time.Millisecond, MaxWait: 2 * time.Second, Jitter: true}
	}
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = transient
	}
	return &HTTP{baseURL: strings.TrimRight(opts.BaseURL, "/"), client: opts.Client, retry: opts.Retry}
}

var _ Store = (*HTTP)(nil)

// transient reports failures another attempt may fix: transport errors and
// server-side statuses.
func transient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (s *HTTP) List(ctx context.Context) ([]SaveInfo, error) {
	var out struct {
		Saves []SaveInfo `json:"saves"`
	}
	if err := s.do(ctx, http.MethodGet, "/api/saves", nil, &out); err != nil {
		return nil, err
	}
	if out.Saves == nil {
		out.Saves = []SaveInfo{}
	}
	sortNewest(out.Saves)
	return out.Saves, nil
}

func (s *HTTP) Get(ctx context.Context, id string) (circuit.Snapshot, error) {
	var out struct {
		Snapshot *circuit.Snapshot `json:"snapshot"`
	}
	if err := s.do(ctx, http.MethodGet, "/api/saves/"+url.PathEscape(id), nil, &out); err != nil {
		return circuit.Snapshot{}, err
	}
	if out.Snapshot == nil {
		return circuit.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *out.Snapshot, nil
}

func (s *HTTP) Put(ctx context.Context, name string, snap circuit.Snapshot, id string) (SaveInfo, error) {
	name = SafeName(name)
	if name == "" {
		return SaveInfo{}, ErrNoName
	}
	in := struct {
		ID       string           `json:"id,omitempty"`
		Name     string           `json:"name"`
		Snapshot circuit.Snapshot `json:"snapshot"`
	}{ID: id, Name: name, Snapshot: snap}
	var out struct {
		Save SaveInfo `json:"save"`
	}
	if err := s.do(ctx, http.MethodPost, "/api/saves", in, &out); err != nil {
		return SaveInfo{}, err
	}
	return out.Save, nil
}

func (s *HTTP) Delete(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodDelete, "/api/saves/"+url.PathEscape(id), nil, nil)
}

func (s *HTTP) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("store: encode %s: %w", path, err)
		}
	}
	res := fn.Retry(ctx, s.retry, func(ctx context.Context) fn.Result[[]byte] {
		data, err := s.once(ctx, method, path, body)
		return fn.FromPair(data, err)
	})
	data, err := res.Unwrap()
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("store %s %s: decode: %w", method, path, err)
	}
	return nil
}

func (s *HTTP) once(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("store %s %s: read: %w", method, path, err)
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		return nil, &StatusError{Status: resp.StatusCode, Message: e.Error}
	}
	return data, nil
}
