package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/thatsimonsguy/smarthome-controller/internal/breaker"
)

// Store is the remote state tree. Get returns nil for a path that holds no value.
type Store interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Patch(ctx context.Context, path string, doc any) error
	Put(ctx context.Context, path string, value any) error
}

type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.Code)
}

type Options struct {
	Timeout time.Duration
	Retries int
	// delay between attempts
	Backoff time.Duration
	Breaker *gobreaker.CircuitBreaker
}

// Client talks to a Firebase Realtime Database over its REST interface.
type Client struct {
	baseURL string
	http    *http.Client
	opts    Options
}

func NewClient(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 100 * time.Millisecond
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		opts:    opts,
	}
}

// URL builds the REST endpoint for a path: "/" maps to "<base>/.json".
func (c *Client) URL(path string) string {
	return c.baseURL + "/" + strings.Trim(path, "/") + ".json"
}

func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	var body []byte
	err := c.do(ctx, http.MethodGet, path, nil, func(b []byte) { body = b })
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	return json.RawMessage(trimmed), nil
}

func (c *Client) Patch(ctx context.Context, path string, doc any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal patch for %s: %w", path, err)
	}
	return c.do(ctx, http.MethodPatch, path, payload, nil)
}

func (c *Client) Put(ctx context.Context, path string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %s: %w", path, err)
	}
	return c.do(ctx, http.MethodPut, path, payload, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, onBody func([]byte)) error {
	call := func(ctx context.Context) error {
		policy := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(c.opts.Backoff), uint64(c.opts.Retries)),
			ctx,
		)
		return backoff.RetryNotify(func() error {
			err := c.once(ctx, method, path, payload, onBody)
			if err != nil && !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}, policy, func(err error, wait time.Duration) {
			log.Debug().Err(err).Str("method", method).Str("path", path).Dur("wait", wait).Msg("Retrying remote call")
		})
	}

	if c.opts.Breaker == nil {
		return call(ctx)
	}
	return breaker.Execute(ctx, c.opts.Breaker, call)
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, onBody func([]byte)) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: failed to read body: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode}
	}
	if onBody != nil {
		onBody(body)
	}
	return nil
}

// client errors other than throttling will not change on retry
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return true
}
