// Package dashscope talks to the DashScope multimodal generation API and
// extracts the final result from its server-sent-event responses.
package dashscope

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"gojuon-server/auth"
	"gojuon-server/metrics"
)

const (
	headerSSE       = "X-DashScope-SSE"
	contentTypeJSON = "application/json"

	defaultMaxResponseBytes = 32 << 20
)

var (
	ErrTransport        = errors.New("upstream request failed")
	ErrResponseTooLarge = errors.New("upstream response too large")
	ErrRateLimited      = errors.New("rate limit exceeded")
)

// Result is the fully buffered upstream response.
type Result struct {
	ID     string
	Status int
	Raw    []byte
}

type Client struct {
	endpoint string
	model    string

	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	maxResponseBytes int64
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithLimiter makes every call wait for a token before going out.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		c.maxResponseBytes = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(endpoint, model string, options ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		model:    model,

		client: http.DefaultClient,
		logger: slog.Default(),

		maxResponseBytes: defaultMaxResponseBytes,
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// Synthesize posts text to the upstream with SSE enabled and returns the
// whole response body. The upstream status code is reported but not
// interpreted; callers decide from the body.
func (c *Client) Synthesize(ctx context.Context, apiKey, text string) (*Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
	}

	id := uuid.NewString()
	logger := c.logger.With("synthesis_id", id)

	body, err := json.Marshal(NewPayload(c.model, text))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	logger.Debug("request body", "payload", string(body), "key", auth.Mask(apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.ContentLength = int64(len(body))
	req.Header.Set("Authorization", auth.Bearer(apiKey))
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set(headerSSE, "enable")

	start := time.Now()
	defer func() {
		metrics.Get().TTSUpstreamSeconds.Observe(time.Since(start).Seconds())
	}()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	if int64(len(raw)) > c.maxResponseBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, c.maxResponseBytes)
	}

	logger.Debug("raw SSE response", "status", resp.StatusCode, "body", Truncate(string(raw), 1000))

	return &Result{
		ID:     id,
		Status: resp.StatusCode,
		Raw:    raw,
	}, nil
}
