// Package fetch retrieves roll-call documents from the clerk's publishing endpoint.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rpattn/rollcall/internal/domain"
	"github.com/rpattn/rollcall/internal/middleware"
)

// DefaultBaseURL is where the House clerk publishes roll-call XML.
const DefaultBaseURL = "https://clerk.house.gov/evs"

const maxDocumentBytes = 10 * 1024 * 1024 // 10 MiB

// Fetcher retrieves the raw document for one roll call.
type Fetcher interface {
	Fetch(ctx context.Context, rollCall int, year int) ([]byte, error)
}

// Client fetches documents over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	retry      RetryPolicy
	limiter    *rate.Limiter
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithBaseURL(base string) Option {
	return func(c *Client) {
		if strings.TrimSpace(base) != "" {
			c.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
		}
	}
}

// WithHTTPClient replaces the default client. Its transport is used as is.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout bounds each individual attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		if policy != nil {
			c.retry = policy
		}
	}
}

// WithRateLimit paces requests to at most perSecond across all callers.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client with a 30s per-attempt timeout and the default retry policy.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL: DefaultBaseURL,
		timeout: 30 * time.Second,
		retry:   DefaultRetryPolicy(),
		logger:  zap.NewNop(),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{
			Transport: middleware.NewLoggingTransport(http.DefaultTransport, client.logger),
		}
	}
	return client
}

// URL builds the address of a roll call document. The id is zero-padded to three digits.
func URL(base string, year int, rollCall int) string {
	return fmt.Sprintf("%s/%d/roll%03d.xml", strings.TrimRight(base, "/"), year, rollCall)
}

// Fetch returns the document body. Failures wrap domain.ErrNotFound for a 404
// and domain.ErrUnavailable for everything else; only the latter is retried.
func (c *Client) Fetch(ctx context.Context, rollCall int, year int) ([]byte, error) {
	address := URL(c.baseURL, year, rollCall)

	for attempt := 1; ; attempt++ {
		body, err := c.fetchOnce(ctx, address)
		if err == nil {
			return body, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		delay, retry := c.retry.Next(attempt, err)
		if !retry {
			return nil, err
		}

		c.logger.Warn("fetch failed, retrying",
			zap.Int("roll_call", rollCall),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err))

		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (c *Client) fetchOnce(ctx context.Context, address string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, address, nil)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", domain.ErrUnavailable, address, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: GET %s: HTTP %d", domain.ErrNotFound, address, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: GET %s: HTTP %d", domain.ErrUnavailable, address, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrUnavailable, address, err)
	}

	return body, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
