package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrExhausted is returned when no path produced an acceptable response.
var ErrExhausted = errors.New("all network paths failed")

// Chain tries a request over an ordered list of paths and stops at the first
// one that answers with HTTP success and a body the caller accepts.
// Every attempt gets its own timeout; there is no backoff between paths.
type Chain struct {
	client  *resty.Client
	paths   []Path
	timeout time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewChain creates a Chain. A nil limiter disables rate limiting.
func NewChain(client *resty.Client, paths []Path, timeout time.Duration, limiter *rate.Limiter, logger *zap.Logger) *Chain {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Chain{
		client:  client,
		paths:   paths,
		timeout: timeout,
		limiter: limiter,
		logger:  logger,
	}
}

// Fetch returns the first acceptable body. accept may be nil to take any
// successful response. Bodies wrapped by relays as {"contents": "..."} are
// unwrapped before accept sees them.
func (c *Chain) Fetch(ctx context.Context, req Request, accept func([]byte) bool) ([]byte, error) {
	var lastErr error

	for _, path := range c.paths {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		body, err := c.attempt(ctx, path, req)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", path.Name(), err)
			c.logger.Debug("Network path failed",
				zap.String("path", path.Name()),
				zap.String("url", req.URL),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		if accept != nil && !accept(body) {
			lastErr = fmt.Errorf("%s: response rejected", path.Name())
			c.logger.Debug("Network path returned unusable body",
				zap.String("path", path.Name()),
				zap.String("url", req.URL),
			)
			continue
		}

		return body, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no paths configured")
	}
	return nil, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

func (c *Chain) attempt(ctx context.Context, path Path, req Request) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := path.Do(attemptCtx, c.client, req)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &StatusError{Code: resp.StatusCode(), Body: truncate(resp.String(), 200)}
	}
	return Unwrap(resp.Body()), nil
}

// Get fetches req over chain and parses the first body parse accepts.
func Get[T any](ctx context.Context, chain *Chain, req Request, parse func([]byte) (T, bool)) (T, error) {
	var out T
	_, err := chain.Fetch(ctx, req, func(body []byte) bool {
		v, ok := parse(body)
		if ok {
			out = v
		}
		return ok
	})
	return out, err
}

// StatusError is a non-2xx answer from one path.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Code, e.Body)
}

type wrapped struct {
	Contents *string `json:"contents"`
}

// Unwrap returns the inner payload of relays that answer {"contents": "..."}
// and body unchanged otherwise.
func Unwrap(body []byte) []byte {
	var w wrapped
	if err := json.Unmarshal(body, &w); err != nil || w.Contents == nil {
		return body
	}
	return []byte(*w.Contents)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
