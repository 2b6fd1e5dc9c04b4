// Package site holds the shared HTTP core the per-destination adapters build
// on: timeout, bearer auth, client-side rate limiting and a circuit breaker,
// so one flaky listing service cannot absorb a whole worker batch budget.
package site

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Config describes one destination's endpoint and limits.
type Config struct {
	BaseURL   string
	APIToken  string
	Timeout   time.Duration
	RateLimit float64 // requests per minute
	RateBurst int

	CBFailureThreshold uint32
	CBRecoveryTime     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 30
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 5
	}
	if c.CBFailureThreshold == 0 {
		c.CBFailureThreshold = 5
	}
	if c.CBRecoveryTime <= 0 {
		c.CBRecoveryTime = time.Minute
	}
	return c
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker CircuitBreaker
}

func NewClient(name string, cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit)/60, cfg.RateBurst),
		breaker: NewBreaker(name, cfg),
	}
}

// PostJSON sends body as JSON to path, decoding into out when non-nil.
// Statuses >= 400 become errors carrying the response body.
func (c *Client) PostJSON(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, path, "application/json", func() (io.Reader, error) {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		return bytes.NewBuffer(b), nil
	}, out)
}

// PostForm submits form-encoded values, for destinations that only accept a
// submission form.
func (c *Client) PostForm(ctx context.Context, path string, values url.Values) error {
	return c.do(ctx, path, "application/x-www-form-urlencoded", func() (io.Reader, error) {
		return strings.NewReader(values.Encode()), nil
	}, nil)
}

func (c *Client) do(ctx context.Context, path, contentType string, makeBody func() (io.Reader, error), out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	return c.breaker.Execute(func() error {
		body, err := makeBody()
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, body)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)
		if c.cfg.APIToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			bodyBytes, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				return fmt.Errorf("site error: %s (failed to read body: %v)", resp.Status, readErr)
			}
			return fmt.Errorf("site error: %s: %s", resp.Status, string(bodyBytes))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return err
			}
		}
		return nil
	})
}
