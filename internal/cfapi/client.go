// Package cfapi is a thin Codeforces REST client. Calls carry an explicit
// deadline and a small retry budget; the verdict/rating pollers run with a
// single attempt since their schedulers retry anyway.
package cfapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const DefaultBaseURL = "https://codeforces.com/api"

type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Problems fetches the full problemset catalog.
func (c *Client) Problems(ctx context.Context) ([]Problem, error) {
	var res problemsetResult
	if err := c.getJSON(ctx, "/problemset.problems", nil, &res, true); err != nil {
		return nil, err
	}
	return res.Problems, nil
}

// RecentSubmissions fetches the handle's most recent count submissions.
func (c *Client) RecentSubmissions(ctx context.Context, handle string, count int) ([]Submission, error) {
	if strings.TrimSpace(handle) == "" {
		return nil, errors.New("handle is required")
	}
	if count <= 0 {
		count = 20
	}
	q := url.Values{}
	q.Set("handle", strings.TrimSpace(handle))
	q.Set("from", "1")
	q.Set("count", strconv.Itoa(count))
	var res []Submission
	if err := c.getJSON(ctx, "/user.status", q, &res, false); err != nil {
		return nil, err
	}
	return res, nil
}

// UserRating fetches the handle's current rating; nil means unrated.
func (c *Client) UserRating(ctx context.Context, handle string) (*int, error) {
	if strings.TrimSpace(handle) == "" {
		return nil, errors.New("handle is required")
	}
	q := url.Values{}
	q.Set("handles", strings.TrimSpace(handle))
	var res []UserInfo
	if err := c.getJSON(ctx, "/user.info", q, &res, false); err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("user not found: %s", handle)
	}
	return res[0].Rating, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any, retry bool) error {
	uri := c.baseURL + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(uri)

	attempts := 1
	if retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			if attempt == attempts || !retry {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			err := fmt.Errorf("codeforces api error: status=%d body=%s", status, truncate(string(resp.Body()), 512))
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		var env envelope
		if err := json.Unmarshal(resp.Body(), &env); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if env.Status != "OK" {
			return fmt.Errorf("codeforces api failed: %s", truncate(env.Comment, 256))
		}
		if out != nil && len(env.Result) > 0 {
			if err := json.Unmarshal(env.Result, out); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
