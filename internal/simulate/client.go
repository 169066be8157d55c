package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/dropwatch/internal/domain/clears"
	"github.com/okian/dropwatch/internal/domain/model"
)

// ErrUnexpectedStatus is returned when the server answers with a status the
// caller did not expect.
var ErrUnexpectedStatus = errors.New("unexpected status")

const (
	maxRateLimitRetries = 10
	defaultRetryAfter   = time.Second
)

// Outcome classifies the server's answer to a recorded clear.
type Outcome int

const (
	Accepted Outcome = iota
	Duplicate
	Rejected
)

// Client talks to the dropwatch HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return expect(resp, http.StatusOK)
}

// Bosses fetches the boss catalog.
func (c *Client) Bosses(ctx context.Context) ([]model.Boss, error) {
	var out []model.Boss
	if err := c.getJSON(ctx, "/bosses", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RecordClear posts one clear. A rate-limited request is retried after the
// server's Retry-After delay.
func (c *Client) RecordClear(ctx context.Context, in clears.RecordInput) (Outcome, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return Rejected, fmt.Errorf("encode clear: %w", err)
	}

	for attempt := 1; ; attempt++ {
		resp, err := c.do(ctx, http.MethodPost, "/clears", bytes.NewReader(body))
		if err != nil {
			return Rejected, err
		}

		switch {
		case resp.StatusCode == http.StatusCreated:
			drain(resp)
			return Accepted, nil
		case resp.StatusCode == http.StatusConflict:
			drain(resp)
			return Duplicate, nil
		case resp.StatusCode == http.StatusTooManyRequests && attempt < maxRateLimitRetries:
			wait := retryAfter(resp)
			drain(resp)
			if err := sleepCtx(ctx, wait); err != nil {
				return Rejected, err
			}
		default:
			err := expect(resp, http.StatusCreated)
			drain(resp)
			return Rejected, err
		}
	}
}

// Recompute asks the server to rebuild the projection. It reports false
// when another recompute was already running.
func (c *Client) Recompute(ctx context.Context) (bool, error) {
	resp, err := c.do(ctx, http.MethodPost, "/internal/recompute", nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		drain(resp)
		return false, nil
	}
	if err := expect(resp, http.StatusOK); err != nil {
		return false, err
	}
	return true, nil
}

// Stats fetches every published stat.
func (c *Client) Stats(ctx context.Context) ([]model.DropRateStat, error) {
	var out []model.DropRateStat
	if err := c.getJSON(ctx, "/stats?"+url.Values{"minSample": {"0"}}.Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := expect(resp, http.StatusOK); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func expect(resp *http.Response, status int) error {
	if resp.StatusCode == status {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%w: %s %s: %d: %s", ErrUnexpectedStatus,
		resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, bytes.TrimSpace(msg))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func retryAfter(resp *http.Response) time.Duration {
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultRetryAfter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
