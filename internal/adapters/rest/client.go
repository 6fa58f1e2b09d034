// Package rest is a RecordStore over a PostgREST-style HTTP API
// (the hosted backend's /rest/v1 surface).
package rest

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

	"golang.org/x/time/rate"

	"lender_directory/internal/adapters/observability"
	"lender_directory/internal/adapters/retry"
	"lender_directory/internal/domain"
)

var (
	ErrUnauthorized = errors.New("rest: unauthorized")
	ErrForbidden    = errors.New("rest: forbidden")
)

const maxAttempts = 4

type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func New(base, key string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if base == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// request is one call against a table endpoint.
type request struct {
	method string
	table  string
	query  url.Values
	body   any
	prefer string
}

// idempotent calls are retried on transport errors and 5xx; POST only when
// the server says it did not process the request (429).
func (r request) idempotent() bool { return r.method != http.MethodPost }

// do performs the call with client-side rate limiting and retries, decoding
// a JSON reply into out when non-nil.
func (c *Client) do(ctx context.Context, r request, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var payload []byte
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", r.table, err)
		}
		payload = b
	}
	u := c.base + "/" + url.PathEscape(r.table)
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		// build a fresh request each attempt
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, r.method, u, body)
		if err != nil {
			return err
		}
		req.Header.Set("apikey", c.key)
		req.Header.Set("Authorization", "Bearer "+c.key)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "lender-directory/1.0")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if r.prefer != "" {
			req.Header.Set("Prefer", r.prefer)
		}

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("rest", r.table, 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("%s %s: %w: %v", r.method, r.table, domain.ErrUnavailable, err)
			if r.idempotent() && i < maxAttempts-1 && retry.Sleep(ctx, retry.Backoff(i, 0)) {
				continue
			}
			return lastErr
		}
		observability.ObserveExternal("rest", r.table, resp.StatusCode, time.Since(start))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			defer resp.Body.Close()
			if out == nil || resp.StatusCode == http.StatusNoContent {
				_, _ = io.Copy(io.Discard, resp.Body)
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode %s reply: %w", r.table, err)
			}
			return nil

		case resp.StatusCode == http.StatusTooManyRequests ||
			(resp.StatusCode >= 500 && r.idempotent()):
			// Prefer server-provided Retry-After; otherwise exponential backoff.
			wait := retry.After(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = retry.Backoff(i, 0)
			}
			lastErr = fmt.Errorf("%s %s: %w: remote %d", r.method, r.table, domain.ErrUnavailable, resp.StatusCode)
			if i < maxAttempts-1 && retry.Sleep(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			return statusErr(r, resp)
		}
	}
	return lastErr
}

// statusErr maps a non-retryable reply onto the domain errors.
func statusErr(r request, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	msg := strings.TrimSpace(string(b))

	var sentinel error
	switch resp.StatusCode {
	case http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case http.StatusConflict:
		sentinel = domain.ErrConstraint
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		sentinel = domain.ErrValidation
	case http.StatusUnauthorized:
		sentinel = ErrUnauthorized
	case http.StatusForbidden:
		sentinel = ErrForbidden
	default:
		if resp.StatusCode >= 500 {
			sentinel = domain.ErrUnavailable
		} else {
			return fmt.Errorf("%s %s: bad status %d: %s", r.method, r.table, resp.StatusCode, msg)
		}
	}
	return fmt.Errorf("%s %s: %w: %s", r.method, r.table, sentinel, msg)
}
