// Package ghclient wraps outbound provider calls with bounded retry,
// exponential backoff, and error classification. Two call shapes are
// supported: a plain parameterized fetch and a GraphQL query with a
// top-level error list. Quota metadata from every completed attempt is
// reported to the token pool before the call returns.
package ghclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/nikhilgg/oss-transparency/internal/errors"
	"github.com/nikhilgg/oss-transparency/internal/tokens"
)

const (
	defaultMaxAttempts     = 6
	defaultInitialInterval = time.Second
	defaultMaxInterval     = 60 * time.Second
	graphqlMaxInterval     = 120 * time.Second

	// graphqlCooldown is the extra pause after a rate limit surfaced inside a
	// GraphQL error payload rather than an HTTP status.
	graphqlCooldown = 30 * time.Second

	// retryAfterFallback applies when a secondary rate limit response carries
	// no Retry-After hint.
	retryAfterFallback = 60 * time.Second
)

// Client is the resilient call layer. A client with a token pool authenticates
// GitHub calls; a pool-less client serves public JSON endpoints.
type Client struct {
	httpClient  *http.Client
	pool        *tokens.Pool
	logger      *slog.Logger
	graphqlURL  string
	maxAttempts uint64
	cooldown    time.Duration

	// test seams
	initialInterval time.Duration
	sleep           func(ctx context.Context, d time.Duration) error
}

// NewClient creates a call layer for the authenticated GitHub API
func NewClient(pool *tokens.Pool, graphqlURL string, logger *slog.Logger) *Client {
	c := newBase(logger)
	c.pool = pool
	c.graphqlURL = graphqlURL
	return c
}

// NewPublicClient creates a call layer for unauthenticated JSON endpoints
// (registry metadata, vulnerability queries)
func NewPublicClient(logger *slog.Logger) *Client {
	return newBase(logger)
}

func newBase(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient:      &http.Client{Timeout: 60 * time.Second},
		logger:          logger,
		maxAttempts:     defaultMaxAttempts,
		cooldown:        graphqlCooldown,
		initialInterval: defaultInitialInterval,
		sleep:           sleepCtx,
	}
}

// Get performs a parameterized fetch and returns the response body.
// Transient failures are retried with exponential backoff; a 404 is
// surfaced immediately as a not-found error.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	return c.retry(ctx, defaultMaxInterval, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, backoff.Permanent(apperrors.NewFatalError("build request", err))
		}
		if params != nil {
			req.URL.RawQuery = params.Encode()
		}
		return c.doAttempt(ctx, req)
	})
}

// PostJSON performs a JSON POST and returns the response body
func (c *Client) PostJSON(ctx context.Context, rawURL string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.NewFatalError("encode request body", err)
	}

	return c.retry(ctx, defaultMaxInterval, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
		if err != nil {
			return nil, backoff.Permanent(apperrors.NewFatalError("build request", err))
		}
		req.Header.Set("Content-Type", "application/json")
		return c.doAttempt(ctx, req)
	})
}

// GraphQLResult is the generic GraphQL response envelope
type GraphQLResult struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// GraphQLError is one entry of a GraphQL top-level error list
type GraphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// GraphQL performs a structured query against the GitHub GraphQL endpoint.
// Rate limit messages inside the error payload are retried after a cooldown;
// a missing target resource is returned immediately as not-found; any other
// application error is returned to the caller unretried.
func (c *Client) GraphQL(ctx context.Context, query string, vars map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		return nil, apperrors.NewFatalError("encode GraphQL request", err)
	}

	body, err := c.retry(ctx, graphqlMaxInterval, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(payload))
		if err != nil {
			return nil, backoff.Permanent(apperrors.NewFatalError("build request", err))
		}
		req.Header.Set("Content-Type", "application/json")

		raw, err := c.doAttempt(ctx, req)
		if err != nil {
			return nil, err
		}

		var result GraphQLResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, apperrors.NewRetryableError("malformed GraphQL response", err)
		}

		if len(result.Errors) > 0 && isEmptyData(result.Data) {
			if err := c.classifyGraphQLErrors(ctx, result.Errors); err != nil {
				return nil, err
			}
		}
		return result.Data, nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// classifyGraphQLErrors maps an application-level error list to the error
// taxonomy. Returns a retryable error after cooling down on rate limit
// messages, a permanent not-found for missing resources, and a permanent
// fatal error otherwise.
func (c *Client) classifyGraphQLErrors(ctx context.Context, errs []GraphQLError) error {
	for _, e := range errs {
		msg := strings.ToLower(e.Message)
		if e.Type == "RATE_LIMITED" || strings.Contains(msg, "rate limit") {
			c.logger.Warn("GraphQL rate limit reported, cooling down", "cooldown", c.cooldown)
			if err := c.sleep(ctx, c.cooldown); err != nil {
				return backoff.Permanent(apperrors.NewFatalError("interrupted during cooldown", err))
			}
			return apperrors.NewRateLimitedError(e.Message, c.cooldown)
		}
	}
	for _, e := range errs {
		msg := strings.ToLower(e.Message)
		if e.Type == "NOT_FOUND" || strings.Contains(msg, "could not resolve") || strings.Contains(msg, "not found") {
			return backoff.Permanent(apperrors.NewNotFoundError("repository"))
		}
	}
	return backoff.Permanent(apperrors.NewFatalError(errs[0].Message, nil))
}

// doAttempt executes one HTTP attempt: acquire a token (when pooled), send,
// report quota metadata, classify the status code. The returned error is
// either retryable or wrapped in backoff.Permanent.
func (c *Client) doAttempt(ctx context.Context, req *http.Request) ([]byte, error) {
	var tokenName string
	if c.pool != nil {
		token, err := c.pool.Acquire(ctx)
		if err != nil {
			return nil, backoff.Permanent(apperrors.NewFatalError("acquire token", err))
		}
		tokenName = token.Name
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
		req.Header.Set("Authorization", "Bearer "+token.Secret)
	}
	req.Header.Set("User-Agent", "oss-transparency-research")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewRetryableError("request failed", err)
	}
	defer resp.Body.Close()

	// Fresh quota state must be visible to the next Acquire before this
	// call returns.
	if tokenName != "" {
		c.reportQuota(tokenName, resp)
	}

	body, readErr := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if readErr != nil {
			return nil, apperrors.NewRetryableError("read response body", readErr)
		}
		return body, nil

	case resp.StatusCode == http.StatusForbidden:
		// Secondary rate limit: honor the Retry-After hint, then let the
		// retry loop reissue the call. The token itself is not failed.
		hint := retryAfterHint(resp)
		c.logger.Warn("secondary rate limit, honoring Retry-After", "hint", hint, "url", req.URL.Path)
		if err := c.sleep(ctx, hint); err != nil {
			return nil, backoff.Permanent(apperrors.NewFatalError("interrupted during cooldown", err))
		}
		return nil, apperrors.NewRateLimitedError(fmt.Sprintf("HTTP 403 from %s", req.URL.Host), hint)

	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusInternalServerError,
		resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return nil, apperrors.NewRetryableError(fmt.Sprintf("HTTP %d from %s", resp.StatusCode, req.URL.Host), nil)

	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(apperrors.NewNotFoundError(req.URL.Path))

	default:
		return nil, backoff.Permanent(apperrors.NewFatalError(fmt.Sprintf("HTTP %d from %s", resp.StatusCode, req.URL.Host), nil))
	}
}

// retry drives an operation through the bounded exponential backoff policy:
// up to maxAttempts attempts, base delay doubling each attempt, capped at
// maxInterval. After exhausting attempts the last retryable error is
// surfaced to the caller as terminal.
func (c *Client) retry(ctx context.Context, maxInterval time.Duration, op func() ([]byte, error)) ([]byte, error) {
	b := c.newBackOff(maxInterval)
	return backoff.RetryWithData(op, backoff.WithContext(backoff.WithMaxRetries(b, c.maxAttempts-1), ctx))
}

// newBackOff builds the delay policy: doubling from the initial interval with
// no jitter, never exceeding maxInterval, no elapsed-time cutoff.
func (c *Client) newBackOff(maxInterval time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	return b
}

// reportQuota parses provider quota headers and reports them to the pool.
// Responses without quota headers report nothing.
func (c *Client) reportQuota(tokenName string, resp *http.Response) {
	remainingStr := resp.Header.Get("X-RateLimit-Remaining")
	if remainingStr == "" {
		return
	}
	remaining, err := strconv.Atoi(remainingStr)
	if err != nil {
		return
	}

	var resetAt time.Time
	if resetStr := resp.Header.Get("X-RateLimit-Reset"); resetStr != "" {
		if unix, err := strconv.ParseInt(resetStr, 10, 64); err == nil {
			resetAt = time.Unix(unix, 0)
		}
	}
	c.pool.Report(tokenName, remaining, resetAt)
}

func retryAfterHint(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return retryAfterFallback
}

func isEmptyData(data json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(data))
	return trimmed == "" || trimmed == "null" || trimmed == "{}"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
