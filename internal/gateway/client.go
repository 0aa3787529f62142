package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/acme/settlement/internal/config"
)

const maxBodyBytes = 32 << 20

// Options configures a Client. Zero values fall back to the defaults noted on
// each field.
type Options struct {
	BaseURL     string
	Timeout     time.Duration // per attempt, default 30s
	MaxRetries  int           // total attempts, default 3
	BackoffBase time.Duration // default 1s
	BackoffMax  time.Duration // default 10s
	Jitter      float64       // fraction of the delay added at random

	// Retryable classifies 4xx/5xx statuses as transient. Default retries all
	// of them except DefaultNonRetryable.
	Retryable func(status int) bool

	HTTPClient *http.Client
	Sleep      func(ctx context.Context, d time.Duration) error
	Rand       func() float64
	Logger     *slog.Logger
}

// DefaultNonRetryable are well-formed client errors that repeat identically.
var DefaultNonRetryable = []int{
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusMethodNotAllowed,
	http.StatusGone,
	http.StatusUnprocessableEntity,
}

// RetryAllExcept returns a predicate retrying every 4xx/5xx status not listed.
func RetryAllExcept(codes ...int) func(int) bool {
	skip := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		skip[c] = struct{}{}
	}
	return func(status int) bool {
		if status < 400 || status > 599 {
			return false
		}
		_, ok := skip[status]
		return !ok
	}
}

// OptionsFromConfig maps process configuration onto client options.
func OptionsFromConfig(cfg config.APIConfig, logger *slog.Logger) Options {
	return Options{
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: cfg.BackoffBase,
		BackoffMax:  cfg.BackoffMax,
		Jitter:      cfg.BackoffJitter,
		Retryable:   RetryAllExcept(cfg.NonRetryableStatuses...),
		Logger:      logger,
	}
}

// Client is a retrying JSON client for the payments API. It is safe for
// concurrent use.
type Client struct {
	baseURL     string
	timeout     time.Duration
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	jitter      float64
	retryable   func(int) bool
	httpClient  *http.Client
	sleep       func(context.Context, time.Duration) error
	rand        func() float64
	logger      *slog.Logger
}

// New builds a Client from opts.
func New(opts Options) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		timeout:     opts.Timeout,
		maxAttempts: opts.MaxRetries,
		backoffBase: opts.BackoffBase,
		backoffMax:  opts.BackoffMax,
		jitter:      opts.Jitter,
		retryable:   opts.Retryable,
		httpClient:  opts.HTTPClient,
		sleep:       opts.Sleep,
		rand:        opts.Rand,
		logger:      opts.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 3
	}
	if c.backoffBase <= 0 {
		c.backoffBase = time.Second
	}
	if c.backoffMax <= 0 {
		c.backoffMax = 10 * time.Second
	}
	if c.retryable == nil {
		c.retryable = RetryAllExcept(DefaultNonRetryable...)
	}
	if c.httpClient == nil {
		c.httpClient = newHTTPClient()
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	if c.rand == nil {
		c.rand = rand.Float64
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 25,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}

// Fetch GETs path with query, retrying transient failures with exponential
// backoff. A cancelled ctx stops the loop and its error is returned as is.
func (c *Client) Fetch(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var failed []Attempt
	lastStatus := 0
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		status, body, err := c.do(ctx, target)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if err == nil {
			switch {
			case status >= 200 && status < 300:
				if !json.Valid(body) {
					return nil, &APIError{Kind: ErrMalformedResponse, Path: path, StatusCode: status, Attempts: failed,
						Err: fmt.Errorf("response body is not valid JSON (%d bytes)", len(body))}
				}
				if len(failed) > 0 {
					c.logger.Info("upstream call recovered", "path", path, "attempts", attempt)
				}
				return json.RawMessage(body), nil
			case !c.retryable(status):
				kind := ErrRejected
				if status == http.StatusNotFound {
					kind = ErrNotFound
				}
				c.logger.Warn("upstream call rejected",
					"path", path,
					"attempt", attempt,
					"status", status,
				)
				return nil, &APIError{Kind: kind, Path: path, StatusCode: status, Attempts: failed}
			}
		}

		rec := Attempt{Number: attempt, StatusCode: status}
		if err != nil {
			rec.Error = err.Error()
		}
		lastStatus = status

		if attempt == c.maxAttempts {
			failed = append(failed, rec)
			break
		}

		rec.Delay = c.backoff(attempt)
		failed = append(failed, rec)
		c.logger.Warn("upstream call failed, retrying",
			"path", path,
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"status", status,
			"error", rec.Error,
			"delay", rec.Delay,
		)
		if err := c.sleep(ctx, rec.Delay); err != nil {
			return nil, err
		}
	}

	apiErr := &APIError{Kind: ErrUpstreamUnavailable, Path: path, StatusCode: lastStatus, Attempts: failed}
	c.logger.Error("upstream call exhausted retries", "path", path, "attempts", failed)
	return nil, apiErr
}

// do performs one attempt bounded by the per-attempt timeout. A non-nil error
// means a transport failure, including the attempt timing out.
func (c *Client) do(ctx context.Context, target string) (int, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, nil, fmt.Errorf("timed out after %s", c.timeout)
		}
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// backoff returns the delay after the given failed attempt: base doubling per
// attempt, jitter added, capped at backoffMax.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.backoffMax
	if shift := attempt - 1; shift < 32 {
		if exp := c.backoffBase << uint(shift); exp > 0 && exp < c.backoffMax {
			d = exp
		}
	}
	if c.jitter > 0 {
		d += time.Duration(c.rand() * c.jitter * float64(d))
	}
	if d > c.backoffMax {
		d = c.backoffMax
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
