package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"golang.org/x/time/rate"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	// DefaultTimeout is the per-request timeout
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize is the maximum response body size (10MB)
	MaxResponseSize = 10 * 1024 * 1024

	// MaxAttempts is the total request budget, including the first try
	MaxAttempts = 5

	// BackoffMin is the initial backoff for transient errors
	BackoffMin = 1 * time.Second

	// BackoffMax caps the exponential backoff
	BackoffMax = 60 * time.Second

	// DefaultRetryAfter is used when a 429 carries no Retry-After header
	DefaultRetryAfter = 30 * time.Second
)

// ErrTransient marks errors that exhausted the retry budget on retryable
// failures. Callers can errors.Is against it to distinguish provider
// instability from hard request errors.
var ErrTransient = errors.New("transient azure api error")

func isRetriableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// TokenProvider supplies a bearer token for a given Azure AD tenant.
type TokenProvider interface {
	Token(ctx context.Context, azureTenantID string) (string, error)
}

// Config holds Azure management API client configuration
type Config struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		Timeout:           DefaultTimeout,
		RequestsPerSecond: 10,
		Burst:             5,
	}
}

// Client is a resilient Azure management API client. It retries transient
// failures with exponential backoff, honors 429 Retry-After waits, and
// paces outbound requests with a client-side rate limiter.
type Client struct {
	client  *http.Client
	tokens  TokenProvider
	limiter *rate.Limiter
	logger  ectologger.Logger

	// sleep is replaceable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new management API client
func NewClient(cfg Config, tokens TokenProvider, logger ectologger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	return &Client{
		client:  &http.Client{Timeout: cfg.Timeout},
		tokens:  tokens,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GetJSON performs an authenticated GET and decodes the JSON response into dest.
func (c *Client) GetJSON(ctx context.Context, azureTenantID, url string, dest any) error {
	return c.Do(ctx, azureTenantID, http.MethodGet, url, nil, dest)
}

// PostJSON performs an authenticated POST with a JSON body and decodes the
// JSON response into dest.
func (c *Client) PostJSON(ctx context.Context, azureTenantID, url string, body, dest any) error {
	return c.Do(ctx, azureTenantID, http.MethodPost, url, body, dest)
}

// Do executes an authenticated management API request with retry and
// throttle handling. 429 waits honor the Retry-After header and do not
// advance the backoff schedule; 5xx and transport errors back off
// exponentially from 1s to a 60s cap. Non-429 4xx responses fail fast.
func (c *Client) Do(ctx context.Context, azureTenantID, method, url string, body, dest any) error {
	ctx, span := tracing.StartSpan(ctx, "azure.Client.Do")
	defer span.End()

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	backoff := BackoffMin
	var lastErr error

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		token, err := c.tokens.Token(ctx, azureTenantID)
		if err != nil {
			return fmt.Errorf("failed to acquire access token: %w", err)
		}

		result, err := c.attempt(ctx, method, url, token, bodyBytes, attempt)
		if err == nil {
			if dest != nil && len(result) > 0 {
				if err := json.Unmarshal(result, dest); err != nil {
					return fmt.Errorf("failed to decode response body: %w", err)
				}
			}
			return nil
		}

		var throttle *throttleError
		switch {
		case errors.As(err, &throttle):
			// Retry-After waits are the provider's pacing, not ours. The
			// backoff schedule stays where it was.
			metrics.AzureThrottlesTotal.Inc()
			if attempt >= MaxAttempts {
				return fmt.Errorf("%w: throttled after %d attempts: %v", ErrTransient, attempt, err)
			}
			if sleepErr := c.sleep(ctx, throttle.retryAfter); sleepErr != nil {
				return sleepErr
			}
			lastErr = err

		case errors.Is(err, errRetriable):
			if attempt >= MaxAttempts {
				return fmt.Errorf("%w: exhausted %d attempts: %v", ErrTransient, attempt, err)
			}
			if sleepErr := c.sleep(ctx, backoff); sleepErr != nil {
				return sleepErr
			}
			backoff *= 2
			if backoff > BackoffMax {
				backoff = BackoffMax
			}
			lastErr = err

		default:
			// Non-retryable: 4xx or a hard failure
			return err
		}
	}

	return fmt.Errorf("%w: exhausted %d attempts: %v", ErrTransient, MaxAttempts, lastErr)
}

// errRetriable marks 5xx and transport failures inside a single attempt.
var errRetriable = errors.New("retriable")

type throttleError struct {
	retryAfter time.Duration
}

func (e *throttleError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.retryAfter)
}

func (c *Client) attempt(ctx context.Context, method, url, token string, body []byte, attempt int) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if requestID := appctx.GetRequestID(ctx); requestID != "" {
		req.Header.Set("x-ms-correlation-request-id", requestID)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)

	fields := map[string]any{
		"method":          method,
		"url":             url,
		"attempt":         attempt,
		"duration_ms":     duration.Milliseconds(),
		"tenant_id":       appctx.GetTenantID(ctx),
		"subscription_id": appctx.GetSubscriptionID(ctx),
	}

	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(fields).Warn("azure api network error")
		metrics.RecordAzureRequest(method, "network_error", duration.Seconds())
		return nil, fmt.Errorf("%w: %v", errRetriable, err)
	}
	defer resp.Body.Close()

	fields["status"] = resp.StatusCode
	metrics.RecordAzureRequest(method, strconv.Itoa(resp.StatusCode), duration.Seconds())

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", errRetriable, err)
	}
	if len(respBody) > MaxResponseSize {
		return nil, fmt.Errorf("response body too large: %d bytes (max %d)", len(respBody), MaxResponseSize)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := DefaultRetryAfter
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil && seconds >= 0 {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		c.logger.WithContext(ctx).WithFields(fields).WithField("retry_after", retryAfter.String()).Warn("azure api throttled")
		return nil, &throttleError{retryAfter: retryAfter}

	case isRetriableStatus(resp.StatusCode):
		c.logger.WithContext(ctx).WithFields(fields).Warn("azure api transient error")
		return nil, fmt.Errorf("%w: status %d", errRetriable, resp.StatusCode)

	case resp.StatusCode >= 400:
		c.logger.WithContext(ctx).WithFields(fields).Error("azure api request failed")
		return nil, httperror.NewHTTPErrorf(resp.StatusCode, "azure api error: %s", truncate(respBody, 512))
	}

	c.logger.WithContext(ctx).WithFields(fields).Debug("azure api request")
	return respBody, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
