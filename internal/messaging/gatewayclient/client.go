// Package gatewayclient talks to the chat gateway that bridges customer
// messaging sessions (one logged-in number per session) to HTTP.
package gatewayclient

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

	"github.com/google/uuid"

	"github.com/wolfman30/storefront-ai/pkg/logging"
)

const (
	userAgent        = "storefront-gateway-client/0.2"
	idempotencyKey   = "Idempotency-Key"
	defaultTimeout   = 10 * time.Second
	defaultBackoff   = 250 * time.Millisecond
	maxRetryAfter    = 30 * time.Second
	maxErrorBodySize = 4 << 10
)

// Config controls how the gateway client behaves.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client wraps the gateway REST endpoints. Writes carry an idempotency key
// that is reused across retries so the gateway can drop replays.
type Client struct {
	base   *url.URL
	apiKey string
	http   *http.Client
	retry  retryPolicy
	logger *logging.Logger
}

func New(cfg Config) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("gatewayclient: base URL is required")
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gatewayclient: invalid base URL %q", raw)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
		if cfg.Timeout > 0 {
			httpClient.Timeout = cfg.Timeout
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	retry := retryPolicy{attempts: max(cfg.MaxRetries, 0) + 1, backoff: cfg.Backoff}
	if retry.backoff <= 0 {
		retry.backoff = defaultBackoff
	}
	return &Client{base: base, apiKey: cfg.APIKey, http: httpClient, retry: retry, logger: logger}, nil
}

// SendTextRequest is an outbound text message on a session.
type SendTextRequest struct {
	SessionID string `json:"-"`
	To        string `json:"to"`
	Text      string `json:"text"`
}

// SendTextResponse acknowledges a queued message.
type SendTextResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// SessionStatus describes a gateway session.
type SessionStatus struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	QRCode    string `json:"qr_code,omitempty"`
}

func (c *Client) SendText(ctx context.Context, req SendTextRequest) (*SendTextResponse, error) {
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.To) == "" {
		return nil, errors.New("gatewayclient: session and recipient required")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("gatewayclient: text required")
	}
	var out SendTextResponse
	if err := c.call(ctx, http.MethodPost, sessionPath(req.SessionID, "messages"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartSession creates (or returns) a session on the gateway.
func (c *Client) StartSession(ctx context.Context, sessionID string) (*SessionStatus, error) {
	var out SessionStatus
	if err := c.call(ctx, http.MethodPost, "sessions", map[string]string{"session_id": sessionID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReconnectSession asks the gateway to restore a dropped session.
func (c *Client) ReconnectSession(ctx context.Context, sessionID string) (*SessionStatus, error) {
	var out SessionStatus
	if err := c.call(ctx, http.MethodPost, sessionPath(sessionID, "reconnect"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CloseSession logs the session out and frees gateway resources.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	return c.call(ctx, http.MethodDelete, sessionPath(sessionID), nil, nil)
}

func sessionPath(sessionID string, rest ...string) string {
	return strings.Join(append([]string{"sessions", url.PathEscape(sessionID)}, rest...), "/")
}

// call performs one logical request, retrying transient failures. in is
// JSON-encoded when non-nil; out is decoded when non-nil and the body is not
// empty.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("gatewayclient: encode %s: %w", path, err)
		}
	}
	target := c.base.JoinPath(path).String()
	key := uuid.NewString()

	for attempt := 1; ; attempt++ {
		data, wait, err := c.once(ctx, method, target, key, body)
		if err == nil {
			return decodeInto(data, out)
		}
		if wait < 0 || attempt >= c.retry.attempts {
			return err
		}
		if wait == 0 {
			wait = c.retry.delay(attempt)
		}
		c.logger.Warn("gateway request retry", "method", method, "path", path, "attempt", attempt, "wait", wait.String(), "error", err)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// once sends a single attempt. wait is negative when the failure must not be
// retried and positive when the gateway asked for a specific delay.
func (c *Client) once(ctx context.Context, method, target, key string, body []byte) ([]byte, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, -1, fmt.Errorf("gatewayclient: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set(idempotencyKey, key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, -1, ctx.Err()
		}
		return nil, 0, fmt.Errorf("gatewayclient: %s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, -1, fmt.Errorf("gatewayclient: read response: %w", err)
		}
		return data, 0, nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	apiErr := newAPIError(resp.StatusCode, data)
	if !retryableStatus(resp.StatusCode) {
		return nil, -1, apiErr
	}
	return nil, retryAfter(resp.Header.Get("Retry-After")), apiErr
}

type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

func (p retryPolicy) delay(attempt int) time.Duration {
	return p.backoff << (attempt - 1)
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// retryAfter reads a delay-seconds Retry-After header, capped. HTTP-date
// values are ignored in favor of the backoff schedule.
func retryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// APIError is a non-2xx gateway response.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message,omitempty"`
	Code       string `json:"code,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "gatewayclient: status " + strconv.Itoa(e.StatusCode)
	}
	return fmt.Sprintf("gatewayclient: status %d: %s", e.StatusCode, e.Message)
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{}
	if json.Unmarshal(body, apiErr) != nil {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	apiErr.StatusCode = status
	return apiErr
}

func decodeInto(data []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("gatewayclient: decode response: %w", err)
	}
	return nil
}
