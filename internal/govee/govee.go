// Package govee sends light commands to a Govee device through Govee's cloud
// API. The client is stateless with regard to the light itself: it always
// sends full command parameters and leaves change detection to the caller.
// All calls run through a backoff policy and feed the connection health
// counters used by the reconciler's recovery logic.
package govee

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/clambin/meeting-light/pkg/backoff"
)

const goveeAPIURL = "https://developer-api.govee.com/v1"

// rate-limit responses without a Retry-After header wait this long
const defaultRetryAfter = 5 * time.Second

// failures are escalated to the log once this many calls failed in a row
const maxConsecutiveFailures = 5

// Health tracks the connection to the Govee API. It's updated by every
// device call (commands and probes alike) and drives recovery decisions.
type Health struct {
	LastSuccess         time.Time `json:"lastSuccess,omitzero"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
}

// Client controls one Govee light. A single mutex serializes all calls
// (Apply and Ping) and guards the health counters, so the reconciler and the
// health monitor never race on the device.
type Client struct {
	apiKey     string
	device     string
	model      string
	policy     backoff.Policy
	logger     *slog.Logger
	baseURL    string
	httpClient *http.Client

	lock   sync.Mutex
	health Health
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the Govee API endpoint. Used in tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets the HTTP client, e.g. one with an instrumented transport.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient returns a Client for the given device.
func NewClient(apiKey, device, model string, policy backoff.Policy, logger *slog.Logger, options ...Option) *Client {
	c := Client{
		apiKey:     apiKey,
		device:     device,
		model:      model,
		policy:     policy,
		logger:     logger,
		baseURL:    goveeAPIURL,
		httpClient: http.DefaultClient,
	}
	for _, option := range options {
		option(&c)
	}
	return &c
}

// Apply sets the light to the desired state. The full command is sent
// regardless of what the device currently shows.
func (c *Client) Apply(ctx context.Context, cmd Command) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.logger.Debug("applying light state", "command", cmd.String())
	err := c.apply(ctx, cmd)
	c.record(err)
	return err
}

func (c *Client) apply(ctx context.Context, cmd Command) error {
	if !cmd.Power {
		return c.control(ctx, "turn", "off")
	}
	if cmd.Color != nil {
		if err := c.control(ctx, "color", map[string]uint8{"r": cmd.Color.R, "g": cmd.Color.G, "b": cmd.Color.B}); err != nil {
			return err
		}
	} else if err := c.control(ctx, "colorTem", cmd.Temperature); err != nil {
		return err
	}
	return c.control(ctx, "brightness", min(max(cmd.Brightness, 0), 100))
}

// Ping probes the Govee API by listing the account's devices. It's cheaper
// than a control call and doesn't visibly touch the light.
func (c *Client) Ping(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	err := c.policy.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/devices", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Govee-API-Key", c.apiKey)
		return c.do(req)
	})
	c.record(err)
	return err
}

// GetHealth returns a snapshot of the connection health.
func (c *Client) GetHealth() Health {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.health
}

// ResetHealth clears the failure counter, e.g. after a wake from sleep when
// past failures no longer say anything about the current connection.
func (c *Client) ResetHealth() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.health.ConsecutiveFailures = 0
}

func (c *Client) control(ctx context.Context, name string, value any) error {
	payload, _ := json.Marshal(struct {
		Device string `json:"device"`
		Model  string `json:"model"`
		Cmd    struct {
			Name  string `json:"name"`
			Value any    `json:"value"`
		} `json:"cmd"`
	}{
		Device: c.device,
		Model:  c.model,
		Cmd: struct {
			Name  string `json:"name"`
			Value any    `json:"value"`
		}{Name: name, Value: value},
	})

	return c.policy.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/devices/control", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Govee-API-Key", c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return c.do(req)
	})
}

// do performs the request and converts failures to typed errors, marked up
// for the backoff policy: transient errors retry on the exponential
// schedule, rate limits retry after the server's hint, the rest fail fast.
func (c *Client) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: ErrorTransient, Reason: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := retryAfter(resp)
		return backoff.RetryAfter(
			&Error{Kind: ErrorRateLimited, StatusCode: resp.StatusCode, RetryAfter: retryAfter, Reason: resp.Status},
			retryAfter,
		)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return backoff.Permanent(&Error{Kind: ErrorAuth, StatusCode: resp.StatusCode, Reason: resp.Status})
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return backoff.Permanent(&Error{Kind: ErrorMalformed, StatusCode: resp.StatusCode, Reason: resp.Status})
	default:
		return &Error{Kind: ErrorTransient, StatusCode: resp.StatusCode, Reason: resp.Status}
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultRetryAfter
}

// record updates the health counters after a terminal call outcome.
// Callers hold the lock.
func (c *Client) record(err error) {
	if err == nil {
		c.health.LastSuccess = time.Now()
		c.health.ConsecutiveFailures = 0
		return
	}
	c.health.ConsecutiveFailures++
	logger := c.logger.Warn
	if c.health.ConsecutiveFailures >= maxConsecutiveFailures {
		logger = c.logger.Error
	}
	logger("govee call failed",
		"err", err,
		"consecutiveFailures", c.health.ConsecutiveFailures,
	)
	if c.health.ConsecutiveFailures == maxConsecutiveFailures {
		c.logger.Error(fmt.Sprintf("%d consecutive failures. light may be offline", maxConsecutiveFailures))
	}
}
