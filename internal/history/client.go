package history

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/verdantlabs/chatlink/internal/logging"
	"github.com/verdantlabs/chatlink/internal/monitoring"
	"github.com/verdantlabs/chatlink/internal/resilience"
)

// serverSession is the gateway's session-listing record shape.
type serverSession struct {
	RequestID   string    `json:"requestId"`
	Title       string    `json:"title"`
	LastMessage string    `json:"lastMessage"`
	RequestTime time.Time `json:"requestTime"`
	ModelID     string    `json:"modelId"`
}

// Client fetches session history from the gateway's HTTP API.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// NewClient creates a history API client with retry, rate limiting, and a
// circuit breaker around the external calls.
func NewClient(baseURL string, timeout time.Duration, log *logging.Logger, metrics *monitoring.Metrics) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil // Disable logging

	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", "chatlink/1.0")
	rc.SetTransport(retryClient.HTTPClient.Transport)

	breaker := resilience.New("history-api", resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			// Be lenient: the gateway may be flaky without being down.
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		resty:   rc,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		breaker: breaker,
		log:     log,
		metrics: metrics,
	}
}

// Sessions fetches the server's session list mapped into the common
// Summary shape, preserving the order received.
func (c *Client) Sessions(ctx context.Context) ([]Summary, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var out []Summary
	err := c.breaker.Execute(func() error {
		var list []serverSession
		resp, err := c.resty.R().
			SetContext(ctx).
			SetHeader("X-Request-ID", uuid.New().String()).
			SetResult(&list).
			Get("/sessions")
		if err != nil {
			return fmt.Errorf("failed to fetch sessions: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("failed to fetch sessions: %s", resp.Status())
		}

		out = make([]Summary, 0, len(list))
		for _, s := range list {
			out = append(out, Summary{
				ID:           s.RequestID,
				Title:        s.Title,
				Preview:      s.LastMessage,
				LastActivity: s.RequestTime,
				Model:        s.ModelID,
			})
		}
		return nil
	})
	if err != nil {
		c.metrics.IncHistoryFetchErrors()
		return nil, err
	}
	return out, nil
}

// Messages fetches a session's recorded exchanges, oldest first.
func (c *Client) Messages(ctx context.Context, sessionID string) ([]Exchange, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var out []Exchange
	err := c.breaker.Execute(func() error {
		resp, err := c.resty.R().
			SetContext(ctx).
			SetHeader("X-Request-ID", uuid.New().String()).
			SetResult(&out).
			SetPathParam("id", sessionID).
			Get("/sessions/{id}/messages")
		if err != nil {
			return fmt.Errorf("failed to fetch messages: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("failed to fetch messages: %s", resp.Status())
		}
		return nil
	})
	if err != nil {
		c.metrics.IncHistoryFetchErrors()
		return nil, err
	}
	return out, nil
}
