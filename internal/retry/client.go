// Package retry wraps a market data source with bounded, jittered retries.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/eddiefleurent/wheel_tracker/internal/broker"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Config bounds the retry loop.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig keeps quote lookups well under a second of retrying.
var DefaultConfig = Config{
	MaxRetries:     2,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     500 * time.Millisecond,
}

// Client retries transient quote failures.
type Client struct {
	broker broker.Broker
	logger *logrus.Logger
	config Config
}

var _ broker.Broker = (*Client)(nil)

// NewClient wraps b. Without a config DefaultConfig is used.
func NewClient(b broker.Broker, logger *logrus.Logger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		broker: b,
		logger: logger,
		config: cfg,
	}
}

// GetQuote calls the wrapped source until it succeeds, fails permanently,
// runs out of attempts or ctx ends.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*broker.QuoteItem, error) {
	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("quote lookup canceled: %w", ctx.Err())
		}

		q, err := c.broker.GetQuote(ctx, symbol)
		if err == nil {
			if attempt > 0 {
				c.logger.WithFields(logrus.Fields{"symbol": symbol, "attempt": attempt + 1}).Debug("Quote succeeded after retry")
			}
			return q, nil
		}

		lastErr = err
		if !IsTransientError(err) || attempt == c.config.MaxRetries {
			break
		}
		c.logger.WithFields(logrus.Fields{
			"symbol":  symbol,
			"attempt": attempt + 1,
			"backoff": backoff.String(),
		}).WithError(err).Debug("Transient quote error, retrying")

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
			backoff = c.calculateNextBackoff(backoff)
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("quote lookup canceled during backoff: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("quote for %s failed: %w", symbol, lastErr)
}

func (c *Client) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			c.logger.WithError(err).Debug("Failed to generate jitter")
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

// IsTransientError reports whether err is worth another attempt.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, broker.ErrNoQuote) || errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *broker.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"eof",
		"network",
		"dns",
		"tcp",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
