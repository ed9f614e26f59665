// Package quotes serves market prices for open positions. Lookups are
// cached, coalesced per symbol and bounded in time; any failure surfaces as
// models.ExternalUnavailableError so callers can degrade instead of failing.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/eddiefleurent/wheel_tracker/internal/broker"
	"github.com/eddiefleurent/wheel_tracker/internal/config"
	"github.com/eddiefleurent/wheel_tracker/internal/mock"
	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/eddiefleurent/wheel_tracker/internal/retry"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	serviceName = "quotes"
	maxFanOut   = 8
)

// ErrDisabled is returned when no provider is configured.
var ErrDisabled = errors.New("no quote provider configured")

// Quote is a priced snapshot of one symbol.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Last      decimal.Decimal `json:"last"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	PrevClose decimal.Decimal `json:"prev_close"`
	AsOf      time.Time       `json:"as_of"`
	Source    string          `json:"source"`
}

// Provider looks up quotes.
type Provider interface {
	Quote(ctx context.Context, symbol string) (*Quote, error)
}

// Service is the Provider used by the rest of the application.
type Service struct {
	source  broker.Broker
	name    string
	cache   *cache.Cache
	group   singleflight.Group
	timeout time.Duration
	logger  *logrus.Logger
	now     func() time.Time
}

var _ Provider = (*Service)(nil)

// Options tune a Service.
type Options struct {
	Timeout  time.Duration
	CacheTTL time.Duration
}

// NewService wraps source. A nil source makes every lookup unavailable.
func NewService(source broker.Broker, name string, opts Options, logger *logrus.Logger) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		source:  source,
		name:    name,
		cache:   cache.New(opts.CacheTTL, 2*opts.CacheTTL),
		timeout: opts.Timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// New builds the provider chain named by cfg: source, retries, circuit
// breaker, then the cached Service on top.
func New(cfg *config.Config, logger *logrus.Logger) (*Service, error) {
	var source broker.Broker
	q := cfg.Quotes
	switch q.Provider {
	case "none":
	case "mock":
		source = mock.NewDataProvider()
	case "tradier":
		source = broker.NewTradierAPI(q.APIKey, q.Sandbox, q.APIEndpoint,
			&http.Client{Timeout: cfg.GetQuoteTimeout()}, logger)
	default:
		return nil, fmt.Errorf("unknown quote provider %q", q.Provider)
	}

	if source != nil {
		if q.MaxRetries > 0 {
			rc := retry.DefaultConfig
			rc.MaxRetries = q.MaxRetries
			source = retry.NewClient(source, logger, rc)
		}
		source = broker.NewCircuitBreakerBroker(source, broker.CircuitBreakerSettings{
			MaxRequests:  q.CircuitBreaker.MaxRequests,
			Interval:     cfg.GetBreakerInterval(),
			Timeout:      cfg.GetBreakerTimeout(),
			MinRequests:  q.CircuitBreaker.MinRequests,
			FailureRatio: q.CircuitBreaker.FailureRatio,
		}, logger)
	}

	return NewService(source, q.Provider, Options{
		Timeout:  cfg.GetQuoteTimeout(),
		CacheTTL: cfg.GetQuoteCacheTTL(),
	}, logger), nil
}

// Enabled reports whether a provider is configured.
func (s *Service) Enabled() bool {
	return s.source != nil
}

// Quote returns the latest price for symbol, from cache when fresh.
func (s *Service) Quote(ctx context.Context, symbol string) (*Quote, error) {
	symbol, err := models.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if s.source == nil {
		return nil, &models.ExternalUnavailableError{Service: serviceName, Err: ErrDisabled}
	}
	if cached, ok := s.cache.Get(symbol); ok {
		q := *cached.(*Quote)
		return &q, nil
	}

	// The shared fetch outlives any single caller; each caller still waits
	// no longer than its own context allows.
	ch := s.group.DoChan(symbol, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.fetch(fetchCtx, symbol)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		q := *res.Val.(*Quote)
		return &q, nil
	case <-ctx.Done():
		return nil, &models.ExternalUnavailableError{Service: serviceName, Err: ctx.Err()}
	}
}

func (s *Service) fetch(ctx context.Context, symbol string) (*Quote, error) {
	start := s.now()
	item, err := s.source.GetQuote(ctx, symbol)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"symbol":   symbol,
			"provider": s.name,
			"elapsed":  s.now().Sub(start).String(),
		}).WithError(err).Warn("Quote lookup failed")
		return nil, &models.ExternalUnavailableError{Service: serviceName, Err: err}
	}

	q := &Quote{
		Symbol:    symbol,
		Last:      decimal.NewFromFloat(item.Last),
		Bid:       decimal.NewFromFloat(item.Bid),
		Ask:       decimal.NewFromFloat(item.Ask),
		PrevClose: decimal.NewFromFloat(item.PrevClose),
		AsOf:      s.now().UTC(),
		Source:    s.name,
	}
	s.cache.SetDefault(symbol, q)
	return q, nil
}

// Quotes looks up several symbols concurrently, keeping only the ones that
// resolved. Missing entries mean the price is unavailable.
func (s *Service) Quotes(ctx context.Context, symbols []string) map[string]*Quote {
	out := make(map[string]*Quote, len(symbols))
	if s.source == nil || len(symbols) == 0 {
		return out
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(maxFanOut)
	seen := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		if seen[sym] {
			continue
		}
		seen[sym] = true
		sym := sym
		g.Go(func() error {
			q, err := s.Quote(ctx, sym)
			if err != nil {
				return nil
			}
			mu.Lock()
			out[q.Symbol] = q
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
