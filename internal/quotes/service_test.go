package quotes

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eddiefleurent/wheel_tracker/internal/broker"
	"github.com/eddiefleurent/wheel_tracker/internal/config"
	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls   int32
	release chan struct{} // when set, calls block until closed or ctx ends
	fail    map[string]error
}

func (f *fakeSource) GetQuote(ctx context.Context, symbol string) (*broker.QuoteItem, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.fail[symbol]; err != nil {
		return nil, err
	}
	return &broker.QuoteItem{Symbol: symbol, Last: 101.25, Bid: 101.2, Ask: 101.3}, nil
}

func (f *fakeSource) count() int { return int(atomic.LoadInt32(&f.calls)) }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestQuote_Disabled(t *testing.T) {
	s := NewService(nil, "none", Options{}, quietLogger())
	assert.False(t, s.Enabled())

	_, err := s.Quote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, models.ErrExternalUnavailable)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestQuote_InvalidSymbol(t *testing.T) {
	s := NewService(&fakeSource{}, "fake", Options{}, quietLogger())
	_, err := s.Quote(context.Background(), "not a ticker")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestQuote_CachesAndNormalizes(t *testing.T) {
	src := &fakeSource{}
	s := NewService(src, "fake", Options{CacheTTL: time.Minute}, quietLogger())

	q, err := s.Quote(context.Background(), " aapl ")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.True(t, q.Last.Equal(decimal.RequireFromString("101.25")))
	assert.Equal(t, "fake", q.Source)

	q.Last = decimal.Zero
	again, err := s.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, again.Last.Equal(decimal.RequireFromString("101.25")), "cached quote must not be shared")
	assert.Equal(t, 1, src.count())
}

func TestQuote_CoalescesConcurrentLookups(t *testing.T) {
	src := &fakeSource{release: make(chan struct{})}
	s := NewService(src, "fake", Options{Timeout: time.Second}, quietLogger())

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Quote(context.Background(), "MSFT")
			errs <- err
		}()
	}
	// Give the callers time to join the in-flight lookup.
	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, src.count())
}

func TestQuote_TimeoutDegrades(t *testing.T) {
	src := &fakeSource{release: make(chan struct{})}
	defer close(src.release)
	s := NewService(src, "fake", Options{Timeout: 30 * time.Millisecond}, quietLogger())

	start := time.Now()
	_, err := s.Quote(context.Background(), "SPY")
	assert.ErrorIs(t, err, models.ErrExternalUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestQuote_CallerContextEndsFirst(t *testing.T) {
	src := &fakeSource{release: make(chan struct{})}
	defer close(src.release)
	s := NewService(src, "fake", Options{Timeout: time.Minute}, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Quote(ctx, "SPY")
	assert.ErrorIs(t, err, models.ErrExternalUnavailable)
}

func TestQuote_SourceErrorIsUnavailable(t *testing.T) {
	boom := errors.New("connection refused")
	src := &fakeSource{fail: map[string]error{"TSLA": boom}}
	s := NewService(src, "fake", Options{}, quietLogger())

	_, err := s.Quote(context.Background(), "TSLA")
	var unavailable *models.ExternalUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "quotes", unavailable.Service)
	assert.ErrorIs(t, err, boom)
}

func TestQuotes_PartialResults(t *testing.T) {
	src := &fakeSource{fail: map[string]error{"BAD": errors.New("503")}}
	s := NewService(src, "fake", Options{}, quietLogger())

	got := s.Quotes(context.Background(), []string{"AAPL", "BAD", "MSFT", "AAPL"})
	assert.Len(t, got, 2)
	assert.Contains(t, got, "AAPL")
	assert.Contains(t, got, "MSFT")
	assert.NotContains(t, got, "BAD")
	assert.Equal(t, 3, src.count())
}

func TestQuotes_Disabled(t *testing.T) {
	s := NewService(nil, "none", Options{}, quietLogger())
	assert.Empty(t, s.Quotes(context.Background(), []string{"AAPL"}))
}

func TestNew_FromConfig(t *testing.T) {
	cfg := config.Default()
	s, err := New(cfg, quietLogger())
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	cfg.Quotes.Provider = "mock"
	cfg.Quotes.MaxRetries = 1
	s, err = New(cfg, quietLogger())
	require.NoError(t, err)
	require.True(t, s.Enabled())
	q, err := s.Quote(context.Background(), "SPY")
	require.NoError(t, err)
	assert.True(t, q.Last.IsPositive())
	assert.Equal(t, "mock", q.Source)

	cfg.Quotes.Provider = "bloomberg"
	_, err = New(cfg, quietLogger())
	assert.Error(t, err)
}
