// Package mock provides a market data source that needs no network, for local
// runs and tests.
package mock

import (
	"context"
	"crypto/rand"
	"hash/fnv"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/eddiefleurent/wheel_tracker/internal/broker"
	"github.com/eddiefleurent/wheel_tracker/internal/util"
	"github.com/shopspring/decimal"
)

var (
	pennyTick  = decimal.New(1, -2)
	halfSpread = 0.01
)

// DataProvider returns random-walk quotes. Each symbol starts at a stable
// price derived from its name so repeated runs look alike.
type DataProvider struct {
	mu     sync.Mutex
	prices map[string]float64
	step   float64
	now    func() time.Time
}

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// secureInt63n generates a cryptographically secure random int64 between 0 and n-1
func secureInt63n(n int64) int64 {
	r, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return n / 2
	}
	return r.Int64()
}

// NewDataProvider creates a provider whose prices move up to one dollar per quote.
func NewDataProvider() *DataProvider {
	return &DataProvider{prices: map[string]float64{}, step: 1, now: time.Now}
}

// NewStaticDataProvider creates a provider whose prices never move.
func NewStaticDataProvider() *DataProvider {
	p := NewDataProvider()
	p.step = 0
	return p
}

// SetPrice pins the current price of symbol.
func (m *DataProvider) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[strings.ToUpper(symbol)] = price
}

// seedPrice maps a symbol onto [20, 500).
func seedPrice(symbol string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return 20 + float64(h.Sum32()%48000)/100
}

// GetQuote implements broker.Broker.
func (m *DataProvider) GetQuote(ctx context.Context, symbol string) (*broker.QuoteItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	m.mu.Lock()
	price, ok := m.prices[symbol]
	if !ok {
		price = seedPrice(symbol)
	}
	// Simulate small price movements
	price = math.Max(1, price+(secureFloat64()-0.5)*2*m.step)
	m.prices[symbol] = price
	m.mu.Unlock()

	last := util.RoundToTick(decimal.NewFromFloat(price), pennyTick).InexactFloat64()
	return &broker.QuoteItem{
		Symbol:    symbol,
		Type:      "stock",
		Last:      last,
		Bid:       last - halfSpread,
		Ask:       last + halfSpread,
		PrevClose: last,
		Volume:    secureInt63n(100000000),
		TradeDate: m.now().UnixMilli(),
	}, nil
}

var _ broker.Broker = (*DataProvider)(nil)
