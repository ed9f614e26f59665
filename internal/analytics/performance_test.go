package analytics

import (
	"testing"

	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformanceGroupsClosedTradesBySymbol(t *testing.T) {
	b := models.NewBook(models.Account{ID: 1})
	b.Trades = append(b.Trades,
		btc(t, trade(t, 1, "AAPL", models.TradeCSP, 1, "150", "1.25", "0.65"), "0.50"),
		btc(t, trade(t, 1, "AAPL", models.TradeCC, 1, "160", "0.75", "0.65"), "0.80"),
		btc(t, trade(t, 1, "MSFT", models.TradeCSP, 2, "300", "2.00", "1.30"), "0.10"),
		trade(t, 1, "TSLA", models.TradeCSP, 1, "200", "5.00", "0"),
	)

	perf := Performance(b)
	require.Len(t, perf, 2, "open trades are excluded")

	assert.Equal(t, "MSFT", perf[0].Symbol)
	assert.Equal(t, 1, perf[0].Trades)
	assert.Equal(t, "400", perf[0].TotalPremium.String())

	assert.Equal(t, "AAPL", perf[1].Symbol)
	assert.Equal(t, 2, perf[1].Trades)
	assert.Equal(t, "200", perf[1].TotalPremium.String())
	assert.Equal(t, "198.7", perf[1].NetPremium.String())
	assert.Equal(t, "68.7", perf[1].TotalPnL.String())
	assert.Equal(t, "50", perf[1].WinRate.String())
}

func TestPerformanceEmpty(t *testing.T) {
	assert.Empty(t, Performance(models.NewBook(models.Account{ID: 1})))
}
