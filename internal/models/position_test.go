package models

import (
	"testing"

	"github.com/eddiefleurent/wheel_tracker/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func heldPosition() *Position {
	return &Position{
		ID:                3,
		AccountID:         1,
		Symbol:            "AAPL",
		Shares:            200,
		CostBasisPerShare: dec("150"),
		AcquiredDate:      util.MustParseDate("2024-02-01"),
		Status:            PositionOpen,
		IsCovered:         true,
	}
}

func TestPositionPartialSale(t *testing.T) {
	p := heldPosition()
	realized, err := p.Sell(100, dec("160"), util.MustParseDate("2024-03-01"), "called_away", testNow)
	require.NoError(t, err)

	assert.True(t, realized.Equal(dec("1000")))
	assert.Equal(t, 100, p.Shares)
	assert.Equal(t, PositionOpen, p.Status)
	assert.True(t, p.CostBasis().Equal(dec("15000")))
	require.NotNil(t, p.SoldPricePerShare)
	assert.True(t, p.SoldPricePerShare.Equal(dec("160")))
}

func TestPositionFullSaleCloses(t *testing.T) {
	p := heldPosition()
	_, err := p.Sell(200, dec("140"), util.MustParseDate("2024-03-01"), "sold", testNow)
	require.NoError(t, err)

	assert.Equal(t, 0, p.Shares)
	assert.Equal(t, PositionClosed, p.Status)
	assert.False(t, p.IsCovered)
	assert.True(t, p.RealizedPnL.Equal(dec("-2000")))
}

func TestPositionSaleNeverGoesNegative(t *testing.T) {
	p := heldPosition()
	_, err := p.Sell(300, dec("160"), util.MustParseDate("2024-03-01"), "called_away", testNow)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 200, p.Shares)

	_, err = p.Sell(100, dec("160"), util.MustParseDate("2024-01-01"), "sold", testNow)
	assert.ErrorIs(t, err, ErrValidation, "sale before acquisition")

	p.Status = PositionClosed
	_, err = p.Sell(100, dec("160"), util.MustParseDate("2024-03-01"), "sold", testNow)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestPositionMarketValue(t *testing.T) {
	p := heldPosition()
	assert.True(t, p.MarketValue(dec("155.5")).Equal(dec("31100")))
	assert.True(t, p.UnrealizedPnL(dec("155.5")).Equal(dec("1100")))
}
