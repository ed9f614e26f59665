package models

import (
	"testing"

	"github.com/eddiefleurent/wheel_tracker/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookCloneIsDeep(t *testing.T) {
	b := NewBook(Account{ID: 1, Name: "Main"})
	tr := openTrade(t)
	wheelID := int64(9)
	tr.WheelID = &wheelID
	b.Trades = append(b.Trades, tr)
	b.Positions = append(b.Positions, heldPosition())
	b.Wheels = append(b.Wheels, NewWheel(9, 1, "AAPL", util.MustParseDate("2024-01-01"), PhaseCSP, testNow))

	c := b.Clone()
	*c.Trades[0].WheelID = 10
	c.Trades[0].Contracts = 5
	c.Positions[0].Shares = 0
	c.Wheels[0].Status = WheelCompleted

	assert.Equal(t, int64(9), *b.Trades[0].WheelID)
	assert.Equal(t, 1, b.Trades[0].Contracts)
	assert.Equal(t, 200, b.Positions[0].Shares)
	assert.True(t, b.Wheels[0].IsActive())
}

func TestBookLookups(t *testing.T) {
	b := NewBook(Account{ID: 1})
	older := heldPosition()
	newer := heldPosition()
	newer.ID = 4
	newer.AcquiredDate = util.MustParseDate("2024-03-01")
	b.Positions = append(b.Positions, newer, older)

	open := b.OpenPositions("AAPL")
	require.Len(t, open, 2)
	assert.Equal(t, int64(3), open[0].ID, "oldest first")

	cc := openTrade(t)
	cc.TradeType = TradeCC
	b.Trades = append(b.Trades, cc)
	assert.True(t, b.HasOpenCC("AAPL"))
	assert.False(t, b.HasOpenCC("MSFT"))

	b.RemoveTrade(cc.ID)
	assert.Empty(t, b.Trades)
	_, ok := b.Trade(cc.ID)
	assert.False(t, ok)
}
