package importer

import (
	"testing"

	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/eddiefleurent/wheel_tracker/internal/util"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(line int, symbol, open string) Candidate {
	return Candidate{
		LineNum:         line,
		AccountID:       1,
		Symbol:          symbol,
		TradeType:       models.TradeCSP,
		Contracts:       1,
		StrikePrice:     decimal.RequireFromString("100"),
		PremiumPerShare: decimal.RequireFromString("1"),
		OpenDate:        util.MustParseDate(open),
		ExpirationDate:  util.MustParseDate("2024-02-16"),
		Fees:            decimal.Zero,
	}
}

func TestPlanEmptyBatch(t *testing.T) {
	plan, problems := Plan(nil)
	assert.Empty(t, problems)
	assert.Empty(t, plan)
}

func TestPlanOpenAndClosedRows(t *testing.T) {
	open := candidate(3, "AAPL", "2024-01-10")
	open.CloseDate = "OPEN"

	closed := candidate(2, "msft", "2024-01-20")
	price := decimal.RequireFromString("0.25")
	closed.ClosePrice = &price
	closed.CloseDate = "2024-02-01"

	assigned := candidate(4, "KO", "2024-01-05")
	assigned.CloseMethod = models.CloseAssignment

	plan, problems := Plan([]Candidate{closed, open, assigned})
	require.Empty(t, problems)
	entries := plan[1]
	require.Len(t, entries, 3)

	assert.Equal(t, 4, entries[0].LineNum, "ordered by open date")
	require.NotNil(t, entries[0].Close)
	assert.Equal(t, "2024-02-16", entries[0].Close.CloseDate.String(), "blank close_date settles at expiration")
	assert.True(t, entries[0].Close.ClosePrice.IsZero())

	assert.Equal(t, 3, entries[1].LineNum)
	assert.Nil(t, entries[1].Close, "OPEN commits an open trade")

	assert.Equal(t, "MSFT", entries[2].Spec.Symbol)
	require.NotNil(t, entries[2].Close)
	assert.Equal(t, models.CloseBTC, entries[2].Close.CloseMethod, "close_price alone defaults to BTC")
}

func TestPlanRejectsWholeBatch(t *testing.T) {
	good := candidate(2, "AAPL", "2024-01-10")
	good.CloseDate = "OPEN"
	incomplete := candidate(3, "MSFT", "2024-01-10")
	tampered := candidate(4, "KO", "2024-01-10")
	tampered.CloseDate = "OPEN"
	tampered.Contracts = 0

	plan, problems := Plan([]Candidate{good, incomplete, tampered})
	assert.Nil(t, plan)
	require.Len(t, problems, 2)
	assert.Contains(t, problems[0], "Line 3")
	assert.Contains(t, problems[1], "Line 4")
}

func TestPlanRejectsRepeatedLine(t *testing.T) {
	c := candidate(2, "AAPL", "2024-01-10")
	c.CloseDate = "OPEN"
	_, problems := Plan([]Candidate{c, c})
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "more than once")
}

func TestDedupe(t *testing.T) {
	a := candidate(2, "AAPL", "2024-01-10")
	a.CloseDate = "OPEN"
	b := a
	b.LineNum = 3
	b.StrikePrice = decimal.RequireFromString("100.00")
	c := candidate(4, "MSFT", "2024-01-10")
	c.CloseDate = "OPEN"

	plan, problems := Plan([]Candidate{a, b, c})
	require.Empty(t, problems)

	existing := map[string]bool{plan[1][2].DedupKey(): true}
	kept, skipped := Dedupe(plan[1], existing)
	require.Len(t, kept, 1)
	assert.Equal(t, 2, kept[0].LineNum)
	assert.Equal(t, []int{3, 4}, skipped)
}
