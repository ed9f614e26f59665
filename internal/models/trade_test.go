package models

import (
	"errors"
	"testing"
	"time"

	"github.com/eddiefleurent/wheel_tracker/internal/util"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	v := dec(s)
	return &v
}

func validSpec() TradeSpec {
	return TradeSpec{
		AccountID:       1,
		Symbol:          "aapl ",
		TradeType:       TradeCSP,
		Contracts:       1,
		StrikePrice:     dec("150"),
		PremiumPerShare: dec("1.25"),
		OpenDate:        util.MustParseDate("2024-01-01"),
		ExpirationDate:  util.MustParseDate("2024-02-01"),
		Fees:            dec("0.65"),
	}
}

func openTrade(t *testing.T) *Trade {
	t.Helper()
	tr, err := NewTrade(validSpec(), testNow)
	require.NoError(t, err)
	tr.ID = 7
	return tr
}

func TestNewTrade(t *testing.T) {
	tr := openTrade(t)
	assert.Equal(t, "AAPL", tr.Symbol)
	assert.Equal(t, TradeOpen, tr.Status)
	assert.Nil(t, tr.CloseDate)
	assert.True(t, tr.PremiumCollected().Equal(dec("125")))
	assert.True(t, tr.NetPremium().Equal(dec("124.35")))
	assert.True(t, tr.CashSecured().Equal(dec("15000")))
}

func TestTradeSpecValidate(t *testing.T) {
	delta := 1.5
	tests := []struct {
		name   string
		mutate func(*TradeSpec)
		field  string
	}{
		{"missing account", func(s *TradeSpec) { s.AccountID = 0 }, "account_id"},
		{"empty symbol", func(s *TradeSpec) { s.Symbol = "  " }, "symbol"},
		{"malformed symbol", func(s *TradeSpec) { s.Symbol = "12$" }, "symbol"},
		{"unknown type", func(s *TradeSpec) { s.TradeType = "STRANGLE" }, "trade_type"},
		{"zero contracts", func(s *TradeSpec) { s.Contracts = 0 }, "contracts"},
		{"zero strike", func(s *TradeSpec) { s.StrikePrice = decimal.Zero }, "strike_price"},
		{"negative premium", func(s *TradeSpec) { s.PremiumPerShare = dec("-0.01") }, "premium_per_share"},
		{"negative fees", func(s *TradeSpec) { s.Fees = dec("-1") }, "fees"},
		{"delta out of range", func(s *TradeSpec) { s.Delta = &delta }, "delta"},
		{"expiration before open", func(s *TradeSpec) { s.ExpirationDate = util.MustParseDate("2023-12-31") }, "expiration_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(&spec)
			_, err := NewTrade(spec, testNow)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestTradeSpecZeroPremiumAllowed(t *testing.T) {
	spec := validSpec()
	spec.PremiumPerShare = decimal.Zero
	spec.ExpirationDate = spec.OpenDate
	_, err := NewTrade(spec, testNow)
	assert.NoError(t, err)
}

func TestCloseBTCSettlement(t *testing.T) {
	tr := openTrade(t)

	s, err := tr.Close(CloseRequest{
		CloseDate:   util.MustParseDate("2024-01-15"),
		CloseMethod: CloseBTC,
		ClosePrice:  decPtr("0.50"),
	}, testNow)
	require.NoError(t, err)

	assert.Equal(t, "125.00", util.Display(s.PremiumCollected).StringFixed(2))
	assert.Equal(t, "50.00", util.Display(s.CostToClose).StringFixed(2))
	assert.Equal(t, "74.35", util.Display(s.PnL).StringFixed(2))
	assert.Equal(t, TradeClosed, tr.Status)
	require.NotNil(t, tr.CloseDate)
	assert.Equal(t, "2024-01-15", tr.CloseDate.String())
	assert.True(t, tr.PnL().Equal(dec("74.35")))
}

func TestCloseForcesZeroPriceForExpirationAndAssignment(t *testing.T) {
	for _, method := range []CloseMethod{CloseExpiration, CloseAssignment} {
		t.Run(string(method), func(t *testing.T) {
			tr := openTrade(t)
			s, err := tr.Close(CloseRequest{
				CloseDate:   util.MustParseDate("2024-02-01"),
				CloseMethod: method,
				ClosePrice:  decPtr("3.00"),
			}, testNow)
			require.NoError(t, err)
			require.NotNil(t, tr.ClosePrice)
			assert.True(t, tr.ClosePrice.IsZero())
			assert.True(t, s.CostToClose.IsZero())
			assert.True(t, s.PnL.Equal(dec("124.35")))
		})
	}
}

func TestCloseAssignmentMayBeEarly(t *testing.T) {
	tr := openTrade(t)
	_, err := tr.Close(CloseRequest{CloseDate: util.MustParseDate("2024-01-10"), CloseMethod: CloseAssignment}, testNow)
	assert.NoError(t, err)
}

func TestCloseRejectsWithoutMutation(t *testing.T) {
	tests := []struct {
		name string
		req  CloseRequest
	}{
		{"BTC without price", CloseRequest{CloseDate: util.MustParseDate("2024-01-15"), CloseMethod: CloseBTC}},
		{"BTC negative price", CloseRequest{CloseDate: util.MustParseDate("2024-01-15"), CloseMethod: CloseBTC, ClosePrice: decPtr("-0.1")}},
		{"BTC after expiration", CloseRequest{CloseDate: util.MustParseDate("2024-02-02"), CloseMethod: CloseBTC, ClosePrice: decPtr("0.1")}},
		{"BTC before open", CloseRequest{CloseDate: util.MustParseDate("2023-12-31"), CloseMethod: CloseBTC, ClosePrice: decPtr("0.1")}},
		{"expiration off date", CloseRequest{CloseDate: util.MustParseDate("2024-01-20"), CloseMethod: CloseExpiration}},
		{"unknown method", CloseRequest{CloseDate: util.MustParseDate("2024-01-20"), CloseMethod: "ROLL"}},
		{"missing date", CloseRequest{CloseMethod: CloseAssignment}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := openTrade(t)
			before := *tr
			_, err := tr.Close(tt.req, testNow.Add(time.Hour))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, before, *tr)
		})
	}
}

func TestCloseTwiceIsInvalidState(t *testing.T) {
	tr := openTrade(t)
	req := CloseRequest{CloseDate: util.MustParseDate("2024-02-01"), CloseMethod: CloseExpiration}
	_, err := tr.Close(req, testNow)
	require.NoError(t, err)

	_, err = tr.Close(req, testNow)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestUpdate(t *testing.T) {
	tr := openTrade(t)
	spec := tr.Spec()
	spec.Contracts = 3
	require.NoError(t, tr.Update(spec, testNow))
	assert.Equal(t, 3, tr.Contracts)

	spec.AccountID = 2
	assert.ErrorIs(t, tr.Update(spec, testNow), ErrValidation)

	spec.AccountID = 1
	spec.StrikePrice = decimal.Zero
	assert.ErrorIs(t, tr.Update(spec, testNow), ErrValidation)
	assert.True(t, tr.StrikePrice.Equal(dec("150")), "failed update leaves trade untouched")

	_, err := tr.Close(CloseRequest{CloseDate: util.MustParseDate("2024-02-01"), CloseMethod: CloseExpiration}, testNow)
	require.NoError(t, err)
	assert.ErrorIs(t, tr.Update(tr.Spec(), testNow), ErrInvalidState)
}

func TestParseCodes(t *testing.T) {
	tt, err := ParseTradeType(" cc ")
	require.NoError(t, err)
	assert.Equal(t, TradeCC, tt)
	_, err = ParseTradeType("straddle")
	assert.ErrorIs(t, err, ErrValidation)

	m, err := ParseCloseMethod("expiration")
	require.NoError(t, err)
	assert.Equal(t, CloseExpiration, m)

	assert.True(t, TradeCSP.InWheel())
	assert.False(t, TradePut.InWheel())
}

func TestDedupKeyIgnoresSymbolCase(t *testing.T) {
	tr := openTrade(t)
	key := DedupKey(1, "aapl", TradeCSP, tr.OpenDate, tr.ExpirationDate, dec("150.00"))
	assert.Equal(t, tr.DedupKey(), key)
}
