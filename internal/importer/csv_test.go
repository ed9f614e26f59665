package importer

import (
	"strings"
	"testing"
	"time"

	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var clock = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

const sampleCSV = `account_id,symbol,trade_type,contracts,strike_price,premium_per_share,open_date,expiration_date,close_date,close_method,close_price,fees,tags
1,aapl,CSP,1,150,1.25,2024-01-01,2024-02-01,2024-01-15,,0.50,0.65,earnings
1,MSFT,CC,2,400,3.10,2024-02-01,2024-04-19,OPEN,,,1.30,
1,TSLA,CSP,1,180,2.00,2024-01-05,2024-02-16,,,,0.65,
1,NVDA,PUT,abc,500,1.00,2024-01-01,2024-02-01,,,,,
1,AMD,CSP,1,0,1.00,2024-01-01,2024-02-01,,,,,
1,KO,CSP,1,60,0.40,2024-01-02,2024-02-16,2024-02-16,expiration,9.99,0.65,
`

func validate(t *testing.T, data string) *Validation {
	t.Helper()
	v := NewValidator(clock, 0)
	out, err := v.Validate(strings.NewReader(data), Options{})
	require.NoError(t, err)
	return out
}

func TestValidateSample(t *testing.T) {
	out := validate(t, sampleCSV)

	assert.Equal(t, 4, out.TotalRecords)
	require.Len(t, out.ParseErrors, 2)
	assert.Contains(t, out.ParseErrors[0], "Line 5: invalid contracts")
	assert.Contains(t, out.ParseErrors[1], "Line 6:")
	assert.Contains(t, out.ParseErrors[1], "strike_price")

	btc := out.Results[0]
	assert.Equal(t, 2, btc.LineNum)
	assert.Equal(t, "AAPL", btc.Trade.Symbol)
	assert.Equal(t, models.CloseBTC, btc.Trade.CloseMethod, "bare close_price defaults to BTC")
	require.NotNil(t, btc.PL)
	assert.Equal(t, "74.35", btc.PL.StringFixed(2))
	assert.True(t, btc.IsValid)
	assert.True(t, btc.IsExpired)
	assert.Empty(t, btc.MissingFields)
	require.NotNil(t, btc.Trade.Tags)
	assert.Equal(t, "earnings", *btc.Trade.Tags)

	open := out.Results[1]
	assert.True(t, open.IsValid, "OPEN sentinel is complete")
	assert.Nil(t, open.PL)
	assert.Empty(t, open.MissingFields)
	assert.False(t, open.IsExpired)

	incomplete := out.Results[2]
	assert.False(t, incomplete.IsValid)
	assert.Equal(t, []string{"close_date", "close_price", "close_method"}, incomplete.MissingFields)

	expired := out.Results[3]
	assert.True(t, expired.IsValid)
	require.NotNil(t, expired.Trade.ClosePrice)
	assert.True(t, expired.Trade.ClosePrice.IsZero(), "expiration forces a zero close price")
	assert.Equal(t, "39.35", expired.PL.StringFixed(2))
}

func TestValidateIsIdempotent(t *testing.T) {
	first := validate(t, sampleCSV)
	second := validate(t, sampleCSV)
	assert.Equal(t, first, second)
}

func TestValidateHeaderErrors(t *testing.T) {
	v := NewValidator(clock, 0)

	_, err := v.Validate(strings.NewReader(""), Options{})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = v.Validate(strings.NewReader("account_id,symbol\n1,AAPL\n"), Options{})
	require.ErrorIs(t, err, models.ErrValidation)
	assert.Contains(t, err.Error(), "trade_type")
}

func TestValidateHeaderAnyOrder(t *testing.T) {
	data := "symbol,open_date,expiration_date,trade_type,contracts,strike_price,premium_per_share,account_id\n" +
		"SPY,2024-01-02,2024-01-19,CSP,1,450,2.5,3\n"
	out := validate(t, data)
	require.Len(t, out.Results, 1)
	assert.Equal(t, int64(3), out.Results[0].Trade.AccountID)
	assert.True(t, out.Results[0].Trade.Fees.IsZero())
}

func TestValidateAccountOverride(t *testing.T) {
	v := NewValidator(clock, 0)
	id := int64(9)
	out, err := v.Validate(strings.NewReader(sampleCSV), Options{AccountID: &id})
	require.NoError(t, err)
	for _, r := range out.Results {
		assert.Equal(t, int64(9), r.Trade.AccountID)
	}
}

func TestValidateFlagsCloseProblems(t *testing.T) {
	data := "account_id,symbol,trade_type,contracts,strike_price,premium_per_share,open_date,expiration_date,close_date,close_method,close_price\n" +
		"1,AAPL,CSP,1,150,1.25,2024-01-01,2024-02-01,2024-02-10,BTC,0.10\n"
	out := validate(t, data)
	require.Len(t, out.Results, 1)
	r := out.Results[0]
	assert.False(t, r.IsValid, "BTC after expiration needs repair")
	require.Len(t, r.Problems, 1)
	assert.Contains(t, r.Problems[0], "close_date")
}

func TestValidateRowLimit(t *testing.T) {
	v := NewValidator(clock, 2)
	out, err := v.Validate(strings.NewReader(sampleCSV), Options{})
	require.NoError(t, err)
	assert.Len(t, out.Results, 2)
	assert.Contains(t, out.ParseErrors[len(out.ParseErrors)-1], "row limit")
}

func TestCandidateNormalizeKeepsExplicitMethod(t *testing.T) {
	price := decimal.RequireFromString("1.10")
	c := Candidate{CloseMethod: models.CloseBTC, ClosePrice: &price, CloseDate: " 2024-01-10 "}
	c.Normalize()
	assert.Equal(t, "2024-01-10", c.CloseDate)
	assert.True(t, c.ClosePrice.Equal(price))

	open := Candidate{CloseDate: "open"}
	open.Normalize()
	assert.Equal(t, OpenSentinel, open.CloseDate)
	assert.True(t, open.IsComplete())
}
