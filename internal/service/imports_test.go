package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/eddiefleurent/wheel_tracker/internal/importer"
	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func importCSV(accountID int64) string {
	return fmt.Sprintf(`account_id,symbol,trade_type,contracts,strike_price,premium_per_share,open_date,expiration_date,close_date,close_method,close_price,fees
%[1]d,AAPL,CSP,1,150,1.25,2023-11-01,2023-12-15,2023-12-15,ASSIGNMENT,,0.65
%[1]d,AAPL,CC,1,160,2.10,2023-12-18,2024-01-19,OPEN,,,0.65
%[1]d,KO,CSP,2,60,0.40,2023-11-03,2023-12-15,2023-12-01,,0.10,1.30
`, accountID)
}

func validated(t *testing.T, l *Ledger, data string) []importer.Candidate {
	t.Helper()
	v, err := l.ValidateImport(context.Background(), strings.NewReader(data), importer.Options{})
	require.NoError(t, err)
	require.Empty(t, v.ParseErrors)
	out := make([]importer.Candidate, 0, len(v.Results))
	for _, r := range v.Results {
		out = append(out, r.Trade)
	}
	return out
}

func TestConfirmImportCommitsAndDedupes(t *testing.T) {
	ctx := context.Background()
	l, a := newLedger(t, nil)
	candidates := validated(t, l, importCSV(a.ID))
	require.Len(t, candidates, 3)

	res, err := l.ConfirmImport(ctx, importer.ConfirmRequest{Trades: candidates})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ImportedCount)
	assert.Empty(t, res.SkippedDuplicates)
	assert.Empty(t, res.Errors)
	assert.NotEmpty(t, res.BatchID)

	positions, err := l.ListPositions(ctx, PositionFilter{Status: models.PositionOpen})
	require.NoError(t, err)
	require.Len(t, positions, 1, "the assigned put delivered shares")
	assert.True(t, positions[0].IsCovered, "the open call covers them")

	wheels, err := l.ListWheels(ctx, WheelFilter{AccountID: &a.ID})
	require.NoError(t, err)
	assert.Len(t, wheels, 2)

	again, err := l.ConfirmImport(ctx, importer.ConfirmRequest{Trades: candidates})
	require.NoError(t, err)
	assert.Equal(t, 0, again.ImportedCount)
	assert.Equal(t, []int{2, 3, 4}, again.SkippedDuplicates)

	trades, err := l.ListTrades(ctx, TradeFilter{})
	require.NoError(t, err)
	assert.Len(t, trades, 3)
}

func TestConfirmImportIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	l, a := newLedger(t, nil)
	candidates := validated(t, l, importCSV(a.ID))

	// A covered call on a symbol never assigned cannot be called away.
	bad := candidates[2]
	bad.LineNum = 9
	bad.Symbol = "NFLX"
	bad.TradeType = models.TradeCC
	bad.CloseDate = "2023-12-15"
	bad.CloseMethod = models.CloseAssignment
	bad.ClosePrice = nil

	res, err := l.ConfirmImport(ctx, importer.ConfirmRequest{Trades: append(candidates, bad)})
	require.ErrorIs(t, err, ErrImportRejected)
	assert.ErrorIs(t, err, models.ErrValidation)
	require.NotNil(t, res)
	assert.Equal(t, 0, res.ImportedCount)
	require.Len(t, res.Errors, 1)
	assert.True(t, strings.HasPrefix(res.Errors[0], "Line 9:"), res.Errors[0])

	trades, err := l.ListTrades(ctx, TradeFilter{})
	require.NoError(t, err)
	assert.Empty(t, trades, "nothing of a rejected batch is written")
}

func TestConfirmImportRejectsUnknownAccountAndBadRows(t *testing.T) {
	ctx := context.Background()
	l, a := newLedger(t, nil)
	candidates := validated(t, l, importCSV(a.ID))

	ghost := candidates[0]
	ghost.LineNum = 7
	ghost.AccountID = 404
	res, err := l.ConfirmImport(ctx, importer.ConfirmRequest{Trades: []importer.Candidate{candidates[1], ghost}})
	require.ErrorIs(t, err, ErrImportRejected)
	assert.Equal(t, []string{"Line 7: account 404 not found"}, res.Errors)

	incomplete := candidates[2]
	incomplete.ClosePrice = nil
	incomplete.CloseMethod = ""
	res, err = l.ConfirmImport(ctx, importer.ConfirmRequest{Trades: []importer.Candidate{incomplete}})
	require.ErrorIs(t, err, ErrImportRejected)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Line 4:")

	_, err = l.ConfirmImport(ctx, importer.ConfirmRequest{})
	assert.ErrorIs(t, err, models.ErrValidation)

	trades, err := l.ListTrades(ctx, TradeFilter{})
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestConfirmOne(t *testing.T) {
	ctx := context.Background()
	l, a := newLedger(t, nil)
	candidates := validated(t, l, importCSV(a.ID))

	res, err := l.ConfirmOne(ctx, candidates[2])
	require.NoError(t, err)
	assert.Equal(t, 1, res.ImportedCount)

	res, err = l.ConfirmOne(ctx, candidates[2])
	require.NoError(t, err)
	assert.Equal(t, []int{4}, res.SkippedDuplicates)
}

func TestValidateImportAccountOverride(t *testing.T) {
	ctx := context.Background()
	l, a := newLedger(t, nil)

	override := a.ID
	v, err := l.ValidateImport(ctx, strings.NewReader(importCSV(999)), importer.Options{AccountID: &override})
	require.NoError(t, err)
	for _, r := range v.Results {
		assert.Equal(t, a.ID, r.Trade.AccountID)
	}

	missing := int64(999)
	_, err = l.ValidateImport(ctx, strings.NewReader(importCSV(a.ID)), importer.Options{AccountID: &missing})
	assert.ErrorIs(t, err, models.ErrNotFound)
}
