package lifecycle

import (
	"testing"

	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditCleanBook(t *testing.T) {
	e, b := newFixture()
	csp, err := e.OpenTrade(b, spec(models.TradeCSP, "150", "2024-01-01", "2024-02-01"))
	require.NoError(t, err)
	_, err = e.CloseTrade(b, csp.ID, assign("2024-02-01"))
	require.NoError(t, err)
	_, err = e.OpenTrade(b, spec(models.TradeCC, "160", "2024-02-02", "2024-03-01"))
	require.NoError(t, err)
	_, err = e.OpenTrade(b, spec(models.TradePut, "140", "2024-02-02", "2024-03-01"))
	require.NoError(t, err)

	assert.Empty(t, Audit(b))
}

func TestAuditFindsDrift(t *testing.T) {
	e, b := newFixture()
	csp, err := e.OpenTrade(b, spec(models.TradeCSP, "150", "2024-01-01", "2024-02-01"))
	require.NoError(t, err)
	_, err = e.CloseTrade(b, csp.ID, assign("2024-02-01"))
	require.NoError(t, err)

	b.Positions[0].IsCovered = true
	b.Wheels[0].TotalPremium = dec("1")
	b.Wheels = append(b.Wheels, models.NewWheel(99, 1, "AAPL", date("2024-02-05"), models.PhaseCSP, fixedNow))
	missing := int64(404)
	csp.PositionID = &missing

	findings := Audit(b)
	problems := map[models.EntityKind]int{}
	for _, f := range findings {
		assert.Equal(t, int64(1), f.AccountID)
		problems[f.Entity]++
	}
	assert.Equal(t, 1, problems[models.KindTrade], "dangling position reference")
	assert.Equal(t, 1, problems[models.KindPosition], "stale coverage flag")
	// Premium drift, the extra wheel without legs and the duplicate active wheel.
	assert.Equal(t, 3, problems[models.KindWheel], findings)
}
