// Package analytics computes read-side rollups over account books.
package analytics

import (
	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/eddiefleurent/wheel_tracker/internal/util"
	"github.com/shopspring/decimal"
)

// Dashboard is the aggregate view of one account or all of them.
type Dashboard struct {
	AccountID              *int64          `json:"account_id,omitempty"`
	TotalTrades            int             `json:"total_trades"`
	OpenTrades             int             `json:"open_trades"`
	ClosedTrades           int             `json:"closed_trades"`
	CapitalAtRisk          decimal.Decimal `json:"capital_at_risk"`
	PremiumCollected       decimal.Decimal `json:"premium_collected"`
	OpenTradesNetPremium   decimal.Decimal `json:"open_trades_net_premium"`
	RealizedPnL            decimal.Decimal `json:"realized_pnl"`
	WinRate                decimal.Decimal `json:"win_rate"`
	AverageYield           decimal.Decimal `json:"average_yield"`
	OpenPositions          int             `json:"open_positions"`
	OpenPositionsCostBasis decimal.Decimal `json:"open_positions_cost_basis"`
	ActiveWheels           int             `json:"active_wheels"`
}

// Summarize computes the dashboard over books. Sums are exact; the returned
// values are rounded to cents.
func Summarize(books ...*models.Book) Dashboard {
	var (
		d        Dashboard
		capital  = decimal.Zero
		premium  = decimal.Zero
		openNet  = decimal.Zero
		realized = decimal.Zero
		yields   = decimal.Zero
		basis    = decimal.Zero
		wins     int
	)

	for _, b := range books {
		divisor := b.Account.CapitalDivisor()
		secured := decimal.Zero

		for _, t := range b.Trades {
			d.TotalTrades++
			premium = premium.Add(t.PremiumCollected())

			if t.IsOpen() {
				d.OpenTrades++
				openNet = openNet.Add(t.NetPremium())
				if t.TradeType == models.TradeCSP {
					secured = secured.Add(t.CashSecured())
				}
				continue
			}

			d.ClosedTrades++
			pnl := t.PnL()
			realized = realized.Add(pnl)
			if !pnl.IsNegative() {
				wins++
			}
			yields = yields.Add(t.Yield())
		}
		capital = capital.Add(secured.Div(divisor))

		for _, p := range b.Positions {
			if p.IsOpen() {
				d.OpenPositions++
				basis = basis.Add(p.CostBasis())
			}
		}
		for _, w := range b.Wheels {
			if w.IsActive() {
				d.ActiveWheels++
			}
		}
	}

	d.CapitalAtRisk = util.Display(capital)
	d.PremiumCollected = util.Display(premium)
	d.OpenTradesNetPremium = util.Display(openNet)
	d.RealizedPnL = util.Display(realized)
	d.OpenPositionsCostBasis = util.Display(basis)
	d.WinRate = decimal.Zero
	d.AverageYield = decimal.Zero
	if d.ClosedTrades > 0 {
		closed := decimal.NewFromInt(int64(d.ClosedTrades))
		d.WinRate = util.Display(util.Percent(decimal.NewFromInt(int64(wins)), closed))
		d.AverageYield = util.Display(yields.Div(closed))
	}
	if len(books) == 1 {
		id := books[0].Account.ID
		d.AccountID = &id
	}
	return d
}
