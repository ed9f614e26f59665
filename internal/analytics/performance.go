package analytics

import (
	"sort"

	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/eddiefleurent/wheel_tracker/internal/util"
	"github.com/shopspring/decimal"
)

// SymbolPerformance summarizes the closed trades of one symbol.
type SymbolPerformance struct {
	Symbol       string          `json:"symbol"`
	Trades       int             `json:"trades"`
	TotalPremium decimal.Decimal `json:"total_premium"`
	NetPremium   decimal.Decimal `json:"net_premium"`
	TotalPnL     decimal.Decimal `json:"total_pnl"`
	WinRate      decimal.Decimal `json:"win_rate"`
}

// Performance groups closed trades by symbol, highest premium first.
func Performance(books ...*models.Book) []SymbolPerformance {
	type acc struct {
		trades, wins      int
		premium, net, pnl decimal.Decimal
	}
	bySymbol := map[string]*acc{}

	for _, b := range books {
		for _, t := range b.Trades {
			if t.IsOpen() {
				continue
			}
			a, ok := bySymbol[t.Symbol]
			if !ok {
				a = &acc{premium: decimal.Zero, net: decimal.Zero, pnl: decimal.Zero}
				bySymbol[t.Symbol] = a
			}
			pnl := t.PnL()
			a.trades++
			a.premium = a.premium.Add(t.PremiumCollected())
			a.net = a.net.Add(t.NetPremium())
			a.pnl = a.pnl.Add(pnl)
			if !pnl.IsNegative() {
				a.wins++
			}
		}
	}

	out := make([]SymbolPerformance, 0, len(bySymbol))
	for symbol, a := range bySymbol {
		out = append(out, SymbolPerformance{
			Symbol:       symbol,
			Trades:       a.trades,
			TotalPremium: util.Display(a.premium),
			NetPremium:   util.Display(a.net),
			TotalPnL:     util.Display(a.pnl),
			WinRate:      util.Display(util.Percent(decimal.NewFromInt(int64(a.wins)), decimal.NewFromInt(int64(a.trades)))),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalPremium.Cmp(out[j].TotalPremium); c != 0 {
			return c > 0
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}
