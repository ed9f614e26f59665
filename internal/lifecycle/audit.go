package lifecycle

import (
	"fmt"
	"sort"

	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/eddiefleurent/wheel_tracker/internal/util"
	"github.com/shopspring/decimal"
)

// Finding is one inconsistency found in a book.
type Finding struct {
	AccountID int64             `json:"account_id"`
	Entity    models.EntityKind `json:"entity"`
	ID        int64             `json:"id"`
	Problem   string            `json:"problem"`
}

// Audit re-derives what the engine maintains incrementally (coverage, wheel
// phase, status and premium, cross references) and reports every mismatch.
// A book only ever changed through the Engine yields no findings.
func Audit(b *models.Book) []Finding {
	var out []Finding
	add := func(kind models.EntityKind, id int64, format string, args ...any) {
		out = append(out, Finding{AccountID: b.Account.ID, Entity: kind, ID: id, Problem: fmt.Sprintf(format, args...)})
	}

	for _, t := range b.Trades {
		if t.AccountID != b.Account.ID {
			add(models.KindTrade, t.ID, "belongs to account %d", t.AccountID)
		}
		if t.WheelID != nil {
			if _, ok := b.Wheel(*t.WheelID); !ok {
				add(models.KindTrade, t.ID, "references missing wheel %d", *t.WheelID)
			}
		} else if t.TradeType.InWheel() {
			add(models.KindTrade, t.ID, "%s leg is not grouped into a wheel", t.TradeType)
		}
		if t.PositionID != nil {
			if _, ok := b.Position(*t.PositionID); !ok {
				add(models.KindTrade, t.ID, "references missing position %d", *t.PositionID)
			}
		}
	}

	for _, p := range b.Positions {
		if p.IsOpen() {
			if p.Shares <= 0 {
				add(models.KindPosition, p.ID, "is open with %d shares", p.Shares)
			}
			if covered := b.HasOpenCC(p.Symbol); p.IsCovered != covered {
				add(models.KindPosition, p.ID, "is_covered is %t but an open call exists: %t", p.IsCovered, covered)
			}
		}
		if p.WheelID != nil {
			if _, ok := b.Wheel(*p.WheelID); !ok {
				add(models.KindPosition, p.ID, "references missing wheel %d", *p.WheelID)
			}
		}
	}

	active := map[string][]int64{}
	for _, w := range b.Wheels {
		if w.IsActive() {
			active[w.Symbol] = append(active[w.Symbol], w.ID)
		}
		if phase := derivePhase(b, w); phase != w.CurrentPhase {
			add(models.KindWheel, w.ID, "phase is %s, legs say %s", w.CurrentPhase, phase)
		}
		open := hasOpenLegs(b, w)
		switch {
		case w.IsActive() && !open:
			add(models.KindWheel, w.ID, "is ACTIVE without open legs or shares")
		case !w.IsActive() && open:
			add(models.KindWheel, w.ID, "is %s with open legs or shares", w.Status)
		}
		var legs []decimal.Decimal
		for _, t := range b.WheelTrades(w.ID) {
			if !t.IsOpen() {
				legs = append(legs, t.PremiumCollected())
			}
		}
		premium := util.Sum(legs...)
		if !premium.Equal(w.TotalPremium) {
			add(models.KindWheel, w.ID, "total_premium is %s, closed legs sum to %s", w.TotalPremium, premium)
		}
	}

	symbols := make([]string, 0, len(active))
	for s := range active {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		if ids := active[s]; len(ids) > 1 {
			add(models.KindWheel, ids[0], "%s has %d active wheels %v", s, len(ids), ids)
		}
	}
	return out
}
