package lifecycle

import (
	"fmt"
	"time"

	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/eddiefleurent/wheel_tracker/internal/util"
)

// IDFunc allocates the next id of a kind.
type IDFunc func(kind models.EntityKind) (int64, error)

// Wheel events, used as transition conditions.
const (
	EventCSPOpened    = "csp_opened"
	EventCSPClosed    = "csp_closed"
	EventCSPAssigned  = "csp_assigned"
	EventCCOpened     = "cc_opened"
	EventCCClosed     = "cc_closed"
	EventCCAssigned   = "cc_assigned"
	EventCCRemoved    = "cc_removed"
	EventTradeRemoved = "trade_removed"
	EventPositionSold = "position_sold"
)

// Grouper keeps wheels keyed by (account, symbol) in step with their legs.
type Grouper struct {
	ids IDFunc
}

// NewGrouper creates a grouper allocating wheel ids from ids.
func NewGrouper(ids IDFunc) *Grouper {
	return &Grouper{ids: ids}
}

// Attach puts a wheel-type trade into the running wheel for its symbol,
// starting a new one when none is active. Other trade types are left alone.
func (g *Grouper) Attach(b *models.Book, t *models.Trade, now time.Time) (*models.Wheel, error) {
	if !t.TradeType.InWheel() {
		return nil, nil
	}
	w, ok := b.ActiveWheel(t.Symbol)
	if !ok {
		id, err := g.ids(models.KindWheel)
		if err != nil {
			return nil, fmt.Errorf("allocating wheel id: %w", err)
		}
		w = models.NewWheel(id, t.AccountID, t.Symbol, t.OpenDate, models.PhaseCSP, now)
		b.Wheels = append(b.Wheels, w)
	}
	id := w.ID
	t.WheelID = &id

	event := EventCSPOpened
	if t.TradeType == models.TradeCC {
		event = EventCCOpened
	}
	if err := g.Refresh(b, w, event, t.OpenDate, now); err != nil {
		return nil, err
	}
	return w, nil
}

// Detach takes a trade out of its wheel, reversing its settlement when it was
// closed. A wheel left with no trades and no positions is dropped.
func (g *Grouper) Detach(b *models.Book, t *models.Trade, now time.Time) error {
	return g.detach(b, t, removalEvent(t.TradeType, t.IsOpen()), now)
}

func (g *Grouper) detach(b *models.Book, t *models.Trade, event string, now time.Time) error {
	if t.WheelID == nil {
		return nil
	}
	w, ok := b.Wheel(*t.WheelID)
	t.WheelID = nil
	if !ok {
		return nil
	}
	if s, closed := t.Settlement(); closed {
		w.Debit(s, now)
	}
	return g.settle(b, w, event, util.DateOf(now), now)
}

// Refresh derives the wheel's phase from its open legs and positions, moves
// it through the transition table, then completes or reopens it.
func (g *Grouper) Refresh(b *models.Book, w *models.Wheel, event string, date util.Date, now time.Time) error {
	if err := w.MoveTo(derivePhase(b, w), event, now); err != nil {
		return fmt.Errorf("wheel %d on %s: %w", w.ID, event, err)
	}
	if start, ok := earliestOpen(b, w); ok && !start.Equal(w.StartDate) {
		w.StartDate = start
		w.UpdatedAt = now
	}

	if hasOpenLegs(b, w) {
		if !w.IsActive() {
			w.Reopen(now)
		}
		return nil
	}
	if w.IsActive() {
		w.Complete(lastActivity(b, w, date), now)
	}
	return nil
}

// settle refreshes w, or drops it when nothing refers to it any more.
func (g *Grouper) settle(b *models.Book, w *models.Wheel, event string, date util.Date, now time.Time) error {
	if len(b.WheelTrades(w.ID)) == 0 && len(b.WheelPositions(w.ID)) == 0 {
		b.RemoveWheel(w.ID)
		return nil
	}
	return g.Refresh(b, w, event, date, now)
}

func removalEvent(tradeType models.TradeType, open bool) string {
	if tradeType == models.TradeCC && open {
		return EventCCRemoved
	}
	return EventTradeRemoved
}

// derivePhase: an open CC means CC, otherwise held shares mean HOLDING,
// otherwise the cycle is selling puts.
func derivePhase(b *models.Book, w *models.Wheel) models.WheelPhase {
	for _, t := range b.WheelTrades(w.ID) {
		if t.TradeType == models.TradeCC && t.IsOpen() {
			return models.PhaseCC
		}
	}
	for _, p := range b.WheelPositions(w.ID) {
		if p.IsOpen() {
			return models.PhaseHolding
		}
	}
	return models.PhaseCSP
}

func hasOpenLegs(b *models.Book, w *models.Wheel) bool {
	for _, t := range b.WheelTrades(w.ID) {
		if t.IsOpen() {
			return true
		}
	}
	for _, p := range b.WheelPositions(w.ID) {
		if p.IsOpen() {
			return true
		}
	}
	return false
}

func earliestOpen(b *models.Book, w *models.Wheel) (util.Date, bool) {
	var start util.Date
	for _, t := range b.WheelTrades(w.ID) {
		start = util.EarliestDate(start, t.OpenDate)
	}
	return start, !start.IsZero()
}

// lastActivity is the latest close or sale date in the wheel, or fallback.
func lastActivity(b *models.Book, w *models.Wheel, fallback util.Date) util.Date {
	var last util.Date
	for _, t := range b.WheelTrades(w.ID) {
		if t.CloseDate != nil && t.CloseDate.After(last) {
			last = *t.CloseDate
		}
	}
	for _, p := range b.WheelPositions(w.ID) {
		if p.SoldDate != nil && p.SoldDate.After(last) {
			last = *p.SoldDate
		}
	}
	if last.IsZero() {
		return fallback
	}
	return last
}
