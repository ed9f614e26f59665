package lifecycle

import (
	"fmt"
	"time"

	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/eddiefleurent/wheel_tracker/internal/util"
	"github.com/shopspring/decimal"
)

// Engine runs trade operations against a book. Callers hand it a private copy
// of the book and persist it only when the call succeeds.
type Engine struct {
	ids     IDFunc
	grouper *Grouper
	now     func() time.Time
}

// NewEngine creates an engine. A nil clock uses time.Now.
func NewEngine(ids IDFunc, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{ids: ids, grouper: NewGrouper(ids), now: now}
}

// CloseResult reports everything a close touched.
type CloseResult struct {
	Trade      *models.Trade      `json:"trade"`
	Settlement models.Settlement  `json:"settlement"`
	Positions  []*models.Position `json:"positions,omitempty"`
	Wheel      *models.Wheel      `json:"wheel,omitempty"`
}

// PositionCloseRequest is a manual sale of all remaining shares.
type PositionCloseRequest struct {
	SoldDate          util.Date       `json:"sold_date"`
	SoldPricePerShare decimal.Decimal `json:"sold_price_per_share"`
}

// OpenTrade validates spec, adds an OPEN trade and groups it into a wheel.
func (e *Engine) OpenTrade(b *models.Book, spec models.TradeSpec) (*models.Trade, error) {
	if spec.AccountID != b.Account.ID {
		return nil, models.Invalidf("account_id", "trade for account %d submitted to account %d", spec.AccountID, b.Account.ID)
	}
	now := e.now()
	t, err := models.NewTrade(spec, now)
	if err != nil {
		return nil, err
	}
	id, err := e.ids(models.KindTrade)
	if err != nil {
		return nil, fmt.Errorf("allocating trade id: %w", err)
	}
	t.ID = id
	b.Trades = append(b.Trades, t)

	if _, err := e.grouper.Attach(b, t, now); err != nil {
		return nil, err
	}
	RecomputeCoverage(b, t.Symbol, now)
	return t, nil
}

// CloseTrade settles trade id and applies the assignment and wheel side effects.
func (e *Engine) CloseTrade(b *models.Book, id int64, req models.CloseRequest) (*CloseResult, error) {
	t, ok := b.Trade(id)
	if !ok {
		return nil, &models.NotFoundError{Entity: "trade", ID: id}
	}
	now := e.now()

	// Check the stock side before the trade changes state.
	if _, err := t.ValidateClose(req); err != nil {
		return nil, err
	}
	if req.CloseMethod == models.CloseAssignment && t.TradeType == models.TradeCC {
		if err := CheckMutation(b, &PositionMutation{
			Kind:          MutationReduce,
			Symbol:        t.Symbol,
			Shares:        t.Shares(),
			PricePerShare: t.StrikePrice,
			Date:          req.CloseDate,
			TradeID:       t.ID,
			WheelID:       t.WheelID,
		}); err != nil {
			return nil, err
		}
	}

	settlement, err := t.Close(req, now)
	if err != nil {
		return nil, err
	}
	res := &CloseResult{Trade: t, Settlement: settlement}

	mutation, err := OnAssignment(t)
	if err != nil {
		return nil, err
	}
	delivery, err := Apply(b, mutation, e.ids, now)
	if err != nil {
		return nil, err
	}
	res.Positions = delivery.Positions
	if len(delivery.Positions) > 0 {
		pid := delivery.Positions[0].ID
		t.PositionID = &pid
	}

	if t.WheelID != nil {
		w, ok := b.Wheel(*t.WheelID)
		if !ok {
			return nil, fmt.Errorf("trade %d references missing wheel %d", t.ID, *t.WheelID)
		}
		w.Credit(settlement, now)
		if !delivery.Realized.IsZero() {
			w.AddSharePnL(delivery.Realized, now)
		}
		if err := e.grouper.Refresh(b, w, closeEvent(t), req.CloseDate, now); err != nil {
			return nil, err
		}
		res.Wheel = w
	}
	RecomputeCoverage(b, t.Symbol, now)
	return res, nil
}

func closeEvent(t *models.Trade) string {
	switch {
	case t.TradeType == models.TradeCC && t.CloseMethod == models.CloseAssignment:
		return EventCCAssigned
	case t.TradeType == models.TradeCC:
		return EventCCClosed
	case t.CloseMethod == models.CloseAssignment:
		return EventCSPAssigned
	default:
		return EventCSPClosed
	}
}

// UpdateTrade replaces the editable fields of an OPEN trade and regroups it.
func (e *Engine) UpdateTrade(b *models.Book, id int64, spec models.TradeSpec) (*models.Trade, error) {
	t, ok := b.Trade(id)
	if !ok {
		return nil, &models.NotFoundError{Entity: "trade", ID: id}
	}
	now := e.now()
	oldSymbol := t.Symbol
	oldType := t.TradeType

	if err := t.Update(spec, now); err != nil {
		return nil, err
	}

	if t.WheelID != nil && t.Symbol == oldSymbol && t.TradeType.InWheel() {
		w, ok := b.Wheel(*t.WheelID)
		if !ok {
			return nil, fmt.Errorf("trade %d references missing wheel %d", t.ID, *t.WheelID)
		}
		event := EventCSPOpened
		switch {
		case oldType == models.TradeCC && t.TradeType != models.TradeCC:
			event = EventCCRemoved
		case t.TradeType == models.TradeCC:
			event = EventCCOpened
		}
		if err := e.grouper.Refresh(b, w, event, t.OpenDate, now); err != nil {
			return nil, err
		}
	} else {
		if err := e.grouper.detach(b, t, removalEvent(oldType, true), now); err != nil {
			return nil, err
		}
		if _, err := e.grouper.Attach(b, t, now); err != nil {
			return nil, err
		}
	}

	RecomputeCoverage(b, oldSymbol, now)
	RecomputeCoverage(b, t.Symbol, now)
	return t, nil
}

// DeleteTrade removes a trade. Trades whose assignment produced a position
// that is still open are refused with a ConflictError.
func (e *Engine) DeleteTrade(b *models.Book, id int64) error {
	t, ok := b.Trade(id)
	if !ok {
		return &models.NotFoundError{Entity: "trade", ID: id}
	}
	if t.PositionID != nil {
		if p, ok := b.Position(*t.PositionID); ok && p.IsOpen() {
			return &models.ConflictError{
				Entity: "trade",
				ID:     t.ID,
				Reason: fmt.Sprintf("position %d derived from its assignment is still open", p.ID),
			}
		}
	}
	now := e.now()
	if err := e.grouper.Detach(b, t, now); err != nil {
		return err
	}
	b.RemoveTrade(t.ID)
	RecomputeCoverage(b, t.Symbol, now)
	return nil
}

// ClosePosition sells every remaining share of an uncovered position.
func (e *Engine) ClosePosition(b *models.Book, id int64, req PositionCloseRequest) (*models.Position, error) {
	p, ok := b.Position(id)
	if !ok {
		return nil, &models.NotFoundError{Entity: "position", ID: id}
	}
	if p.IsOpen() && b.HasOpenCC(p.Symbol) {
		return nil, &models.ConflictError{
			Entity: "position",
			ID:     p.ID,
			Reason: "shares are covered by an open call",
		}
	}
	now := e.now()
	realized, err := p.Sell(p.Shares, req.SoldPricePerShare, req.SoldDate, "sold", now)
	if err != nil {
		return nil, err
	}

	if p.WheelID != nil {
		if w, ok := b.Wheel(*p.WheelID); ok {
			w.AddSharePnL(realized, now)
			if err := e.grouper.Refresh(b, w, EventPositionSold, req.SoldDate, now); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}
