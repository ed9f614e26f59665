package service

import (
	"context"
	"sort"

	"github.com/eddiefleurent/wheel_tracker/internal/lifecycle"
	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/eddiefleurent/wheel_tracker/internal/util"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PositionView is a position with its cost basis and, when priced, its
// market value.
type PositionView struct {
	*models.Position
	CostBasis     decimal.Decimal  `json:"cost_basis"`
	MarketPrice   *decimal.Decimal `json:"market_price,omitempty"`
	MarketValue   *decimal.Decimal `json:"market_value,omitempty"`
	UnrealizedPnL *decimal.Decimal `json:"unrealized_pnl,omitempty"`
}

// PositionFilter narrows ListPositions. WithQuotes prices open positions.
type PositionFilter struct {
	AccountID  *int64
	Status     models.PositionStatus
	WithQuotes bool
}

// WheelFilter narrows ListWheels.
type WheelFilter struct {
	AccountID *int64
	Status    models.WheelStatus
}

// WheelDetail is a wheel with its legs and share lots.
type WheelDetail struct {
	*models.Wheel
	Trades    []TradeView        `json:"trades"`
	Positions []*models.Position `json:"positions"`
}

func viewPosition(p *models.Position) PositionView {
	return PositionView{Position: p, CostBasis: util.Display(p.CostBasis())}
}

// ListPositions returns matching positions ordered by acquisition date.
// Prices that cannot be fetched are left out; the list itself never fails
// because of the quote provider.
func (l *Ledger) ListPositions(ctx context.Context, f PositionFilter) ([]PositionView, error) {
	books, err := l.books(ctx, f.AccountID)
	if err != nil {
		return nil, err
	}

	out := []PositionView{}
	var symbols []string
	for _, b := range books {
		for _, p := range b.Positions {
			if f.Status != "" && p.Status != f.Status {
				continue
			}
			out = append(out, viewPosition(p))
			if p.IsOpen() {
				symbols = append(symbols, p.Symbol)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].AcquiredDate.Equal(out[j].AcquiredDate) {
			return out[i].AcquiredDate.Before(out[j].AcquiredDate)
		}
		return out[i].ID < out[j].ID
	})

	if f.WithQuotes && l.quotes != nil && len(symbols) > 0 {
		prices := l.quotes.Quotes(ctx, symbols)
		for i := range out {
			q, ok := prices[out[i].Symbol]
			if !ok || !out[i].IsOpen() {
				continue
			}
			last := util.Display(q.Last)
			value := util.Display(out[i].Position.MarketValue(q.Last))
			unrealized := util.Display(out[i].Position.UnrealizedPnL(q.Last))
			out[i].MarketPrice = &last
			out[i].MarketValue = &value
			out[i].UnrealizedPnL = &unrealized
		}
		if len(prices) < len(symbols) {
			l.logger.WithField("priced", len(prices)).Debug("Some positions left unpriced")
		}
	}
	return out, nil
}

// GetPosition returns one position.
func (l *Ledger) GetPosition(ctx context.Context, id int64) (*PositionView, error) {
	b, err := l.ownerBook(ctx, models.KindPosition, id)
	if err != nil {
		return nil, err
	}
	p, ok := b.Position(id)
	if !ok {
		return nil, &models.NotFoundError{Entity: "position", ID: id}
	}
	v := viewPosition(p)
	return &v, nil
}

// ClosePosition sells every remaining share of an uncovered position.
func (l *Ledger) ClosePosition(ctx context.Context, id int64, req lifecycle.PositionCloseRequest) (*PositionView, error) {
	owner, err := l.store.Owner(ctx, models.KindPosition, id)
	if err != nil {
		return nil, err
	}
	var closed *models.Position
	err = l.mutate(ctx, owner, func(b *models.Book, e *lifecycle.Engine) error {
		p, err := e.ClosePosition(b, id, req)
		closed = p
		return err
	})
	if err != nil {
		return nil, err
	}
	l.logger.WithFields(logrus.Fields{
		"account_id":  owner,
		"position_id": id,
		"realized":    util.Display(closed.RealizedPnL).String(),
	}).Info("Position closed")
	v := viewPosition(closed)
	return &v, nil
}

// ListWheels returns matching wheels, most recently started first.
func (l *Ledger) ListWheels(ctx context.Context, f WheelFilter) ([]*models.Wheel, error) {
	books, err := l.books(ctx, f.AccountID)
	if err != nil {
		return nil, err
	}
	out := []*models.Wheel{}
	for _, b := range books {
		for _, w := range b.Wheels {
			if f.Status != "" && w.Status != f.Status {
				continue
			}
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// GetWheel returns a wheel with its trades and positions.
func (l *Ledger) GetWheel(ctx context.Context, id int64) (*WheelDetail, error) {
	b, err := l.ownerBook(ctx, models.KindWheel, id)
	if err != nil {
		return nil, err
	}
	w, ok := b.Wheel(id)
	if !ok {
		return nil, &models.NotFoundError{Entity: "wheel", ID: id}
	}
	today := l.today()
	d := &WheelDetail{Wheel: w, Trades: []TradeView{}, Positions: b.WheelPositions(id)}
	for _, t := range b.WheelTrades(id) {
		d.Trades = append(d.Trades, l.viewTrade(t, today))
	}
	if d.Positions == nil {
		d.Positions = []*models.Position{}
	}
	return d, nil
}
