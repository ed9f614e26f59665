// Package lifecycle applies trade events to an account book: it derives stock
// positions from assignments and keeps wheel cycles in step with their legs.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/eddiefleurent/wheel_tracker/internal/util"
	"github.com/shopspring/decimal"
)

// MutationKind says what an assignment does to the stock side of the book.
type MutationKind string

const (
	// MutationCreate opens a new position (CSP assigned).
	MutationCreate MutationKind = "create"
	// MutationReduce delivers shares out of held positions (CC assigned).
	MutationReduce MutationKind = "reduce"
)

// PositionMutation is the stock-side effect of one assignment.
type PositionMutation struct {
	Kind      MutationKind
	AccountID int64
	Symbol    string
	Shares    int
	// PricePerShare is the cost basis for a create and the sale price for a reduce.
	PricePerShare decimal.Decimal
	Date          util.Date
	TradeID       int64
	WheelID       *int64
}

// OnAssignment derives the position mutation of a closed trade. It returns nil
// for BTC and EXPIRATION closes and for legs outside the wheel.
func OnAssignment(t *models.Trade) (*PositionMutation, error) {
	if t.IsOpen() {
		return nil, fmt.Errorf("trade %d is still open", t.ID)
	}
	if t.CloseMethod != models.CloseAssignment || t.CloseDate == nil {
		return nil, nil
	}

	m := &PositionMutation{
		AccountID:     t.AccountID,
		Symbol:        t.Symbol,
		Shares:        t.Shares(),
		PricePerShare: t.StrikePrice,
		Date:          *t.CloseDate,
		TradeID:       t.ID,
		WheelID:       t.WheelID,
	}
	switch t.TradeType {
	case models.TradeCSP:
		m.Kind = MutationCreate
	case models.TradeCC:
		m.Kind = MutationReduce
	case models.TradePut, models.TradeCall:
		return nil, nil
	default:
		return nil, fmt.Errorf("trade %d has unknown type %q", t.ID, t.TradeType)
	}
	return m, nil
}

// Delivery is the outcome of applying a mutation.
type Delivery struct {
	// Positions touched, in the order they were created or reduced.
	Positions []*models.Position
	// Realized share P/L of a reduce; zero for a create.
	Realized decimal.Decimal
}

// CheckMutation reports whether m can be applied to b without changing it.
func CheckMutation(b *models.Book, m *PositionMutation) error {
	if m == nil || m.Kind != MutationReduce {
		return nil
	}
	held := 0
	for _, p := range candidates(b, m) {
		if err := p.ValidateSale(1, m.PricePerShare, m.Date, "deliver"); err != nil {
			continue
		}
		held += p.Shares
	}
	if held < m.Shares {
		return &models.InvalidStateError{
			Entity: "trade",
			ID:     m.TradeID,
			State:  string(models.TradeOpen),
			Action: fmt.Sprintf("deliver %d %s shares on assignment with %d held", m.Shares, m.Symbol, held),
		}
	}
	return nil
}

// Apply executes m against b. Reductions take shares from the trade's own
// wheel first, then oldest positions first; shares never go negative.
func Apply(b *models.Book, m *PositionMutation, ids IDFunc, now time.Time) (*Delivery, error) {
	if m == nil {
		return &Delivery{Realized: decimal.Zero}, nil
	}
	if err := CheckMutation(b, m); err != nil {
		return nil, err
	}

	switch m.Kind {
	case MutationCreate:
		id, err := ids(models.KindPosition)
		if err != nil {
			return nil, fmt.Errorf("allocating position id: %w", err)
		}
		source := m.TradeID
		p := &models.Position{
			ID:                id,
			AccountID:         m.AccountID,
			Symbol:            m.Symbol,
			Shares:            m.Shares,
			CostBasisPerShare: m.PricePerShare,
			AcquiredDate:      m.Date,
			Status:            models.PositionOpen,
			RealizedPnL:       decimal.Zero,
			WheelID:           copyID(m.WheelID),
			SourceTradeID:     &source,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		b.Positions = append(b.Positions, p)
		return &Delivery{Positions: []*models.Position{p}, Realized: decimal.Zero}, nil

	case MutationReduce:
		out := &Delivery{Realized: decimal.Zero}
		left := m.Shares
		for _, p := range candidates(b, m) {
			if left == 0 {
				break
			}
			if p.ValidateSale(1, m.PricePerShare, m.Date, "deliver") != nil {
				continue
			}
			n := min(left, p.Shares)
			realized, err := p.Sell(n, m.PricePerShare, m.Date, "called_away", now)
			if err != nil {
				return nil, fmt.Errorf("delivering from position %d: %w", p.ID, err)
			}
			out.Realized = out.Realized.Add(realized)
			out.Positions = append(out.Positions, p)
			left -= n
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unknown position mutation %q", m.Kind)
	}
}

// candidates lists open positions for the mutation's symbol, same wheel first.
func candidates(b *models.Book, m *PositionMutation) []*models.Position {
	open := b.OpenPositions(m.Symbol)
	if m.WheelID == nil {
		return open
	}
	out := make([]*models.Position, 0, len(open))
	for _, p := range open {
		if p.WheelID != nil && *p.WheelID == *m.WheelID {
			out = append(out, p)
		}
	}
	for _, p := range open {
		if p.WheelID == nil || *p.WheelID != *m.WheelID {
			out = append(out, p)
		}
	}
	return out
}

// RecomputeCoverage sets is_covered on open positions in symbol to
// "an OPEN CC exists for this account and symbol".
func RecomputeCoverage(b *models.Book, symbol string, now time.Time) {
	covered := b.HasOpenCC(symbol)
	for _, p := range b.Positions {
		if p.Symbol != symbol || !p.IsOpen() {
			continue
		}
		if p.IsCovered != covered {
			p.IsCovered = covered
			p.UpdatedAt = now
		}
	}
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
