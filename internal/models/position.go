package models

import (
	"time"

	"github.com/eddiefleurent/wheel_tracker/internal/util"
	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state of a stock position.
type PositionStatus string

const (
	// PositionOpen holds shares.
	PositionOpen PositionStatus = "OPEN"
	// PositionClosed has no shares left. Terminal.
	PositionClosed PositionStatus = "CLOSED"
)

// ParsePositionStatus parses a status filter value.
func ParsePositionStatus(s string) (PositionStatus, error) {
	switch st := PositionStatus(upper(s)); st {
	case PositionOpen, PositionClosed:
		return st, nil
	default:
		return "", Invalidf("status", "must be OPEN or CLOSED (got %q)", s)
	}
}

// Position is a stock holding acquired by CSP assignment.
type Position struct {
	ID                int64           `json:"position_id"`
	AccountID         int64           `json:"account_id"`
	Symbol            string          `json:"symbol"`
	Shares            int             `json:"shares"`
	CostBasisPerShare decimal.Decimal `json:"cost_basis_per_share"`
	AcquiredDate      util.Date       `json:"acquired_date"`
	IsCovered         bool            `json:"is_covered"`
	Status            PositionStatus  `json:"status"`
	// SoldDate and SoldPricePerShare record the last share sale (call-away or manual).
	SoldDate          *util.Date       `json:"sold_date,omitempty"`
	SoldPricePerShare *decimal.Decimal `json:"sold_price_per_share,omitempty"`
	RealizedPnL       decimal.Decimal  `json:"realized_pnl"`
	WheelID           *int64           `json:"wheel_id,omitempty"`
	// SourceTradeID is a lookup-only reference to the assigned CSP.
	SourceTradeID *int64    `json:"source_trade_id,omitempty"`
	Notes         *string   `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsOpen reports whether the position still holds shares.
func (p *Position) IsOpen() bool { return p.Status == PositionOpen }

// CostBasis is shares × cost_basis_per_share.
func (p *Position) CostBasis() decimal.Decimal {
	return p.CostBasisPerShare.Mul(decimal.NewFromInt(int64(p.Shares)))
}

// MarketValue prices the remaining shares at last.
func (p *Position) MarketValue(last decimal.Decimal) decimal.Decimal {
	return last.Mul(decimal.NewFromInt(int64(p.Shares)))
}

// UnrealizedPnL is market value less cost basis at last.
func (p *Position) UnrealizedPnL(last decimal.Decimal) decimal.Decimal {
	return p.MarketValue(last).Sub(p.CostBasis())
}

// ValidateSale checks that shares can leave the position at price on date.
func (p *Position) ValidateSale(shares int, price decimal.Decimal, date util.Date, action string) error {
	if !p.IsOpen() {
		return &InvalidStateError{Entity: "position", ID: p.ID, State: string(p.Status), Action: action}
	}
	if shares <= 0 {
		return Invalidf("shares", "must be positive (got %d)", shares)
	}
	if shares > p.Shares {
		return &InvalidStateError{Entity: "position", ID: p.ID, State: string(p.Status),
			Action: action + " more shares than held"}
	}
	if price.IsNegative() {
		return Invalidf("sold_price_per_share", "must be zero or positive (got %s)", price)
	}
	if date.IsZero() {
		return Invalidf("sold_date", "is required")
	}
	if date.Before(p.AcquiredDate) {
		return Invalidf("sold_date", "cannot precede acquired_date %s (got %s)", p.AcquiredDate, date)
	}
	return nil
}

// Sell removes shares at price and returns the realized P/L of the sale.
// Reaching zero shares closes the position.
func (p *Position) Sell(shares int, price decimal.Decimal, date util.Date, condition string, now time.Time) (decimal.Decimal, error) {
	if err := p.ValidateSale(shares, price, date, "sell"); err != nil {
		return decimal.Zero, err
	}
	remaining := p.Shares - shares
	if remaining == 0 {
		sm := NewStateMachine(p.Status, PositionTransitions)
		if err := sm.Transition(PositionClosed, condition); err != nil {
			return decimal.Zero, Invalidf("close", "%v", err)
		}
		p.Status = sm.GetCurrentState()
		p.IsCovered = false
	}

	realized := price.Sub(p.CostBasisPerShare).Mul(decimal.NewFromInt(int64(shares)))
	soldDate := date
	soldPrice := price
	p.Shares = remaining
	p.RealizedPnL = p.RealizedPnL.Add(realized)
	p.SoldDate = &soldDate
	p.SoldPricePerShare = &soldPrice
	p.UpdatedAt = now
	return realized, nil
}
