package models

import (
	"time"

	"github.com/eddiefleurent/wheel_tracker/internal/util"
	"github.com/shopspring/decimal"
)

// WheelPhase is the current step of a wheel cycle.
type WheelPhase string

const (
	// PhaseCSP is selling puts, no shares held.
	PhaseCSP WheelPhase = "CSP"
	// PhaseHolding holds assigned shares with no open call.
	PhaseHolding WheelPhase = "HOLDING"
	// PhaseCC has an open covered call against held shares.
	PhaseCC WheelPhase = "CC"
)

// WheelStatus is the persisted completion state of a wheel.
type WheelStatus string

const (
	// WheelActive still has open trades or positions.
	WheelActive WheelStatus = "ACTIVE"
	// WheelCompleted has nothing open left. Terminal.
	WheelCompleted WheelStatus = "COMPLETED"
)

// ParseWheelStatus parses a status filter value.
func ParseWheelStatus(s string) (WheelStatus, error) {
	switch st := WheelStatus(upper(s)); st {
	case WheelActive, WheelCompleted:
		return st, nil
	default:
		return "", Invalidf("status", "must be ACTIVE or COMPLETED (got %q)", s)
	}
}

// Wheel groups one CSP → assignment → CC → call-away cycle for a symbol.
type Wheel struct {
	ID           int64       `json:"wheel_id"`
	AccountID    int64       `json:"account_id"`
	Symbol       string      `json:"symbol"`
	StartDate    util.Date   `json:"start_date"`
	EndDate      *util.Date  `json:"end_date,omitempty"`
	Status       WheelStatus `json:"status"`
	CurrentPhase WheelPhase  `json:"current_phase"`
	// TotalPremium is gross premium collected by closed legs of the cycle.
	TotalPremium decimal.Decimal `json:"total_premium"`
	// TotalPnL is net option pnl of closed legs plus realized share P/L.
	TotalPnL  decimal.Decimal `json:"total_pnl"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewWheel starts an ACTIVE wheel at phase.
func NewWheel(id, accountID int64, symbol string, start util.Date, phase WheelPhase, now time.Time) *Wheel {
	return &Wheel{
		ID:           id,
		AccountID:    accountID,
		Symbol:       symbol,
		StartDate:    start,
		Status:       WheelActive,
		CurrentPhase: phase,
		TotalPremium: decimal.Zero,
		TotalPnL:     decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsActive reports whether the cycle is still running.
func (w *Wheel) IsActive() bool { return w.Status == WheelActive }

// MoveTo changes phase through WheelTransitions. Staying in the same phase is a no-op.
func (w *Wheel) MoveTo(phase WheelPhase, condition string, now time.Time) error {
	if phase == w.CurrentPhase {
		return nil
	}
	sm := NewStateMachine(w.CurrentPhase, WheelTransitions)
	if err := sm.Transition(phase, condition); err != nil {
		return &InvalidStateError{Entity: "wheel", ID: w.ID, State: string(w.CurrentPhase), Action: "move to " + string(phase)}
	}
	w.CurrentPhase = sm.GetCurrentState()
	w.UpdatedAt = now
	return nil
}

// Complete marks the cycle finished on end.
func (w *Wheel) Complete(end util.Date, now time.Time) {
	e := end
	w.Status = WheelCompleted
	w.EndDate = &e
	w.UpdatedAt = now
}

// Reopen undoes Complete, used when a removed leg leaves the cycle open again.
func (w *Wheel) Reopen(now time.Time) {
	w.Status = WheelActive
	w.EndDate = nil
	w.UpdatedAt = now
}

// Credit books the settlement of a closed leg.
func (w *Wheel) Credit(s Settlement, now time.Time) {
	w.TotalPremium = w.TotalPremium.Add(s.PremiumCollected)
	w.TotalPnL = w.TotalPnL.Add(s.PnL)
	w.UpdatedAt = now
}

// Debit reverses Credit for a deleted leg.
func (w *Wheel) Debit(s Settlement, now time.Time) {
	w.TotalPremium = w.TotalPremium.Sub(s.PremiumCollected)
	w.TotalPnL = w.TotalPnL.Sub(s.PnL)
	w.UpdatedAt = now
}

// AddSharePnL books realized share P/L from a call-away or manual sale.
func (w *Wheel) AddSharePnL(realized decimal.Decimal, now time.Time) {
	w.TotalPnL = w.TotalPnL.Add(realized)
	w.UpdatedAt = now
}
