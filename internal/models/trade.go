package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/eddiefleurent/wheel_tracker/internal/util"
	"github.com/shopspring/decimal"
)

// TradeType is the kind of option leg.
type TradeType string

const (
	// TradeCSP is a cash-secured put.
	TradeCSP TradeType = "CSP"
	// TradeCC is a covered call.
	TradeCC TradeType = "CC"
	// TradePut is a short put outside the wheel.
	TradePut TradeType = "PUT"
	// TradeCall is a short call outside the wheel.
	TradeCall TradeType = "CALL"
)

// ParseTradeType parses a trade type code case-insensitively.
func ParseTradeType(s string) (TradeType, error) {
	t := TradeType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", Invalidf("trade_type", "must be one of CSP, CC, PUT, CALL (got %q)", s)
	}
	return t, nil
}

// Valid returns true if the TradeType is one of the defined constants
func (t TradeType) Valid() bool {
	switch t {
	case TradeCSP, TradeCC, TradePut, TradeCall:
		return true
	default:
		return false
	}
}

// InWheel reports whether legs of this type belong to a wheel cycle.
func (t TradeType) InWheel() bool {
	switch t {
	case TradeCSP, TradeCC:
		return true
	case TradePut, TradeCall:
		return false
	default:
		return false
	}
}

// UnmarshalText rejects unknown codes.
func (t *TradeType) UnmarshalText(b []byte) error {
	parsed, err := ParseTradeType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// CloseMethod is how an option leg left the book.
type CloseMethod string

const (
	// CloseBTC is a buy-to-close before expiration.
	CloseBTC CloseMethod = "BTC"
	// CloseExpiration is expiry out of the money.
	CloseExpiration CloseMethod = "EXPIRATION"
	// CloseAssignment is exercise by the counterparty.
	CloseAssignment CloseMethod = "ASSIGNMENT"
)

// ParseCloseMethod parses a close method code case-insensitively.
func ParseCloseMethod(s string) (CloseMethod, error) {
	m := CloseMethod(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", Invalidf("close_method", "must be one of BTC, EXPIRATION, ASSIGNMENT (got %q)", s)
	}
	return m, nil
}

// Valid returns true if the CloseMethod is one of the defined constants
func (m CloseMethod) Valid() bool {
	switch m {
	case CloseBTC, CloseExpiration, CloseAssignment:
		return true
	default:
		return false
	}
}

// UnmarshalText rejects unknown codes. An empty value means "not set".
func (m *CloseMethod) UnmarshalText(b []byte) error {
	if strings.TrimSpace(string(b)) == "" {
		*m = ""
		return nil
	}
	parsed, err := ParseCloseMethod(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// TradeStatus is the lifecycle state of a trade.
type TradeStatus string

const (
	// TradeOpen is a live leg.
	TradeOpen TradeStatus = "OPEN"
	// TradeClosed is a settled leg. Terminal.
	TradeClosed TradeStatus = "CLOSED"
)

// ParseTradeStatus parses a status filter value.
func ParseTradeStatus(s string) (TradeStatus, error) {
	st := TradeStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case TradeOpen, TradeClosed:
		return st, nil
	default:
		return "", Invalidf("status", "must be OPEN or CLOSED (got %q)", s)
	}
}

var symbolPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.]{0,9}$`)

// NormalizeSymbol trims and upper-cases a ticker and checks its shape.
func NormalizeSymbol(s string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if sym == "" {
		return "", Invalidf("symbol", "is required")
	}
	if !symbolPattern.MatchString(sym) {
		return "", Invalidf("symbol", "must be a ticker such as AAPL or BRK.B (got %q)", s)
	}
	return sym, nil
}

// TradeSpec carries the user-editable fields of a trade.
type TradeSpec struct {
	AccountID       int64           `json:"account_id"`
	Symbol          string          `json:"symbol"`
	TradeType       TradeType       `json:"trade_type"`
	Contracts       int             `json:"contracts"`
	StrikePrice     decimal.Decimal `json:"strike_price"`
	PremiumPerShare decimal.Decimal `json:"premium_per_share"`
	Delta           *float64        `json:"delta,omitempty"`
	OpenDate        util.Date       `json:"open_date"`
	ExpirationDate  util.Date       `json:"expiration_date"`
	Fees            decimal.Decimal `json:"fees"`
	Tags            *string         `json:"tags,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
}

// Normalize canonicalizes the symbol in place.
func (s *TradeSpec) Normalize() error {
	sym, err := NormalizeSymbol(s.Symbol)
	if err != nil {
		return err
	}
	s.Symbol = sym
	return nil
}

// Validate checks every field of an open request. It does not mutate the spec.
func (s TradeSpec) Validate() error {
	if s.AccountID <= 0 {
		return Invalidf("account_id", "is required")
	}
	if _, err := NormalizeSymbol(s.Symbol); err != nil {
		return err
	}
	if !s.TradeType.Valid() {
		return Invalidf("trade_type", "must be one of CSP, CC, PUT, CALL (got %q)", string(s.TradeType))
	}
	if s.Contracts < 1 {
		return Invalidf("contracts", "must be at least 1 (got %d)", s.Contracts)
	}
	if !s.StrikePrice.IsPositive() {
		return Invalidf("strike_price", "must be greater than zero (got %s)", s.StrikePrice)
	}
	if s.PremiumPerShare.IsNegative() {
		return Invalidf("premium_per_share", "must be zero or positive (got %s)", s.PremiumPerShare)
	}
	if s.Fees.IsNegative() {
		return Invalidf("fees", "must be zero or positive (got %s)", s.Fees)
	}
	if s.Delta != nil && (*s.Delta < -1 || *s.Delta > 1) {
		return Invalidf("delta", "must be between -1 and 1 (got %g)", *s.Delta)
	}
	if s.OpenDate.IsZero() {
		return Invalidf("open_date", "is required")
	}
	if s.ExpirationDate.IsZero() {
		return Invalidf("expiration_date", "is required")
	}
	if s.ExpirationDate.Before(s.OpenDate) {
		return Invalidf("expiration_date", "must be on or after open_date (%s < %s)", s.ExpirationDate, s.OpenDate)
	}
	return nil
}

// CloseRequest carries the settlement inputs of close().
type CloseRequest struct {
	CloseDate   util.Date        `json:"close_date"`
	CloseMethod CloseMethod      `json:"close_method"`
	ClosePrice  *decimal.Decimal `json:"close_price,omitempty"`
}

// Settlement is the money outcome of closing one leg.
type Settlement struct {
	PremiumCollected decimal.Decimal `json:"premium_collected"`
	CostToClose      decimal.Decimal `json:"cost_to_close"`
	Fees             decimal.Decimal `json:"fees"`
	PnL              decimal.Decimal `json:"pnl"`
}

// Trade is one option leg.
type Trade struct {
	ID              int64            `json:"trade_id"`
	AccountID       int64            `json:"account_id"`
	Symbol          string           `json:"symbol"`
	TradeType       TradeType        `json:"trade_type"`
	Contracts       int              `json:"contracts"`
	StrikePrice     decimal.Decimal  `json:"strike_price"`
	PremiumPerShare decimal.Decimal  `json:"premium_per_share"`
	Delta           *float64         `json:"delta,omitempty"`
	OpenDate        util.Date        `json:"open_date"`
	ExpirationDate  util.Date        `json:"expiration_date"`
	Fees            decimal.Decimal  `json:"fees"`
	Status          TradeStatus      `json:"status"`
	CloseDate       *util.Date       `json:"close_date,omitempty"`
	CloseMethod     CloseMethod      `json:"close_method,omitempty"`
	ClosePrice      *decimal.Decimal `json:"close_price,omitempty"`
	Tags            *string          `json:"tags,omitempty"`
	Notes           *string          `json:"notes,omitempty"`
	WheelID         *int64           `json:"wheel_id,omitempty"`
	// PositionID points at the position this leg created (CSP) or delivered (CC) on assignment.
	PositionID *int64    `json:"position_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewTrade validates spec and builds an OPEN trade. The ID is assigned by the caller.
func NewTrade(spec TradeSpec, now time.Time) (*Trade, error) {
	if err := spec.Normalize(); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	t := &Trade{Status: TradeOpen, CreatedAt: now, UpdatedAt: now}
	t.applySpec(spec)
	return t, nil
}

func (t *Trade) applySpec(spec TradeSpec) {
	t.AccountID = spec.AccountID
	t.Symbol = spec.Symbol
	t.TradeType = spec.TradeType
	t.Contracts = spec.Contracts
	t.StrikePrice = spec.StrikePrice
	t.PremiumPerShare = spec.PremiumPerShare
	t.Delta = spec.Delta
	t.OpenDate = spec.OpenDate
	t.ExpirationDate = spec.ExpirationDate
	t.Fees = spec.Fees
	t.Tags = spec.Tags
	t.Notes = spec.Notes
}

// Spec returns the editable fields of the trade.
func (t *Trade) Spec() TradeSpec {
	return TradeSpec{
		AccountID:       t.AccountID,
		Symbol:          t.Symbol,
		TradeType:       t.TradeType,
		Contracts:       t.Contracts,
		StrikePrice:     t.StrikePrice,
		PremiumPerShare: t.PremiumPerShare,
		Delta:           t.Delta,
		OpenDate:        t.OpenDate,
		ExpirationDate:  t.ExpirationDate,
		Fees:            t.Fees,
		Tags:            t.Tags,
		Notes:           t.Notes,
	}
}

// IsOpen reports whether the trade is live.
func (t *Trade) IsOpen() bool { return t.Status == TradeOpen }

// Update replaces the editable fields of an OPEN trade after re-validating them.
func (t *Trade) Update(spec TradeSpec, now time.Time) error {
	if !t.IsOpen() {
		return &InvalidStateError{Entity: "trade", ID: t.ID, State: string(t.Status), Action: "update"}
	}
	if spec.AccountID != t.AccountID {
		return Invalidf("account_id", "cannot move trade %d from account %d to %d", t.ID, t.AccountID, spec.AccountID)
	}
	if err := spec.Normalize(); err != nil {
		return err
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	t.applySpec(spec)
	t.UpdatedAt = now
	return nil
}

// Shares returns the number of underlying shares the leg controls.
func (t *Trade) Shares() int { return util.Shares(t.Contracts) }

// PremiumCollected is premium_per_share × contracts × 100.
func (t *Trade) PremiumCollected() decimal.Decimal {
	return util.PerContract(t.PremiumPerShare, t.Contracts)
}

// NetPremium is the premium collected less fees.
func (t *Trade) NetPremium() decimal.Decimal {
	return t.PremiumCollected().Sub(t.Fees)
}

// CashSecured is strike × contracts × 100, the obligation of a short put.
func (t *Trade) CashSecured() decimal.Decimal {
	return util.PerContract(t.StrikePrice, t.Contracts)
}

// CostToClose is close_price × contracts × 100; zero unless closed with BTC.
func (t *Trade) CostToClose() decimal.Decimal {
	if t.ClosePrice == nil {
		return decimal.Zero
	}
	return util.PerContract(*t.ClosePrice, t.Contracts)
}

// Settlement returns the settlement of a closed trade, and false for an open one.
func (t *Trade) Settlement() (Settlement, bool) {
	if t.IsOpen() {
		return Settlement{}, false
	}
	return settle(t.PremiumPerShare, t.closePriceOrZero(), t.Contracts, t.Fees), true
}

// PnL returns the realized profit of a closed trade, or zero while open.
func (t *Trade) PnL() decimal.Decimal {
	s, ok := t.Settlement()
	if !ok {
		return decimal.Zero
	}
	return s.PnL
}

// Yield returns pnl / cash secured × 100 for a closed trade.
func (t *Trade) Yield() decimal.Decimal {
	return util.Percent(t.PnL(), t.CashSecured())
}

func (t *Trade) closePriceOrZero() decimal.Decimal {
	if t.ClosePrice == nil {
		return decimal.Zero
	}
	return *t.ClosePrice
}

func settle(premiumPerShare, closePrice decimal.Decimal, contracts int, fees decimal.Decimal) Settlement {
	premium := util.PerContract(premiumPerShare, contracts)
	cost := util.PerContract(closePrice, contracts)
	return Settlement{
		PremiumCollected: premium,
		CostToClose:      cost,
		Fees:             fees,
		PnL:              premium.Sub(cost).Sub(fees),
	}
}

// ValidateClose checks a close request against the trade without touching it
// and returns the effective close price.
func (t *Trade) ValidateClose(req CloseRequest) (decimal.Decimal, error) {
	sm := NewStateMachine(t.Status, TradeTransitions)
	if err := sm.IsValidTransition(TradeClosed, string(req.CloseMethod)); err != nil {
		if !t.IsOpen() {
			return decimal.Zero, &InvalidStateError{Entity: "trade", ID: t.ID, State: string(t.Status), Action: "close"}
		}
		return decimal.Zero, Invalidf("close_method", "must be one of BTC, EXPIRATION, ASSIGNMENT (got %q)", string(req.CloseMethod))
	}
	if req.CloseDate.IsZero() {
		return decimal.Zero, Invalidf("close_date", "is required")
	}

	switch req.CloseMethod {
	case CloseBTC:
		if req.ClosePrice == nil {
			return decimal.Zero, Invalidf("close_price", "is required when buying to close")
		}
		if req.ClosePrice.IsNegative() {
			return decimal.Zero, Invalidf("close_price", "must be zero or positive (got %s)", req.ClosePrice)
		}
		if !req.CloseDate.Within(t.OpenDate, t.ExpirationDate) {
			return decimal.Zero, Invalidf("close_date", "must be between open_date %s and expiration_date %s (got %s)",
				t.OpenDate, t.ExpirationDate, req.CloseDate)
		}
		return *req.ClosePrice, nil
	case CloseExpiration:
		if !req.CloseDate.Equal(t.ExpirationDate) {
			return decimal.Zero, Invalidf("close_date", "an expired leg settles on its expiration_date %s (got %s)",
				t.ExpirationDate, req.CloseDate)
		}
		return decimal.Zero, nil
	case CloseAssignment:
		if req.CloseDate.Before(t.OpenDate) {
			return decimal.Zero, Invalidf("close_date", "assignment cannot precede open_date %s (got %s)",
				t.OpenDate, req.CloseDate)
		}
		return decimal.Zero, nil
	default:
		return decimal.Zero, Invalidf("close_method", "unsupported close method %q", string(req.CloseMethod))
	}
}

// Close settles an OPEN trade. Nothing is mutated unless every check passes.
// EXPIRATION and ASSIGNMENT force close_price to zero whatever the caller sent.
func (t *Trade) Close(req CloseRequest, now time.Time) (Settlement, error) {
	price, err := t.ValidateClose(req)
	if err != nil {
		return Settlement{}, err
	}

	closeDate := req.CloseDate
	t.Status = TradeClosed
	t.CloseDate = &closeDate
	t.CloseMethod = req.CloseMethod
	t.ClosePrice = &price
	t.UpdatedAt = now

	s, _ := t.Settlement()
	return s, nil
}

// DedupKey identifies the same historical leg across imports:
// account, symbol, type, open date, expiration and strike.
func (t *Trade) DedupKey() string {
	return DedupKey(t.AccountID, t.Symbol, t.TradeType, t.OpenDate, t.ExpirationDate, t.StrikePrice)
}

// DedupKey builds the import de-duplication key from its parts.
func DedupKey(accountID int64, symbol string, tradeType TradeType, openDate, expiration util.Date, strike decimal.Decimal) string {
	return fmt.Sprintf("%d|%s|%s|%s|%s|%s", accountID, strings.ToUpper(symbol), tradeType,
		openDate, expiration, strike.String())
}
