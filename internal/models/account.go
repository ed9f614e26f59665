package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountType controls how capital at risk is computed.
type AccountType string

const (
	// AccountCash secures puts with the full strike.
	AccountCash AccountType = "cash"
	// AccountMargin divides secured capital by the margin multiplier.
	AccountMargin AccountType = "margin"
)

// Valid returns true if the AccountType is one of the defined constants
func (t AccountType) Valid() bool {
	switch t {
	case AccountCash, AccountMargin:
		return true
	default:
		return false
	}
}

// AccountSpec carries the user-editable fields of an account.
type AccountSpec struct {
	Name             string          `json:"name"`
	Broker           string          `json:"broker"`
	Currency         string          `json:"currency"`
	AccountType      AccountType     `json:"account_type"`
	MarginMultiplier decimal.Decimal `json:"margin_multiplier"`
	InitialBalance   decimal.Decimal `json:"initial_balance"`
	CurrentBalance   decimal.Decimal `json:"current_balance"`
}

// Normalize fills defaults: USD, cash, multiplier 1. Cash accounts always use 1.
func (s *AccountSpec) Normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.Broker = strings.TrimSpace(s.Broker)
	s.Currency = strings.ToUpper(strings.TrimSpace(s.Currency))
	if s.Currency == "" {
		s.Currency = "USD"
	}
	if s.AccountType == "" {
		s.AccountType = AccountCash
	}
	if s.AccountType == AccountCash || s.MarginMultiplier.IsZero() {
		s.MarginMultiplier = decimal.NewFromInt(1)
	}
}

// Validate checks a normalized spec.
func (s AccountSpec) Validate() error {
	if s.Name == "" {
		return Invalidf("name", "is required")
	}
	if !s.AccountType.Valid() {
		return Invalidf("account_type", "must be cash or margin (got %q)", string(s.AccountType))
	}
	if s.MarginMultiplier.LessThan(decimal.NewFromInt(1)) {
		return Invalidf("margin_multiplier", "must be at least 1.0 (got %s)", s.MarginMultiplier)
	}
	if len(s.Currency) != 3 {
		return Invalidf("currency", "must be a three-letter code (got %q)", s.Currency)
	}
	return nil
}

// Account is a brokerage account owning trades and positions.
type Account struct {
	ID               int64           `json:"account_id"`
	Name             string          `json:"name"`
	Broker           string          `json:"broker,omitempty"`
	Currency         string          `json:"currency"`
	AccountType      AccountType     `json:"account_type"`
	MarginMultiplier decimal.Decimal `json:"margin_multiplier"`
	InitialBalance   decimal.Decimal `json:"initial_balance"`
	CurrentBalance   decimal.Decimal `json:"current_balance"`
	IsActive         bool            `json:"is_active"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewAccount validates spec and builds an inactive account.
func NewAccount(spec AccountSpec, now time.Time) (*Account, error) {
	a := &Account{CreatedAt: now}
	if err := a.Apply(spec, now); err != nil {
		return nil, err
	}
	return a, nil
}

// Apply replaces the editable fields after validating them.
func (a *Account) Apply(spec AccountSpec, now time.Time) error {
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return err
	}
	a.Name = spec.Name
	a.Broker = spec.Broker
	a.Currency = spec.Currency
	a.AccountType = spec.AccountType
	a.MarginMultiplier = spec.MarginMultiplier
	a.InitialBalance = spec.InitialBalance
	a.CurrentBalance = spec.CurrentBalance
	a.UpdatedAt = now
	return nil
}

// CapitalDivisor is the margin multiplier for margin accounts and 1 otherwise.
func (a *Account) CapitalDivisor() decimal.Decimal {
	if a.AccountType == AccountMargin && a.MarginMultiplier.GreaterThan(decimal.NewFromInt(1)) {
		return a.MarginMultiplier
	}
	return decimal.NewFromInt(1)
}
