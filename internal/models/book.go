package models

import (
	"sort"
)

// Book is everything one account owns. Mutations of an account happen on a
// private copy of its book that is saved back as a whole.
type Book struct {
	Account   Account     `json:"account"`
	Trades    []*Trade    `json:"trades"`
	Positions []*Position `json:"positions"`
	Wheels    []*Wheel    `json:"wheels"`
}

// NewBook returns an empty book for account.
func NewBook(account Account) *Book {
	return &Book{
		Account:   account,
		Trades:    []*Trade{},
		Positions: []*Position{},
		Wheels:    []*Wheel{},
	}
}

// Clone returns a deep copy that shares nothing mutable with b.
func (b *Book) Clone() *Book {
	out := &Book{
		Account:   b.Account,
		Trades:    make([]*Trade, 0, len(b.Trades)),
		Positions: make([]*Position, 0, len(b.Positions)),
		Wheels:    make([]*Wheel, 0, len(b.Wheels)),
	}
	for _, t := range b.Trades {
		c := *t
		c.Delta = clonePtr(t.Delta)
		c.CloseDate = clonePtr(t.CloseDate)
		c.ClosePrice = clonePtr(t.ClosePrice)
		c.Tags = clonePtr(t.Tags)
		c.Notes = clonePtr(t.Notes)
		c.WheelID = clonePtr(t.WheelID)
		c.PositionID = clonePtr(t.PositionID)
		out.Trades = append(out.Trades, &c)
	}
	for _, p := range b.Positions {
		c := *p
		c.SoldDate = clonePtr(p.SoldDate)
		c.SoldPricePerShare = clonePtr(p.SoldPricePerShare)
		c.WheelID = clonePtr(p.WheelID)
		c.SourceTradeID = clonePtr(p.SourceTradeID)
		c.Notes = clonePtr(p.Notes)
		out.Positions = append(out.Positions, &c)
	}
	for _, w := range b.Wheels {
		c := *w
		c.EndDate = clonePtr(w.EndDate)
		out.Wheels = append(out.Wheels, &c)
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Trade finds a trade by id.
func (b *Book) Trade(id int64) (*Trade, bool) {
	for _, t := range b.Trades {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// Position finds a position by id.
func (b *Book) Position(id int64) (*Position, bool) {
	for _, p := range b.Positions {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Wheel finds a wheel by id.
func (b *Book) Wheel(id int64) (*Wheel, bool) {
	for _, w := range b.Wheels {
		if w.ID == id {
			return w, true
		}
	}
	return nil, false
}

// ActiveWheel returns the running wheel for symbol, if any.
func (b *Book) ActiveWheel(symbol string) (*Wheel, bool) {
	for _, w := range b.Wheels {
		if w.Symbol == symbol && w.IsActive() {
			return w, true
		}
	}
	return nil, false
}

// WheelTrades lists the trades grouped into wheel id.
func (b *Book) WheelTrades(id int64) []*Trade {
	var out []*Trade
	for _, t := range b.Trades {
		if t.WheelID != nil && *t.WheelID == id {
			out = append(out, t)
		}
	}
	return out
}

// WheelPositions lists the positions grouped into wheel id.
func (b *Book) WheelPositions(id int64) []*Position {
	var out []*Position
	for _, p := range b.Positions {
		if p.WheelID != nil && *p.WheelID == id {
			out = append(out, p)
		}
	}
	return out
}

// OpenPositions lists open positions in symbol, oldest first.
func (b *Book) OpenPositions(symbol string) []*Position {
	var out []*Position
	for _, p := range b.Positions {
		if p.Symbol == symbol && p.IsOpen() {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].AcquiredDate.Equal(out[j].AcquiredDate) {
			return out[i].AcquiredDate.Before(out[j].AcquiredDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// HasOpenCC reports whether an OPEN covered call exists for symbol.
func (b *Book) HasOpenCC(symbol string) bool {
	for _, t := range b.Trades {
		if t.Symbol == symbol && t.TradeType == TradeCC && t.IsOpen() {
			return true
		}
	}
	return false
}

// RemoveTrade drops a trade by id.
func (b *Book) RemoveTrade(id int64) {
	out := b.Trades[:0]
	for _, t := range b.Trades {
		if t.ID != id {
			out = append(out, t)
		}
	}
	b.Trades = out
}

// RemoveWheel drops a wheel by id.
func (b *Book) RemoveWheel(id int64) {
	out := b.Wheels[:0]
	for _, w := range b.Wheels {
		if w.ID != id {
			out = append(out, w)
		}
	}
	b.Wheels = out
}

// EntityKind names an id sequence.
type EntityKind string

const (
	// KindAccount numbers accounts.
	KindAccount EntityKind = "account"
	// KindTrade numbers trades.
	KindTrade EntityKind = "trade"
	// KindPosition numbers positions.
	KindPosition EntityKind = "position"
	// KindWheel numbers wheels.
	KindWheel EntityKind = "wheel"
)
