package service

import (
	"context"

	"github.com/eddiefleurent/wheel_tracker/internal/analytics"
	"github.com/eddiefleurent/wheel_tracker/internal/lifecycle"
)

// Dashboard aggregates one account, or every account when accountID is nil.
func (l *Ledger) Dashboard(ctx context.Context, accountID *int64) (*analytics.Dashboard, error) {
	books, err := l.books(ctx, accountID)
	if err != nil {
		return nil, err
	}
	d := analytics.Summarize(books...)
	return &d, nil
}

// Performance breaks closed trades down per symbol.
func (l *Ledger) Performance(ctx context.Context, accountID *int64) ([]analytics.SymbolPerformance, error) {
	books, err := l.books(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := analytics.Performance(books...)
	if out == nil {
		out = []analytics.SymbolPerformance{}
	}
	return out, nil
}

// Audit checks the books for drift between stored and derived state.
func (l *Ledger) Audit(ctx context.Context, accountID *int64) ([]lifecycle.Finding, error) {
	books, err := l.books(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := []lifecycle.Finding{}
	for _, b := range books {
		out = append(out, lifecycle.Audit(b)...)
	}
	return out, nil
}
