package service

import (
	"context"
	"errors"

	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/eddiefleurent/wheel_tracker/internal/storage"
	"github.com/sirupsen/logrus"
)

// ListAccounts returns every account ordered by id.
func (l *Ledger) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return l.store.ListAccounts(ctx)
}

// GetAccount returns one account.
func (l *Ledger) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	return l.store.GetAccount(ctx, id)
}

// CreateAccount stores a new account. The first account created becomes the
// active one.
func (l *Ledger) CreateAccount(ctx context.Context, spec models.AccountSpec) (*models.Account, error) {
	a, err := models.NewAccount(spec, l.now())
	if err != nil {
		return nil, err
	}
	if err := l.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}

	if _, err := l.store.ActiveAccount(ctx); errors.Is(err, storage.ErrNoActiveAccount) {
		if err := l.store.SetActiveAccount(ctx, a.ID); err != nil {
			return nil, err
		}
		a.IsActive = true
	} else if err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"account_id": a.ID,
		"type":       a.AccountType,
		"active":     a.IsActive,
	}).Info("Account created")
	return a, nil
}

// UpdateAccount replaces the editable fields of an account.
func (l *Ledger) UpdateAccount(ctx context.Context, id int64, spec models.AccountSpec) (*models.Account, error) {
	unlock := l.locks.lock(id)
	defer unlock()

	a, err := l.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := a.Apply(spec, l.now()); err != nil {
		return nil, err
	}
	if err := l.store.UpdateAccount(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ActivateAccount makes id the single active account.
func (l *Ledger) ActivateAccount(ctx context.Context, id int64) (*models.Account, error) {
	if err := l.store.SetActiveAccount(ctx, id); err != nil {
		return nil, err
	}
	l.logger.WithField("account_id", id).Info("Active account changed")
	return l.store.GetAccount(ctx, id)
}

// ActiveAccount returns the active account. It matches models.ErrNotFound
// when none is active.
func (l *Ledger) ActiveAccount(ctx context.Context) (*models.Account, error) {
	return l.store.ActiveAccount(ctx)
}
