// Package storage persists accounts and their books.
package storage

import (
	"context"
	"fmt"

	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/sirupsen/logrus"
)

// Interface defines the contract for ledger persistence.
//
// Implementations must be safe for concurrent use. Books are returned as
// private copies: callers may mutate them freely and hand them back to
// SaveBooks, which replaces the trades, positions and wheels of every given
// account in one atomic step. SaveBooks never changes account fields.
type Interface interface {
	// Accounts
	ListAccounts(ctx context.Context) ([]models.Account, error)
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	CreateAccount(ctx context.Context, account *models.Account) error
	UpdateAccount(ctx context.Context, account *models.Account) error
	SetActiveAccount(ctx context.Context, id int64) error
	ActiveAccount(ctx context.Context) (*models.Account, error)

	// Books
	LoadBook(ctx context.Context, accountID int64) (*models.Book, error)
	LoadBooks(ctx context.Context) ([]*models.Book, error)
	SaveBooks(ctx context.Context, books ...*models.Book) error

	// NextID allocates the next id of kind. Ids are never reused.
	NextID(ctx context.Context, kind models.EntityKind) (int64, error)
	// Owner returns the account that owns the trade, position or wheel id.
	Owner(ctx context.Context, kind models.EntityKind, id int64) (int64, error)

	Close() error
}

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// NewStorage opens the backend named by driver.
func NewStorage(driver, path string, logger *logrus.Logger) (Interface, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemoryStorage(), nil
	case DriverJSON:
		return NewJSONStorage(path)
	case DriverSQLite:
		return NewSQLiteStorage(path, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// Ensure implementations satisfy Interface
var (
	_ Interface = (*JSONStorage)(nil)
	_ Interface = (*SQLiteStorage)(nil)
)
