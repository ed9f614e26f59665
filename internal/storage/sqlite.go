package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStorage stores the ledger in a SQLite database.
type SQLiteStorage struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewSQLiteStorage opens the database at path and applies pending migrations.
func NewSQLiteStorage(path string, logger *logrus.Logger) (*SQLiteStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite storage requires a database path")
	}
	if logger == nil {
		logger = logrus.New()
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	// One connection: SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &SQLiteStorage{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.WithField("path", path).Info("SQLite storage ready")
	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	// m.Close would close the shared *sql.DB through the driver.
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			s.logger.Debug("No new database migrations to apply")
			return nil
		}
		return fmt.Errorf("applying migrations: %w", err)
	}
	s.logger.Info("Database migrations applied")
	return nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

const accountColumns = `account_id, name, broker, currency, account_type, margin_multiplier,
	initial_balance, current_balance, is_active, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Name, &a.Broker, &a.Currency, &a.AccountType, &a.MarginMultiplier,
		&a.InitialBalance, &a.CurrentBalance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAccounts returns all accounts ordered by id.
func (s *SQLiteStorage) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []models.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetAccount returns one account.
func (s *SQLiteStorage) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	return s.getAccount(ctx, s.db, id)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStorage) getAccount(ctx context.Context, q querier, id int64) (*models.Account, error) {
	a, err := scanAccount(q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "account", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("loading account %d: %w", id, err)
	}
	return a, nil
}

// CreateAccount assigns the next account id and inserts the account.
func (s *SQLiteStorage) CreateAccount(ctx context.Context, account *models.Account) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		id, err := nextID(ctx, tx, models.KindAccount)
		if err != nil {
			return err
		}
		account.ID = id
		account.IsActive = false
		_, err = tx.ExecContext(ctx, `INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			account.ID, account.Name, account.Broker, account.Currency, account.AccountType, account.MarginMultiplier,
			account.InitialBalance, account.CurrentBalance, account.IsActive, account.CreatedAt, account.UpdatedAt)
		if err != nil {
			return fmt.Errorf("inserting account: %w", err)
		}
		return nil
	})
}

// UpdateAccount replaces the account's fields, keeping its active flag.
func (s *SQLiteStorage) UpdateAccount(ctx context.Context, account *models.Account) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := s.getAccount(ctx, tx, account.ID)
		if err != nil {
			return err
		}
		account.IsActive = current.IsActive
		account.CreatedAt = current.CreatedAt
		_, err = tx.ExecContext(ctx, `UPDATE accounts SET name = ?, broker = ?, currency = ?, account_type = ?,
			margin_multiplier = ?, initial_balance = ?, current_balance = ?, updated_at = ? WHERE account_id = ?`,
			account.Name, account.Broker, account.Currency, account.AccountType, account.MarginMultiplier,
			account.InitialBalance, account.CurrentBalance, account.UpdatedAt, account.ID)
		if err != nil {
			return fmt.Errorf("updating account %d: %w", account.ID, err)
		}
		return nil
	})
}

// SetActiveAccount makes id the only active account.
func (s *SQLiteStorage) SetActiveAccount(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.getAccount(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE accounts SET is_active = (account_id = ?)`, id); err != nil {
			return fmt.Errorf("activating account %d: %w", id, err)
		}
		return nil
	})
}

// ActiveAccount returns the active account.
func (s *SQLiteStorage) ActiveAccount(ctx context.Context) (*models.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE is_active = 1 LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActiveAccount
	}
	if err != nil {
		return nil, fmt.Errorf("loading active account: %w", err)
	}
	return a, nil
}

// LoadBook reads one account's book.
func (s *SQLiteStorage) LoadBook(ctx context.Context, accountID int64) (*models.Book, error) {
	var book *models.Book
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		a, err := s.getAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		book, err = loadBook(ctx, tx, *a)
		return err
	})
	return book, err
}

// LoadBooks reads every book from one consistent snapshot.
func (s *SQLiteStorage) LoadBooks(ctx context.Context) ([]*models.Book, error) {
	var books []*models.Book
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY account_id`)
		if err != nil {
			return fmt.Errorf("listing accounts: %w", err)
		}
		var accounts []models.Account
		for rows.Next() {
			a, err := scanAccount(rows)
			if err != nil {
				_ = rows.Close()
				return fmt.Errorf("scanning account: %w", err)
			}
			accounts = append(accounts, *a)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		books = make([]*models.Book, 0, len(accounts))
		for _, a := range accounts {
			b, err := loadBook(ctx, tx, a)
			if err != nil {
				return err
			}
			books = append(books, b)
		}
		return nil
	})
	return books, err
}

const (
	tradeColumns = `trade_id, account_id, symbol, trade_type, contracts, strike_price, premium_per_share,
	delta, open_date, expiration_date, fees, status, close_date, close_method, close_price, tags, notes,
	wheel_id, position_id, created_at, updated_at`
	positionColumns = `position_id, account_id, symbol, shares, cost_basis_per_share, acquired_date,
	is_covered, status, sold_date, sold_price_per_share, realized_pnl, wheel_id, source_trade_id, notes,
	created_at, updated_at`
	wheelColumns = `wheel_id, account_id, symbol, start_date, end_date, status, current_phase,
	total_premium, total_pnl, created_at, updated_at`
)

func loadBook(ctx context.Context, q querier, account models.Account) (*models.Book, error) {
	b := models.NewBook(account)

	rows, err := q.QueryContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE account_id = ? ORDER BY trade_id`, account.ID)
	if err != nil {
		return nil, fmt.Errorf("loading trades: %w", err)
	}
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Symbol, &t.TradeType, &t.Contracts, &t.StrikePrice,
			&t.PremiumPerShare, &t.Delta, &t.OpenDate, &t.ExpirationDate, &t.Fees, &t.Status, &t.CloseDate,
			&t.CloseMethod, &t.ClosePrice, &t.Tags, &t.Notes, &t.WheelID, &t.PositionID,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		b.Trades = append(b.Trades, &t)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = q.QueryContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE account_id = ? ORDER BY position_id`, account.ID)
	if err != nil {
		return nil, fmt.Errorf("loading positions: %w", err)
	}
	for rows.Next() {
		var p models.Position
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Symbol, &p.Shares, &p.CostBasisPerShare, &p.AcquiredDate,
			&p.IsCovered, &p.Status, &p.SoldDate, &p.SoldPricePerShare, &p.RealizedPnL, &p.WheelID,
			&p.SourceTradeID, &p.Notes, &p.CreatedAt, &p.UpdatedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		b.Positions = append(b.Positions, &p)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = q.QueryContext(ctx, `SELECT `+wheelColumns+` FROM wheels WHERE account_id = ? ORDER BY wheel_id`, account.ID)
	if err != nil {
		return nil, fmt.Errorf("loading wheels: %w", err)
	}
	for rows.Next() {
		var w models.Wheel
		if err := rows.Scan(&w.ID, &w.AccountID, &w.Symbol, &w.StartDate, &w.EndDate, &w.Status,
			&w.CurrentPhase, &w.TotalPremium, &w.TotalPnL, &w.CreatedAt, &w.UpdatedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning wheel: %w", err)
		}
		b.Wheels = append(b.Wheels, &w)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return b, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	return rows.Close()
}

// SaveBooks rewrites the trades, positions and wheels of each book's account
// in a single transaction.
func (s *SQLiteStorage) SaveBooks(ctx context.Context, books ...*models.Book) error {
	if len(books) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, b := range books {
			if _, err := s.getAccount(ctx, tx, b.Account.ID); err != nil {
				return err
			}
			if err := saveBook(ctx, tx, b); err != nil {
				return fmt.Errorf("saving book for account %d: %w", b.Account.ID, err)
			}
		}
		return nil
	})
}

func saveBook(ctx context.Context, tx *sql.Tx, b *models.Book) error {
	id := b.Account.ID
	for _, table := range []string{"trades", "positions", "wheels"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE account_id = ?`, id); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for _, w := range b.Wheels {
		if _, err := tx.ExecContext(ctx, `INSERT INTO wheels (`+wheelColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			w.ID, id, w.Symbol, w.StartDate, w.EndDate, w.Status, w.CurrentPhase,
			w.TotalPremium, w.TotalPnL, w.CreatedAt, w.UpdatedAt); err != nil {
			return fmt.Errorf("inserting wheel %d: %w", w.ID, err)
		}
	}
	for _, t := range b.Trades {
		if _, err := tx.ExecContext(ctx, `INSERT INTO trades (`+tradeColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, id, t.Symbol, t.TradeType, t.Contracts, t.StrikePrice, t.PremiumPerShare,
			t.Delta, t.OpenDate, t.ExpirationDate, t.Fees, t.Status, t.CloseDate, t.CloseMethod,
			t.ClosePrice, t.Tags, t.Notes, t.WheelID, t.PositionID, t.CreatedAt, t.UpdatedAt); err != nil {
			return fmt.Errorf("inserting trade %d: %w", t.ID, err)
		}
	}
	for _, p := range b.Positions {
		if _, err := tx.ExecContext(ctx, `INSERT INTO positions (`+positionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, id, p.Symbol, p.Shares, p.CostBasisPerShare, p.AcquiredDate, p.IsCovered, p.Status,
			p.SoldDate, p.SoldPricePerShare, p.RealizedPnL, p.WheelID, p.SourceTradeID, p.Notes,
			p.CreatedAt, p.UpdatedAt); err != nil {
			return fmt.Errorf("inserting position %d: %w", p.ID, err)
		}
	}
	return nil
}

// NextID allocates the next id of kind.
func (s *SQLiteStorage) NextID(ctx context.Context, kind models.EntityKind) (int64, error) {
	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = nextID(ctx, tx, kind)
		return err
	})
	return id, err
}

func nextID(ctx context.Context, tx *sql.Tx, kind models.EntityKind) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `INSERT INTO sequences (kind, value) VALUES (?, 1)
		ON CONFLICT(kind) DO UPDATE SET value = value + 1 RETURNING value`, string(kind)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("allocating %s id: %w", kind, err)
	}
	return id, nil
}

// Owner finds the account owning a trade, position or wheel.
func (s *SQLiteStorage) Owner(ctx context.Context, kind models.EntityKind, id int64) (int64, error) {
	var query string
	switch kind {
	case models.KindTrade:
		query = `SELECT account_id FROM trades WHERE trade_id = ?`
	case models.KindPosition:
		query = `SELECT account_id FROM positions WHERE position_id = ?`
	case models.KindWheel:
		query = `SELECT account_id FROM wheels WHERE wheel_id = ?`
	case models.KindAccount:
		query = `SELECT account_id FROM accounts WHERE account_id = ?`
	default:
		return 0, fmt.Errorf("unknown entity kind %q", kind)
	}
	var owner int64
	err := s.db.QueryRowContext(ctx, query, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &models.NotFoundError{Entity: string(kind), ID: id}
	}
	if err != nil {
		return 0, fmt.Errorf("finding owner of %s %d: %w", kind, id, err)
	}
	return owner, nil
}

func (s *SQLiteStorage) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.WithError(rbErr).Warn("Rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
