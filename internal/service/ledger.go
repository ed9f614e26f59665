// Package service is the trade ledger: it serializes every mutation of an
// account, runs it through the lifecycle engine on a private copy of the
// account's book and commits the result in one storage call.
package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eddiefleurent/wheel_tracker/internal/importer"
	"github.com/eddiefleurent/wheel_tracker/internal/lifecycle"
	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/eddiefleurent/wheel_tracker/internal/quotes"
	"github.com/eddiefleurent/wheel_tracker/internal/storage"
	"github.com/sirupsen/logrus"
)

// DefaultManagementDTE is the days-to-expiration mark at which open legs are
// usually managed.
const DefaultManagementDTE = 21

// QuoteSource prices a set of symbols, omitting the ones it cannot price.
type QuoteSource interface {
	Quotes(ctx context.Context, symbols []string) map[string]*quotes.Quote
}

// Options tune a Ledger.
type Options struct {
	ManagementDTE int
	MaxImportRows int
	// Now overrides the clock; nil uses time.Now.
	Now func() time.Time
}

// Ledger coordinates storage, the lifecycle engine and the importer.
type Ledger struct {
	store         storage.Interface
	quotes        QuoteSource
	validator     *importer.Validator
	locks         *accountLocks
	managementDTE int
	logger        *logrus.Logger
	now           func() time.Time
}

// NewLedger creates a ledger over store. prices may be nil, in which case
// position views are never priced.
func NewLedger(store storage.Interface, prices QuoteSource, opts Options, logger *logrus.Logger) *Ledger {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ManagementDTE <= 0 {
		opts.ManagementDTE = DefaultManagementDTE
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Ledger{
		store:         store,
		quotes:        prices,
		validator:     importer.NewValidator(opts.Now, opts.MaxImportRows),
		locks:         newAccountLocks(),
		managementDTE: opts.ManagementDTE,
		logger:        logger,
		now:           opts.Now,
	}
}

// engine returns a lifecycle engine drawing ids from storage under ctx.
func (l *Ledger) engine(ctx context.Context) *lifecycle.Engine {
	return lifecycle.NewEngine(func(kind models.EntityKind) (int64, error) {
		return l.store.NextID(ctx, kind)
	}, l.now)
}

// mutate runs fn on a private copy of the account's book while holding the
// account lock, then saves the book. Nothing is written when fn fails.
func (l *Ledger) mutate(ctx context.Context, accountID int64, fn func(b *models.Book, e *lifecycle.Engine) error) error {
	unlock := l.locks.lock(accountID)
	defer unlock()

	b, err := l.store.LoadBook(ctx, accountID)
	if err != nil {
		return err
	}
	if err := fn(b, l.engine(ctx)); err != nil {
		return err
	}
	return l.store.SaveBooks(ctx, b)
}

// books returns a consistent snapshot of one account's book, or of every
// book when accountID is nil.
func (l *Ledger) books(ctx context.Context, accountID *int64) ([]*models.Book, error) {
	if accountID == nil {
		return l.store.LoadBooks(ctx)
	}
	b, err := l.store.LoadBook(ctx, *accountID)
	if err != nil {
		return nil, err
	}
	return []*models.Book{b}, nil
}

// ownerBook loads the book of the account owning the entity.
func (l *Ledger) ownerBook(ctx context.Context, kind models.EntityKind, id int64) (*models.Book, error) {
	owner, err := l.store.Owner(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return l.store.LoadBook(ctx, owner)
}

// accountLocks hands out one mutex per account id.
type accountLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[int64]*sync.Mutex)}
}

// lock acquires the locks of ids in ascending order and returns the release
// func. Duplicates are ignored.
func (a *accountLocks) lock(ids ...int64) func() {
	uniq := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })

	held := make([]*sync.Mutex, 0, len(uniq))
	for _, id := range uniq {
		m := a.get(id)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (a *accountLocks) get(id int64) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.locks[id]
	if !ok {
		m = &sync.Mutex{}
		a.locks[id] = m
	}
	return m
}
