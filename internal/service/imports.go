package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/eddiefleurent/wheel_tracker/internal/importer"
	"github.com/eddiefleurent/wheel_tracker/internal/lifecycle"
	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrImportRejected is returned with a ConfirmResult listing the failed lines.
// Nothing of the batch was written. It matches models.ErrValidation.
var ErrImportRejected error = models.Invalidf("trades", "import rejected, nothing was imported")

// ValidateImport parses a CSV export without touching the ledger.
func (l *Ledger) ValidateImport(ctx context.Context, r io.Reader, opts importer.Options) (*importer.Validation, error) {
	if opts.AccountID != nil {
		if _, err := l.store.GetAccount(ctx, *opts.AccountID); err != nil {
			return nil, err
		}
	}
	return l.validator.Validate(r, opts)
}

// ConfirmImport commits a batch of candidates atomically: either every
// non-duplicate row is recorded, or none is and the result lists why.
// Duplicates of stored trades and of earlier rows are skipped, not failed.
func (l *Ledger) ConfirmImport(ctx context.Context, req importer.ConfirmRequest) (*importer.ConfirmResult, error) {
	if len(req.Trades) == 0 {
		return nil, models.Invalidf("trades", "at least one trade is required")
	}
	res := &importer.ConfirmResult{
		BatchID:           uuid.NewString(),
		SkippedDuplicates: []int{},
		Errors:            []string{},
	}
	log := l.logger.WithFields(logrus.Fields{"batch_id": res.BatchID, "rows": len(req.Trades)})

	plan, problems := importer.Plan(req.Trades)
	if len(problems) > 0 {
		res.Errors = problems
		log.WithField("errors", len(problems)).Warn("Import rejected during planning")
		return res, ErrImportRejected
	}

	accountIDs := make([]int64, 0, len(plan))
	for id := range plan {
		accountIDs = append(accountIDs, id)
	}
	sort.Slice(accountIDs, func(i, j int) bool { return accountIDs[i] < accountIDs[j] })

	unlock := l.locks.lock(accountIDs...)
	defer unlock()

	engine := l.engine(ctx)
	books := make([]*models.Book, 0, len(accountIDs))
	imported := 0
	for _, id := range accountIDs {
		entries := plan[id]
		b, err := l.store.LoadBook(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			for _, e := range entries {
				res.Errors = append(res.Errors, fmt.Sprintf("Line %d: account %d not found", e.LineNum, id))
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		existing := make(map[string]bool, len(b.Trades))
		for _, t := range b.Trades {
			existing[t.DedupKey()] = true
		}
		kept, skipped := importer.Dedupe(entries, existing)
		res.SkippedDuplicates = append(res.SkippedDuplicates, skipped...)

		// The book is discarded on the first failure, so later rows of the
		// same account are not attempted.
		for _, e := range kept {
			if err := applyEntry(engine, b, e); err != nil {
				if !isDomainError(err) {
					return nil, err
				}
				res.Errors = append(res.Errors, fmt.Sprintf("Line %d: %v", e.LineNum, err))
				break
			}
			imported++
		}
		books = append(books, b)
	}
	sort.Ints(res.SkippedDuplicates)

	if len(res.Errors) > 0 {
		log.WithField("errors", len(res.Errors)).Warn("Import rejected")
		return res, ErrImportRejected
	}
	if err := l.store.SaveBooks(ctx, books...); err != nil {
		return nil, err
	}
	res.ImportedCount = imported

	log.WithFields(logrus.Fields{
		"imported": res.ImportedCount,
		"skipped":  len(res.SkippedDuplicates),
		"accounts": len(books),
	}).Info("Import committed")
	return res, nil
}

// ConfirmOne imports a single candidate through the same atomic path.
func (l *Ledger) ConfirmOne(ctx context.Context, c importer.Candidate) (*importer.ConfirmResult, error) {
	return l.ConfirmImport(ctx, importer.ConfirmRequest{Trades: []importer.Candidate{c}})
}

func applyEntry(e *lifecycle.Engine, b *models.Book, entry importer.Entry) error {
	t, err := e.OpenTrade(b, entry.Spec)
	if err != nil {
		return err
	}
	if entry.Close == nil {
		return nil
	}
	_, err = e.CloseTrade(b, t.ID, *entry.Close)
	return err
}

func isDomainError(err error) bool {
	return errors.Is(err, models.ErrValidation) ||
		errors.Is(err, models.ErrInvalidState) ||
		errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrConflict)
}
