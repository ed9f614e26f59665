package importer

import (
	"fmt"
	"sort"

	"github.com/eddiefleurent/wheel_tracker/internal/models"
)

// ConfirmRequest is the body of a confirm call.
type ConfirmRequest struct {
	Trades []Candidate `json:"trades"`
}

// ConfirmResult reports a committed batch.
type ConfirmResult struct {
	BatchID           string   `json:"batch_id"`
	ImportedCount     int      `json:"imported_count"`
	SkippedDuplicates []int    `json:"skipped_duplicates"`
	Errors            []string `json:"errors"`
}

// Entry is one planned trade: open it, then close it unless Close is nil.
type Entry struct {
	LineNum int
	Spec    models.TradeSpec
	Close   *models.CloseRequest
}

// DedupKey identifies the entry's historical leg.
func (e Entry) DedupKey() string {
	return models.DedupKey(e.Spec.AccountID, e.Spec.Symbol, e.Spec.TradeType,
		e.Spec.OpenDate, e.Spec.ExpirationDate, e.Spec.StrikePrice)
}

// Plan re-checks every candidate and turns it into entries grouped by account,
// each group ordered by open date then line. Any failure rejects the whole
// batch, with one message per bad line.
func Plan(candidates []Candidate) (map[int64][]Entry, []string) {
	byAccount := map[int64][]Entry{}
	var problems []string
	seenLines := map[int]bool{}

	for _, c := range candidates {
		if c.LineNum > 0 {
			if seenLines[c.LineNum] {
				problems = append(problems, fmt.Sprintf("Line %d: submitted more than once", c.LineNum))
				continue
			}
			seenLines[c.LineNum] = true
		}
		e, err := plan(c)
		if err != nil {
			problems = append(problems, fmt.Sprintf("Line %d: %v", c.LineNum, err))
			continue
		}
		byAccount[e.Spec.AccountID] = append(byAccount[e.Spec.AccountID], e)
	}
	if len(problems) > 0 {
		return nil, problems
	}

	for _, entries := range byAccount {
		sort.SliceStable(entries, func(i, j int) bool {
			if !entries[i].Spec.OpenDate.Equal(entries[j].Spec.OpenDate) {
				return entries[i].Spec.OpenDate.Before(entries[j].Spec.OpenDate)
			}
			return entries[i].LineNum < entries[j].LineNum
		})
	}
	return byAccount, nil
}

func plan(c Candidate) (Entry, error) {
	c.Normalize()
	spec := c.Spec()
	if err := spec.Normalize(); err != nil {
		return Entry{}, err
	}
	if err := spec.Validate(); err != nil {
		return Entry{}, err
	}
	e := Entry{LineNum: c.LineNum, Spec: spec}
	if c.IsOpen() {
		return e, nil
	}
	if !c.IsComplete() {
		return Entry{}, models.Invalidf("close", "incomplete row, missing %v", c.MissingFields())
	}
	req, err := c.CloseRequest()
	if err != nil {
		return Entry{}, err
	}
	if err := checkClose(c); err != nil {
		return Entry{}, err
	}
	e.Close = &req
	return e, nil
}

// Dedupe drops entries whose key is in existing or already seen earlier in
// the batch, returning the kept entries and the skipped line numbers.
func Dedupe(entries []Entry, existing map[string]bool) ([]Entry, []int) {
	seen := make(map[string]bool, len(existing)+len(entries))
	for k := range existing {
		seen[k] = true
	}
	kept := make([]Entry, 0, len(entries))
	var skipped []int
	for _, e := range entries {
		key := e.DedupKey()
		if seen[key] {
			skipped = append(skipped, e.LineNum)
			continue
		}
		seen[key] = true
		kept = append(kept, e)
	}
	return kept, skipped
}
