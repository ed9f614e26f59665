// Package importer reconciles historical trades from CSV: it validates rows
// into candidates the caller can repair, then plans a confirmed batch.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/eddiefleurent/wheel_tracker/internal/util"
	"github.com/shopspring/decimal"
)

// OpenSentinel in close_date marks a row that is still open.
const OpenSentinel = "OPEN"

// RequiredColumns must appear in the header, in any order.
var RequiredColumns = []string{
	"account_id", "symbol", "trade_type", "contracts", "strike_price",
	"premium_per_share", "open_date", "expiration_date",
}

// OptionalColumns are read when present.
var OptionalColumns = []string{
	"close_date", "close_method", "close_price", "fees", "delta", "tags", "notes",
}

// Candidate is one parsed row. CloseDate holds a date, OpenSentinel or "".
type Candidate struct {
	LineNum         int                `json:"line_num"`
	AccountID       int64              `json:"account_id"`
	Symbol          string             `json:"symbol"`
	TradeType       models.TradeType   `json:"trade_type"`
	Contracts       int                `json:"contracts"`
	StrikePrice     decimal.Decimal    `json:"strike_price"`
	PremiumPerShare decimal.Decimal    `json:"premium_per_share"`
	Delta           *float64           `json:"delta,omitempty"`
	OpenDate        util.Date          `json:"open_date"`
	ExpirationDate  util.Date          `json:"expiration_date"`
	CloseDate       string             `json:"close_date,omitempty"`
	CloseMethod     models.CloseMethod `json:"close_method,omitempty"`
	ClosePrice      *decimal.Decimal   `json:"close_price,omitempty"`
	Fees            decimal.Decimal    `json:"fees"`
	Tags            *string            `json:"tags,omitempty"`
	Notes           *string            `json:"notes,omitempty"`
}

// Spec returns the open fields of the candidate.
func (c Candidate) Spec() models.TradeSpec {
	return models.TradeSpec{
		AccountID:       c.AccountID,
		Symbol:          c.Symbol,
		TradeType:       c.TradeType,
		Contracts:       c.Contracts,
		StrikePrice:     c.StrikePrice,
		PremiumPerShare: c.PremiumPerShare,
		Delta:           c.Delta,
		OpenDate:        c.OpenDate,
		ExpirationDate:  c.ExpirationDate,
		Fees:            c.Fees,
		Tags:            c.Tags,
		Notes:           c.Notes,
	}
}

// IsOpen reports whether the row is marked still open.
func (c Candidate) IsOpen() bool {
	return strings.EqualFold(strings.TrimSpace(c.CloseDate), OpenSentinel)
}

// Normalize applies the close defaults: a bare close_price means BTC, and
// EXPIRATION or ASSIGNMENT settle at a zero close_price.
func (c *Candidate) Normalize() {
	c.CloseDate = strings.TrimSpace(c.CloseDate)
	if c.IsOpen() {
		c.CloseDate = OpenSentinel
		return
	}
	if c.CloseMethod == "" && c.ClosePrice != nil {
		c.CloseMethod = models.CloseBTC
	}
	if c.CloseMethod == models.CloseExpiration || c.CloseMethod == models.CloseAssignment {
		zero := decimal.Zero
		c.ClosePrice = &zero
	}
}

// IsComplete: close_price and close_method set, or close_date is OPEN.
func (c Candidate) IsComplete() bool {
	return c.IsOpen() || (c.ClosePrice != nil && c.CloseMethod != "")
}

// MissingFields lists the close fields a closed row still lacks.
func (c Candidate) MissingFields() []string {
	if c.IsOpen() {
		return []string{}
	}
	missing := []string{}
	if c.CloseDate == "" {
		missing = append(missing, "close_date")
	}
	if c.ClosePrice == nil {
		missing = append(missing, "close_price")
	}
	if c.CloseMethod == "" {
		missing = append(missing, "close_method")
	}
	return missing
}

// CloseRequest builds the settlement request of a complete closed row.
// A blank close_date settles on the expiration date.
func (c Candidate) CloseRequest() (models.CloseRequest, error) {
	date := c.ExpirationDate
	if c.CloseDate != "" {
		d, err := util.ParseDate(c.CloseDate)
		if err != nil {
			return models.CloseRequest{}, models.Invalidf("close_date", "must be YYYY-MM-DD or %s (got %q)", OpenSentinel, c.CloseDate)
		}
		date = d
	}
	return models.CloseRequest{CloseDate: date, CloseMethod: c.CloseMethod, ClosePrice: c.ClosePrice}, nil
}

// Result is the validation outcome of one row.
type Result struct {
	LineNum       int              `json:"line_num"`
	Trade         Candidate        `json:"trade"`
	PL            *decimal.Decimal `json:"pl"`
	MissingFields []string         `json:"missing_fields"`
	// Problems are close-field errors the caller must repair before confirming.
	Problems  []string `json:"problems,omitempty"`
	IsValid   bool     `json:"is_valid"`
	IsExpired bool     `json:"is_expired"`
}

// Validation is the response of the validate phase.
type Validation struct {
	TotalRecords int      `json:"total_records"`
	Results      []Result `json:"results"`
	ParseErrors  []string `json:"parse_errors"`
}

// Options adjusts a validate call.
type Options struct {
	// AccountID, when set, replaces the account_id of every row.
	AccountID *int64
}

// Validator parses CSV exports. It keeps no state between calls.
type Validator struct {
	now     func() time.Time
	maxRows int
}

// NewValidator creates a validator; maxRows <= 0 means unlimited.
func NewValidator(now func() time.Time, maxRows int) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{now: now, maxRows: maxRows}
}

// Validate parses r. Row problems are collected per line; only an unreadable
// or malformed header fails the call.
func (v *Validator) Validate(r io.Reader, opts Options) (*Validation, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, models.Invalidf("file", "is empty")
	}
	if err != nil {
		return nil, models.Invalidf("file", "reading header: %v", err)
	}
	columns, err := indexHeader(header)
	if err != nil {
		return nil, err
	}

	today := util.DateOf(v.now())
	out := &Validation{Results: []Result{}, ParseErrors: []string{}}
	line := 1
	for {
		line++
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			out.ParseErrors = append(out.ParseErrors, fmt.Sprintf("Line %d: %v", line, err))
			continue
		}
		if blank(record) {
			continue
		}
		if v.maxRows > 0 && len(out.Results)+len(out.ParseErrors) >= v.maxRows {
			out.ParseErrors = append(out.ParseErrors, fmt.Sprintf("Line %d: row limit of %d reached, remaining rows ignored", line, v.maxRows))
			break
		}

		c, err := parseRecord(record, columns)
		if err != nil {
			out.ParseErrors = append(out.ParseErrors, fmt.Sprintf("Line %d: %v", line, err))
			continue
		}
		c.LineNum = line
		if opts.AccountID != nil {
			c.AccountID = *opts.AccountID
		}
		if err := c.Spec().Validate(); err != nil {
			out.ParseErrors = append(out.ParseErrors, fmt.Sprintf("Line %d: %v", line, err))
			continue
		}
		out.Results = append(out.Results, Evaluate(c, today))
	}
	out.TotalRecords = len(out.Results)
	return out, nil
}

// Evaluate normalizes c and reports its completeness, provisional P/L and
// close problems as of today.
func Evaluate(c Candidate, today util.Date) Result {
	if sym, err := models.NormalizeSymbol(c.Symbol); err == nil {
		c.Symbol = sym
	}
	c.Normalize()

	res := Result{
		LineNum:       c.LineNum,
		Trade:         c,
		MissingFields: c.MissingFields(),
		IsExpired:     c.ExpirationDate.Before(today),
	}
	if c.ClosePrice != nil && !c.IsOpen() {
		s := provisional(c)
		pl := util.Display(s.PnL)
		res.PL = &pl
	}
	if c.IsComplete() && !c.IsOpen() {
		if err := checkClose(c); err != nil {
			res.Problems = append(res.Problems, err.Error())
		}
	}
	res.IsValid = c.IsComplete() && len(res.Problems) == 0
	return res
}

func provisional(c Candidate) models.Settlement {
	t := &models.Trade{
		TradeType:       c.TradeType,
		Contracts:       c.Contracts,
		PremiumPerShare: c.PremiumPerShare,
		Fees:            c.Fees,
		Status:          models.TradeClosed,
		ClosePrice:      c.ClosePrice,
	}
	s, _ := t.Settlement()
	return s
}

// checkClose runs the close rules against a throwaway trade.
func checkClose(c Candidate) error {
	req, err := c.CloseRequest()
	if err != nil {
		return err
	}
	t, err := models.NewTrade(c.Spec(), time.Time{})
	if err != nil {
		return err
	}
	_, err = t.ValidateClose(req)
	return err
}

func indexHeader(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if name == "" {
			continue
		}
		if _, dup := columns[name]; dup {
			return nil, models.Invalidf("header", "duplicate column %q", name)
		}
		columns[name] = i
	}
	var missing []string
	for _, req := range RequiredColumns {
		if _, ok := columns[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return nil, models.Invalidf("header", "missing required columns %s (required: %s)",
			strings.Join(missing, ", "), strings.Join(RequiredColumns, ","))
	}
	return columns, nil
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

type row struct {
	record  []string
	columns map[string]int
}

func (r row) get(name string) string {
	idx, ok := r.columns[name]
	if !ok || idx >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[idx])
}

func (r row) required(name string) (string, error) {
	v := r.get(name)
	if v == "" {
		return "", fmt.Errorf("%s cannot be empty", name)
	}
	return v, nil
}

func (r row) money(name string, required bool) (*decimal.Decimal, error) {
	raw := r.get(name)
	if raw == "" {
		if required {
			return nil, fmt.Errorf("%s cannot be empty", name)
		}
		return nil, nil
	}
	d, err := util.ParseMoney(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return &d, nil
}

func (r row) date(name string) (util.Date, error) {
	raw, err := r.required(name)
	if err != nil {
		return util.Date{}, err
	}
	d, err := util.ParseDate(raw)
	if err != nil {
		return util.Date{}, fmt.Errorf("invalid %s %q: want YYYY-MM-DD", name, raw)
	}
	return d, nil
}

func (r row) text(name string) *string {
	v := r.get(name)
	if v == "" {
		return nil
	}
	return &v
}

func parseRecord(record []string, columns map[string]int) (Candidate, error) {
	r := row{record: record, columns: columns}
	var c Candidate

	raw, err := r.required("account_id")
	if err != nil {
		return c, err
	}
	if c.AccountID, err = strconv.ParseInt(raw, 10, 64); err != nil {
		return c, fmt.Errorf("invalid account_id %q", raw)
	}

	if raw, err = r.required("symbol"); err != nil {
		return c, err
	}
	if c.Symbol, err = models.NormalizeSymbol(raw); err != nil {
		return c, err
	}

	if raw, err = r.required("trade_type"); err != nil {
		return c, err
	}
	if c.TradeType, err = models.ParseTradeType(raw); err != nil {
		return c, err
	}

	if raw, err = r.required("contracts"); err != nil {
		return c, err
	}
	if c.Contracts, err = strconv.Atoi(raw); err != nil {
		return c, fmt.Errorf("invalid contracts %q", raw)
	}

	strike, err := r.money("strike_price", true)
	if err != nil {
		return c, err
	}
	c.StrikePrice = *strike

	premium, err := r.money("premium_per_share", true)
	if err != nil {
		return c, err
	}
	c.PremiumPerShare = *premium

	if c.OpenDate, err = r.date("open_date"); err != nil {
		return c, err
	}
	if c.ExpirationDate, err = r.date("expiration_date"); err != nil {
		return c, err
	}

	c.CloseDate = r.get("close_date")
	if c.CloseDate != "" && !c.IsOpen() {
		if _, err := util.ParseDate(c.CloseDate); err != nil {
			return c, fmt.Errorf("invalid close_date %q: want YYYY-MM-DD or %s", c.CloseDate, OpenSentinel)
		}
	}
	if raw := r.get("close_method"); raw != "" {
		if c.CloseMethod, err = models.ParseCloseMethod(raw); err != nil {
			return c, err
		}
	}
	if c.ClosePrice, err = r.money("close_price", false); err != nil {
		return c, err
	}

	fees, err := r.money("fees", false)
	if err != nil {
		return c, err
	}
	c.Fees = decimal.Zero
	if fees != nil {
		c.Fees = *fees
	}

	if raw := r.get("delta"); raw != "" {
		delta, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return c, fmt.Errorf("invalid delta %q", raw)
		}
		c.Delta = &delta
	}
	c.Tags = r.text("tags")
	c.Notes = r.text("notes")
	return c, nil
}
