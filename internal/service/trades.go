package service

import (
	"context"
	"sort"

	"github.com/eddiefleurent/wheel_tracker/internal/lifecycle"
	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/eddiefleurent/wheel_tracker/internal/util"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// TradeView is a trade with its derived money fields and, while open, its
// days to expiration.
type TradeView struct {
	*models.Trade
	PremiumCollected decimal.Decimal  `json:"premium_collected"`
	NetPremium       decimal.Decimal  `json:"net_premium"`
	CashSecured      decimal.Decimal  `json:"cash_secured"`
	PnL              *decimal.Decimal `json:"pnl,omitempty"`
	Yield            *decimal.Decimal `json:"yield,omitempty"`
	DTE              *int             `json:"dte,omitempty"`
	ManagementDate   *util.Date       `json:"management_date,omitempty"`
}

// TradeFilter narrows ListTrades. Zero values match everything.
type TradeFilter struct {
	AccountID *int64
	Status    models.TradeStatus
	Symbol    string
}

// CloseView is the outcome of a close.
type CloseView struct {
	Trade      TradeView          `json:"trade"`
	Settlement models.Settlement  `json:"settlement"`
	Positions  []*models.Position `json:"positions,omitempty"`
	Wheel      *models.Wheel      `json:"wheel,omitempty"`
}

func (l *Ledger) viewTrade(t *models.Trade, today util.Date) TradeView {
	v := TradeView{
		Trade:            t,
		PremiumCollected: util.Display(t.PremiumCollected()),
		NetPremium:       util.Display(t.NetPremium()),
		CashSecured:      util.Display(t.CashSecured()),
	}
	if s, ok := t.Settlement(); ok {
		pnl := util.Display(s.PnL)
		yield := util.Display(t.Yield())
		v.PnL = &pnl
		v.Yield = &yield
		return v
	}
	dte := util.DTE(today, t.ExpirationDate)
	v.DTE = &dte
	if md, ok := util.ManagementDate(t.OpenDate, dte, l.managementDTE); ok {
		v.ManagementDate = &md
	}
	return v
}

func (l *Ledger) today() util.Date {
	return util.DateOf(l.now())
}

// OpenTrade records a new OPEN trade against spec.AccountID.
func (l *Ledger) OpenTrade(ctx context.Context, spec models.TradeSpec) (*TradeView, error) {
	if spec.AccountID <= 0 {
		return nil, models.Invalidf("account_id", "is required")
	}
	var opened *models.Trade
	err := l.mutate(ctx, spec.AccountID, func(b *models.Book, e *lifecycle.Engine) error {
		t, err := e.OpenTrade(b, spec)
		opened = t
		return err
	})
	if err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"account_id": opened.AccountID,
		"trade_id":   opened.ID,
		"symbol":     opened.Symbol,
		"type":       opened.TradeType,
	}).Info("Trade opened")
	v := l.viewTrade(opened, l.today())
	return &v, nil
}

// CloseTrade settles an OPEN trade and applies its assignment effects.
func (l *Ledger) CloseTrade(ctx context.Context, id int64, req models.CloseRequest) (*CloseView, error) {
	owner, err := l.store.Owner(ctx, models.KindTrade, id)
	if err != nil {
		return nil, err
	}
	var res *lifecycle.CloseResult
	err = l.mutate(ctx, owner, func(b *models.Book, e *lifecycle.Engine) error {
		r, err := e.CloseTrade(b, id, req)
		res = r
		return err
	})
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{
		"account_id": owner,
		"trade_id":   id,
		"method":     req.CloseMethod,
		"pnl":        util.Display(res.Settlement.PnL).String(),
	}
	if len(res.Positions) > 0 {
		fields["position_id"] = res.Positions[0].ID
	}
	l.logger.WithFields(fields).Info("Trade closed")

	return &CloseView{
		Trade:      l.viewTrade(res.Trade, l.today()),
		Settlement: displaySettlement(res.Settlement),
		Positions:  res.Positions,
		Wheel:      res.Wheel,
	}, nil
}

func displaySettlement(s models.Settlement) models.Settlement {
	return models.Settlement{
		PremiumCollected: util.Display(s.PremiumCollected),
		CostToClose:      util.Display(s.CostToClose),
		Fees:             util.Display(s.Fees),
		PnL:              util.Display(s.PnL),
	}
}

// UpdateTrade edits an OPEN trade. A zero spec.AccountID keeps the owner.
func (l *Ledger) UpdateTrade(ctx context.Context, id int64, spec models.TradeSpec) (*TradeView, error) {
	owner, err := l.store.Owner(ctx, models.KindTrade, id)
	if err != nil {
		return nil, err
	}
	if spec.AccountID == 0 {
		spec.AccountID = owner
	}
	var updated *models.Trade
	err = l.mutate(ctx, owner, func(b *models.Book, e *lifecycle.Engine) error {
		t, err := e.UpdateTrade(b, id, spec)
		updated = t
		return err
	})
	if err != nil {
		return nil, err
	}
	l.logger.WithFields(logrus.Fields{"account_id": owner, "trade_id": id}).Info("Trade updated")
	v := l.viewTrade(updated, l.today())
	return &v, nil
}

// DeleteTrade removes a trade, refusing ones whose assigned shares are still held.
func (l *Ledger) DeleteTrade(ctx context.Context, id int64) error {
	owner, err := l.store.Owner(ctx, models.KindTrade, id)
	if err != nil {
		return err
	}
	err = l.mutate(ctx, owner, func(b *models.Book, e *lifecycle.Engine) error {
		return e.DeleteTrade(b, id)
	})
	if err != nil {
		return err
	}
	l.logger.WithFields(logrus.Fields{"account_id": owner, "trade_id": id}).Info("Trade deleted")
	return nil
}

// GetTrade returns one trade.
func (l *Ledger) GetTrade(ctx context.Context, id int64) (*TradeView, error) {
	b, err := l.ownerBook(ctx, models.KindTrade, id)
	if err != nil {
		return nil, err
	}
	t, ok := b.Trade(id)
	if !ok {
		return nil, &models.NotFoundError{Entity: "trade", ID: id}
	}
	v := l.viewTrade(t, l.today())
	return &v, nil
}

// ListTrades returns matching trades, newest open date first.
func (l *Ledger) ListTrades(ctx context.Context, f TradeFilter) ([]TradeView, error) {
	books, err := l.books(ctx, f.AccountID)
	if err != nil {
		return nil, err
	}
	symbol := ""
	if f.Symbol != "" {
		if symbol, err = models.NormalizeSymbol(f.Symbol); err != nil {
			return nil, err
		}
	}

	today := l.today()
	out := []TradeView{}
	for _, b := range books {
		for _, t := range b.Trades {
			if f.Status != "" && t.Status != f.Status {
				continue
			}
			if symbol != "" && t.Symbol != symbol {
				continue
			}
			out = append(out, l.viewTrade(t, today))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OpenDate.Equal(out[j].OpenDate) {
			return out[i].OpenDate.After(out[j].OpenDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
