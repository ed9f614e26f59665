package api

import (
	"errors"
	"net/http"

	"github.com/eddiefleurent/wheel_tracker/internal/importer"
	"github.com/eddiefleurent/wheel_tracker/internal/lifecycle"
	"github.com/eddiefleurent/wheel_tracker/internal/models"
	"github.com/eddiefleurent/wheel_tracker/internal/quotes"
	"github.com/eddiefleurent/wheel_tracker/internal/service"
	"github.com/go-chi/chi/v5"
)

// Accounts

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.ListAccounts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var spec models.AccountSpec
	if err := decodeJSON(r, &spec); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.ledger.CreateAccount(r.Context(), spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.ledger.GetAccount(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var spec models.AccountSpec
	if err := decodeJSON(r, &spec); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.ledger.UpdateAccount(r.Context(), id, spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleActivateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.ledger.ActivateAccount(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleActiveAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.ledger.ActiveAccount(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Trades

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	var f service.TradeFilter
	var err error
	if f.AccountID, err = accountParam(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		if f.Status, err = models.ParseTradeStatus(raw); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	f.Symbol = r.URL.Query().Get("symbol")

	trades, err := s.ledger.ListTrades(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleOpenTrade(w http.ResponseWriter, r *http.Request) {
	var spec models.TradeSpec
	if err := decodeJSON(r, &spec); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.ledger.OpenTrade(r.Context(), spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.ledger.GetTrade(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTrade(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var spec models.TradeSpec
	if err := decodeJSON(r, &spec); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.ledger.UpdateTrade(r.Context(), id, spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCloseTrade(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req models.CloseRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.ledger.CloseTrade(r.Context(), id, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteTrade(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteTrade(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.ledger.Dashboard(r.Context(), accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	perf, err := s.ledger.Performance(r.Context(), accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

// Import

func (s *Server) handleValidateImport(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, err)
			return
		}
		s.writeError(w, r, models.Invalidf("file", "expected a multipart upload: %v", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, _, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, errNoFile)
		return
	}
	defer file.Close()

	var opts importer.Options
	if opts.AccountID, err = formAccountID(r.FormValue("account_id")); err != nil {
		s.writeError(w, r, err)
		return
	}

	v, err := s.ledger.ValidateImport(r.Context(), file, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleConfirmImport(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, s.maxUpload)
	var req importer.ConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.ledger.ConfirmImport(r.Context(), req)
	s.writeConfirm(w, r, res, err)
}

func (s *Server) handleConfirmOne(w http.ResponseWriter, r *http.Request) {
	var c importer.Candidate
	if err := decodeJSON(r, &c); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.ledger.ConfirmOne(r.Context(), c)
	s.writeConfirm(w, r, res, err)
}

// writeConfirm answers a rejected batch with its per-line errors.
func (s *Server) writeConfirm(w http.ResponseWriter, r *http.Request, res *importer.ConfirmResult, err error) {
	switch {
	case errors.Is(err, service.ErrImportRejected) && res != nil:
		writeJSON(w, http.StatusBadRequest, res)
	case err != nil:
		s.writeError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// Positions and wheels

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	var f service.PositionFilter
	var err error
	if f.AccountID, err = accountParam(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		if f.Status, err = models.ParsePositionStatus(raw); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if f.WithQuotes, err = boolParam(r, "quotes"); err != nil {
		s.writeError(w, r, err)
		return
	}

	positions, err := s.ledger.ListPositions(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.ledger.GetPosition(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req lifecycle.PositionCloseRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.ledger.ClosePosition(r.Context(), id, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListWheels(w http.ResponseWriter, r *http.Request) {
	var f service.WheelFilter
	var err error
	if f.AccountID, err = accountParam(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		if f.Status, err = models.ParseWheelStatus(raw); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	wheels, err := s.ledger.ListWheels(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wheels)
}

func (s *Server) handleGetWheel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	wheel, err := s.ledger.GetWheel(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wheel)
}

// Quotes

func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	if s.quotes == nil {
		s.writeError(w, r, &models.ExternalUnavailableError{Service: "quotes", Err: quotes.ErrDisabled})
		return
	}
	q, err := s.quotes.Quote(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	findings, err := s.ledger.Audit(r.Context(), accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, findings)
}
