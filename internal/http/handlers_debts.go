package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"cashbook/internal/auth"
	"cashbook/internal/core"
	"cashbook/internal/ledger"
	"cashbook/internal/services"
)

type debtRequest struct {
	ForID  string `json:"for_id" validate:"required,max=64"`
	Name   string `json:"name" validate:"required,max=200"`
	Amount string `json:"amount" validate:"required,max=32"`
	// Date defaults to today.
	Date string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// debtPatchRequest carries only the fields being changed.
type debtPatchRequest struct {
	ForID  *string `json:"for_id,omitempty" validate:"omitempty,min=1,max=64"`
	Name   *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Amount *string `json:"amount,omitempty" validate:"omitempty,max=32"`
	Date   *string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type reactionRequest struct {
	Reaction string `json:"reaction" validate:"required,oneof=accepted rejected"`
}

type settleRequest struct {
	Friend string `json:"friend" validate:"required,max=64"`
}

func (req debtRequest) debt() (core.Debt, error) {
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		return core.Debt{}, err
	}
	date := time.Now().UTC().Truncate(24 * time.Hour)
	if req.Date != "" {
		if date, err = time.Parse(time.DateOnly, req.Date); err != nil {
			return core.Debt{}, badRequest("invalid date %q", req.Date)
		}
	}
	return core.Debt{ForID: req.ForID, Name: strings.TrimSpace(req.Name), Amount: amount, Date: date}, nil
}

func (req debtPatchRequest) patch() (ledger.DebtPatch, error) {
	p := ledger.DebtPatch{ForID: req.ForID, Name: req.Name}
	if req.Amount != nil {
		amount, err := core.ParseAmount(*req.Amount)
		if err != nil {
			return ledger.DebtPatch{}, err
		}
		p.Amount = &amount
	}
	if req.Date != nil {
		date, err := time.Parse(time.DateOnly, *req.Date)
		if err != nil {
			return ledger.DebtPatch{}, badRequest("invalid date %q", *req.Date)
		}
		p.Date = &date
	}
	return p, nil
}

// handleOpenDebts lists the open debts with ?friend= and their netting.
func (s *Server) handleOpenDebts(w http.ResponseWriter, r *http.Request) {
	friend := strings.TrimSpace(r.URL.Query().Get("friend"))
	if friend == "" {
		s.fail(w, r, badRequest("friend is required"))
		return
	}
	open, err := s.svc.Debts.Open(r.Context(), auth.UserID(r.Context()), friend)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, open)
}

func (s *Server) handleCreateDebt(w http.ResponseWriter, r *http.Request) {
	var req debtRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := req.debt()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	created, err := s.svc.Debts.Create(r.Context(), auth.UserID(r.Context()), d)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleEditDebt(w http.ResponseWriter, r *http.Request) {
	var req debtPatchRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := s.svc.Debts.Edit(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDebt(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Debts.Delete(r.Context(), auth.UserID(r.Context()), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReact(w http.ResponseWriter, r *http.Request) {
	var req reactionRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	reaction, err := core.ParseAcceptanceState(req.Reaction)
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	d, err := s.svc.Debts.React(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), reaction)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.svc.Debts.Balances(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

// handleSettle settles every open debt with a friend. A partial parallel
// settlement answers 207 with the debts that were settled and the ids
// that were not.
func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := s.svc.Debts.Settle(r.Context(), auth.UserID(r.Context()), req.Friend)
	var serr *services.SettlementError
	switch {
	case errors.As(err, &serr) && len(st.Debts) > 0:
		writeJSON(w, http.StatusMultiStatus, st)
	case err != nil:
		s.fail(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, st)
	}
}

func (s *Server) handleListSettlements(w http.ResponseWriter, r *http.Request) {
	batches, err := s.svc.Debts.GroupSettled(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if batches == nil {
		batches = []ledger.Batch{}
	}
	writeJSON(w, http.StatusOK, batches)
}
