package http

import (
	"net/http"
	"time"

	"cashbook/internal/auth"
	"cashbook/internal/services"
)

type cashFlowRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Amount      string `json:"amount" validate:"required,max=32"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	CashGroupID string `json:"cash_group_id,omitempty"`
	FriendID    string `json:"friend_id,omitempty"`
	DebtAmount  string `json:"debt_amount,omitempty" validate:"required_with=FriendID,max=32"`
}

func (req cashFlowRequest) form(id string) (services.CashFlowForm, error) {
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		return services.CashFlowForm{}, badRequest("invalid date %q", req.Date)
	}
	return services.CashFlowForm{
		ID:          id,
		Name:        req.Name,
		Amount:      req.Amount,
		Date:        date,
		CashGroupID: req.CashGroupID,
		FriendID:    req.FriendID,
		DebtAmount:  req.DebtAmount,
	}, nil
}

func (s *Server) handleListCashFlows(w http.ResponseWriter, r *http.Request) {
	m, err := queryMonth(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	flows, err := s.svc.CashFlows.ListMonth(r.Context(), auth.UserID(r.Context()), m)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flows)
}

// handleSaveCashFlow creates a cash flow on POST and replaces it on PUT.
func (s *Server) handleSaveCashFlow(w http.ResponseWriter, r *http.Request) {
	var req cashFlowRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	id := r.PathValue("id")
	form, err := req.form(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cf, err := s.svc.CashFlows.Save(r.Context(), auth.UserID(r.Context()), form)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if id == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, cf)
}

func (s *Server) handleDeleteCashFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.CashFlows.Delete(r.Context(), auth.UserID(r.Context()), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
