package http

import (
	"net/http"

	"cashbook/internal/auth"
	"cashbook/internal/core"
	"cashbook/internal/recurring"
)

type recurringUpdateResponse struct {
	Flow core.RecurringCashFlow `json:"flow"`
	Plan recurring.Plan         `json:"plan"`
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	flows, err := s.svc.Recurring.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flows)
}

func (s *Server) handleGetRecurring(w http.ResponseWriter, r *http.Request) {
	flow, err := s.svc.Recurring.Get(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	var form recurring.FlowForm
	if err := s.decode(w, r, &form); err != nil {
		s.fail(w, r, err)
		return
	}
	flow, err := s.svc.Recurring.Create(r.Context(), auth.UserID(r.Context()), form)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, flow)
}

// handleUpdateRecurring answers with the stored flow and the changes applied.
func (s *Server) handleUpdateRecurring(w http.ResponseWriter, r *http.Request) {
	var form recurring.FlowForm
	if err := s.decode(w, r, &form); err != nil {
		s.fail(w, r, err)
		return
	}
	flow, plan, err := s.svc.Recurring.Update(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), form)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recurringUpdateResponse{Flow: flow, Plan: plan})
}

func (s *Server) handleDeleteRecurring(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Recurring.Delete(r.Context(), auth.UserID(r.Context()), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
