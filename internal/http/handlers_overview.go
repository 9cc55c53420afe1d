package http

import (
	"net/http"

	"cashbook/internal/auth"
	"cashbook/internal/core"
)

type cashGroupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Budget   string `json:"budget,omitempty" validate:"max=32"`
	IsActive *bool  `json:"is_active,omitempty"`
}

func (req cashGroupRequest) group() (core.CashGroup, error) {
	budget, err := core.ParseNullAmount(req.Budget)
	if err != nil {
		return core.CashGroup{}, err
	}
	g := core.CashGroup{Name: req.Name, Budget: budget, IsActive: true}
	if req.IsActive != nil {
		g.IsActive = *req.IsActive
	}
	return g, nil
}

// handleOverview serves the income and spending totals of one month.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	m, err := pathMonth(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	totals, err := s.svc.Overview.Month(r.Context(), auth.UserID(r.Context()), m)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	m, err := pathMonth(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	table, err := s.svc.Overview.Plan(r.Context(), auth.UserID(r.Context()), m)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Overview.Analysis(r.Context(), auth.UserID(r.Context()), r.URL.Query().Get("filter"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleListCashGroups lists the active groups of a month with their totals.
func (s *Server) handleListCashGroups(w http.ResponseWriter, r *http.Request) {
	m, err := queryMonth(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	groups, err := s.svc.Overview.Groups(r.Context(), auth.UserID(r.Context()), m)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// handleAllCashGroups lists every group, inactive ones included.
func (s *Server) handleAllCashGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.svc.CashFlows.ListGroups(r.Context(), auth.UserID(r.Context()), false)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if groups == nil {
		groups = []core.CashGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleCreateCashGroup(w http.ResponseWriter, r *http.Request) {
	var req cashGroupRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	g, err := req.group()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	created, err := s.svc.CashFlows.CreateGroup(r.Context(), auth.UserID(r.Context()), g)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateCashGroup(w http.ResponseWriter, r *http.Request) {
	var req cashGroupRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	g, err := req.group()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	g.ID = r.PathValue("id")
	updated, err := s.svc.CashFlows.UpdateGroup(r.Context(), auth.UserID(r.Context()), g)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
