package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cashbook/internal/core"
	"cashbook/internal/ledger"
	"cashbook/internal/log"
	"cashbook/internal/storage"
)

// CashFlowForm is a submitted ad-hoc cash flow. FriendID and DebtAmount
// describe the share a friend owes for it; an empty FriendID means none.
type CashFlowForm struct {
	ID          string    `json:"id,omitempty"`
	Name        string    `json:"name" validate:"required,max=200"`
	Amount      string    `json:"amount" validate:"required"`
	Date        time.Time `json:"date" validate:"required"`
	CashGroupID string    `json:"cash_group_id,omitempty"`
	FriendID    string    `json:"friend_id,omitempty"`
	DebtAmount  string    `json:"debt_amount,omitempty"`
}

// CashFlowService maintains cash groups and ad-hoc cash flows, including
// the debt a cash flow may carry.
type CashFlowService struct {
	groups     CashGroupStore
	flows      CashFlowStore
	debts      *DebtService
	invalidate Invalidator
	logger     *log.Logger
}

func NewCashFlowService(groups CashGroupStore, flows CashFlowStore, debts *DebtService, invalidate Invalidator, logger *log.Logger) *CashFlowService {
	if invalidate == nil {
		invalidate = noopInvalidator{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &CashFlowService{
		groups:     groups,
		flows:      flows,
		debts:      debts,
		invalidate: invalidate,
		logger:     logger.WithComponent(log.ComponentCashFlow),
	}
}

func (s *CashFlowService) CreateGroup(ctx context.Context, owner string, g core.CashGroup) (core.CashGroup, error) {
	g.Owner = owner
	created, err := s.groups.CreateCashGroup(ctx, g)
	if err != nil {
		return core.CashGroup{}, fmt.Errorf("create cash group: %w", err)
	}
	s.invalidate.InvalidateUser(owner)
	return created, nil
}

func (s *CashFlowService) UpdateGroup(ctx context.Context, owner string, g core.CashGroup) (core.CashGroup, error) {
	g.Owner = owner
	if err := s.groups.UpdateCashGroup(ctx, g); err != nil {
		return core.CashGroup{}, err
	}
	s.invalidate.InvalidateUser(owner)
	return s.groups.GetCashGroup(ctx, owner, g.ID)
}

func (s *CashFlowService) ListGroups(ctx context.Context, owner string, activeOnly bool) ([]core.CashGroup, error) {
	groups, err := s.groups.ListCashGroups(ctx, owner, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list cash groups: %w", err)
	}
	return groups, nil
}

func (s *CashFlowService) ListMonth(ctx context.Context, owner string, m core.Month) ([]core.CashFlow, error) {
	flows, err := s.flows.ListCashFlowsInMonth(ctx, owner, m)
	if err != nil {
		return nil, fmt.Errorf("list cash flows: %w", err)
	}
	return flows, nil
}

// Save creates or updates a cash flow and brings its debt in line with
// the form: a newly selected friend adds a debt, a changed amount or
// friend edits it, no friend removes it. Accepted debts are left alone.
func (s *CashFlowService) Save(ctx context.Context, owner string, form CashFlowForm) (core.CashFlow, error) {
	amount, err := core.ParseAmount(form.Amount)
	if err != nil {
		return core.CashFlow{}, err
	}

	var cf core.CashFlow
	if form.ID != "" {
		cf, err = s.flows.GetCashFlow(ctx, owner, form.ID)
		if err != nil {
			return core.CashFlow{}, err
		}
	}
	cf.Owner = owner
	cf.Name = form.Name
	cf.Amount = amount
	cf.Date = form.Date
	cf.CashGroupID = form.CashGroupID

	if err := s.syncDebt(ctx, owner, &cf, form); err != nil {
		return core.CashFlow{}, err
	}

	if cf.ID == "" {
		cf, err = s.flows.CreateCashFlow(ctx, cf)
		if err != nil {
			return core.CashFlow{}, fmt.Errorf("create cash flow: %w", err)
		}
	} else {
		if err := s.flows.UpdateCashFlow(ctx, cf); err != nil {
			return core.CashFlow{}, fmt.Errorf("update cash flow: %w", err)
		}
		cf, err = s.flows.GetCashFlow(ctx, owner, cf.ID)
		if err != nil {
			return core.CashFlow{}, err
		}
	}
	s.invalidate.InvalidateUser(owner)
	return cf, nil
}

func (s *CashFlowService) syncDebt(ctx context.Context, owner string, cf *core.CashFlow, form CashFlowForm) error {
	if s.debts == nil {
		return nil
	}
	var current *core.Debt
	if cf.DebtID != "" {
		d, err := s.debts.Get(ctx, owner, cf.DebtID)
		switch {
		case err == nil:
			current = &d
		case errors.Is(err, storage.ErrNotFound):
			cf.DebtID = ""
		default:
			return err
		}
	}

	action, err := ledger.ActionFor(current, form.FriendID, form.DebtAmount)
	if err != nil {
		return err
	}
	switch action {
	case ledger.FormAdd:
		debtAmount, err := core.ParseAmount(form.DebtAmount)
		if err != nil {
			return err
		}
		d, err := s.debts.Create(ctx, owner, core.Debt{
			Name:   cf.Name,
			Amount: debtAmount,
			Date:   cf.Date,
			ForID:  form.FriendID,
		})
		if err != nil {
			return err
		}
		cf.DebtID = d.ID
	case ledger.FormUpdate:
		debtAmount, err := core.ParseAmount(form.DebtAmount)
		if err != nil {
			return err
		}
		name, date, friend := cf.Name, cf.Date, form.FriendID
		_, err = s.debts.Edit(ctx, owner, current.ID, ledger.DebtPatch{
			Amount: &debtAmount,
			Name:   &name,
			Date:   &date,
			ForID:  &friend,
		})
		if err != nil {
			return err
		}
	case ledger.FormDelete:
		if err := s.debts.Delete(ctx, owner, current.ID); err != nil {
			return err
		}
		cf.DebtID = ""
	}
	if action != ledger.FormNothing {
		s.logger.InfoContext(ctx, "Cash flow debt synced",
			log.FieldUserID, owner,
			log.FieldOperation, action.String())
	}
	return nil
}

func (s *CashFlowService) Delete(ctx context.Context, owner, id string) error {
	if err := s.flows.DeleteCashFlow(ctx, owner, id); err != nil {
		return err
	}
	s.invalidate.InvalidateUser(owner)
	return nil
}
