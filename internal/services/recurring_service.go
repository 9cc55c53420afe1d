package services

import (
	"context"
	"fmt"

	"cashbook/internal/core"
	"cashbook/internal/log"
	"cashbook/internal/recurring"
)

// RecurringService maintains recurring cash flows and their timeframes.
type RecurringService struct {
	store      RecurringStore
	invalidate Invalidator
	logger     *log.Logger
}

func NewRecurringService(store RecurringStore, invalidate Invalidator, logger *log.Logger) *RecurringService {
	if invalidate == nil {
		invalidate = noopInvalidator{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &RecurringService{
		store:      store,
		invalidate: invalidate,
		logger:     logger.WithComponent(log.ComponentRecurring),
	}
}

func (s *RecurringService) List(ctx context.Context, owner string) ([]core.RecurringCashFlow, error) {
	flows, err := s.store.ListRecurring(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list recurring flows: %w", err)
	}
	return flows, nil
}

func (s *RecurringService) Get(ctx context.Context, owner, id string) (core.RecurringCashFlow, error) {
	return s.store.GetRecurring(ctx, owner, id)
}

func (s *RecurringService) Create(ctx context.Context, owner string, form recurring.FlowForm) (core.RecurringCashFlow, error) {
	flow, err := s.store.CreateRecurring(ctx, owner, form)
	if err != nil {
		return core.RecurringCashFlow{}, fmt.Errorf("create recurring flow: %w", err)
	}
	s.invalidate.InvalidateUser(owner)
	s.logger.InfoContext(ctx, "Recurring flow created",
		log.FieldFlowID, flow.ID,
		log.FieldUserID, owner,
		"timeframes", len(flow.Timeframes))
	return flow, nil
}

// Update diffs form against the stored flow and writes only what changed.
// It returns the stored flow after the write and the plan that was applied.
func (s *RecurringService) Update(ctx context.Context, owner, id string, form recurring.FlowForm) (core.RecurringCashFlow, recurring.Plan, error) {
	stored, err := s.store.GetRecurring(ctx, owner, id)
	if err != nil {
		return core.RecurringCashFlow{}, recurring.Plan{}, err
	}
	plan, err := recurring.Diff(owner, stored, form)
	if err != nil {
		return core.RecurringCashFlow{}, recurring.Plan{}, err
	}
	if plan.Empty() {
		return stored, plan, nil
	}
	if err := s.store.ApplyRecurringPlan(ctx, owner, id, form, plan); err != nil {
		return core.RecurringCashFlow{}, recurring.Plan{}, fmt.Errorf("apply recurring plan: %w", err)
	}
	s.invalidate.InvalidateUser(owner)
	s.logger.InfoContext(ctx, "Recurring flow updated",
		log.FieldFlowID, id,
		log.FieldUserID, owner,
		"inserted", len(plan.Inserted),
		"updated", len(plan.Updated),
		"deleted", len(plan.Deleted))

	updated, err := s.store.GetRecurring(ctx, owner, id)
	if err != nil {
		return core.RecurringCashFlow{}, recurring.Plan{}, err
	}
	return updated, plan, nil
}

func (s *RecurringService) Delete(ctx context.Context, owner, id string) error {
	if err := s.store.DeleteRecurring(ctx, owner, id); err != nil {
		return err
	}
	s.invalidate.InvalidateUser(owner)
	return nil
}
