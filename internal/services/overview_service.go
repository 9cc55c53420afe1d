package services

import (
	"context"
	"fmt"
	"time"

	"cashbook/internal/analysis"
	"cashbook/internal/cache"
	"cashbook/internal/core"
	"cashbook/internal/log"
	"cashbook/internal/metrics"
	"cashbook/internal/recurring"
)

var _ Invalidator = (*OverviewService)(nil)

// OverviewService computes the read-side views of a user's money: month
// totals, the monthly plan, cash groups with their recurring flows and the
// spending analysis. Month totals are cached per user and month.
type OverviewService struct {
	groups    CashGroupStore
	flows     CashFlowStore
	recurring RecurringStore
	cache     cache.Cache[core.MonthTotals]
	metrics   *metrics.Metrics
	logger    *log.Logger
	now       func() time.Time
}

// NewOverviewService wires the service. c and m may be nil.
func NewOverviewService(groups CashGroupStore, flows CashFlowStore, rec RecurringStore, c cache.Cache[core.MonthTotals], m *metrics.Metrics, logger *log.Logger) *OverviewService {
	if logger == nil {
		logger = log.Discard()
	}
	return &OverviewService{
		groups:    groups,
		flows:     flows,
		recurring: rec,
		cache:     c,
		metrics:   m,
		logger:    logger.WithComponent(log.ComponentOverview),
		now:       time.Now,
	}
}

func cacheKey(owner string, m core.Month) string {
	return owner + "|" + m.String()
}

// Month aggregates recurring and ad-hoc flows of owner for m.
func (s *OverviewService) Month(ctx context.Context, owner string, m core.Month) (core.MonthTotals, error) {
	if err := m.Validate(); err != nil {
		return core.MonthTotals{}, err
	}
	key := cacheKey(owner, m)
	if s.cache != nil {
		if totals, ok := s.cache.Get(key); ok {
			s.metrics.ObserveCache(true)
			return totals, nil
		}
		s.metrics.ObserveCache(false)
	}

	rec, err := s.recurring.ListRecurring(ctx, owner)
	if err != nil {
		return core.MonthTotals{}, fmt.Errorf("list recurring flows: %w", err)
	}
	adHoc, err := s.flows.ListCashFlowsInMonth(ctx, owner, m)
	if err != nil {
		return core.MonthTotals{}, fmt.Errorf("list cash flows: %w", err)
	}
	groups, err := s.groups.ListCashGroups(ctx, owner, false)
	if err != nil {
		return core.MonthTotals{}, fmt.Errorf("list cash groups: %w", err)
	}

	totals := recurring.AggregateMonth(rec, adHoc, groups, m)
	if s.cache != nil {
		s.cache.Set(key, totals)
	}
	s.logger.DebugContext(ctx, "Month aggregated", log.FieldUserID, owner, log.FieldMonth, m.String())
	return totals, nil
}

// Plan returns expected income, fixed costs and budgets for m.
func (s *OverviewService) Plan(ctx context.Context, owner string, m core.Month) (recurring.TotalTable, error) {
	rec, groups, err := s.recurringAndGroups(ctx, owner, false)
	if err != nil {
		return recurring.TotalTable{}, err
	}
	return recurring.PlanTable(rec, groups, m), nil
}

// Groups attaches the recurring flows active in m to the active cash groups.
func (s *OverviewService) Groups(ctx context.Context, owner string, m core.Month) (recurring.GroupedFlows, error) {
	rec, groups, err := s.recurringAndGroups(ctx, owner, true)
	if err != nil {
		return recurring.GroupedFlows{}, err
	}
	return recurring.GroupFlows(groups, recurring.SortByAmount(rec, m), m), nil
}

func (s *OverviewService) recurringAndGroups(ctx context.Context, owner string, activeOnly bool) ([]core.RecurringCashFlow, []core.CashGroup, error) {
	rec, err := s.recurring.ListRecurring(ctx, owner)
	if err != nil {
		return nil, nil, fmt.Errorf("list recurring flows: %w", err)
	}
	groups, err := s.groups.ListCashGroups(ctx, owner, activeOnly)
	if err != nil {
		return nil, nil, fmt.Errorf("list cash groups: %w", err)
	}
	return rec, groups, nil
}

// Analysis is the spending analysis page: the selectable filters and the
// spendings of the selected one.
type Analysis struct {
	Filters   []analysis.Filter  `json:"filters"`
	Spendings analysis.Spendings `json:"spendings"`
}

// Analysis lays out ad-hoc spending per cash group for filterID. An empty
// filterID selects the last three months.
func (s *OverviewService) Analysis(ctx context.Context, owner, filterID string) (Analysis, error) {
	if filterID == "" {
		filterID = "last_3"
	}
	f, err := analysis.ParseFilter(filterID)
	if err != nil {
		return Analysis{}, err
	}
	flows, err := s.flows.ListCashFlowsInRange(ctx, owner, time.Time{}, time.Time{})
	if err != nil {
		return Analysis{}, fmt.Errorf("list cash flows: %w", err)
	}
	groups, err := s.groups.ListCashGroups(ctx, owner, false)
	if err != nil {
		return Analysis{}, fmt.Errorf("list cash groups: %w", err)
	}

	rows := analysis.RowsFromCashFlows(flows, groups)
	store := analysis.NewStore(rows)
	return Analysis{
		Filters:   analysis.Filters(store.Years()),
		Spendings: store.CategorySpendings(f, analysis.Categories(rows), s.now()),
	}, nil
}

// InvalidateUser drops every cached month of userID.
func (s *OverviewService) InvalidateUser(userID string) {
	if s.cache == nil {
		return
	}
	s.cache.DeletePrefix(userID + "|")
}
