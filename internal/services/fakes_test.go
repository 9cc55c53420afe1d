package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"cashbook/internal/amqp"
	"cashbook/internal/core"
	"cashbook/internal/recurring"
	"cashbook/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory implementation of every persistence port.
type memStore struct {
	mu      sync.Mutex
	seq     int
	friends map[[2]string]bool
	debts   map[string]core.Debt
	flows   map[string]core.CashFlow
	groups  map[string]core.CashGroup
	rec     map[string]core.RecurringCashFlow

	// failSettle makes SetSettlementID fail for these debt ids.
	failSettle map[string]bool
	settleErr  error

	debtUpdates  int
	planApplied  int
	listRecCalls int
}

func newMemStore() *memStore {
	return &memStore{
		friends:    make(map[[2]string]bool),
		debts:      make(map[string]core.Debt),
		flows:      make(map[string]core.CashFlow),
		groups:     make(map[string]core.CashGroup),
		rec:        make(map[string]core.RecurringCashFlow),
		failSettle: make(map[string]bool),
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s%d", prefix, m.seq)
}

func pair(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

func (m *memStore) befriend(a, b string) {
	m.friends[pair(a, b)] = true
}

func (m *memStore) AreFriends(_ context.Context, a, b string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.friends[pair(a, b)], nil
}

func (m *memStore) CreateDebt(_ context.Context, d core.Debt) (core.Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = m.nextID("d")
	d.State = core.Pending
	d.SettlementID = nil
	m.debts[d.ID] = d
	return d, nil
}

func (m *memStore) GetDebt(_ context.Context, id string) (core.Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.debts[id]
	if !ok {
		return core.Debt{}, storage.ErrNotFound
	}
	return d, nil
}

func (m *memStore) UpdateDebt(_ context.Context, d core.Debt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.debts[d.ID]
	if !ok || old.IsSettled() {
		return storage.ErrNotFound
	}
	m.debtUpdates++
	m.debts[d.ID] = d
	return nil
}

func (m *memStore) UpdateDebtState(_ context.Context, id string, from, to core.AcceptanceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.debts[id]
	if !ok || d.State != from || d.IsSettled() {
		return storage.ErrConflict
	}
	d.State = to
	m.debts[id] = d
	return nil
}

func (m *memStore) DeleteDebt(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.debts[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.debts, id)
	return nil
}

func (m *memStore) ListOpenDebts(_ context.Context, userID, friendID string) ([]core.Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Debt
	for _, d := range m.debts {
		if d.IsSettled() || !d.Involves(userID) {
			continue
		}
		if friendID != "" && d.Counterparty(userID) != friendID {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) SetSettlementID(_ context.Context, debtID string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSettle[debtID] {
		return errors.New("database is locked")
	}
	d, ok := m.debts[debtID]
	if !ok || d.IsSettled() || d.State != core.Accepted {
		return storage.ErrConflict
	}
	d.SettlementID = &id
	m.debts[debtID] = d
	return nil
}

func (m *memStore) SettleDebts(ctx context.Context, debtIDs []string, id uuid.UUID) error {
	if m.settleErr != nil {
		return m.settleErr
	}
	for _, debtID := range debtIDs {
		if err := m.SetSettlementID(ctx, debtID, id); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) RecentSettledDebts(_ context.Context, userID string, limit int) ([]core.Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Debt
	for _, d := range m.debts {
		if d.IsSettled() && d.Involves(userID) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) SettlementDebts(_ context.Context, userID string, id uuid.UUID) ([]core.Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Debt
	for _, d := range m.debts {
		if d.IsSettled() && *d.SettlementID == id && d.Involves(userID) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) CreateRecurring(ctx context.Context, owner string, form recurring.FlowForm) (core.RecurringCashFlow, error) {
	m.mu.Lock()
	flow := core.RecurringCashFlow{ID: m.nextID("r"), Owner: owner}
	m.mu.Unlock()
	plan, err := recurring.Diff(owner, flow, form)
	if err != nil {
		return core.RecurringCashFlow{}, err
	}
	m.mu.Lock()
	m.rec[flow.ID] = flow
	m.mu.Unlock()
	if err := m.ApplyRecurringPlan(ctx, owner, flow.ID, form, plan); err != nil {
		return core.RecurringCashFlow{}, err
	}
	return m.GetRecurring(ctx, owner, flow.ID)
}

func (m *memStore) GetRecurring(_ context.Context, owner, id string) (core.RecurringCashFlow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	flow, ok := m.rec[id]
	if !ok || flow.Owner != owner {
		return core.RecurringCashFlow{}, storage.ErrNotFound
	}
	flow.Timeframes = slices.Clone(flow.Timeframes)
	return flow, nil
}

func (m *memStore) ListRecurring(_ context.Context, owner string) ([]core.RecurringCashFlow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listRecCalls++
	var out []core.RecurringCashFlow
	for _, flow := range m.rec {
		if flow.Owner == owner {
			out = append(out, flow)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ApplyRecurringPlan(_ context.Context, owner, flowID string, form recurring.FlowForm, plan recurring.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	flow, ok := m.rec[flowID]
	if !ok || flow.Owner != owner {
		return storage.ErrNotFound
	}
	m.planApplied++
	flow.Name, flow.IsIncome, flow.CashGroupID = form.Name, form.IsIncome, form.CashGroupID

	var kept []core.Timeframe
	for _, tf := range flow.Timeframes {
		if !slices.Contains(plan.Deleted, tf.ID) {
			kept = append(kept, tf)
		}
	}
	for _, u := range plan.Updated {
		for i := range kept {
			if kept[i].ID == u.ID {
				kept[i].Start, kept[i].Amount = u.Start, u.Amount
			}
		}
	}
	for _, ins := range plan.Inserted {
		kept = append(kept, core.Timeframe{ID: m.nextID("t"), Start: ins.Start, Amount: ins.Amount, Owner: owner, RecCashFlowID: flowID})
	}
	flow.Timeframes = kept
	m.rec[flowID] = flow
	return nil
}

func (m *memStore) DeleteRecurring(_ context.Context, owner, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if flow, ok := m.rec[id]; !ok || flow.Owner != owner {
		return storage.ErrNotFound
	}
	delete(m.rec, id)
	return nil
}

func (m *memStore) CreateCashGroup(_ context.Context, g core.CashGroup) (core.CashGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g.ID = m.nextID("g")
	m.groups[g.ID] = g
	return g, nil
}

func (m *memStore) GetCashGroup(_ context.Context, owner, id string) (core.CashGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok || g.Owner != owner {
		return core.CashGroup{}, storage.ErrNotFound
	}
	return g, nil
}

func (m *memStore) ListCashGroups(_ context.Context, owner string, activeOnly bool) ([]core.CashGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.CashGroup
	for _, g := range m.groups {
		if g.Owner == owner && (!activeOnly || g.IsActive) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) UpdateCashGroup(_ context.Context, g core.CashGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.groups[g.ID]; !ok || old.Owner != g.Owner {
		return storage.ErrNotFound
	}
	m.groups[g.ID] = g
	return nil
}

func (m *memStore) CreateCashFlow(_ context.Context, cf core.CashFlow) (core.CashFlow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cf.ID = m.nextID("f")
	m.flows[cf.ID] = cf
	return cf, nil
}

func (m *memStore) GetCashFlow(_ context.Context, owner, id string) (core.CashFlow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cf, ok := m.flows[id]
	if !ok || cf.Owner != owner {
		return core.CashFlow{}, storage.ErrNotFound
	}
	return cf, nil
}

func (m *memStore) UpdateCashFlow(_ context.Context, cf core.CashFlow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.flows[cf.ID]; !ok || old.Owner != cf.Owner {
		return storage.ErrNotFound
	}
	m.flows[cf.ID] = cf
	return nil
}

func (m *memStore) DeleteCashFlow(_ context.Context, owner, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cf, ok := m.flows[id]; !ok || cf.Owner != owner {
		return storage.ErrNotFound
	}
	delete(m.flows, id)
	return nil
}

func (m *memStore) ListCashFlowsInRange(_ context.Context, owner string, from, to time.Time) ([]core.CashFlow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.CashFlow
	for _, cf := range m.flows {
		if cf.Owner != owner {
			continue
		}
		if !from.IsZero() && cf.Date.Before(from) {
			continue
		}
		if !to.IsZero() && !cf.Date.Before(to) {
			continue
		}
		out = append(out, cf)
	}
	return out, nil
}

func (m *memStore) ListCashFlowsInMonth(ctx context.Context, owner string, month core.Month) ([]core.CashFlow, error) {
	return m.ListCashFlowsInRange(ctx, owner, month.FirstDay(), month.AddMonths(1).FirstDay())
}

// fakePublisher records published settlement messages.
type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.SettlementCreatedMessage
	err  error
}

func (p *fakePublisher) PublishSettlementCreated(_ context.Context, msg *amqp.SettlementCreatedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y, m, d int) time.Time { return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC) }

// seedDebt stores a debt in the given state, bypassing the service.
func (m *memStore) seedDebt(from, to, amt string, state core.AcceptanceState) core.Debt {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := core.Debt{
		ID:     m.nextID("d"),
		Name:   "debt",
		Amount: amount(amt),
		Date:   day(2024, 3, 1),
		FromID: from,
		ForID:  to,
		State:  state,
	}
	m.debts[d.ID] = d
	return d
}
