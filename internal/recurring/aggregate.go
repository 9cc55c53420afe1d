package recurring

import (
	"slices"
	"strings"

	"cashbook/internal/core"

	"github.com/shopspring/decimal"
)

// categorySums accumulates amounts per category, remembering the order in
// which categories were first seen.
type categorySums struct {
	order []string
	sums  map[string]decimal.Decimal
}

func newCategorySums() *categorySums {
	return &categorySums{sums: make(map[string]decimal.Decimal)}
}

func (c *categorySums) add(name string, amount decimal.Decimal) {
	cur, ok := c.sums[name]
	if !ok {
		c.order = append(c.order, name)
	}
	c.sums[name] = cur.Add(amount)
}

func (c *categorySums) totals() core.CategoryTotals {
	out := core.CategoryTotals{Total: decimal.Zero, ByCategory: make([]core.CategoryAmount, 0, len(c.order))}
	for _, name := range c.order {
		out.ByCategory = append(out.ByCategory, core.CategoryAmount{Name: name, Amount: c.sums[name]})
		out.Total = out.Total.Add(c.sums[name])
	}
	return out
}

// groupIndex resolves the cash group of a flow, preferring the embedded
// group and falling back to the id.
type groupIndex map[string]core.CashGroup

func indexGroups(groups []core.CashGroup) groupIndex {
	idx := make(groupIndex, len(groups))
	for _, g := range groups {
		idx[g.ID] = g
	}
	return idx
}

func (idx groupIndex) lookup(embedded *core.CashGroup, id string) (core.CashGroup, bool) {
	if embedded != nil {
		return *embedded, true
	}
	if id == "" {
		return core.CashGroup{}, false
	}
	g, ok := idx[id]
	return g, ok
}

// AggregateMonth totals income, fixed costs and spending for month m.
//
// Recurring flows contribute the amount of their active timeframe: income
// flows to Income, expense flows to Fixed under their cash group's name.
// Expense flows without a cash group go to Uncategorized and are not part
// of Expenses. Ad-hoc flows dated in m contribute to Budgeted when their
// cash group has a positive budget and to Unbudgeted otherwise; ad-hoc
// flows without a cash group are skipped.
func AggregateMonth(rec []core.RecurringCashFlow, adHoc []core.CashFlow, groups []core.CashGroup, m core.Month) core.MonthTotals {
	idx := indexGroups(groups)
	fixed := newCategorySums()
	budgeted := newCategorySums()
	unbudgeted := newCategorySums()

	totals := core.MonthTotals{
		Month:         m,
		Income:        decimal.Zero,
		Uncategorized: decimal.Zero,
	}

	for _, flow := range rec {
		tf, ok := ResolveActive(flow.Timeframes, m)
		if !ok {
			continue
		}
		amount := core.AmountOrZero(tf.Amount)
		if flow.IsIncome {
			totals.Income = totals.Income.Add(amount)
			continue
		}
		g, ok := idx.lookup(flow.CashGroup, flow.CashGroupID)
		if !ok {
			totals.Uncategorized = totals.Uncategorized.Add(amount)
			continue
		}
		fixed.add(g.Name, amount)
	}

	for _, cf := range adHoc {
		if !m.Contains(cf.Date) {
			continue
		}
		g, ok := idx.lookup(cf.CashGroup, cf.CashGroupID)
		if !ok {
			continue
		}
		if g.Budgeted() {
			budgeted.add(g.Name, cf.Amount)
		} else {
			unbudgeted.add(g.Name, cf.Amount)
		}
	}

	totals.Fixed = fixed.totals()
	totals.Budgeted = budgeted.totals()
	totals.Unbudgeted = unbudgeted.totals()
	totals.Expenses = totals.Fixed.Total.Add(totals.Budgeted.Total).Add(totals.Unbudgeted.Total)
	return totals
}

// CashGroupTotal returns the group's budget when it has one, otherwise the
// sum of the active amounts of flows in month m.
func CashGroupTotal(flows []core.RecurringCashFlow, group *core.CashGroup, m core.Month) decimal.Decimal {
	if group != nil && group.Budgeted() {
		return group.Budget.Decimal
	}
	total := decimal.Zero
	for _, flow := range flows {
		total = total.Add(ActiveAmount(flow, m))
	}
	return total
}

// IncomeForMonth sums the active amounts of income flows.
func IncomeForMonth(flows []core.RecurringCashFlow, m core.Month) decimal.Decimal {
	total := decimal.Zero
	for _, flow := range flows {
		if flow.IsIncome {
			total = total.Add(ActiveAmount(flow, m))
		}
	}
	return total
}

// RecurringTotalForMonth sums the active amounts of every expense flow,
// with or without a cash group.
func RecurringTotalForMonth(flows []core.RecurringCashFlow, m core.Month) decimal.Decimal {
	total := decimal.Zero
	for _, flow := range flows {
		if !flow.IsIncome {
			total = total.Add(ActiveAmount(flow, m))
		}
	}
	return total
}

// ActiveFlow pairs a recurring flow with the timeframe active in the
// month it was resolved for. Active is nil when nothing is active.
type ActiveFlow struct {
	Flow   core.RecurringCashFlow `json:"flow"`
	Active *core.Timeframe        `json:"active,omitempty"`
}

func (a ActiveFlow) Amount() decimal.Decimal {
	if a.Active == nil {
		return decimal.Zero
	}
	return core.AmountOrZero(a.Active.Amount)
}

func resolveFlow(flow core.RecurringCashFlow, m core.Month) ActiveFlow {
	af := ActiveFlow{Flow: flow}
	if tf, ok := ResolveActive(flow.Timeframes, m); ok {
		af.Active = &tf
	}
	return af
}

// GroupWithMeta is a cash group together with the recurring flows that
// belong to it and its computed total.
type GroupWithMeta struct {
	Group *core.CashGroup `json:"group,omitempty"`
	Flows []ActiveFlow    `json:"flows"`
	Total decimal.Decimal `json:"total"`
}

// GroupedFlows is the planning view of all cash groups for a month.
type GroupedFlows struct {
	Income GroupWithMeta `json:"income"`
	// Budgeted groups have a budget; their total is the budget.
	Budgeted []GroupWithMeta `json:"budgeted"`
	// Recurring groups have no budget but recurring flows with a non-zero total.
	Recurring []GroupWithMeta `json:"recurring"`
	// NoBudget groups have neither a budget nor recurring costs.
	NoBudget      []GroupWithMeta `json:"no_budget"`
	Uncategorized []ActiveFlow    `json:"uncategorized"`
}

// GroupFlows attaches every recurring flow to its cash group and sorts the
// groups into budgeted, recurring and no-budget groups, in the order of groups.
func GroupFlows(groups []core.CashGroup, flows []core.RecurringCashFlow, m core.Month) GroupedFlows {
	metas := make([]GroupWithMeta, len(groups))
	pos := make(map[string]int, len(groups))
	for i := range groups {
		g := groups[i]
		metas[i] = GroupWithMeta{Group: &g, Flows: []ActiveFlow{}, Total: decimal.Zero}
		if g.Budgeted() {
			metas[i].Total = g.Budget.Decimal
		}
		pos[g.ID] = i
	}

	out := GroupedFlows{
		Income:        GroupWithMeta{Flows: []ActiveFlow{}, Total: decimal.Zero},
		Budgeted:      []GroupWithMeta{},
		Recurring:     []GroupWithMeta{},
		NoBudget:      []GroupWithMeta{},
		Uncategorized: []ActiveFlow{},
	}

	for _, flow := range flows {
		af := resolveFlow(flow, m)
		if flow.IsIncome {
			out.Income.Flows = append(out.Income.Flows, af)
			out.Income.Total = out.Income.Total.Add(af.Amount())
			continue
		}
		groupID := flow.CashGroupID
		if flow.CashGroup != nil {
			groupID = flow.CashGroup.ID
		}
		i, ok := pos[groupID]
		if !ok {
			out.Uncategorized = append(out.Uncategorized, af)
			continue
		}
		metas[i].Flows = append(metas[i].Flows, af)
		if !metas[i].Group.Budgeted() {
			metas[i].Total = metas[i].Total.Add(af.Amount())
		}
	}

	for _, meta := range metas {
		switch {
		case meta.Group.Budgeted():
			out.Budgeted = append(out.Budgeted, meta)
		case !meta.Total.IsZero():
			out.Recurring = append(out.Recurring, meta)
		default:
			out.NoBudget = append(out.NoBudget, meta)
		}
	}
	return out
}

// NamedFlows is a list of recurring flows under one cash group name.
type NamedFlows struct {
	Name  string                   `json:"name"`
	Flows []core.RecurringCashFlow `json:"flows"`
}

// TotalTable is the monthly plan: expected income, fixed costs and budgets.
type TotalTable struct {
	Income       decimal.Decimal          `json:"income"`
	IncomeFlows  []core.RecurringCashFlow `json:"income_flows"`
	Fixed        decimal.Decimal          `json:"fixed"`
	FixedByGroup []NamedFlows             `json:"fixed_by_group"`
	Budgets      core.CategoryTotals      `json:"budgets"`
	Expenses     decimal.Decimal          `json:"expenses"`
}

// PlanTable builds the TotalTable for month m. Unlike AggregateMonth it
// counts budgets at their ceiling rather than actual spending, so
// Expenses = Fixed + sum of budgets.
func PlanTable(flows []core.RecurringCashFlow, groups []core.CashGroup, m core.Month) TotalTable {
	idx := indexGroups(groups)
	table := TotalTable{
		Income:       decimal.Zero,
		IncomeFlows:  []core.RecurringCashFlow{},
		Fixed:        decimal.Zero,
		FixedByGroup: []NamedFlows{},
	}

	fixedPos := make(map[string]int)
	for _, flow := range flows {
		tf, ok := ResolveActive(flow.Timeframes, m)
		if !ok {
			continue
		}
		amount := core.AmountOrZero(tf.Amount)
		if flow.IsIncome {
			table.IncomeFlows = append(table.IncomeFlows, flow)
			table.Income = table.Income.Add(amount)
			continue
		}
		g, ok := idx.lookup(flow.CashGroup, flow.CashGroupID)
		if !ok || g.Name == "" {
			continue
		}
		i, seen := fixedPos[g.Name]
		if !seen {
			i = len(table.FixedByGroup)
			fixedPos[g.Name] = i
			table.FixedByGroup = append(table.FixedByGroup, NamedFlows{Name: g.Name})
		}
		table.FixedByGroup[i].Flows = append(table.FixedByGroup[i].Flows, flow)
		table.Fixed = table.Fixed.Add(amount)
	}

	budgets := newCategorySums()
	for _, g := range groups {
		if g.Budgeted() {
			budgets.add(g.Name, g.Budget.Decimal)
		}
	}
	table.Budgets = budgets.totals()
	table.Expenses = table.Fixed.Add(table.Budgets.Total)
	return table
}

// SortByAmount returns flows ordered by active amount in m, largest first.
func SortByAmount(flows []core.RecurringCashFlow, m core.Month) []core.RecurringCashFlow {
	sorted := slices.Clone(flows)
	slices.SortStableFunc(sorted, func(a, b core.RecurringCashFlow) int {
		return ActiveAmount(b, m).Cmp(ActiveAmount(a, m))
	})
	return sorted
}

// SortByGroupName returns flows ordered by cash group name, case-insensitive.
// Flows without a group sort first.
func SortByGroupName(flows []core.RecurringCashFlow) []core.RecurringCashFlow {
	sorted := slices.Clone(flows)
	slices.SortStableFunc(sorted, func(a, b core.RecurringCashFlow) int {
		return strings.Compare(groupName(a), groupName(b))
	})
	return sorted
}

func groupName(flow core.RecurringCashFlow) string {
	if flow.CashGroup == nil {
		return ""
	}
	return strings.ToLower(flow.CashGroup.Name)
}
