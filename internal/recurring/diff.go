package recurring

import (
	"fmt"

	"cashbook/internal/core"

	"github.com/shopspring/decimal"
)

// Action is what has to happen to one timeframe to bring storage in line
// with an edit form.
type Action int

const (
	ActionNone Action = iota
	ActionInsert
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionInsert:
		return "insert"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// TimeframeForm is one timeframe row of the edit form. ID is empty for
// rows the user added and that have not been saved yet.
type TimeframeForm struct {
	ID     string `json:"id,omitempty"`
	Amount string `json:"amount"`
	Month  int    `json:"month" validate:"min=1,max=12"`
	Year   int    `json:"year" validate:"min=1900,max=9999"`
}

func (f TimeframeForm) Start() core.Month {
	return core.NewMonth(f.Year, f.Month)
}

// FlowForm is the submitted state of a recurring flow edit.
type FlowForm struct {
	Name        string          `json:"name" validate:"required,max=200"`
	IsIncome    bool            `json:"is_income"`
	CashGroupID string          `json:"cash_group_id,omitempty"`
	Timeframes  []TimeframeForm `json:"timeframes" validate:"dive"`
}

type TimeframeInsert struct {
	RecCashFlowID string              `json:"rec_cash_flow_id"`
	Owner         string              `json:"owner"`
	Start         core.Month          `json:"start"`
	Amount        decimal.NullDecimal `json:"amount"`
}

type TimeframeUpdate struct {
	ID            string              `json:"id"`
	RecCashFlowID string              `json:"rec_cash_flow_id"`
	Owner         string              `json:"owner"`
	Start         core.Month          `json:"start"`
	Amount        decimal.NullDecimal `json:"amount"`
}

// Step is the decision taken for one timeframe key.
type Step struct {
	Key    string `json:"key"`
	Action Action `json:"action"`
}

// Plan lists the writes needed to persist an edit.
type Plan struct {
	FlowChanged bool              `json:"flow_changed"`
	Inserted    []TimeframeInsert `json:"inserted"`
	Updated     []TimeframeUpdate `json:"updated"`
	Deleted     []string          `json:"deleted"`
	Steps       []Step            `json:"steps"`
}

// Empty reports whether the edit changes nothing.
func (p Plan) Empty() bool {
	return !p.FlowChanged && len(p.Inserted) == 0 && len(p.Updated) == 0 && len(p.Deleted) == 0
}

// keyed is an insertion-ordered map from timeframe key to row. A repeated
// key keeps its first position and takes the later row.
type keyed[T any] struct {
	keys []string
	rows map[string]T
}

func newKeyed[T any](n int) *keyed[T] {
	return &keyed[T]{rows: make(map[string]T, n)}
}

func (k *keyed[T]) put(key string, row T) {
	if _, ok := k.rows[key]; !ok {
		k.keys = append(k.keys, key)
	}
	k.rows[key] = row
}

func timeframeKey(id string, index int) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("new_%d", index)
}

// Diff compares the stored flow with the submitted form and returns the
// inserts, updates and deletes that turn one into the other.
//
// Form rows without an id are always inserted. Rows with an id are updated
// when their amount or start month differ from storage; the update carries
// userID as owner. Stored timeframes missing from the form are deleted.
// FlowChanged covers name, income flag and cash group only.
//
// An amount that is neither empty nor a decimal number yields
// core.ErrInvalidAmount.
func Diff(userID string, stored core.RecurringCashFlow, form FlowForm) (Plan, error) {
	formRows := newKeyed[TimeframeForm](len(form.Timeframes))
	for i, tf := range form.Timeframes {
		formRows.put(timeframeKey(tf.ID, i), tf)
	}
	storedRows := newKeyed[core.Timeframe](len(stored.Timeframes))
	for i, tf := range stored.Timeframes {
		storedRows.put(timeframeKey(tf.ID, i), tf)
	}

	plan := Plan{
		FlowChanged: flowChanged(stored, form),
		Inserted:    []TimeframeInsert{},
		Updated:     []TimeframeUpdate{},
		Deleted:     []string{},
	}

	for _, key := range formRows.keys {
		row := formRows.rows[key]
		start := row.Start()
		if err := start.Validate(); err != nil {
			return Plan{}, fmt.Errorf("timeframe %s: %w", key, err)
		}
		amount, err := core.ParseNullAmount(row.Amount)
		if err != nil {
			return Plan{}, fmt.Errorf("timeframe %s: %w", key, err)
		}

		old, exists := storedRows.rows[key]
		switch {
		case !exists:
			plan.Inserted = append(plan.Inserted, TimeframeInsert{
				RecCashFlowID: stored.ID,
				Owner:         userID,
				Start:         start,
				Amount:        amount,
			})
			plan.Steps = append(plan.Steps, Step{Key: key, Action: ActionInsert})
		case row.ID != "" && timeframeChanged(start, amount, old):
			plan.Updated = append(plan.Updated, TimeframeUpdate{
				ID:            row.ID,
				RecCashFlowID: stored.ID,
				Owner:         userID,
				Start:         start,
				Amount:        amount,
			})
			plan.Steps = append(plan.Steps, Step{Key: key, Action: ActionUpdate})
		default:
			plan.Steps = append(plan.Steps, Step{Key: key, Action: ActionNone})
		}
	}

	for _, key := range storedRows.keys {
		if _, ok := formRows.rows[key]; ok {
			continue
		}
		plan.Deleted = append(plan.Deleted, key)
		plan.Steps = append(plan.Steps, Step{Key: key, Action: ActionDelete})
	}

	return plan, nil
}

func flowChanged(stored core.RecurringCashFlow, form FlowForm) bool {
	groupID := stored.CashGroupID
	if stored.CashGroup != nil {
		groupID = stored.CashGroup.ID
	}
	return stored.Name != form.Name || stored.IsIncome != form.IsIncome || groupID != form.CashGroupID
}

func timeframeChanged(start core.Month, amount decimal.NullDecimal, old core.Timeframe) bool {
	return start != old.Start || !amountsEqual(amount, old.Amount)
}

func amountsEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

// FormFromFlow renders a stored flow as the form that would leave it
// unchanged, newest timeframe first.
func FormFromFlow(flow core.RecurringCashFlow) FlowForm {
	form := FlowForm{
		Name:        flow.Name,
		IsIncome:    flow.IsIncome,
		CashGroupID: flow.CashGroupID,
	}
	if flow.CashGroup != nil {
		form.CashGroupID = flow.CashGroup.ID
	}
	for _, tf := range SortTimeframesDesc(flow.Timeframes) {
		row := TimeframeForm{ID: tf.ID, Month: int(tf.Start.Month), Year: tf.Start.Year}
		if tf.Amount.Valid {
			row.Amount = tf.Amount.Decimal.String()
		}
		form.Timeframes = append(form.Timeframes, row)
	}
	return form
}
