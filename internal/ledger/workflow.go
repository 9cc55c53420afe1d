// Package ledger holds the rules for debts between two people: who may
// react to or edit a debt, how a bundle of debts nets out, and how settled
// debts are grouped into settlement batches.
//
// Rule violations are not errors here. An actor that may not act, or a
// transition that is not allowed, yields nil and the caller decides how to
// report it.
package ledger

import (
	"time"

	"cashbook/internal/core"

	"github.com/shopspring/decimal"
)

// React applies the recipient's reaction to a debt. It returns nil unless
// actor is the recipient, the debt is not yet accepted and reaction is
// Accepted or Rejected.
func React(d core.Debt, reaction core.AcceptanceState, actor string) *core.Debt {
	if d.State == core.Accepted || actor != d.ForID {
		return nil
	}
	switch reaction {
	case core.Accepted, core.Rejected:
		d.State = reaction
		return &d
	default:
		return nil
	}
}

// DebtPatch carries the editable fields of a debt. Nil fields are left as they are.
type DebtPatch struct {
	Amount *decimal.Decimal
	Name   *string
	Date   *time.Time
	ForID  *string
}

// EditResult is the outcome of an allowed edit. When Write is false the
// patch carried no fields and Debt is the stored record as is.
type EditResult struct {
	Debt  core.Debt
	Write bool
}

// Empty reports whether the patch carries no fields.
func (p DebtPatch) Empty() bool {
	return p.Amount == nil && p.Name == nil && p.Date == nil && p.ForID == nil
}

// Edit applies the creator's patch to a pending or rejected debt and puts
// it back to pending, even when the submitted values equal the stored ones.
// It returns nil when actor is not the creator or the debt is accepted.
func Edit(d core.Debt, patch DebtPatch, actor string) *EditResult {
	if actor != d.FromID || (d.State != core.Pending && d.State != core.Rejected) {
		return nil
	}
	if patch.Empty() {
		return &EditResult{Debt: d}
	}

	updated := d
	if patch.Amount != nil {
		updated.Amount = *patch.Amount
	}
	if patch.Name != nil {
		updated.Name = *patch.Name
	}
	if patch.Date != nil {
		updated.Date = *patch.Date
	}
	if patch.ForID != nil && *patch.ForID != d.ForID {
		updated.ForID = *patch.ForID
		updated.For = nil
	}
	updated.State = core.Pending
	return &EditResult{Debt: updated, Write: true}
}

// FormAction is the write a cash flow form implies for the debt attached to it.
type FormAction int

const (
	FormNothing FormAction = iota
	FormAdd
	FormUpdate
	FormDelete
)

func (a FormAction) String() string {
	switch a {
	case FormNothing:
		return "nothing"
	case FormAdd:
		return "add"
	case FormUpdate:
		return "update"
	case FormDelete:
		return "delete"
	}
	return "unknown"
}

// ActionFor decides what happens to the debt attached to a cash flow when
// its form is saved with friendID and amount. An empty friendID means no
// friend is selected. Accepted debts are never touched.
func ActionFor(current *core.Debt, friendID, amount string) (FormAction, error) {
	if current != nil && current.State == core.Accepted {
		return FormNothing, nil
	}
	selected := friendID != ""
	switch {
	case current == nil && selected && amount != "":
		return FormAdd, nil
	case current != nil && !selected:
		return FormDelete, nil
	case current != nil && selected:
		parsed, err := core.ParseAmount(amount)
		if err != nil {
			return FormNothing, err
		}
		if !parsed.Equal(current.Amount) || friendID != current.ForID {
			return FormUpdate, nil
		}
	}
	return FormNothing, nil
}
