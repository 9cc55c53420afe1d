package ledger

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"cashbook/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultPageSize is how many settled debts GroupSettled reads before
// completing the oldest batch.
const DefaultPageSize = 50

// Net is a bundle of debts between two people reduced to one transfer.
type Net struct {
	Total decimal.Decimal `json:"total"`
	Payer string          `json:"payer"`
	Payee string          `json:"payee"`
}

// NetDebts reduces debts between two parties to one amount and direction.
// The parties are the creator (A) and recipient (B) of the first debt. Debts
// created by A count positive, all others negative; A pays when the sum is
// positive and B otherwise. A zero sum orders the parties by id so the
// result does not depend on the order of debts. It returns nil for an empty
// bundle or when a party is unknown.
func NetDebts(debts []core.Debt) *Net {
	if len(debts) == 0 {
		return nil
	}
	a, b := debts[0].FromID, debts[0].ForID
	if a == "" || b == "" {
		return nil
	}
	total := decimal.Zero
	for _, d := range debts {
		if d.FromID == a {
			total = total.Add(d.Amount)
		} else {
			total = total.Sub(d.Amount)
		}
	}
	switch {
	case total.IsPositive():
		return &Net{Total: total, Payer: a, Payee: b}
	case total.IsNegative():
		return &Net{Total: total.Abs(), Payer: b, Payee: a}
	}
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return &Net{Total: decimal.Zero, Payer: a, Payee: b}
}

// PrepareSettlement checks that every debt may be settled and mints the
// settlement id they will share. It reports false when the bundle is
// empty, when a debt is not accepted or when a debt already belongs to a
// settlement.
func PrepareSettlement(debts []core.Debt) (uuid.UUID, bool) {
	if len(debts) == 0 {
		return uuid.Nil, false
	}
	for _, d := range debts {
		if d.State != core.Accepted || d.IsSettled() {
			return uuid.Nil, false
		}
	}
	return uuid.New(), true
}

// Batch is one settlement: the debts that share a settlement id, newest first.
type Batch struct {
	SettlementID uuid.UUID   `json:"settlement_id"`
	Debts        []core.Debt `json:"debts"`
}

// Net nets the debts of the batch.
func (b Batch) Net() *Net {
	return NetDebts(b.Debts)
}

// SettledSource reads settled debts of a user, who may be creator or
// recipient.
type SettledSource interface {
	// RecentSettledDebts returns at most limit settled debts ordered by
	// creation time, newest first.
	RecentSettledDebts(ctx context.Context, userID string, limit int) ([]core.Debt, error)
	// SettlementDebts returns every debt of one settlement.
	SettlementDebts(ctx context.Context, userID string, settlementID uuid.UUID) ([]core.Debt, error)
}

// GroupBySettlement groups settled debts by settlement id, keeping the
// order in which ids first appear. Debts without a settlement id are skipped.
func GroupBySettlement(debts []core.Debt) []Batch {
	var batches []Batch
	pos := make(map[uuid.UUID]int)
	for _, d := range debts {
		if d.SettlementID == nil {
			continue
		}
		i, ok := pos[*d.SettlementID]
		if !ok {
			i = len(batches)
			pos[*d.SettlementID] = i
			batches = append(batches, Batch{SettlementID: *d.SettlementID})
		}
		batches[i].Debts = append(batches[i].Debts, d)
	}
	return batches
}

// SortByDateDesc returns debts ordered by date, newest first. Debts on the
// same date keep their relative order.
func SortByDateDesc(debts []core.Debt) []core.Debt {
	sorted := slices.Clone(debts)
	slices.SortStableFunc(sorted, func(a, b core.Debt) int {
		return b.Date.Compare(a.Date)
	})
	return sorted
}

// GroupSettled returns the user's most recent settlement batches, newest
// batch first and each batch sorted by date, newest first.
//
// Only pageSize debts are read. When the page is full the oldest batch in
// it may be cut off, so that batch is read again in full and replaces the
// partial one. Every returned batch is therefore complete.
func GroupSettled(ctx context.Context, src SettledSource, userID string, pageSize int) ([]Batch, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	page, err := src.RecentSettledDebts(ctx, userID, pageSize)
	if err != nil {
		return nil, fmt.Errorf("read settled debts: %w", err)
	}
	batches := GroupBySettlement(page)
	if len(batches) == 0 {
		return []Batch{}, nil
	}

	if len(page) == pageSize {
		last := &batches[len(batches)-1]
		full, err := src.SettlementDebts(ctx, userID, last.SettlementID)
		if err != nil {
			return nil, fmt.Errorf("complete settlement %s: %w", last.SettlementID, err)
		}
		if len(full) > 0 {
			last.Debts = full
		}
	}

	for i := range batches {
		batches[i].Debts = SortByDateDesc(batches[i].Debts)
	}
	return batches, nil
}

// Balance is what one friend and the user owe each other across open debts.
type Balance struct {
	FriendID string `json:"friend_id"`
	// Amount is positive when the friend owes the user.
	Amount  decimal.Decimal `json:"amount"`
	Pending int             `json:"pending"`
}

// Balances nets the user's open debts per friend. Accepted debts count
// towards Amount, pending ones are only counted, and rejected or settled
// debts are ignored. Friends appear in the order they are first met.
func Balances(userID string, debts []core.Debt) []Balance {
	var out []Balance
	pos := make(map[string]int)
	for _, d := range debts {
		if d.IsSettled() || !d.Involves(userID) || d.State == core.Rejected {
			continue
		}
		friend := d.Counterparty(userID)
		i, ok := pos[friend]
		if !ok {
			i = len(out)
			pos[friend] = i
			out = append(out, Balance{FriendID: friend, Amount: decimal.Zero})
		}
		switch d.State {
		case core.Pending:
			out[i].Pending++
		case core.Accepted:
			if d.ForID == userID {
				out[i].Amount = out[i].Amount.Add(d.Amount)
			} else {
				out[i].Amount = out[i].Amount.Sub(d.Amount)
			}
		}
	}
	return out
}
