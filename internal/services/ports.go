// Package services orchestrates the cashbook use cases on top of the
// persistence, messaging and cache collaborators. Domain rules live in
// core, recurring and ledger; services load state, apply those rules and
// write the result back.
package services

import (
	"context"
	"time"

	"cashbook/internal/amqp"
	"cashbook/internal/core"
	"cashbook/internal/ledger"
	"cashbook/internal/recurring"

	"github.com/google/uuid"
)

// Persistence ports, implemented by storage.SQLiteRepository.
type (
	ProfileStore interface {
		UpsertProfile(ctx context.Context, p core.Profile) (core.Profile, error)
		GetProfile(ctx context.Context, id string) (core.Profile, error)
		CreateFriendship(ctx context.Context, a, b string) (core.Friendship, error)
		ListFriends(ctx context.Context, userID string) ([]core.Profile, error)
		AreFriends(ctx context.Context, a, b string) (bool, error)
	}

	DebtStore interface {
		ledger.SettledSource
		AreFriends(ctx context.Context, a, b string) (bool, error)
		CreateDebt(ctx context.Context, d core.Debt) (core.Debt, error)
		GetDebt(ctx context.Context, id string) (core.Debt, error)
		UpdateDebt(ctx context.Context, d core.Debt) error
		UpdateDebtState(ctx context.Context, id string, from, to core.AcceptanceState) error
		DeleteDebt(ctx context.Context, id string) error
		ListOpenDebts(ctx context.Context, userID, friendID string) ([]core.Debt, error)
		SetSettlementID(ctx context.Context, debtID string, settlementID uuid.UUID) error
		SettleDebts(ctx context.Context, debtIDs []string, settlementID uuid.UUID) error
	}

	RecurringStore interface {
		CreateRecurring(ctx context.Context, owner string, form recurring.FlowForm) (core.RecurringCashFlow, error)
		GetRecurring(ctx context.Context, owner, id string) (core.RecurringCashFlow, error)
		ListRecurring(ctx context.Context, owner string) ([]core.RecurringCashFlow, error)
		ApplyRecurringPlan(ctx context.Context, owner, flowID string, form recurring.FlowForm, plan recurring.Plan) error
		DeleteRecurring(ctx context.Context, owner, id string) error
	}

	CashGroupStore interface {
		CreateCashGroup(ctx context.Context, g core.CashGroup) (core.CashGroup, error)
		GetCashGroup(ctx context.Context, owner, id string) (core.CashGroup, error)
		ListCashGroups(ctx context.Context, owner string, activeOnly bool) ([]core.CashGroup, error)
		UpdateCashGroup(ctx context.Context, g core.CashGroup) error
	}

	CashFlowStore interface {
		CreateCashFlow(ctx context.Context, cf core.CashFlow) (core.CashFlow, error)
		GetCashFlow(ctx context.Context, owner, id string) (core.CashFlow, error)
		UpdateCashFlow(ctx context.Context, cf core.CashFlow) error
		DeleteCashFlow(ctx context.Context, owner, id string) error
		ListCashFlowsInRange(ctx context.Context, owner string, from, to time.Time) ([]core.CashFlow, error)
		ListCashFlowsInMonth(ctx context.Context, owner string, m core.Month) ([]core.CashFlow, error)
	}
)

// SettlementPublisher announces written settlements, implemented by amqp.Client.
type SettlementPublisher interface {
	PublishSettlementCreated(ctx context.Context, msg *amqp.SettlementCreatedMessage) error
}

// Invalidator drops derived data of a user after a write.
type Invalidator interface {
	InvalidateUser(userID string)
}

type noopInvalidator struct{}

func (noopInvalidator) InvalidateUser(string) {}
