package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"cashbook/internal/amqp"
	"cashbook/internal/config"
	"cashbook/internal/core"
	"cashbook/internal/ledger"
	"cashbook/internal/log"
	"cashbook/internal/metrics"
	"cashbook/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// maxParallelSettle bounds the concurrent debt updates of one settlement.
const maxParallelSettle = 8

type DebtConfig struct {
	// SettlementMode is config.SettlementParallel or config.SettlementAtomic.
	SettlementMode string
	// SettledPageSize is the page size of GroupSettled.
	SettledPageSize int
}

// DebtService runs the debt workflow between friends.
type DebtService struct {
	store     DebtStore
	publisher SettlementPublisher
	metrics   *metrics.Metrics
	logger    *log.Logger
	cfg       DebtConfig
}

// NewDebtService wires the service. publisher and m may be nil; pass a nil
// interface rather than a nil *amqp.Client.
func NewDebtService(store DebtStore, publisher SettlementPublisher, m *metrics.Metrics, logger *log.Logger, cfg DebtConfig) *DebtService {
	if cfg.SettledPageSize <= 0 {
		cfg.SettledPageSize = ledger.DefaultPageSize
	}
	if cfg.SettlementMode == "" {
		cfg.SettlementMode = config.SettlementParallel
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &DebtService{
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger.WithComponent(log.ComponentLedger),
		cfg:       cfg,
	}
}

// Create records a pending debt from userID to d.ForID.
func (s *DebtService) Create(ctx context.Context, userID string, d core.Debt) (core.Debt, error) {
	d.FromID = userID
	if err := d.Validate(); err != nil {
		return core.Debt{}, err
	}
	if err := s.requireFriends(ctx, userID, d.ForID); err != nil {
		return core.Debt{}, err
	}
	created, err := s.store.CreateDebt(ctx, d)
	if err != nil {
		return core.Debt{}, fmt.Errorf("create debt: %w", err)
	}
	s.logger.InfoContext(ctx, "Debt created",
		log.FieldDebtID, created.ID,
		log.FieldUserID, userID,
		log.FieldFriendID, created.ForID,
		log.FieldAmount, created.Amount.String())
	return created, nil
}

// Get returns a debt the user is part of. Debts of other users are reported
// as not found.
func (s *DebtService) Get(ctx context.Context, userID, debtID string) (core.Debt, error) {
	d, err := s.store.GetDebt(ctx, debtID)
	if err != nil {
		return core.Debt{}, err
	}
	if !d.Involves(userID) {
		return core.Debt{}, storage.ErrNotFound
	}
	return d, nil
}

// React lets the recipient accept or reject a debt that is not accepted yet.
func (s *DebtService) React(ctx context.Context, userID, debtID string, reaction core.AcceptanceState) (core.Debt, error) {
	d, err := s.Get(ctx, userID, debtID)
	if err != nil {
		return core.Debt{}, err
	}
	updated := ledger.React(d, reaction, userID)
	if updated == nil {
		return core.Debt{}, ErrNotAllowed
	}
	if err := s.store.UpdateDebtState(ctx, d.ID, d.State, updated.State); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return core.Debt{}, fmt.Errorf("%w: debt changed meanwhile", ErrNotAllowed)
		}
		return core.Debt{}, fmt.Errorf("react to debt: %w", err)
	}
	s.logger.InfoContext(ctx, "Debt reaction recorded",
		log.FieldDebtID, d.ID,
		log.FieldUserID, userID,
		"state", updated.State.String())
	return *updated, nil
}

// Edit applies the creator's patch to a pending or rejected debt. The debt
// goes back to pending; an empty patch writes nothing.
func (s *DebtService) Edit(ctx context.Context, userID, debtID string, patch ledger.DebtPatch) (core.Debt, error) {
	d, err := s.Get(ctx, userID, debtID)
	if err != nil {
		return core.Debt{}, err
	}
	if d.IsSettled() {
		return core.Debt{}, ErrNotAllowed
	}
	res := ledger.Edit(d, patch, userID)
	if res == nil {
		return core.Debt{}, ErrNotAllowed
	}
	if !res.Write {
		return res.Debt, nil
	}
	if err := res.Debt.Validate(); err != nil {
		return core.Debt{}, err
	}
	if res.Debt.ForID != d.ForID {
		if err := s.requireFriends(ctx, userID, res.Debt.ForID); err != nil {
			return core.Debt{}, err
		}
	}
	if err := s.store.UpdateDebt(ctx, res.Debt); err != nil {
		return core.Debt{}, fmt.Errorf("update debt: %w", err)
	}
	return s.store.GetDebt(ctx, d.ID)
}

// Delete removes a debt the user created, unless it was accepted.
func (s *DebtService) Delete(ctx context.Context, userID, debtID string) error {
	d, err := s.Get(ctx, userID, debtID)
	if err != nil {
		return err
	}
	if d.FromID != userID || d.State == core.Accepted {
		return ErrNotAllowed
	}
	if err := s.store.DeleteDebt(ctx, d.ID); err != nil {
		return fmt.Errorf("delete debt: %w", err)
	}
	return nil
}

// OpenDebts is the unsettled bundle between the user and one friend.
type OpenDebts struct {
	Debts      []core.Debt `json:"debts"`
	Net        *ledger.Net `json:"net,omitempty"`
	Settleable bool        `json:"settleable"`
}

func (s *DebtService) Open(ctx context.Context, userID, friendID string) (OpenDebts, error) {
	debts, err := s.store.ListOpenDebts(ctx, userID, friendID)
	if err != nil {
		return OpenDebts{}, fmt.Errorf("list open debts: %w", err)
	}
	_, settleable := ledger.PrepareSettlement(debts)
	if debts == nil {
		debts = []core.Debt{}
	}
	return OpenDebts{Debts: debts, Net: ledger.NetDebts(debts), Settleable: settleable}, nil
}

// Balances returns the open balance with every friend the user shares debts with.
func (s *DebtService) Balances(ctx context.Context, userID string) ([]ledger.Balance, error) {
	debts, err := s.store.ListOpenDebts(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("list open debts: %w", err)
	}
	return ledger.Balances(userID, debts), nil
}

// Settlement is the outcome of settling the open debts with a friend.
type Settlement struct {
	ID     uuid.UUID   `json:"settlement_id"`
	Debts  []core.Debt `json:"debts"`
	Net    *ledger.Net `json:"net,omitempty"`
	Failed []string    `json:"failed,omitempty"`
}

// Settle attaches every open debt with friendID to one new settlement.
// All debts must be accepted. In parallel mode each debt is updated on its
// own and debts that could not be attached are reported through a
// *SettlementError next to the partial result. In atomic mode either all
// debts are settled or an error is returned.
func (s *DebtService) Settle(ctx context.Context, userID, friendID string) (Settlement, error) {
	if friendID == "" || friendID == userID {
		return Settlement{}, ErrNotSettleable
	}
	debts, err := s.store.ListOpenDebts(ctx, userID, friendID)
	if err != nil {
		return Settlement{}, fmt.Errorf("list open debts: %w", err)
	}
	id, ok := ledger.PrepareSettlement(debts)
	if !ok {
		s.metrics.ObserveSettlement(metrics.OutcomeRejected, 0)
		return Settlement{}, ErrNotSettleable
	}

	logger := s.logger.With(log.NewFields().WithSettlement(id.String(), friendID, len(debts)).WithUser(userID).ToSlice()...)

	var failed []string
	if s.cfg.SettlementMode == config.SettlementAtomic {
		if err := s.store.SettleDebts(ctx, debtIDs(debts), id); err != nil {
			s.metrics.ObserveSettlement(metrics.OutcomeFailed, 0)
			logger.ErrorContext(ctx, "Settlement failed", log.FieldError, err)
			return Settlement{}, fmt.Errorf("settle debts: %w", err)
		}
	} else {
		failed = s.settleParallel(ctx, logger, debts, id)
	}

	settled := make([]core.Debt, 0, len(debts))
	for _, d := range debts {
		if !slices.Contains(failed, d.ID) {
			d.SettlementID = &id
			settled = append(settled, d)
		}
	}
	result := Settlement{ID: id, Debts: settled, Net: ledger.NetDebts(settled), Failed: failed}

	switch {
	case len(settled) == 0:
		s.metrics.ObserveSettlement(metrics.OutcomeFailed, 0)
		logger.ErrorContext(ctx, "Settlement failed for every debt")
		return result, &SettlementError{SettlementID: id, Failed: failed}
	case len(failed) > 0:
		s.metrics.ObserveSettlement(metrics.OutcomePartial, len(settled))
		logger.WarnContext(ctx, "Settlement partially written", "failed", failed)
	default:
		s.metrics.ObserveSettlement(metrics.OutcomeSettled, len(settled))
		logger.InfoContext(ctx, "Settlement written")
	}

	s.publish(ctx, userID, friendID, result)

	if len(failed) > 0 {
		return result, &SettlementError{SettlementID: id, Failed: failed}
	}
	return result, nil
}

// settleParallel updates every debt concurrently and returns the ids of the
// debts that could not be attached, sorted. Failures do not stop the others.
func (s *DebtService) settleParallel(ctx context.Context, logger *log.Logger, debts []core.Debt, id uuid.UUID) []string {
	var (
		mu     sync.Mutex
		failed []string
		g      errgroup.Group
	)
	g.SetLimit(maxParallelSettle)
	for _, d := range debts {
		g.Go(func() error {
			if err := s.store.SetSettlementID(ctx, d.ID, id); err != nil {
				logger.WarnContext(ctx, "Failed to settle debt", log.FieldDebtID, d.ID, log.FieldError, err)
				mu.Lock()
				failed = append(failed, d.ID)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	slices.Sort(failed)
	return failed
}

func (s *DebtService) publish(ctx context.Context, userID, friendID string, st Settlement) {
	if s.publisher == nil {
		s.logger.WarnContext(ctx, "AMQP client not available, skipping settlement message",
			log.FieldSettlementID, st.ID.String())
		return
	}
	msg := amqp.NewSettlementCreatedMessage(st.ID, userID, friendID, debtIDs(st.Debts))
	if st.Net != nil {
		msg.Total, msg.Payer, msg.Payee = st.Net.Total, st.Net.Payer, st.Net.Payee
	}
	msg.Partial = len(st.Failed) > 0
	if err := s.publisher.PublishSettlementCreated(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish settlement message",
			log.FieldSettlementID, st.ID.String(),
			log.FieldError, err)
	}
}

// GroupSettled returns the user's settlement history, newest batch first.
func (s *DebtService) GroupSettled(ctx context.Context, userID string) ([]ledger.Batch, error) {
	batches, err := ledger.GroupSettled(ctx, s.store, userID, s.cfg.SettledPageSize)
	if err != nil {
		return nil, fmt.Errorf("group settled debts: %w", err)
	}
	return batches, nil
}

func (s *DebtService) requireFriends(ctx context.Context, userID, friendID string) error {
	ok, err := s.store.AreFriends(ctx, userID, friendID)
	if err != nil {
		return fmt.Errorf("check friendship: %w", err)
	}
	if !ok {
		return ErrNotFriends
	}
	return nil
}

func debtIDs(debts []core.Debt) []string {
	ids := make([]string, len(debts))
	for i, d := range debts {
		ids[i] = d.ID
	}
	return ids
}
