package worker

import (
	"context"
	"fmt"
	"time"

	"cashbook/internal/amqp"
	"cashbook/internal/backend"
	"cashbook/internal/core"
	"cashbook/internal/ledger"
	"cashbook/internal/log"
	"cashbook/internal/metrics"
	"cashbook/internal/sheets"
	"cashbook/internal/storage"

	"github.com/google/uuid"
)

// SettlementSource reads settled debts back from storage.
type SettlementSource interface {
	SettlementDebts(ctx context.Context, userID string, settlementID uuid.UUID) ([]core.Debt, error)
	RecentSettlements(ctx context.Context, limit int) ([]storage.SettlementRef, error)
}

// SettlementWorker exports written settlements to the configured backend.
type SettlementWorker struct {
	store     SettlementSource
	exporter  backend.Exporter
	backend   string
	metrics   *metrics.Metrics
	logger    *log.Logger
	batchSize int
	now       func() time.Time
}

func NewSettlementWorker(store SettlementSource, exporter backend.Exporter, backendName string, m *metrics.Metrics, logger *log.Logger, batchSize int) *SettlementWorker {
	if logger == nil {
		logger = log.Discard()
	}
	if batchSize <= 0 {
		batchSize = ledger.DefaultPageSize
	}
	return &SettlementWorker{
		store:     store,
		exporter:  exporter,
		backend:   backendName,
		metrics:   m,
		logger:    logger.WithComponent(log.ComponentWorker),
		batchSize: batchSize,
		now:       time.Now,
	}
}

// HandleSettlementCreated exports the batch named by msg. The debts are
// read back from storage so the export reflects what was written, which
// for a partial settlement is fewer debts than were requested.
func (w *SettlementWorker) HandleSettlementCreated(ctx context.Context, msg *amqp.SettlementCreatedMessage) error {
	w.logger.InfoContext(ctx, "Processing settlement message",
		log.FieldSettlementID, msg.SettlementID.String(),
		log.FieldUserID, msg.UserID,
		log.FieldDebtCount, len(msg.DebtIDs))

	return w.export(ctx, storage.SettlementRef{ID: msg.SettlementID, UserID: msg.UserID})
}

func (w *SettlementWorker) export(ctx context.Context, ref storage.SettlementRef) error {
	debts, err := w.store.SettlementDebts(ctx, ref.UserID, ref.ID)
	if err != nil {
		return fmt.Errorf("get settlement debts: %w", err)
	}
	if len(debts) == 0 {
		w.logger.WarnContext(ctx, "Settlement has no debts, nothing to export",
			log.FieldSettlementID, ref.ID.String())
		return nil
	}

	e := sheets.SettlementExport{
		SettlementID: ref.ID,
		ExportedAt:   w.now(),
		Debts:        ledger.SortByDateDesc(debts),
		Net:          ledger.NetDebts(debts),
	}
	sheetRef, err := w.exporter.AppendSettlement(ctx, e)
	w.metrics.ObserveExport(w.backend, err)
	if err != nil {
		return fmt.Errorf("export settlement: %w", err)
	}

	w.logger.InfoContext(ctx, "Successfully exported settlement",
		log.FieldSettlementID, ref.ID.String(),
		log.FieldDebtCount, len(debts),
		"ref", sheetRef)
	return nil
}

// Reconcile exports recent settlements the backend does not have yet. It
// recovers batches whose message was lost or never published.
func (w *SettlementWorker) Reconcile(ctx context.Context) error {
	refs, err := w.store.RecentSettlements(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list recent settlements: %w", err)
	}
	if len(refs) == 0 {
		w.logger.InfoContext(ctx, "No recent settlements to reconcile")
		return nil
	}
	exported, err := w.exporter.ExportedSettlements(ctx)
	if err != nil {
		return fmt.Errorf("list exported settlements: %w", err)
	}

	synced, failed := 0, 0
	for _, ref := range refs {
		if exported[ref.ID] {
			continue
		}
		if err := w.export(ctx, ref); err != nil {
			fields := log.NewFields().WithOperation(log.OpExport).WithUser(ref.UserID).WithError(err)
			fields[log.FieldSettlementID] = ref.ID.String()
			w.logger.ErrorContext(ctx, "Failed to export settlement during reconcile", fields.ToSlice()...)
			failed++
			continue
		}
		synced++
	}

	w.logger.InfoContext(ctx, "Settlement reconcile completed",
		append(log.NewFields().WithOperation(log.OpExport).ToSlice(),
			"checked", len(refs),
			"exported", synced,
			"errors", failed)...)
	return nil
}
