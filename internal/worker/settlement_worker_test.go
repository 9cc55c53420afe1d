package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"cashbook/internal/amqp"
	"cashbook/internal/core"
	"cashbook/internal/log"
	"cashbook/internal/sheets"
	"cashbook/internal/sheets/memory"
	"cashbook/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type fakeSource struct {
	batches map[uuid.UUID][]core.Debt
	order   []uuid.UUID
	err     error
}

func (f *fakeSource) add(debts ...core.Debt) uuid.UUID {
	id := uuid.New()
	for i := range debts {
		debts[i].SettlementID = &id
	}
	if f.batches == nil {
		f.batches = make(map[uuid.UUID][]core.Debt)
	}
	f.batches[id] = debts
	f.order = append(f.order, id)
	return id
}

func (f *fakeSource) SettlementDebts(_ context.Context, userID string, id uuid.UUID) ([]core.Debt, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []core.Debt
	for _, d := range f.batches[id] {
		if d.Involves(userID) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeSource) RecentSettlements(_ context.Context, limit int) ([]storage.SettlementRef, error) {
	var refs []storage.SettlementRef
	for _, id := range f.order {
		refs = append(refs, storage.SettlementRef{ID: id, UserID: f.batches[id][0].FromID})
	}
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

// failingExporter fails every append.
type failingExporter struct{ *memory.Store }

func (failingExporter) AppendSettlement(context.Context, sheets.SettlementExport) (string, error) {
	return "", errors.New("quota exceeded")
}

func debt(name, from, to, amt string) core.Debt {
	return core.Debt{
		ID:     uuid.NewString(),
		Name:   name,
		Amount: decimal.RequireFromString(amt),
		Date:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		FromID: from,
		ForID:  to,
		State:  core.Accepted,
	}
}

func TestHandleSettlementCreated(t *testing.T) {
	src := &fakeSource{}
	id := src.add(debt("Dinner", "ann", "bob", "30"), debt("Taxi", "bob", "ann", "10"))
	store := memory.New()
	w := NewSettlementWorker(src, store, "memory", nil, log.Discard(), 0)
	ctx := context.Background()

	msg := amqp.NewSettlementCreatedMessage(id, "ann", "bob", nil)
	if err := w.HandleSettlementCreated(ctx, msg); err != nil {
		t.Fatalf("HandleSettlementCreated: %v", err)
	}
	// Redelivery of the same message must not duplicate rows.
	if err := w.HandleSettlementCreated(ctx, msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if rows := store.Rows(); len(rows) != 3 {
		t.Fatalf("rows = %d, want header and two debts", len(rows))
	}
}

func TestHandleSettlementCreated_Errors(t *testing.T) {
	ctx := context.Background()

	src := &fakeSource{err: errors.New("disk I/O error")}
	w := NewSettlementWorker(src, memory.New(), "memory", nil, nil, 10)
	if err := w.HandleSettlementCreated(ctx, amqp.NewSettlementCreatedMessage(uuid.New(), "ann", "bob", nil)); err == nil {
		t.Error("storage errors must be returned so the message is requeued")
	}

	src = &fakeSource{}
	id := src.add(debt("Dinner", "ann", "bob", "30"))
	w = NewSettlementWorker(src, failingExporter{memory.New()}, "sheets", nil, nil, 10)
	if err := w.HandleSettlementCreated(ctx, amqp.NewSettlementCreatedMessage(id, "ann", "bob", nil)); err == nil {
		t.Error("export errors must be returned")
	}

	w = NewSettlementWorker(&fakeSource{}, memory.New(), "memory", nil, nil, 10)
	if err := w.HandleSettlementCreated(ctx, amqp.NewSettlementCreatedMessage(uuid.New(), "ann", "bob", nil)); err != nil {
		t.Errorf("unknown settlement is acknowledged, got %v", err)
	}
}

func TestReconcile(t *testing.T) {
	src := &fakeSource{}
	first := src.add(debt("Rent", "ann", "bob", "400"))
	second := src.add(debt("Gas", "carl", "dora", "25"), debt("Water", "dora", "carl", "5"))
	store := memory.New()
	ctx := context.Background()

	w := NewSettlementWorker(src, store, "memory", nil, log.Discard(), 10)
	if err := w.HandleSettlementCreated(ctx, amqp.NewSettlementCreatedMessage(first, "ann", "bob", nil)); err != nil {
		t.Fatal(err)
	}
	if err := w.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	exported, err := store.ExportedSettlements(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !exported[first] || !exported[second] || len(store.Rows()) != 4 {
		t.Fatalf("exported = %v, rows = %d", exported, len(store.Rows()))
	}
}
