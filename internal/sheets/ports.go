// Package sheets exports settlement batches to a spreadsheet. The port is
// implemented by a Google Sheets client and by an in-memory store.
package sheets

import (
	"context"
	"time"

	"cashbook/internal/core"
	"cashbook/internal/ledger"

	"github.com/google/uuid"
)

// Header is the first row of the settlements sheet.
var Header = []any{"Settlement", "Exported", "Date", "Debt", "From", "For", "Amount", "Net", "Payer", "Payee"}

// SettlementExport is one settlement batch ready to be written out.
type SettlementExport struct {
	SettlementID uuid.UUID
	ExportedAt   time.Time
	Debts        []core.Debt
	Net          *ledger.Net
}

// Ports for outbound adapters.
type (
	// SettlementWriter appends a settlement batch and returns a reference
	// to the written rows. Writing a batch twice must not duplicate it.
	SettlementWriter interface {
		AppendSettlement(ctx context.Context, e SettlementExport) (ref string, err error)
	}

	// SettlementLister lists the settlement ids already exported.
	SettlementLister interface {
		ExportedSettlements(ctx context.Context) (map[uuid.UUID]bool, error)
	}
)

// Rows renders e as one row per debt, in the column order of Header.
// Names fall back to ids when the profile is not loaded.
func Rows(e SettlementExport) [][]any {
	net, payer, payee := "", "", ""
	if e.Net != nil {
		net = core.FormatAmount(e.Net.Total)
		payer, payee = e.Net.Payer, e.Net.Payee
	}
	rows := make([][]any, 0, len(e.Debts))
	for _, d := range e.Debts {
		rows = append(rows, []any{
			e.SettlementID.String(),
			e.ExportedAt.UTC().Format(time.RFC3339),
			d.Date.Format(time.DateOnly),
			d.Name,
			partyName(d.From, d.FromID),
			partyName(d.For, d.ForID),
			core.FormatAmount(d.Amount),
			net,
			payer,
			payee,
		})
	}
	return rows
}

func partyName(p *core.Profile, id string) string {
	if p != nil && p.FullName != "" {
		return p.FullName
	}
	return id
}

// SettlementIDs collects the ids found in the first column of values,
// skipping the header and anything that is not a UUID.
func SettlementIDs(values [][]any) map[uuid.UUID]bool {
	ids := make(map[uuid.UUID]bool)
	for _, row := range values {
		if len(row) == 0 {
			continue
		}
		s, ok := row[0].(string)
		if !ok {
			continue
		}
		if id, err := uuid.Parse(s); err == nil {
			ids[id] = true
		}
	}
	return ids
}
