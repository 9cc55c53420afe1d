package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cashbook/internal/core"
	"cashbook/internal/ledger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var _ ledger.SettledSource = (*SQLiteRepository)(nil)

const debtSelect = `
	SELECT d.id, d.name, d.amount, d.date, d.from_id, d.for_id, d.is_accepted,
	       d.settlement_id, d.created_at, pf.full_name, pt.full_name
	FROM debt d
	LEFT JOIN profile pf ON pf.id = d.from_id
	LEFT JOIN profile pt ON pt.id = d.for_id`

func scanDebt(s scanner) (core.Debt, error) {
	var (
		d                     core.Debt
		amount, date, created string
		state                 string
		settlement            uuid.NullUUID
		fromName, forName     sql.NullString
	)
	err := s.Scan(&d.ID, &d.Name, &amount, &date, &d.FromID, &d.ForID, &state,
		&settlement, &created, &fromName, &forName)
	if err != nil {
		return core.Debt{}, err
	}
	if d.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Debt{}, fmt.Errorf("parse stored amount %q: %w", amount, err)
	}
	if d.Date, err = parseDate(date); err != nil {
		return core.Debt{}, err
	}
	if d.State, err = core.ParseAcceptanceState(state); err != nil {
		return core.Debt{}, err
	}
	if settlement.Valid {
		id := settlement.UUID
		d.SettlementID = &id
	}
	d.CreatedAt = parseTime(created)
	if fromName.Valid {
		d.From = &core.Profile{ID: d.FromID, FullName: fromName.String}
	}
	if forName.Valid {
		d.For = &core.Profile{ID: d.ForID, FullName: forName.String}
	}
	return d, nil
}

func (r *SQLiteRepository) queryDebts(ctx context.Context, query string, args ...any) ([]core.Debt, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query debts: %w", err)
	}
	defer rows.Close()

	debts := []core.Debt{}
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan debt: %w", err)
		}
		debts = append(debts, d)
	}
	return debts, rows.Err()
}

// CreateDebt stores a new pending debt.
func (r *SQLiteRepository) CreateDebt(ctx context.Context, d core.Debt) (core.Debt, error) {
	if err := d.Validate(); err != nil {
		return core.Debt{}, err
	}
	d.ID = uuid.New().String()
	d.State = core.Pending
	d.SettlementID = nil
	d.CreatedAt = r.now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO debt (id, name, amount, date, from_id, for_id, is_accepted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Amount.String(), formatDate(d.Date), d.FromID, d.ForID,
		d.State.String(), formatTime(d.CreatedAt))
	if err != nil {
		return core.Debt{}, fmt.Errorf("failed to create debt: %w", err)
	}
	return r.GetDebt(ctx, d.ID)
}

// GetDebt reads one debt with the names of both parties.
func (r *SQLiteRepository) GetDebt(ctx context.Context, id string) (core.Debt, error) {
	d, err := scanDebt(r.db.QueryRowContext(ctx, debtSelect+` WHERE d.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Debt{}, ErrNotFound
	}
	if err != nil {
		return core.Debt{}, fmt.Errorf("failed to get debt: %w", err)
	}
	return d, nil
}

// GetDebts reads the debts with the given ids. Unknown ids are skipped.
func (r *SQLiteRepository) GetDebts(ctx context.Context, ids []string) ([]core.Debt, error) {
	debts := make([]core.Debt, 0, len(ids))
	for _, id := range ids {
		d, err := r.GetDebt(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		debts = append(debts, d)
	}
	return debts, nil
}

// UpdateDebt writes the editable fields and the state of an unsettled debt.
func (r *SQLiteRepository) UpdateDebt(ctx context.Context, d core.Debt) error {
	if err := d.Validate(); err != nil {
		return err
	}
	err := checkAffected(r.db.ExecContext(ctx, `
		UPDATE debt SET name = ?, amount = ?, date = ?, for_id = ?, is_accepted = ?
		WHERE id = ? AND settlement_id IS NULL`,
		d.Name, d.Amount.String(), formatDate(d.Date), d.ForID, d.State.String(), d.ID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to update debt: %w", err)
	}
	return err
}

// UpdateDebtState moves a debt to state, provided it is still in from.
// A debt that left from meanwhile yields ErrConflict.
func (r *SQLiteRepository) UpdateDebtState(ctx context.Context, id string, from, to core.AcceptanceState) error {
	err := checkAffected(r.db.ExecContext(ctx,
		`UPDATE debt SET is_accepted = ? WHERE id = ? AND is_accepted = ? AND settlement_id IS NULL`,
		to.String(), id, from.String()))
	if errors.Is(err, ErrNotFound) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to update debt state: %w", err)
	}
	return nil
}

// DeleteDebt removes an unsettled debt. Cash flows pointing at it lose the link.
func (r *SQLiteRepository) DeleteDebt(ctx context.Context, id string) error {
	err := checkAffected(r.db.ExecContext(ctx,
		`DELETE FROM debt WHERE id = ? AND settlement_id IS NULL`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to delete debt: %w", err)
	}
	return err
}

// ListOpenDebts returns the unsettled debts the user is part of, newest
// first. A non-empty friendID narrows the list to debts with that friend.
func (r *SQLiteRepository) ListOpenDebts(ctx context.Context, userID, friendID string) ([]core.Debt, error) {
	if friendID == "" {
		return r.queryDebts(ctx, debtSelect+`
			WHERE d.settlement_id IS NULL AND (d.from_id = ? OR d.for_id = ?)
			ORDER BY d.date DESC, d.created_at DESC`, userID, userID)
	}
	return r.queryDebts(ctx, debtSelect+`
		WHERE d.settlement_id IS NULL
		  AND ((d.from_id = ? AND d.for_id = ?) OR (d.from_id = ? AND d.for_id = ?))
		ORDER BY d.date DESC, d.created_at DESC`, userID, friendID, friendID, userID)
}

// SetSettlementID attaches one accepted, unsettled debt to a settlement.
// A debt that is no longer accepted or already settled yields ErrConflict.
func (r *SQLiteRepository) SetSettlementID(ctx context.Context, debtID string, settlementID uuid.UUID) error {
	err := checkAffected(r.db.ExecContext(ctx,
		`UPDATE debt SET settlement_id = ? WHERE id = ? AND settlement_id IS NULL AND is_accepted = 'accepted'`,
		settlementID.String(), debtID))
	if errors.Is(err, ErrNotFound) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to settle debt %s: %w", debtID, err)
	}
	return nil
}

// SettleDebts attaches every debt to the settlement in one transaction.
// Either all debts are settled or none is.
func (r *SQLiteRepository) SettleDebts(ctx context.Context, debtIDs []string, settlementID uuid.UUID) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range debtIDs {
			err := checkAffected(tx.ExecContext(ctx,
				`UPDATE debt SET settlement_id = ? WHERE id = ? AND settlement_id IS NULL AND is_accepted = 'accepted'`,
				settlementID.String(), id))
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("debt %s: %w", id, ErrConflict)
			}
			if err != nil {
				return fmt.Errorf("failed to settle debt %s: %w", id, err)
			}
		}
		return nil
	})
}

// RecentSettledDebts returns at most limit settled debts of the user,
// newest first by creation.
func (r *SQLiteRepository) RecentSettledDebts(ctx context.Context, userID string, limit int) ([]core.Debt, error) {
	return r.queryDebts(ctx, debtSelect+`
		WHERE d.settlement_id IS NOT NULL AND (d.from_id = ? OR d.for_id = ?)
		ORDER BY d.created_at DESC, d.id
		LIMIT ?`, userID, userID, limit)
}

// SettlementDebts returns every debt of one settlement the user is part of.
func (r *SQLiteRepository) SettlementDebts(ctx context.Context, userID string, settlementID uuid.UUID) ([]core.Debt, error) {
	return r.queryDebts(ctx, debtSelect+`
		WHERE d.settlement_id = ? AND (d.from_id = ? OR d.for_id = ?)
		ORDER BY d.created_at DESC, d.id`, settlementID.String(), userID, userID)
}

// SettlementRef names a settlement and one of its two parties.
type SettlementRef struct {
	ID     uuid.UUID
	UserID string
}

// RecentSettlements lists the newest settlements across all users, at most
// limit of them.
func (r *SQLiteRepository) RecentSettlements(ctx context.Context, limit int) ([]SettlementRef, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT settlement_id, MIN(from_id)
		FROM debt
		WHERE settlement_id IS NOT NULL
		GROUP BY settlement_id
		ORDER BY MAX(created_at) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlements: %w", err)
	}
	defer rows.Close()

	var refs []SettlementRef
	for rows.Next() {
		var ref SettlementRef
		if err := rows.Scan(&ref.ID, &ref.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
