package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cashbook/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const cashFlowSelect = `
	SELECT f.id, f.name, f.amount, f.date, f.cash_group_id, f.owner, f.debt_id, f.created_at,
	       g.id, g.name, g.budget, g.is_active, g.owner, g.created_at
	FROM cash_flow f
	LEFT JOIN cash_group g ON g.id = f.cash_group_id`

func scanCashFlow(s scanner) (core.CashFlow, error) {
	var (
		cf                          core.CashFlow
		amount, date, created       string
		groupID, debtID             sql.NullString
		gID, gName, gBudget, gOwner sql.NullString
		gCreated                    sql.NullString
		gActive                     sql.NullBool
	)
	err := s.Scan(&cf.ID, &cf.Name, &amount, &date, &groupID, &cf.Owner, &debtID, &created,
		&gID, &gName, &gBudget, &gActive, &gOwner, &gCreated)
	if err != nil {
		return core.CashFlow{}, err
	}
	if cf.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.CashFlow{}, fmt.Errorf("parse stored amount %q: %w", amount, err)
	}
	if cf.Date, err = parseDate(date); err != nil {
		return core.CashFlow{}, err
	}
	cf.CashGroupID = groupID.String
	cf.DebtID = debtID.String
	cf.CreatedAt = parseTime(created)
	if gID.Valid {
		budget, err := parseNullDecimal(gBudget)
		if err != nil {
			return core.CashFlow{}, err
		}
		cf.CashGroup = &core.CashGroup{
			ID:        gID.String,
			Name:      gName.String,
			Budget:    budget,
			IsActive:  gActive.Bool,
			Owner:     gOwner.String,
			CreatedAt: parseTime(gCreated.String),
		}
	}
	return cf, nil
}

func (r *SQLiteRepository) CreateCashFlow(ctx context.Context, cf core.CashFlow) (core.CashFlow, error) {
	if cf.Name == "" {
		return core.CashFlow{}, core.ErrEmptyName
	}
	cf.ID = uuid.New().String()
	cf.CreatedAt = r.now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cash_flow (id, name, amount, date, cash_group_id, owner, debt_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cf.ID, cf.Name, cf.Amount.String(), formatDate(cf.Date), nullString(cf.CashGroupID),
		cf.Owner, nullString(cf.DebtID), formatTime(cf.CreatedAt))
	if err != nil {
		return core.CashFlow{}, fmt.Errorf("failed to create cash flow: %w", err)
	}
	return r.GetCashFlow(ctx, cf.Owner, cf.ID)
}

func (r *SQLiteRepository) GetCashFlow(ctx context.Context, owner, id string) (core.CashFlow, error) {
	row := r.db.QueryRowContext(ctx, cashFlowSelect+` WHERE f.id = ? AND f.owner = ?`, id, owner)
	cf, err := scanCashFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.CashFlow{}, ErrNotFound
	}
	if err != nil {
		return core.CashFlow{}, fmt.Errorf("failed to get cash flow: %w", err)
	}
	return cf, nil
}

func (r *SQLiteRepository) UpdateCashFlow(ctx context.Context, cf core.CashFlow) error {
	if cf.Name == "" {
		return core.ErrEmptyName
	}
	err := checkAffected(r.db.ExecContext(ctx, `
		UPDATE cash_flow SET name = ?, amount = ?, date = ?, cash_group_id = ?, debt_id = ?
		WHERE id = ? AND owner = ?`,
		cf.Name, cf.Amount.String(), formatDate(cf.Date), nullString(cf.CashGroupID),
		nullString(cf.DebtID), cf.ID, cf.Owner))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to update cash flow: %w", err)
	}
	return err
}

func (r *SQLiteRepository) DeleteCashFlow(ctx context.Context, owner, id string) error {
	err := checkAffected(r.db.ExecContext(ctx,
		`DELETE FROM cash_flow WHERE id = ? AND owner = ?`, id, owner))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to delete cash flow: %w", err)
	}
	return err
}

// ListCashFlowsInRange returns the owner's ad-hoc flows dated in
// [from, to), newest first. A zero bound is open.
func (r *SQLiteRepository) ListCashFlowsInRange(ctx context.Context, owner string, from, to time.Time) ([]core.CashFlow, error) {
	query := cashFlowSelect + ` WHERE f.owner = ?`
	args := []any{owner}
	if !from.IsZero() {
		query += ` AND f.date >= ?`
		args = append(args, formatDate(from))
	}
	if !to.IsZero() {
		query += ` AND f.date < ?`
		args = append(args, formatDate(to))
	}
	query += ` ORDER BY f.date DESC, f.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cash flows: %w", err)
	}
	defer rows.Close()

	flows := []core.CashFlow{}
	for rows.Next() {
		cf, err := scanCashFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cash flow: %w", err)
		}
		flows = append(flows, cf)
	}
	return flows, rows.Err()
}

// ListCashFlowsInMonth returns the owner's ad-hoc flows dated in m.
func (r *SQLiteRepository) ListCashFlowsInMonth(ctx context.Context, owner string, m core.Month) ([]core.CashFlow, error) {
	return r.ListCashFlowsInRange(ctx, owner, m.FirstDay(), m.AddMonths(1).FirstDay())
}
