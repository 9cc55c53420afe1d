package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cashbook/internal/core"
	"cashbook/internal/recurring"

	"github.com/google/uuid"
)

const recurringSelect = `
	SELECT f.id, f.name, f.is_income, f.cash_group_id, f.owner, f.created_at,
	       g.id, g.name, g.budget, g.is_active, g.owner, g.created_at
	FROM rec_cash_flow f
	LEFT JOIN cash_group g ON g.id = f.cash_group_id`

func scanRecurring(s scanner) (core.RecurringCashFlow, error) {
	var (
		rf                          core.RecurringCashFlow
		created                     string
		groupID                     sql.NullString
		gID, gName, gBudget, gOwner sql.NullString
		gCreated                    sql.NullString
		gActive                     sql.NullBool
	)
	err := s.Scan(&rf.ID, &rf.Name, &rf.IsIncome, &groupID, &rf.Owner, &created,
		&gID, &gName, &gBudget, &gActive, &gOwner, &gCreated)
	if err != nil {
		return core.RecurringCashFlow{}, err
	}
	rf.CashGroupID = groupID.String
	rf.CreatedAt = parseTime(created)
	if gID.Valid {
		budget, err := parseNullDecimal(gBudget)
		if err != nil {
			return core.RecurringCashFlow{}, err
		}
		rf.CashGroup = &core.CashGroup{
			ID:        gID.String,
			Name:      gName.String,
			Budget:    budget,
			IsActive:  gActive.Bool,
			Owner:     gOwner.String,
			CreatedAt: parseTime(gCreated.String),
		}
	}
	rf.Timeframes = []core.Timeframe{}
	return rf, nil
}

func scanTimeframe(s scanner) (core.Timeframe, error) {
	var (
		tf             core.Timeframe
		start, created string
		amount         sql.NullString
	)
	if err := s.Scan(&tf.ID, &tf.RecCashFlowID, &tf.Owner, &start, &amount, &created); err != nil {
		return core.Timeframe{}, err
	}
	var err error
	if tf.Start, err = core.ParseMonthFromDate(start); err != nil {
		return core.Timeframe{}, err
	}
	if tf.Amount, err = parseNullDecimal(amount); err != nil {
		return core.Timeframe{}, err
	}
	tf.CreatedAt = parseTime(created)
	return tf, nil
}

// CreateRecurring stores a recurring flow together with the timeframes of
// form in one transaction.
func (r *SQLiteRepository) CreateRecurring(ctx context.Context, owner string, form recurring.FlowForm) (core.RecurringCashFlow, error) {
	if form.Name == "" {
		return core.RecurringCashFlow{}, core.ErrEmptyName
	}
	id := uuid.New().String()
	// Diffing against an empty flow turns every form row into an insert.
	plan, err := recurring.Diff(owner, core.RecurringCashFlow{ID: id}, form)
	if err != nil {
		return core.RecurringCashFlow{}, err
	}

	err = r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rec_cash_flow (id, name, is_income, cash_group_id, owner, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, form.Name, form.IsIncome, nullString(form.CashGroupID), owner, formatTime(r.now()))
		if err != nil {
			return fmt.Errorf("failed to create recurring flow: %w", err)
		}
		return r.insertTimeframes(ctx, tx, plan.Inserted)
	})
	if err != nil {
		return core.RecurringCashFlow{}, err
	}
	return r.GetRecurring(ctx, owner, id)
}

func (r *SQLiteRepository) insertTimeframes(ctx context.Context, tx *sql.Tx, rows []recurring.TimeframeInsert) error {
	for _, ins := range rows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rec_timeframe (id, rec_cash_flow_id, owner, start_date, amount, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), ins.RecCashFlowID, ins.Owner, ins.Start.DateString(),
			nullDecimal(ins.Amount), formatTime(r.now()))
		if err != nil {
			return fmt.Errorf("failed to insert timeframe: %w", err)
		}
	}
	return nil
}

func (r *SQLiteRepository) GetRecurring(ctx context.Context, owner, id string) (core.RecurringCashFlow, error) {
	row := r.db.QueryRowContext(ctx, recurringSelect+` WHERE f.id = ? AND f.owner = ?`, id, owner)
	rf, err := scanRecurring(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringCashFlow{}, ErrNotFound
	}
	if err != nil {
		return core.RecurringCashFlow{}, fmt.Errorf("failed to get recurring flow: %w", err)
	}

	tfs, err := r.timeframes(ctx, `WHERE rec_cash_flow_id = ?`, id)
	if err != nil {
		return core.RecurringCashFlow{}, err
	}
	rf.Timeframes = append(rf.Timeframes, tfs[id]...)
	return rf, nil
}

// ListRecurring returns the owner's recurring flows by name, each with all
// of its timeframes.
func (r *SQLiteRepository) ListRecurring(ctx context.Context, owner string) ([]core.RecurringCashFlow, error) {
	rows, err := r.db.QueryContext(ctx, recurringSelect+` WHERE f.owner = ? ORDER BY f.name COLLATE NOCASE, f.id`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list recurring flows: %w", err)
	}
	defer rows.Close()

	flows := []core.RecurringCashFlow{}
	for rows.Next() {
		rf, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recurring flow: %w", err)
		}
		flows = append(flows, rf)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	tfs, err := r.timeframes(ctx,
		`WHERE rec_cash_flow_id IN (SELECT id FROM rec_cash_flow WHERE owner = ?)`, owner)
	if err != nil {
		return nil, err
	}
	for i := range flows {
		flows[i].Timeframes = append(flows[i].Timeframes, tfs[flows[i].ID]...)
	}
	return flows, nil
}

// timeframes loads timeframes matching where, keyed by flow id and ordered
// by start month.
func (r *SQLiteRepository) timeframes(ctx context.Context, where string, args ...any) (map[string][]core.Timeframe, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, rec_cash_flow_id, owner, start_date, amount, created_at
		FROM rec_timeframe `+where+` ORDER BY start_date, created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list timeframes: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]core.Timeframe)
	for rows.Next() {
		tf, err := scanTimeframe(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan timeframe: %w", err)
		}
		out[tf.RecCashFlowID] = append(out[tf.RecCashFlowID], tf)
	}
	return out, rows.Err()
}

// ApplyRecurringPlan persists an edit of a recurring flow. The flow fields
// and every timeframe write of plan commit together or not at all.
func (r *SQLiteRepository) ApplyRecurringPlan(ctx context.Context, owner, flowID string, form recurring.FlowForm, plan recurring.Plan) error {
	if plan.Empty() {
		return nil
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if plan.FlowChanged {
			err := checkAffected(tx.ExecContext(ctx,
				`UPDATE rec_cash_flow SET name = ?, is_income = ?, cash_group_id = ? WHERE id = ? AND owner = ?`,
				form.Name, form.IsIncome, nullString(form.CashGroupID), flowID, owner))
			if err != nil {
				return fmt.Errorf("failed to update recurring flow: %w", err)
			}
		}
		for _, up := range plan.Updated {
			err := checkAffected(tx.ExecContext(ctx,
				`UPDATE rec_timeframe SET start_date = ?, amount = ?, owner = ? WHERE id = ? AND rec_cash_flow_id = ?`,
				up.Start.DateString(), nullDecimal(up.Amount), up.Owner, up.ID, flowID))
			if err != nil {
				return fmt.Errorf("failed to update timeframe %s: %w", up.ID, err)
			}
		}
		for _, id := range plan.Deleted {
			_, err := tx.ExecContext(ctx,
				`DELETE FROM rec_timeframe WHERE id = ? AND rec_cash_flow_id = ?`, id, flowID)
			if err != nil {
				return fmt.Errorf("failed to delete timeframe %s: %w", id, err)
			}
		}
		return r.insertTimeframes(ctx, tx, plan.Inserted)
	})
}

// DeleteRecurring removes a recurring flow and its timeframes.
func (r *SQLiteRepository) DeleteRecurring(ctx context.Context, owner, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM rec_timeframe WHERE rec_cash_flow_id IN (SELECT id FROM rec_cash_flow WHERE id = ? AND owner = ?)`,
			id, owner); err != nil {
			return fmt.Errorf("failed to delete timeframes: %w", err)
		}
		err := checkAffected(tx.ExecContext(ctx,
			`DELETE FROM rec_cash_flow WHERE id = ? AND owner = ?`, id, owner))
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to delete recurring flow: %w", err)
		}
		return err
	})
}
