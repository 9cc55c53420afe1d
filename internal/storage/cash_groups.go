package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cashbook/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const cashGroupColumns = `id, name, budget, is_active, owner, created_at`

func scanCashGroup(s scanner) (core.CashGroup, error) {
	var g core.CashGroup
	var budget sql.NullString
	var created string
	if err := s.Scan(&g.ID, &g.Name, &budget, &g.IsActive, &g.Owner, &created); err != nil {
		return core.CashGroup{}, err
	}
	var err error
	if g.Budget, err = parseNullDecimal(budget); err != nil {
		return core.CashGroup{}, err
	}
	g.CreatedAt = parseTime(created)
	return g, nil
}

func parseNullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse stored amount %q: %w", s.String, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func (r *SQLiteRepository) CreateCashGroup(ctx context.Context, g core.CashGroup) (core.CashGroup, error) {
	if g.Name == "" {
		return core.CashGroup{}, core.ErrEmptyName
	}
	g.ID = uuid.New().String()
	g.CreatedAt = r.now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cash_group (`+cashGroupColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, nullDecimal(g.Budget), g.IsActive, g.Owner, formatTime(g.CreatedAt))
	if err != nil {
		return core.CashGroup{}, fmt.Errorf("failed to create cash group: %w", err)
	}
	return g, nil
}

func (r *SQLiteRepository) GetCashGroup(ctx context.Context, owner, id string) (core.CashGroup, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+cashGroupColumns+` FROM cash_group WHERE id = ? AND owner = ?`, id, owner)
	g, err := scanCashGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.CashGroup{}, ErrNotFound
	}
	if err != nil {
		return core.CashGroup{}, fmt.Errorf("failed to get cash group: %w", err)
	}
	return g, nil
}

// ListCashGroups returns the owner's groups by name. With activeOnly set,
// archived groups are left out.
func (r *SQLiteRepository) ListCashGroups(ctx context.Context, owner string, activeOnly bool) ([]core.CashGroup, error) {
	query := `SELECT ` + cashGroupColumns + ` FROM cash_group WHERE owner = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY name COLLATE NOCASE, id`

	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list cash groups: %w", err)
	}
	defer rows.Close()

	groups := []core.CashGroup{}
	for rows.Next() {
		g, err := scanCashGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cash group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r *SQLiteRepository) UpdateCashGroup(ctx context.Context, g core.CashGroup) error {
	if g.Name == "" {
		return core.ErrEmptyName
	}
	err := checkAffected(r.db.ExecContext(ctx,
		`UPDATE cash_group SET name = ?, budget = ?, is_active = ? WHERE id = ? AND owner = ?`,
		g.Name, nullDecimal(g.Budget), g.IsActive, g.ID, g.Owner))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to update cash group: %w", err)
	}
	return err
}
