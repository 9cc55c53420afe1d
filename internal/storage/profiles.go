package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cashbook/internal/core"

	"github.com/google/uuid"
)

// UpsertProfile creates the profile or renames it when it already exists.
func (r *SQLiteRepository) UpsertProfile(ctx context.Context, p core.Profile) (core.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profile (id, full_name, created_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET full_name = excluded.full_name`,
		p.ID, p.FullName, formatTime(p.CreatedAt))
	if err != nil {
		return core.Profile{}, fmt.Errorf("failed to upsert profile: %w", err)
	}
	return r.GetProfile(ctx, p.ID)
}

func (r *SQLiteRepository) GetProfile(ctx context.Context, id string) (core.Profile, error) {
	var p core.Profile
	var created string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, full_name, created_at FROM profile WHERE id = ?`, id).
		Scan(&p.ID, &p.FullName, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Profile{}, ErrNotFound
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}
	p.CreatedAt = parseTime(created)
	return p, nil
}

// CreateFriendship links two profiles. The pair is stored once regardless
// of which side asked.
func (r *SQLiteRepository) CreateFriendship(ctx context.Context, a, b string) (core.Friendship, error) {
	if a == b {
		return core.Friendship{}, core.ErrSameParty
	}
	if a > b {
		a, b = b, a
	}
	f := core.Friendship{ID: uuid.New().String(), Friend1: a, Friend2: b, CreatedAt: r.now()}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO friendship (id, friend_1, friend_2, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (friend_1, friend_2) DO NOTHING`,
		f.ID, f.Friend1, f.Friend2, formatTime(f.CreatedAt))
	if err != nil {
		return core.Friendship{}, fmt.Errorf("failed to create friendship: %w", err)
	}

	var created string
	err = r.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM friendship WHERE friend_1 = ? AND friend_2 = ?`, a, b).
		Scan(&f.ID, &created)
	if err != nil {
		return core.Friendship{}, fmt.Errorf("failed to read friendship: %w", err)
	}
	f.CreatedAt = parseTime(created)
	return f, nil
}

// ListFriends returns the profiles the user is friends with, by name.
func (r *SQLiteRepository) ListFriends(ctx context.Context, userID string) ([]core.Profile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.full_name, p.created_at
		FROM friendship f
		JOIN profile p ON p.id = CASE WHEN f.friend_1 = ? THEN f.friend_2 ELSE f.friend_1 END
		WHERE f.friend_1 = ? OR f.friend_2 = ?
		ORDER BY p.full_name, p.id`, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	defer rows.Close()

	friends := []core.Profile{}
	for rows.Next() {
		var p core.Profile
		var created string
		if err := rows.Scan(&p.ID, &p.FullName, &created); err != nil {
			return nil, fmt.Errorf("failed to scan friend: %w", err)
		}
		p.CreatedAt = parseTime(created)
		friends = append(friends, p)
	}
	return friends, rows.Err()
}

// AreFriends reports whether a friendship links a and b.
func (r *SQLiteRepository) AreFriends(ctx context.Context, a, b string) (bool, error) {
	if a > b {
		a, b = b, a
	}
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM friendship WHERE friend_1 = ? AND friend_2 = ?`, a, b).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check friendship: %w", err)
	}
	return n > 0, nil
}
