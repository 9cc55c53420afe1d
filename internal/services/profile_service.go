package services

import (
	"context"
	"fmt"
	"strings"

	"cashbook/internal/core"
	"cashbook/internal/log"
)

// ProfileService keeps user profiles and friendships.
type ProfileService struct {
	store  ProfileStore
	logger *log.Logger
}

func NewProfileService(store ProfileStore, logger *log.Logger) *ProfileService {
	if logger == nil {
		logger = log.Discard()
	}
	return &ProfileService{store: store, logger: logger.WithComponent(log.ComponentProfile)}
}

// Ensure creates the profile of an authenticated user or refreshes its name.
func (s *ProfileService) Ensure(ctx context.Context, id, fullName string) (core.Profile, error) {
	p, err := s.store.UpsertProfile(ctx, core.Profile{ID: id, FullName: strings.TrimSpace(fullName)})
	if err != nil {
		return core.Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return p, nil
}

func (s *ProfileService) Get(ctx context.Context, id string) (core.Profile, error) {
	return s.store.GetProfile(ctx, id)
}

func (s *ProfileService) Friends(ctx context.Context, userID string) ([]core.Profile, error) {
	friends, err := s.store.ListFriends(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	return friends, nil
}

// AddFriend links two existing profiles. Adding an existing friend is a no-op.
func (s *ProfileService) AddFriend(ctx context.Context, userID, friendID string) (core.Friendship, error) {
	if _, err := s.store.GetProfile(ctx, friendID); err != nil {
		return core.Friendship{}, err
	}
	f, err := s.store.CreateFriendship(ctx, userID, friendID)
	if err != nil {
		return core.Friendship{}, err
	}
	s.logger.InfoContext(ctx, "Friendship created", log.FieldUserID, userID, log.FieldFriendID, friendID)
	return f, nil
}
