// Package user はプロフィールの取得と編集を提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/rhystic/internal/model"
	"github.com/hitoshi/rhystic/internal/repository"
)

// Profile はプロフィール画面に表示するユーザー情報と所有カード一覧。
// ユーザー情報はセッションのキャッシュではなく、毎回ストアから再取得した値。
type Profile struct {
	User  *model.User
	Cards []repository.OwnedCardDetail
}

// Service はプロフィールに関するビジネスロジックを提供する。
type Service struct {
	userRepo       repository.UserRepository
	collectionRepo repository.CollectionRepository
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, collectionRepo repository.CollectionRepository) *Service {
	return &Service{
		userRepo:       userRepo,
		collectionRepo: collectionRepo,
	}
}

// GetProfile はユーザー情報と所有カード一覧を取得する。
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	cards, err := s.collectionRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned cards: %w", err)
	}

	return &Profile{User: user, Cards: cards}, nil
}

// EditProfile は表示名・ログイン名・アバターを更新する。
// 空の項目は現在の値を維持する。
func (s *Service) EditProfile(ctx context.Context, userID, name, username, avatarURL string) (*model.User, error) {
	current, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if current == nil {
		return nil, model.NewUserNotFoundError()
	}

	name = strings.TrimSpace(name)
	username = strings.TrimSpace(username)
	if name == "" {
		name = current.Name
	}
	if username == "" {
		username = current.Username
	}
	if avatarURL == "" {
		avatarURL = current.AvatarURL
	}

	if err := s.userRepo.UpdateProfile(ctx, userID, name, username, avatarURL); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil, model.NewDuplicateUsernameError(username)
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	updated, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload user: %w", err)
	}
	return updated, nil
}
