// Package collection はユーザーの所有カードコレクションの管理を提供する。
package collection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/rhystic/internal/model"
	"github.com/hitoshi/rhystic/internal/repository"
)

// CatalogFinder はカード名からカード属性を解決するインターフェース。
// catalog.Clientの部分集合として定義する。
type CatalogFinder interface {
	// FindByName はカード名のあいまい検索で1枚のカード属性を取得する。
	// 見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Card, error)
}

// Service は所有カードコレクションに関するビジネスロジックを提供する。
type Service struct {
	catalog        CatalogFinder
	cardRepo       repository.CardRepository
	collectionRepo repository.CollectionRepository
}

// NewService はServiceを生成する。
func NewService(catalog CatalogFinder, cardRepo repository.CardRepository, collectionRepo repository.CollectionRepository) *Service {
	return &Service{
		catalog:        catalog,
		cardRepo:       cardRepo,
		collectionRepo: collectionRepo,
	}
}

// AddCardByName はカード名をカタログで解決し、所有カードに1枚加算する。
// カードが未登録ならカタログの属性で登録する（登録済みの属性は上書きしない）。
// カタログで見つからない場合はCARD_NOT_FOUNDを返す。
func (s *Service) AddCardByName(ctx context.Context, userID, name string) (*model.Card, error) {
	if name == "" {
		return nil, model.NewInvalidInputError("card_name")
	}

	card, err := s.catalog.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up card: %w", err)
	}
	if card == nil {
		return nil, model.NewCardNotFoundError(name)
	}

	card.CreatedAt = time.Now()
	if err := s.cardRepo.EnsureKnown(ctx, card); err != nil {
		return nil, fmt.Errorf("failed to register card: %w", err)
	}

	if err := s.collectionRepo.UpsertOwned(ctx, userID, card.ID, 1); err != nil {
		return nil, fmt.Errorf("failed to add owned card: %w", err)
	}

	slog.Info("card added to collection",
		slog.String("user_id", userID),
		slog.String("card_id", card.ID),
	)

	return card, nil
}
