// Package market はカート・出品・チェックアウトのビジネスロジックを提供する。
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/rhystic/internal/metrics"
	"github.com/hitoshi/rhystic/internal/model"
	"github.com/hitoshi/rhystic/internal/repository"
)

// CatalogFinder はカード名からカード属性を解決するインターフェース。
type CatalogFinder interface {
	FindByName(ctx context.Context, name string) (*model.Card, error)
}

// Service はカート・出品・チェックアウトのワークフローを実装する。
// 不変条件の最終検証はrepository側のトランザクションに委ね、
// Serviceは入力検証とエラーの変換を担う。
type Service struct {
	catalog    CatalogFinder
	cardRepo   repository.CardRepository
	marketRepo repository.MarketRepository
	collector  metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(catalog CatalogFinder, cardRepo repository.CardRepository, marketRepo repository.MarketRepository, collector metrics.MetricsCollector) *Service {
	return &Service{
		catalog:    catalog,
		cardRepo:   cardRepo,
		marketRepo: marketRepo,
		collector:  collector,
	}
}

// AddToCart は検索結果のカードをカートに追加する。
// カード属性はリクエスト由来のため、未登録ならその属性でカードを登録する。
// 同一カードがカート起点でカートにあれば数量を加算する。出品由来で
// カートにある場合はカート二重投入として扱う。
func (s *Service) AddToCart(ctx context.Context, userID string, card *model.Card) (*model.Trade, error) {
	if card == nil || card.ID == "" || card.Name == "" {
		return nil, model.NewInvalidInputError("card")
	}
	if card.Price.IsNegative() {
		return nil, model.NewInvalidInputError("price")
	}

	card.CreatedAt = time.Now()
	if err := s.cardRepo.EnsureKnown(ctx, card); err != nil {
		return nil, fmt.Errorf("failed to register card: %w", err)
	}

	trade, err := s.marketRepo.AddToCart(ctx, userID, card.ID, card.Price)
	switch {
	case errors.Is(err, repository.ErrAlreadyInCart):
		return nil, model.NewAlreadyInCartError()
	case err != nil:
		return nil, fmt.Errorf("failed to add to cart: %w", err)
	}

	slog.Info("card added to cart",
		slog.String("user_id", userID),
		slog.String("card_id", card.ID),
		slog.String("trade_id", trade.ID),
		slog.Int("quantity", trade.Quantity),
	)

	return trade, nil
}

// AddListedTradeToCart は出品一覧上のTradeを買い手のカートに入れる。
func (s *Service) AddListedTradeToCart(ctx context.Context, userID, tradeID string) error {
	if tradeID == "" {
		return model.NewInvalidInputError("trade_id")
	}

	err := s.marketRepo.AddListedTradeToCart(ctx, userID, tradeID)
	switch {
	case errors.Is(err, repository.ErrTradeNotFound):
		return model.NewTradeNotFoundError(tradeID)
	case errors.Is(err, repository.ErrAlreadyInCart):
		return model.NewAlreadyInCartError()
	case err != nil:
		return fmt.Errorf("failed to add listed trade to cart: %w", err)
	}

	slog.Info("listed trade added to cart",
		slog.String("user_id", userID),
		slog.String("trade_id", tradeID),
	)
	return nil
}

// ListCart はユーザーのカート内容を返す。
func (s *Service) ListCart(ctx context.Context, userID string) ([]repository.CartItem, error) {
	items, err := s.marketRepo.ListCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart: %w", err)
	}
	return items, nil
}

// RemoveFromCart はカート項目とそのTradeを削除する。
// 呼び出しユーザーのカートにないTradeは削除できない。
func (s *Service) RemoveFromCart(ctx context.Context, userID, tradeID string) error {
	if tradeID == "" {
		return model.NewInvalidInputError("trade_id")
	}

	err := s.marketRepo.RemoveFromCart(ctx, userID, tradeID)
	switch {
	case errors.Is(err, repository.ErrCartEntryNotFound):
		return model.NewCartEntryNotFoundError(tradeID)
	case err != nil:
		return fmt.Errorf("failed to remove from cart: %w", err)
	}

	slog.Info("cart entry removed",
		slog.String("user_id", userID),
		slog.String("trade_id", tradeID),
	)
	return nil
}

// Checkout はカート内のTradeを1件購入する。
// リクエストのカードID・数量・合計金額をロック済みのTrade行と突き合わせ、
// 不一致の場合は出品が変更されたものとしてTRADE_NOT_FOUNDを返す。
func (s *Service) Checkout(ctx context.Context, userID, tradeID, cardID string, quantity int, totalPrice decimal.Decimal) error {
	if tradeID == "" || cardID == "" {
		return model.NewInvalidInputError("trade_id")
	}
	if quantity <= 0 {
		return model.NewInvalidInputError("quantity")
	}
	if totalPrice.IsNegative() {
		return model.NewInvalidInputError("total_price")
	}

	err := s.marketRepo.Checkout(ctx, userID, tradeID, cardID, quantity, totalPrice)
	switch {
	case errors.Is(err, repository.ErrTradeNotFound):
		s.collector.RecordCheckoutFailure("trade_not_found")
		return model.NewTradeNotFoundError(tradeID)
	case errors.Is(err, repository.ErrCartEntryNotFound):
		s.collector.RecordCheckoutFailure("cart_entry_not_found")
		return model.NewCartEntryNotFoundError(tradeID)
	case errors.Is(err, repository.ErrInsufficientFunds):
		s.collector.RecordCheckoutFailure("insufficient_funds")
		return model.NewInsufficientFundsError()
	case err != nil:
		s.collector.RecordCheckoutFailure("store_error")
		return fmt.Errorf("failed to checkout: %w", err)
	}

	s.collector.RecordCheckoutSuccess()
	slog.Info("checkout completed",
		slog.String("user_id", userID),
		slog.String("trade_id", tradeID),
		slog.String("card_id", cardID),
		slog.Int("quantity", quantity),
		slog.String("total_price", totalPrice.String()),
	)
	return nil
}

// CreateTradeListing はカード名をカタログで解決して出品を作成する。
// カタログで見つからない場合はCARD_NOT_FOUNDを返す。
func (s *Service) CreateTradeListing(ctx context.Context, sellerID, cardName string, quantity int, unitPrice decimal.Decimal) (*model.Trade, error) {
	if cardName == "" {
		return nil, model.NewInvalidInputError("card_name")
	}
	if quantity <= 0 {
		return nil, model.NewInvalidInputError("quantity")
	}
	if unitPrice.IsNegative() {
		return nil, model.NewInvalidInputError("price")
	}

	card, err := s.catalog.FindByName(ctx, cardName)
	if err != nil {
		return nil, fmt.Errorf("failed to look up card: %w", err)
	}
	if card == nil {
		return nil, model.NewCardNotFoundError(cardName)
	}

	card.CreatedAt = time.Now()
	if err := s.cardRepo.EnsureKnown(ctx, card); err != nil {
		return nil, fmt.Errorf("failed to register card: %w", err)
	}

	trade, err := s.marketRepo.CreateTradeListing(ctx, sellerID, card.ID, quantity, unitPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to create trade listing: %w", err)
	}

	s.collector.RecordTradeCreated()
	slog.Info("trade listing created",
		slog.String("seller_id", sellerID),
		slog.String("trade_id", trade.ID),
		slog.String("card_id", card.ID),
		slog.Int("quantity", quantity),
		slog.String("unit_price", unitPrice.String()),
	)

	return trade, nil
}

// ListTrades は出品一覧を作成日時の新しい順に返す。
func (s *Service) ListTrades(ctx context.Context) ([]model.TradeListing, error) {
	listings, err := s.marketRepo.ListTrades(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return listings, nil
}
