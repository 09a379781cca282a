package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/rhystic/internal/metrics"
	"github.com/hitoshi/rhystic/internal/model"
	"github.com/hitoshi/rhystic/internal/repository"
)

// --- モック定義 ---

type mockCatalog struct {
	findByNameFn func(ctx context.Context, name string) (*model.Card, error)
}

func (m *mockCatalog) FindByName(ctx context.Context, name string) (*model.Card, error) {
	if m.findByNameFn != nil {
		return m.findByNameFn(ctx, name)
	}
	return nil, nil
}

type mockCardRepo struct {
	ensureKnownFn func(ctx context.Context, card *model.Card) error
}

func (m *mockCardRepo) EnsureKnown(ctx context.Context, card *model.Card) error {
	if m.ensureKnownFn != nil {
		return m.ensureKnownFn(ctx, card)
	}
	return nil
}

func (m *mockCardRepo) FindByID(_ context.Context, _ string) (*model.Card, error) {
	return nil, nil
}

type mockMarketRepo struct {
	addToCartFn          func(ctx context.Context, userID, cardID string, unitPrice decimal.Decimal) (*model.Trade, error)
	addListedTradeFn     func(ctx context.Context, userID, tradeID string) error
	listCartFn           func(ctx context.Context, userID string) ([]repository.CartItem, error)
	removeFromCartFn     func(ctx context.Context, userID, tradeID string) error
	checkoutFn           func(ctx context.Context, userID, tradeID, cardID string, quantity int, totalPrice decimal.Decimal) error
	createTradeListingFn func(ctx context.Context, sellerID, cardID string, quantity int, unitPrice decimal.Decimal) (*model.Trade, error)
	listTradesFn         func(ctx context.Context) ([]model.TradeListing, error)
}

func (m *mockMarketRepo) AddToCart(ctx context.Context, userID, cardID string, unitPrice decimal.Decimal) (*model.Trade, error) {
	if m.addToCartFn != nil {
		return m.addToCartFn(ctx, userID, cardID, unitPrice)
	}
	return &model.Trade{ID: "trade-1", CardID: cardID, Quantity: 1, UnitPrice: unitPrice}, nil
}

func (m *mockMarketRepo) AddListedTradeToCart(ctx context.Context, userID, tradeID string) error {
	if m.addListedTradeFn != nil {
		return m.addListedTradeFn(ctx, userID, tradeID)
	}
	return nil
}

func (m *mockMarketRepo) ListCart(ctx context.Context, userID string) ([]repository.CartItem, error) {
	if m.listCartFn != nil {
		return m.listCartFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockMarketRepo) RemoveFromCart(ctx context.Context, userID, tradeID string) error {
	if m.removeFromCartFn != nil {
		return m.removeFromCartFn(ctx, userID, tradeID)
	}
	return nil
}

func (m *mockMarketRepo) Checkout(ctx context.Context, userID, tradeID, cardID string, quantity int, totalPrice decimal.Decimal) error {
	if m.checkoutFn != nil {
		return m.checkoutFn(ctx, userID, tradeID, cardID, quantity, totalPrice)
	}
	return nil
}

func (m *mockMarketRepo) CreateTradeListing(ctx context.Context, sellerID, cardID string, quantity int, unitPrice decimal.Decimal) (*model.Trade, error) {
	if m.createTradeListingFn != nil {
		return m.createTradeListingFn(ctx, sellerID, cardID, quantity, unitPrice)
	}
	return &model.Trade{ID: "trade-1", CardID: cardID, Quantity: quantity, UnitPrice: unitPrice}, nil
}

func (m *mockMarketRepo) ListTrades(ctx context.Context) ([]model.TradeListing, error) {
	if m.listTradesFn != nil {
		return m.listTradesFn(ctx)
	}
	return nil, nil
}

type mockCollector struct {
	checkoutSuccess  int
	checkoutFailures map[string]int
	tradesCreated    int
}

func newMockCollector() *mockCollector {
	return &mockCollector{checkoutFailures: map[string]int{}}
}

func (m *mockCollector) RecordSignup()          {}
func (m *mockCollector) RecordCheckoutSuccess() { m.checkoutSuccess++ }
func (m *mockCollector) RecordCheckoutFailure(reason string) {
	m.checkoutFailures[reason]++
}
func (m *mockCollector) RecordTradeCreated()                  { m.tradesCreated++ }
func (m *mockCollector) RecordCatalogLookup(_ bool)           {}
func (m *mockCollector) RecordCatalogLatency(_ time.Duration) {}
func (m *mockCollector) RecordHTTPStatus(_ int)               {}

// コンパイル時のインターフェース実装チェック
var (
	_ CatalogFinder               = (*mockCatalog)(nil)
	_ repository.CardRepository   = (*mockCardRepo)(nil)
	_ repository.MarketRepository = (*mockMarketRepo)(nil)
	_ metrics.MetricsCollector    = (*mockCollector)(nil)
)

func newTestService(catalog *mockCatalog, cardRepo *mockCardRepo, marketRepo *mockMarketRepo, collector *mockCollector) *Service {
	return NewService(catalog, cardRepo, marketRepo, collector)
}

func apiErrorCode(t *testing.T, err error) string {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	return apiErr.Code
}

func TestAddToCart_RegistersCardAndDelegates(t *testing.T) {
	registered := false
	cardRepo := &mockCardRepo{
		ensureKnownFn: func(_ context.Context, card *model.Card) error {
			if card.ID != "card-1" {
				t.Errorf("unexpected card ID: %s", card.ID)
			}
			registered = true
			return nil
		},
	}
	marketRepo := &mockMarketRepo{
		addToCartFn: func(_ context.Context, userID, cardID string, unitPrice decimal.Decimal) (*model.Trade, error) {
			if userID != "user-1" || cardID != "card-1" {
				t.Errorf("unexpected cart target: %s / %s", userID, cardID)
			}
			if !unitPrice.Equal(decimal.NewFromFloat(12.50)) {
				t.Errorf("unexpected unit price: %s", unitPrice)
			}
			return &model.Trade{ID: "trade-1", CardID: cardID, Quantity: 2, UnitPrice: unitPrice}, nil
		},
	}

	service := newTestService(&mockCatalog{}, cardRepo, marketRepo, newMockCollector())
	card := &model.Card{ID: "card-1", Name: "Rhystic Study", Price: decimal.NewFromFloat(12.50)}
	trade, err := service.AddToCart(context.Background(), "user-1", card)
	if err != nil {
		t.Fatalf("AddToCart failed: %v", err)
	}

	if !registered {
		t.Error("expected card to be registered before adding to cart")
	}
	// 既存カート項目への加算では数量がそのまま返る
	if trade.Quantity != 2 {
		t.Errorf("expected quantity 2, got %d", trade.Quantity)
	}
}

func TestAddToCart_InvalidCard(t *testing.T) {
	service := newTestService(&mockCatalog{}, &mockCardRepo{}, &mockMarketRepo{}, newMockCollector())

	tests := []struct {
		name string
		card *model.Card
	}{
		{name: "nil card", card: nil},
		{name: "missing ID", card: &model.Card{Name: "Rhystic Study"}},
		{name: "missing name", card: &model.Card{ID: "card-1"}},
		{name: "negative price", card: &model.Card{ID: "card-1", Name: "Rhystic Study", Price: decimal.NewFromInt(-1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.AddToCart(context.Background(), "user-1", tt.card)
			if err == nil {
				t.Fatal("expected error")
			}
			if code := apiErrorCode(t, err); code != model.ErrCodeInvalidInput {
				t.Errorf("expected code %s, got %s", model.ErrCodeInvalidInput, code)
			}
		})
	}
}

func TestAddToCart_ListedCardAlreadyInCart(t *testing.T) {
	// カート内の同一カードが出品Tradeの場合、数量加算ではなく二重投入として扱う
	marketRepo := &mockMarketRepo{
		addToCartFn: func(_ context.Context, _, _ string, _ decimal.Decimal) (*model.Trade, error) {
			return nil, repository.ErrAlreadyInCart
		},
	}
	service := newTestService(&mockCatalog{}, &mockCardRepo{}, marketRepo, newMockCollector())

	card := &model.Card{ID: "card-1", Name: "Rhystic Study", Price: decimal.NewFromFloat(12.50)}
	_, err := service.AddToCart(context.Background(), "user-1", card)
	if err == nil {
		t.Fatal("expected error")
	}
	if code := apiErrorCode(t, err); code != model.ErrCodeAlreadyInCart {
		t.Errorf("expected code %s, got %s", model.ErrCodeAlreadyInCart, code)
	}
}

func TestAddListedTradeToCart_MapsSentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		repoErr  error
		wantCode string
	}{
		{name: "trade not found", repoErr: repository.ErrTradeNotFound, wantCode: model.ErrCodeTradeNotFound},
		{name: "already in cart", repoErr: repository.ErrAlreadyInCart, wantCode: model.ErrCodeAlreadyInCart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			marketRepo := &mockMarketRepo{
				addListedTradeFn: func(_ context.Context, _, _ string) error {
					return tt.repoErr
				},
			}
			service := newTestService(&mockCatalog{}, &mockCardRepo{}, marketRepo, newMockCollector())

			err := service.AddListedTradeToCart(context.Background(), "user-1", "trade-1")
			if err == nil {
				t.Fatal("expected error")
			}
			if code := apiErrorCode(t, err); code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, code)
			}
		})
	}
}

func TestAddListedTradeToCart_EmptyTradeID(t *testing.T) {
	service := newTestService(&mockCatalog{}, &mockCardRepo{}, &mockMarketRepo{}, newMockCollector())
	err := service.AddListedTradeToCart(context.Background(), "user-1", "")
	if err == nil {
		t.Fatal("expected error for empty trade ID")
	}
	if code := apiErrorCode(t, err); code != model.ErrCodeInvalidInput {
		t.Errorf("expected code %s, got %s", model.ErrCodeInvalidInput, code)
	}
}

func TestRemoveFromCart_NotInCallersCart(t *testing.T) {
	marketRepo := &mockMarketRepo{
		removeFromCartFn: func(_ context.Context, userID, tradeID string) error {
			if userID != "user-1" || tradeID != "trade-9" {
				t.Errorf("unexpected removal target: %s / %s", userID, tradeID)
			}
			return repository.ErrCartEntryNotFound
		},
	}

	service := newTestService(&mockCatalog{}, &mockCardRepo{}, marketRepo, newMockCollector())
	err := service.RemoveFromCart(context.Background(), "user-1", "trade-9")
	if err == nil {
		t.Fatal("expected error")
	}
	if code := apiErrorCode(t, err); code != model.ErrCodeCartEntryNotFound {
		t.Errorf("expected code %s, got %s", model.ErrCodeCartEntryNotFound, code)
	}
}

func TestCheckout_Success(t *testing.T) {
	called := false
	marketRepo := &mockMarketRepo{
		checkoutFn: func(_ context.Context, userID, tradeID, cardID string, quantity int, totalPrice decimal.Decimal) error {
			called = true
			if userID != "user-1" || tradeID != "trade-1" || cardID != "card-1" {
				t.Errorf("unexpected checkout target: %s / %s / %s", userID, tradeID, cardID)
			}
			if quantity != 3 {
				t.Errorf("expected quantity 3, got %d", quantity)
			}
			if !totalPrice.Equal(decimal.NewFromFloat(37.50)) {
				t.Errorf("unexpected total price: %s", totalPrice)
			}
			return nil
		},
	}

	collector := newMockCollector()
	service := newTestService(&mockCatalog{}, &mockCardRepo{}, marketRepo, collector)
	err := service.Checkout(context.Background(), "user-1", "trade-1", "card-1", 3, decimal.NewFromFloat(37.50))
	if err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}

	if !called {
		t.Error("expected repository checkout to be called")
	}
	if collector.checkoutSuccess != 1 {
		t.Errorf("expected 1 checkout success recorded, got %d", collector.checkoutSuccess)
	}
}

func TestCheckout_InputValidation(t *testing.T) {
	service := newTestService(&mockCatalog{}, &mockCardRepo{}, &mockMarketRepo{}, newMockCollector())
	price := decimal.NewFromInt(10)

	tests := []struct {
		name       string
		tradeID    string
		cardID     string
		quantity   int
		totalPrice decimal.Decimal
	}{
		{name: "empty trade ID", tradeID: "", cardID: "card-1", quantity: 1, totalPrice: price},
		{name: "empty card ID", tradeID: "trade-1", cardID: "", quantity: 1, totalPrice: price},
		{name: "zero quantity", tradeID: "trade-1", cardID: "card-1", quantity: 0, totalPrice: price},
		{name: "negative total", tradeID: "trade-1", cardID: "card-1", quantity: 1, totalPrice: decimal.NewFromInt(-5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.Checkout(context.Background(), "user-1", tt.tradeID, tt.cardID, tt.quantity, tt.totalPrice)
			if err == nil {
				t.Fatal("expected error")
			}
			if code := apiErrorCode(t, err); code != model.ErrCodeInvalidInput {
				t.Errorf("expected code %s, got %s", model.ErrCodeInvalidInput, code)
			}
		})
	}
}

func TestCheckout_FailureReasonsRecorded(t *testing.T) {
	tests := []struct {
		name       string
		repoErr    error
		wantCode   string
		wantReason string
	}{
		{name: "trade not found", repoErr: repository.ErrTradeNotFound, wantCode: model.ErrCodeTradeNotFound, wantReason: "trade_not_found"},
		{name: "cart entry not found", repoErr: repository.ErrCartEntryNotFound, wantCode: model.ErrCodeCartEntryNotFound, wantReason: "cart_entry_not_found"},
		{name: "insufficient funds", repoErr: repository.ErrInsufficientFunds, wantCode: model.ErrCodeInsufficientFunds, wantReason: "insufficient_funds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			marketRepo := &mockMarketRepo{
				checkoutFn: func(_ context.Context, _, _, _ string, _ int, _ decimal.Decimal) error {
					return tt.repoErr
				},
			}
			collector := newMockCollector()
			service := newTestService(&mockCatalog{}, &mockCardRepo{}, marketRepo, collector)

			err := service.Checkout(context.Background(), "user-1", "trade-1", "card-1", 1, decimal.NewFromInt(10))
			if err == nil {
				t.Fatal("expected error")
			}
			if code := apiErrorCode(t, err); code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, code)
			}
			if collector.checkoutFailures[tt.wantReason] != 1 {
				t.Errorf("expected failure reason %s recorded once, got %v", tt.wantReason, collector.checkoutFailures)
			}
			if collector.checkoutSuccess != 0 {
				t.Errorf("expected no success recorded, got %d", collector.checkoutSuccess)
			}
		})
	}
}

func TestCheckout_StoreErrorRecorded(t *testing.T) {
	marketRepo := &mockMarketRepo{
		checkoutFn: func(_ context.Context, _, _, _ string, _ int, _ decimal.Decimal) error {
			return errors.New("connection reset")
		},
	}
	collector := newMockCollector()
	service := newTestService(&mockCatalog{}, &mockCardRepo{}, marketRepo, collector)

	err := service.Checkout(context.Background(), "user-1", "trade-1", "card-1", 1, decimal.NewFromInt(10))
	if err == nil {
		t.Fatal("expected error")
	}

	// 予期しないストア障害はAPIErrorではなく内部エラーとして伝播する
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("expected plain error, got APIError with code %s", apiErr.Code)
	}
	if collector.checkoutFailures["store_error"] != 1 {
		t.Errorf("expected store_error recorded once, got %v", collector.checkoutFailures)
	}
}

func TestCreateTradeListing_ResolvesCardFromCatalog(t *testing.T) {
	catalog := &mockCatalog{
		findByNameFn: func(_ context.Context, name string) (*model.Card, error) {
			if name != "Rhystic Study" {
				t.Errorf("unexpected lookup name: %s", name)
			}
			return &model.Card{ID: "card-1", Name: "Rhystic Study"}, nil
		},
	}
	marketRepo := &mockMarketRepo{
		createTradeListingFn: func(_ context.Context, sellerID, cardID string, quantity int, unitPrice decimal.Decimal) (*model.Trade, error) {
			if sellerID != "seller-1" || cardID != "card-1" {
				t.Errorf("unexpected listing target: %s / %s", sellerID, cardID)
			}
			return &model.Trade{ID: "trade-1", CardID: cardID, Quantity: quantity, UnitPrice: unitPrice}, nil
		},
	}

	collector := newMockCollector()
	service := newTestService(catalog, &mockCardRepo{}, marketRepo, collector)
	trade, err := service.CreateTradeListing(context.Background(), "seller-1", "Rhystic Study", 4, decimal.NewFromFloat(9.99))
	if err != nil {
		t.Fatalf("CreateTradeListing failed: %v", err)
	}

	if trade.Quantity != 4 {
		t.Errorf("expected quantity 4, got %d", trade.Quantity)
	}
	if collector.tradesCreated != 1 {
		t.Errorf("expected 1 trade creation recorded, got %d", collector.tradesCreated)
	}
}

func TestCreateTradeListing_CardNotFound(t *testing.T) {
	catalog := &mockCatalog{
		findByNameFn: func(_ context.Context, _ string) (*model.Card, error) {
			return nil, nil
		},
	}

	collector := newMockCollector()
	service := newTestService(catalog, &mockCardRepo{}, &mockMarketRepo{}, collector)
	_, err := service.CreateTradeListing(context.Background(), "seller-1", "実在しないカード", 1, decimal.NewFromInt(1))
	if err == nil {
		t.Fatal("expected error for unknown card")
	}
	if code := apiErrorCode(t, err); code != model.ErrCodeCardNotFound {
		t.Errorf("expected code %s, got %s", model.ErrCodeCardNotFound, code)
	}
	if collector.tradesCreated != 0 {
		t.Errorf("expected no trade creation recorded, got %d", collector.tradesCreated)
	}
}

func TestCreateTradeListing_InputValidation(t *testing.T) {
	service := newTestService(&mockCatalog{}, &mockCardRepo{}, &mockMarketRepo{}, newMockCollector())

	tests := []struct {
		name      string
		cardName  string
		quantity  int
		unitPrice decimal.Decimal
	}{
		{name: "empty card name", cardName: "", quantity: 1, unitPrice: decimal.NewFromInt(1)},
		{name: "zero quantity", cardName: "Rhystic Study", quantity: 0, unitPrice: decimal.NewFromInt(1)},
		{name: "negative price", cardName: "Rhystic Study", quantity: 1, unitPrice: decimal.NewFromInt(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.CreateTradeListing(context.Background(), "seller-1", tt.cardName, tt.quantity, tt.unitPrice)
			if err == nil {
				t.Fatal("expected error")
			}
			if code := apiErrorCode(t, err); code != model.ErrCodeInvalidInput {
				t.Errorf("expected code %s, got %s", model.ErrCodeInvalidInput, code)
			}
		})
	}
}

func TestListTrades_Delegates(t *testing.T) {
	marketRepo := &mockMarketRepo{
		listTradesFn: func(_ context.Context) ([]model.TradeListing, error) {
			return []model.TradeListing{
				{Trade: model.Trade{ID: "trade-2"}, CardName: "Sol Ring", SellerUsername: "seller"},
				{Trade: model.Trade{ID: "trade-1"}, CardName: "Rhystic Study", SellerUsername: "seller"},
			}, nil
		},
	}

	service := newTestService(&mockCatalog{}, &mockCardRepo{}, marketRepo, newMockCollector())
	listings, err := service.ListTrades(context.Background())
	if err != nil {
		t.Fatalf("ListTrades failed: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(listings))
	}
	if listings[0].ID != "trade-2" {
		t.Errorf("expected newest listing first, got %s", listings[0].ID)
	}
}
