package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/rhystic/internal/middleware"
	"github.com/hitoshi/rhystic/internal/model"
)

// CatalogSearchInterface はストア検索ハンドラーが必要とするカタログインターフェース。
type CatalogSearchInterface interface {
	Search(ctx context.Context, query, sortBy, dir string) ([]model.CardSummary, error)
}

// CartAdder は検索結果のカードをカートに追加するサービスインターフェース。
type CartAdder interface {
	AddToCart(ctx context.Context, userID string, card *model.Card) (*model.Trade, error)
}

// StoreHandler はカタログ検索とカート投入のHTTPハンドラー。
type StoreHandler struct {
	catalog CatalogSearchInterface
	cart    CartAdder
}

// NewStoreHandler はStoreHandlerを生成する。
func NewStoreHandler(catalog CatalogSearchInterface, cart CartAdder) *StoreHandler {
	return &StoreHandler{
		catalog: catalog,
		cart:    cart,
	}
}

// cardSummaryResponse は検索結果1件のAPIレスポンス。
type cardSummaryResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
	ManaCost string `json:"mana_cost"`
	Price    string `json:"price"`
	Rarity   string `json:"rarity"`
}

// searchResultResponse は検索結果のAPIレスポンス。
type searchResultResponse struct {
	TotalCards int                   `json:"total_cards"`
	Cards      []cardSummaryResponse `json:"cards"`
}

// addToCartRequest は検索結果からのカート投入リクエストのボディ。
// カード属性は検索結果の表示内容をそのまま送り返す。
type addToCartRequest struct {
	CardID   string `json:"card_id"`
	CardName string `json:"card_name"`
	ImageURL string `json:"image_url"`
	ManaCost string `json:"mana_cost"`
	Rarity   string `json:"rarity"`
	Price    string `json:"price"`
}

// tradeResponse はTradeのAPIレスポンス。
type tradeResponse struct {
	ID        string `json:"id"`
	CardID    string `json:"card_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// Search はカタログのフリーテキスト検索を処理する。
// 外部カタログで該当がない場合は空の結果を返す（エラーにしない）。
// GET /store/search?q=...&sort_by=...&dir=...
func (h *StoreHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("q"))
		return
	}

	sortBy := r.URL.Query().Get("sort_by")
	dir := r.URL.Query().Get("dir")

	summaries, err := h.catalog.Search(r.Context(), query, sortBy, dir)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	cards := make([]cardSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		cards = append(cards, cardSummaryResponse{
			ID:       s.ID,
			Name:     s.Name,
			ImageURL: s.ImageURL,
			ManaCost: s.ManaCost,
			Price:    s.Price.StringFixed(2),
			Rarity:   s.Rarity,
		})
	}

	writeJSON(w, http.StatusOK, searchResultResponse{
		TotalCards: len(cards),
		Cards:      cards,
	})
}

// AddToCart は検索結果のカードをカートに追加する。
// POST /store/search/add
func (h *StoreHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req addToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequestBody(w)
		return
	}

	price := decimal.Zero
	if req.Price != "" {
		price, err = decimal.NewFromString(req.Price)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("price"))
			return
		}
	}

	trade, err := h.cart.AddToCart(r.Context(), userID, &model.Card{
		ID:       req.CardID,
		Name:     req.CardName,
		ImageURL: req.ImageURL,
		ManaCost: req.ManaCost,
		Rarity:   req.Rarity,
		Price:    price,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tradeResponse{
		ID:        trade.ID,
		CardID:    trade.CardID,
		Quantity:  trade.Quantity,
		UnitPrice: trade.UnitPrice.StringFixed(2),
	})
}
