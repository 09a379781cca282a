package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/rhystic/internal/middleware"
	"github.com/hitoshi/rhystic/internal/model"
)

// TradeServiceInterface は出品ハンドラーが必要とするサービスインターフェース。
type TradeServiceInterface interface {
	ListTrades(ctx context.Context) ([]model.TradeListing, error)
	CreateTradeListing(ctx context.Context, sellerID, cardName string, quantity int, unitPrice decimal.Decimal) (*model.Trade, error)
	AddListedTradeToCart(ctx context.Context, userID, tradeID string) error
}

// TradeHandler は出品のHTTPハンドラー。
type TradeHandler struct {
	service TradeServiceInterface
}

// NewTradeHandler はTradeHandlerを生成する。
func NewTradeHandler(service TradeServiceInterface) *TradeHandler {
	return &TradeHandler{service: service}
}

// createTradeRequest は出品作成リクエストのボディ。
type createTradeRequest struct {
	CardName string `json:"card_name"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

// addTradeToCartRequest は出品のカート投入リクエストのボディ。
type addTradeToCartRequest struct {
	TradeID string `json:"trade_id"`
}

// tradeListingResponse は出品一覧1件のAPIレスポンス。
type tradeListingResponse struct {
	TradeID        string `json:"trade_id"`
	CardID         string `json:"card_id"`
	CardName       string `json:"card_name"`
	SellerUsername string `json:"seller_username"`
	Quantity       int    `json:"quantity"`
	UnitPrice      string `json:"unit_price"`
}

// ListTrades は出品一覧を作成日時の新しい順に返す。
// GET /trade
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	listings, err := h.service.ListTrades(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]tradeListingResponse, 0, len(listings))
	for _, l := range listings {
		resp = append(resp, tradeListingResponse{
			TradeID:        l.ID,
			CardID:         l.CardID,
			CardName:       l.CardName,
			SellerUsername: l.SellerUsername,
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice.StringFixed(2),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"trades": resp,
	})
}

// CreateTrade はカード名をカタログで解決して出品を作成する。
// POST /trade/create
func (h *TradeHandler) CreateTrade(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequestBody(w)
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("price"))
		return
	}

	trade, err := h.service.CreateTradeListing(r.Context(), userID, req.CardName, req.Quantity, price)
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

// AddToCart は出品一覧上のTradeを買い手のカートに入れる。
// POST /trade/add
func (h *TradeHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req addTradeToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequestBody(w)
		return
	}

	if err := h.service.AddListedTradeToCart(r.Context(), userID, req.TradeID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeStatusMessage(w, http.StatusOK, "カートに追加しました。")
}
