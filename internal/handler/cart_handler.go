package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/rhystic/internal/middleware"
	"github.com/hitoshi/rhystic/internal/model"
	"github.com/hitoshi/rhystic/internal/repository"
)

// CartServiceInterface はカートハンドラーが必要とするサービスインターフェース。
type CartServiceInterface interface {
	ListCart(ctx context.Context, userID string) ([]repository.CartItem, error)
	RemoveFromCart(ctx context.Context, userID, tradeID string) error
	Checkout(ctx context.Context, userID, tradeID, cardID string, quantity int, totalPrice decimal.Decimal) error
}

// CartHandler はカートのHTTPハンドラー。
type CartHandler struct {
	service    CartServiceInterface
	flashStore FlashStore
}

// NewCartHandler はCartHandlerを生成する。
func NewCartHandler(service CartServiceInterface, flashStore FlashStore) *CartHandler {
	return &CartHandler{
		service:    service,
		flashStore: flashStore,
	}
}

// cartItemResponse はカート項目1件のAPIレスポンス。
type cartItemResponse struct {
	TradeID   string `json:"trade_id"`
	CardID    string `json:"card_id"`
	CardName  string `json:"card_name"`
	ImageURL  string `json:"image_url"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Total     string `json:"total"`
}

// cartResponse はカート内容のAPIレスポンス。
type cartResponse struct {
	Items []cartItemResponse `json:"items"`
	Total string             `json:"total"`
	Flash string             `json:"flash,omitempty"`
}

// removeFromCartRequest はカート項目削除リクエストのボディ。
type removeFromCartRequest struct {
	TradeID string `json:"trade_id"`
}

// checkoutRequest はチェックアウトリクエストのボディ。
// 画面表示時点のカードID・数量・合計金額を送り返し、サーバー側で再検証する。
type checkoutRequest struct {
	TradeID    string `json:"trade_id"`
	CardID     string `json:"card_id"`
	Quantity   int    `json:"quantity"`
	TotalPrice string `json:"total_price"`
}

// ListCart はカート内容を取得する。
// セッションに保存された通知メッセージがあれば消費して返す。
// GET /cart
func (h *CartHandler) ListCart(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	items, err := h.service.ListCart(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	flash := h.popFlash(r.Context())

	total := decimal.Zero
	respItems := make([]cartItemResponse, 0, len(items))
	for _, item := range items {
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(lineTotal)
		respItems = append(respItems, cartItemResponse{
			TradeID:   item.ID,
			CardID:    item.CardID,
			CardName:  item.CardName,
			ImageURL:  item.ImageURL,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
			Total:     lineTotal.StringFixed(2),
		})
	}

	writeJSON(w, http.StatusOK, cartResponse{
		Items: respItems,
		Total: total.StringFixed(2),
		Flash: flash,
	})
}

// RemoveFromCart はカート項目を削除する。
// POST /cart/remove
func (h *CartHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req removeFromCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequestBody(w)
		return
	}

	if err := h.service.RemoveFromCart(r.Context(), userID, req.TradeID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeStatusMessage(w, http.StatusOK, "カートから削除しました。")
}

// Checkout はカート内のTradeを購入する。
// POST /cart/buy
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequestBody(w)
		return
	}

	totalPrice, err := decimal.NewFromString(req.TotalPrice)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("total_price"))
		return
	}

	if err := h.service.Checkout(r.Context(), userID, req.TradeID, req.CardID, req.Quantity, totalPrice); err != nil {
		handleServiceError(w, err)
		return
	}

	h.setFlash(r.Context(), "購入が完了しました。")
	writeStatusMessage(w, http.StatusOK, "購入が完了しました。")
}

// popFlash はセッションの通知メッセージを消費する。失敗は無視する。
func (h *CartHandler) popFlash(ctx context.Context) string {
	sessionID, err := middleware.SessionIDFromContext(ctx)
	if err != nil {
		return ""
	}
	flash, err := h.flashStore.PopFlash(ctx, sessionID)
	if err != nil {
		slog.Warn("failed to pop flash message", slog.String("error", err.Error()))
		return ""
	}
	return flash
}

// setFlash はセッションに通知メッセージを設定する。失敗は無視する。
func (h *CartHandler) setFlash(ctx context.Context, message string) {
	sessionID, err := middleware.SessionIDFromContext(ctx)
	if err != nil {
		return
	}
	if err := h.flashStore.SetFlash(ctx, sessionID, message); err != nil {
		slog.Warn("failed to set flash message", slog.String("error", err.Error()))
	}
}
