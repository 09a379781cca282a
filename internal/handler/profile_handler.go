package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/rhystic/internal/middleware"
	"github.com/hitoshi/rhystic/internal/model"
	"github.com/hitoshi/rhystic/internal/user"
)

// UserServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*user.Profile, error)
	EditProfile(ctx context.Context, userID, name, username, avatarURL string) (*model.User, error)
}

// CollectionServiceInterface は所有カード追加のサービスインターフェース。
type CollectionServiceInterface interface {
	AddCardByName(ctx context.Context, userID, name string) (*model.Card, error)
}

// FlashStore はセッションの1回限りの通知メッセージを読み書きするインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type FlashStore interface {
	SetFlash(ctx context.Context, sessionID, message string) error
	PopFlash(ctx context.Context, sessionID string) (string, error)
}

// ProfileHandler はプロフィールと所有カードのHTTPハンドラー。
type ProfileHandler struct {
	userService       UserServiceInterface
	collectionService CollectionServiceInterface
	flashStore        FlashStore
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(userService UserServiceInterface, collectionService CollectionServiceInterface, flashStore FlashStore) *ProfileHandler {
	return &ProfileHandler{
		userService:       userService,
		collectionService: collectionService,
		flashStore:        flashStore,
	}
}

// editProfileRequest はプロフィール編集リクエストのボディ。
// 空の項目は現在の値を維持する。
type editProfileRequest struct {
	Name      string `json:"name"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// addCardRequest は所有カード追加リクエストのボディ。
type addCardRequest struct {
	CardName string `json:"card_name"`
}

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含まない。
type userResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Balance   string `json:"balance"`
	AvatarURL string `json:"avatar_url"`
}

// ownedCardResponse は所有カード1件のAPIレスポンス。
type ownedCardResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	OracleText string `json:"oracle_text"`
	ImageURL   string `json:"image_url"`
	ManaCost   string `json:"mana_cost"`
	Price      string `json:"price"`
	Rarity     string `json:"rarity"`
	OwnedCount int    `json:"owned_count"`
}

// profileResponse はプロフィール画面のAPIレスポンス。
type profileResponse struct {
	User  userResponse        `json:"user"`
	Cards []ownedCardResponse `json:"cards"`
	Flash string              `json:"flash,omitempty"`
}

// cardResponse はカード属性のAPIレスポンス。
type cardResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	OracleText string `json:"oracle_text"`
	ImageURL   string `json:"image_url"`
	ManaCost   string `json:"mana_cost"`
	Price      string `json:"price"`
	Rarity     string `json:"rarity"`
}

// GetProfile はプロフィールを取得する。
// セッションに保存された通知メッセージがあれば消費して返す。
// GET /profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	profile, err := h.userService.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	flash := h.popFlash(r.Context())

	cards := make([]ownedCardResponse, 0, len(profile.Cards))
	for _, c := range profile.Cards {
		cards = append(cards, ownedCardResponse{
			ID:         c.ID,
			Name:       c.Name,
			OracleText: c.OracleText,
			ImageURL:   c.ImageURL,
			ManaCost:   c.ManaCost,
			Price:      c.Price.StringFixed(2),
			Rarity:     c.Rarity,
			OwnedCount: c.OwnedCount,
		})
	}

	writeJSON(w, http.StatusOK, profileResponse{
		User:  toUserResponse(profile.User),
		Cards: cards,
		Flash: flash,
	})
}

// EditProfile はプロフィールを編集する。
// POST /profile/edit
func (h *ProfileHandler) EditProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req editProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequestBody(w)
		return
	}

	updated, err := h.userService.EditProfile(r.Context(), userID, req.Name, req.Username, req.AvatarURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(updated))
}

// AddCard はカード名をカタログで解決して所有カードに1枚加算する。
// POST /profile/add_card
func (h *ProfileHandler) AddCard(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req addCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequestBody(w)
		return
	}

	card, err := h.collectionService.AddCardByName(r.Context(), userID, req.CardName)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setFlash(r.Context(), "コレクションにカードを追加しました: "+card.Name)

	writeJSON(w, http.StatusOK, cardResponse{
		ID:         card.ID,
		Name:       card.Name,
		OracleText: card.OracleText,
		ImageURL:   card.ImageURL,
		ManaCost:   card.ManaCost,
		Price:      card.Price.StringFixed(2),
		Rarity:     card.Rarity,
	})
}

// popFlash はセッションの通知メッセージを消費する。失敗は無視する。
func (h *ProfileHandler) popFlash(ctx context.Context) string {
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
func (h *ProfileHandler) setFlash(ctx context.Context, message string) {
	sessionID, err := middleware.SessionIDFromContext(ctx)
	if err != nil {
		return
	}
	if err := h.flashStore.SetFlash(ctx, sessionID, message); err != nil {
		slog.Warn("failed to set flash message", slog.String("error", err.Error()))
	}
}

// toUserResponse はmodel.UserからAPIレスポンスに変換する。
func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		Email:     u.Email,
		Balance:   u.Balance.StringFixed(2),
		AvatarURL: u.AvatarURL,
	}
}
