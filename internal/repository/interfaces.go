// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/rhystic/internal/model"
)

// 永続化層のセンチネルエラー。サービス層でAPIErrorに変換される。
var (
	// ErrDuplicateUsername はusers.usernameの一意制約違反を表す。
	ErrDuplicateUsername = errors.New("username already taken")
	// ErrTradeNotFound は対象の出品が存在しない（既に購入・取り下げ済みを含む）ことを表す。
	ErrTradeNotFound = errors.New("trade not found")
	// ErrCartEntryNotFound は呼び出しユーザーのカートに対象の出品がないことを表す。
	ErrCartEntryNotFound = errors.New("cart entry not found")
	// ErrInsufficientFunds はチェックアウト時の残高不足を表す。
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAlreadyInCart は同一カードのカート二重投入を表す。
	ErrAlreadyInCart = errors.New("card already in cart")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。ユーザー名重複時はErrDuplicateUsernameを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はログイン名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// UpdateProfile は表示名・ログイン名・アバターを更新する。
	// ログイン名重複時はErrDuplicateUsernameを返す。
	UpdateProfile(ctx context.Context, id, name, username, avatarURL string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error

	// SetFlash はセッションに1回限りの通知メッセージを設定する。
	SetFlash(ctx context.Context, id, message string) error

	// PopFlash は通知メッセージを取得して消費する。未設定なら空文字列を返す。
	PopFlash(ctx context.Context, id string) (string, error)
}

// CardRepository はカードデータの永続化インターフェース。
type CardRepository interface {
	// EnsureKnown はカードが未登録なら挿入する。登録済みの場合は何もしない（冪等）。
	EnsureKnown(ctx context.Context, card *model.Card) error

	// FindByID は指定IDのカードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Card, error)
}

// CollectionRepository はユーザーの所有カードの永続化インターフェース。
type CollectionRepository interface {
	// UpsertOwned は所有カードを冪等に加算する。
	// 未所有ならowned_count=quantityで挿入し、所有済みならquantityを加算する。
	UpsertOwned(ctx context.Context, userID, cardID string, quantity int) error

	// ListByUserID はユーザーの所有カード一覧をカード情報付きで返す。
	ListByUserID(ctx context.Context, userID string) ([]OwnedCardDetail, error)
}

// MarketRepository はカート・出品・チェックアウトの永続化インターフェース。
// 複文更新は全て単一トランザクションで実行される。
type MarketRepository interface {
	// AddToCart はカートにカードを1枚追加する。
	// 同一カードのカート項目が既にあればそのTradeの数量を+1し（価格は更新しない）、
	// なければ新しいTradeとCartEntryを作成する。
	// 増分の対象はカート起点のTradeに限る。カート内の同一カードが出品Tradeの
	// 場合はErrAlreadyInCartを返す。
	// 並行する初回投入はcart_entriesの一意制約で直列化され、増分パスに解決される。
	AddToCart(ctx context.Context, userID, cardID string, unitPrice decimal.Decimal) (*model.Trade, error)

	// AddListedTradeToCart は出品ブラウズ上のTradeを買い手のカートに入れる。
	// 同一カードが既にカートにある場合はErrAlreadyInCartを返す。
	AddListedTradeToCart(ctx context.Context, userID, tradeID string) error

	// ListCart はユーザーのカート内容をTrade・カード情報付きで返す。
	ListCart(ctx context.Context, userID string) ([]CartItem, error)

	// RemoveFromCart はカート項目とそのTradeを削除する。
	// 呼び出しユーザーのカートに対象Tradeがない場合はErrCartEntryNotFoundを返し、
	// Trade行には一切触れない。
	RemoveFromCart(ctx context.Context, userID, tradeID string) error

	// Checkout はカート内のTradeを購入する。単一トランザクションで、
	// 残高の再検証、所有カードの加算、CartEntry/Tradeの削除、残高の減算を行う。
	// 検証失敗時はErrTradeNotFound / ErrCartEntryNotFound / ErrInsufficientFundsを返し、
	// いずれの場合も状態は変更されない。
	Checkout(ctx context.Context, userID, tradeID, cardID string, quantity int, totalPrice decimal.Decimal) error

	// CreateTradeListing はTradeとTradeOwnershipを単一トランザクションで作成する。
	CreateTradeListing(ctx context.Context, sellerID, cardID string, quantity int, unitPrice decimal.Decimal) (*model.Trade, error)

	// ListTrades は出品一覧をカード名・出品者名付きで作成日時の新しい順に返す。
	// TradeOwnershipを持たないTrade（カート専用のTrade）は含まれない。
	ListTrades(ctx context.Context) ([]model.TradeListing, error)
}

// OwnedCardDetail は所有カードとカード情報を結合した構造体。
type OwnedCardDetail struct {
	model.Card
	OwnedCount int
}

// CartItem はカート項目とTrade・カード情報を結合した構造体。
type CartItem struct {
	model.Trade
	CardName string
	ImageURL string
	Count    int
}
