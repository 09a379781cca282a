package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade は売り側の出品（カード + 数量 + 単価）を表す。
// 購入または取り下げで必ず削除され、後戻りの状態遷移はない。
type Trade struct {
	ID        string
	CardID    string
	Quantity  int
	UnitPrice decimal.Decimal
	CreatedAt time.Time
}

// CartEntry は買い側のカート項目を表す。
// CardIDはtrades.card_idの非正規化コピーで、
// (UserID, CardID) の一意制約によりカートの二重投入を防ぐ。
type CartEntry struct {
	UserID  string
	TradeID string
	CardID  string
	Count   int
}

// TradeOwnership は出品者とTradeの紐付けを表す。
// 出品一覧の出品者表示に使用する。CartEntry（買い側）とは区別される。
type TradeOwnership struct {
	TradeID string
	UserID  string
}

// TradeListing は出品ブラウズ用にTradeとカード名・出品者名を結合したビュー。
type TradeListing struct {
	Trade
	CardName       string
	SellerUsername string
}
