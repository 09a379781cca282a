package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Card は外部カタログ由来のカード属性を表す。
// IDは外部カタログの安定した識別子をそのまま主キーとして使用する。
// 一度登録されたカードは上書きされない（insert-if-absent）。
type Card struct {
	ID         string
	Name       string
	OracleText string
	ImageURL   string
	ManaCost   string
	Price      decimal.Decimal
	Rarity     string
	CreatedAt  time.Time
}

// OwnedCard はユーザーとカードの所有関係を表す。
// (UserID, CardID) ごとに一意で、OwnedCountは0以上。
type OwnedCard struct {
	UserID     string
	CardID     string
	OwnedCount int
}

// CardSummary はカタログ検索結果の1件を表す。
// 検索プロキシのレスポンスにのみ使用し、永続化はしない。
type CardSummary struct {
	ID       string
	Name     string
	ImageURL string
	ManaCost string
	Price    decimal.Decimal
	Rarity   string
}
