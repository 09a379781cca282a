// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User はマーケットプレイスの利用ユーザーを表す。
// Balanceはチェックアウト時のみ減算され、0未満にはならない
// （DBのCHECK制約とトランザクション内の再検証の両方で保証する）。
type User struct {
	ID           string
	Name         string
	Username     string
	Email        string
	PasswordHash string
	Balance      decimal.Decimal
	AvatarURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
// セッションは不透明なIDのみを保持し、ユーザー情報は毎リクエストDBから再取得する。
// Flashは1回限りの通知メッセージで、読み出し時に消費される。
type Session struct {
	ID        string
	UserID    string
	Flash     string
	ExpiresAt time.Time
	CreatedAt time.Time
}
