package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, catalog, market, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeCardNotFound      = "CARD_NOT_FOUND"
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInvalidCredential = "INVALID_CREDENTIALS"
	ErrCodeDuplicateUsername = "DUPLICATE_USERNAME"
	ErrCodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	ErrCodeTradeNotFound     = "TRADE_NOT_FOUND"
	ErrCodeCartEntryNotFound = "CART_ENTRY_NOT_FOUND"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeAlreadyInCart     = "ALREADY_IN_CART"
	ErrCodeStoreError        = "STORE_ERROR"
)

// NewCardNotFoundError はカタログでカードが見つからない場合のエラーを生成する。
// 外部カタログのタイムアウトや通信エラーもこのエラーに正規化される。
func NewCardNotFoundError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeCardNotFound,
		Message:  fmt.Sprintf("カードが見つかりませんでした: %s", name),
		Category: "catalog",
		Action:   "カード名の綴りを確認するか、別の検索語でお試しください。",
	}
}

// NewInvalidInputError は必須項目が欠けている場合のエラーを生成する。
func NewInvalidInputError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力が不正です: %s", field),
		Category: "validation",
		Action:   "必須項目をすべて入力してください。",
	}
}

// NewUnauthorizedError は未認証アクセスのエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError はログイン失敗のエラーを生成する。
// ユーザー名不存在とパスワード不一致は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredential,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewDuplicateUsernameError はユーザー名重複のエラーを生成する。
func NewDuplicateUsernameError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUsername,
		Message:  fmt.Sprintf("このユーザー名は既に使用されています: %s", username),
		Category: "validation",
		Action:   "別のユーザー名を選んでください。",
	}
}

// NewInsufficientFundsError は残高不足のエラーを生成する。
func NewInsufficientFundsError() *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientFunds,
		Message:  "残高が不足しています。",
		Category: "market",
		Action:   "カートの合計金額と残高を確認してください。",
	}
}

// NewTradeNotFoundError は出品が見つからない場合のエラーを生成する。
// 並行する購入で既に削除された出品へのチェックアウトもこのエラーになる。
func NewTradeNotFoundError(tradeID string) *APIError {
	return &APIError{
		Code:     ErrCodeTradeNotFound,
		Message:  fmt.Sprintf("指定された出品が見つかりません: %s", tradeID),
		Category: "market",
		Action:   "出品は既に購入または取り下げられた可能性があります。一覧を再読み込みしてください。",
	}
}

// NewCartEntryNotFoundError はカート項目が見つからない場合のエラーを生成する。
func NewCartEntryNotFoundError(tradeID string) *APIError {
	return &APIError{
		Code:     ErrCodeCartEntryNotFound,
		Message:  fmt.Sprintf("カートに該当する項目がありません: %s", tradeID),
		Category: "market",
		Action:   "カートの内容を再読み込みしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewAlreadyInCartError は同一カードのカート二重投入のエラーを生成する。
func NewAlreadyInCartError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyInCart,
		Message:  "このカードは既にカートに入っています。",
		Category: "market",
		Action:   "カートの内容を確認してください。",
	}
}

// NewStoreError は永続化層の失敗を表すエラーを生成する。
// 状態は変更されない（全ての複文更新はトランザクションで保護される）。
func NewStoreError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreError,
		Message:  "データの保存に失敗しました。変更は適用されていません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
