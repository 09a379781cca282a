package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/rhystic/internal/model"
)

// errCartInsertRace はAddToCartの初回挿入が並行呼び出しと衝突したことを表す内部シグナル。
// 一意制約違反を検知した側が増分パスで1回だけやり直す。
var errCartInsertRace = errors.New("cart insert race")

// PostgresMarketRepo はPostgreSQLを使用したカート・出品・チェックアウトのリポジトリ。
// 複文更新は全て単一トランザクションで実行し、部分コミットを起こさない。
type PostgresMarketRepo struct {
	db *sql.DB
}

// NewPostgresMarketRepo はPostgresMarketRepoを生成する。
func NewPostgresMarketRepo(db *sql.DB) *PostgresMarketRepo {
	return &PostgresMarketRepo{db: db}
}

// AddToCart はカートにカードを1枚追加する。
// 同一カードのカート項目が既にあればそのTradeの数量を+1し（価格は更新しない）、
// なければ新しいTradeとCartEntryを作成する。
// 増分の対象はカート起点のTradeに限る。カート内の同一カードが他ユーザーの
// 出品Tradeの場合、数量更新は出品そのものの改変になるためErrAlreadyInCartを返す。
// 並行する初回投入はcart_entries(user_id, card_id)の一意制約で直列化され、
// 負けた側は増分パスでやり直す。
func (r *PostgresMarketRepo) AddToCart(ctx context.Context, userID, cardID string, unitPrice decimal.Decimal) (*model.Trade, error) {
	trade, err := r.addToCartOnce(ctx, userID, cardID, unitPrice)
	if errors.Is(err, errCartInsertRace) {
		trade, err = r.addToCartOnce(ctx, userID, cardID, unitPrice)
	}
	return trade, err
}

func (r *PostgresMarketRepo) addToCartOnce(ctx context.Context, userID, cardID string, unitPrice decimal.Decimal) (*model.Trade, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 既存のカート項目を検索（Trade行をロックして数量更新と直列化する）
	trade := &model.Trade{CardID: cardID}
	var listed bool
	err = tx.QueryRowContext(ctx,
		`SELECT t.id, t.quantity, t.unit_price, t.created_at,
		        EXISTS (SELECT 1 FROM trade_ownerships tow WHERE tow.trade_id = t.id)
		 FROM cart_entries ce
		 JOIN trades t ON t.id = ce.trade_id
		 WHERE ce.user_id = $1 AND ce.card_id = $2
		 FOR UPDATE OF t`,
		userID, cardID,
	).Scan(&trade.ID, &trade.Quantity, &trade.UnitPrice, &trade.CreatedAt, &listed)

	switch {
	case err == nil:
		// Ownershipを持つTradeは出品であり、数量を書き換えてはならない
		if listed {
			return nil, ErrAlreadyInCart
		}
		// 増分パス: 数量のみ+1。価格は最後に検索した時点の値で更新しない。
		if _, err := tx.ExecContext(ctx,
			`UPDATE trades SET quantity = quantity + 1 WHERE id = $1`,
			trade.ID,
		); err != nil {
			return nil, fmt.Errorf("failed to increment trade quantity: %w", err)
		}
		trade.Quantity++

	case err == sql.ErrNoRows:
		// 新規パス: TradeとCartEntryを作成
		trade.ID = uuid.New().String()
		trade.Quantity = 1
		trade.UnitPrice = unitPrice
		trade.CreatedAt = time.Now()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trades (id, card_id, quantity, unit_price, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			trade.ID, trade.CardID, trade.Quantity, trade.UnitPrice, trade.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to insert trade: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cart_entries (user_id, trade_id, card_id, count)
			 VALUES ($1, $2, $3, 1)`,
			userID, trade.ID, trade.CardID,
		); err != nil {
			if isUniqueViolation(err) {
				return nil, errCartInsertRace
			}
			return nil, fmt.Errorf("failed to insert cart entry: %w", err)
		}

	default:
		return nil, fmt.Errorf("failed to find cart trade: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return trade, nil
}

// AddListedTradeToCart は出品ブラウズ上のTradeを買い手のカートに入れる。
func (r *PostgresMarketRepo) AddListedTradeToCart(ctx context.Context, userID, tradeID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Trade行をロックし、カート投入中の削除と競合しないようにする
	var cardID string
	err = tx.QueryRowContext(ctx,
		`SELECT card_id FROM trades WHERE id = $1 FOR UPDATE`,
		tradeID,
	).Scan(&cardID)
	if err == sql.ErrNoRows {
		return ErrTradeNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to find trade: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cart_entries (user_id, trade_id, card_id, count)
		 VALUES ($1, $2, $3, 1)`,
		userID, tradeID, cardID,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyInCart
		}
		return fmt.Errorf("failed to insert cart entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListCart はユーザーのカート内容をTrade・カード情報付きで返す。
// カート投入の新しい順で返す。
func (r *PostgresMarketRepo) ListCart(ctx context.Context, userID string) ([]CartItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.card_id, t.quantity, t.unit_price, t.created_at,
		        c.name, c.image_url, ce.count
		 FROM cart_entries ce
		 JOIN trades t ON t.id = ce.trade_id
		 JOIN cards c ON c.id = ce.card_id
		 WHERE ce.user_id = $1
		 ORDER BY t.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart: %w", err)
	}
	defer rows.Close()

	var items []CartItem
	for rows.Next() {
		var item CartItem
		if err := rows.Scan(
			&item.ID, &item.CardID, &item.Quantity, &item.UnitPrice, &item.CreatedAt,
			&item.CardName, &item.ImageURL, &item.Count,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cart items: %w", err)
	}

	return items, nil
}

// RemoveFromCart はカート項目とそのTradeを削除する。
// CartEntryの削除が0行だった場合はTrade行には一切触れずにErrCartEntryNotFoundを返す。
// これにより任意のtrade_idを指定して他人の出品を消す操作は成立しない。
func (r *PostgresMarketRepo) RemoveFromCart(ctx context.Context, userID, tradeID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM cart_entries WHERE user_id = $1 AND trade_id = $2`,
		userID, tradeID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete cart entry: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCartEntryNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM trades WHERE id = $1`,
		tradeID,
	); err != nil {
		return fmt.Errorf("failed to delete trade: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Checkout はカート内のTradeを購入する。
// 全ステップを単一トランザクションで実行し、残高検証はユーザー行をロックした上で
// トランザクション内で再実行する。同じTradeへの並行チェックアウトは
// Trade行のロックとCartEntry削除の行数確認で片方だけが成立する。
//
// リクエストが運んできたcardID・quantity・totalPriceはロック済みのTrade行と
// 突き合わせて検証し、不一致（出品が変化した）場合はErrTradeNotFoundで中断する。
func (r *PostgresMarketRepo) Checkout(ctx context.Context, userID, tradeID, cardID string, quantity int, totalPrice decimal.Decimal) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. ユーザー行をロックして残高を取得
	var balance decimal.Decimal
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM users WHERE id = $1 FOR UPDATE`,
		userID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return fmt.Errorf("user not found: %s", userID)
	}
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}

	// 2. Trade行をロックして取得（並行購入で既に消えていればここで中断）
	var (
		tradeCardID    string
		tradeQuantity  int
		tradeUnitPrice decimal.Decimal
	)
	err = tx.QueryRowContext(ctx,
		`SELECT card_id, quantity, unit_price FROM trades WHERE id = $1 FOR UPDATE`,
		tradeID,
	).Scan(&tradeCardID, &tradeQuantity, &tradeUnitPrice)
	if err == sql.ErrNoRows {
		return ErrTradeNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read trade: %w", err)
	}

	// 3. リクエスト内容とTrade行の突き合わせ
	expectedTotal := tradeUnitPrice.Mul(decimal.NewFromInt(int64(tradeQuantity)))
	if cardID != tradeCardID || quantity != tradeQuantity || !totalPrice.Equal(expectedTotal) {
		return ErrTradeNotFound
	}

	// 4. 残高の再検証
	if balance.LessThan(expectedTotal) {
		return ErrInsufficientFunds
	}

	// 5. CartEntryの削除（0行なら呼び出しユーザーのカートにない）
	result, err := tx.ExecContext(ctx,
		`DELETE FROM cart_entries WHERE user_id = $1 AND trade_id = $2`,
		userID, tradeID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete cart entry: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCartEntryNotFound
	}

	// 6. 所有カードの加算
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO owned_cards (user_id, card_id, owned_count)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, card_id)
		 DO UPDATE SET owned_count = owned_cards.owned_count + EXCLUDED.owned_count`,
		userID, tradeCardID, tradeQuantity,
	); err != nil {
		return fmt.Errorf("failed to upsert owned card: %w", err)
	}

	// 7. Tradeの削除（trade_ownershipsと他ユーザーのcart_entriesはCASCADE削除）
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM trades WHERE id = $1`,
		tradeID,
	); err != nil {
		return fmt.Errorf("failed to delete trade: %w", err)
	}

	// 8. 残高の減算
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET balance = balance - $2, updated_at = now() WHERE id = $1`,
		userID, expectedTotal,
	); err != nil {
		return fmt.Errorf("failed to debit balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// CreateTradeListing はTradeとTradeOwnershipを単一トランザクションで作成する。
// Ownership行のないTradeは一覧にも削除にも辿り着けない孤児になるため、
// 2つの挿入は必ず同時に成立させる。
func (r *PostgresMarketRepo) CreateTradeListing(ctx context.Context, sellerID, cardID string, quantity int, unitPrice decimal.Decimal) (*model.Trade, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	trade := &model.Trade{
		ID:        uuid.New().String(),
		CardID:    cardID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		CreatedAt: time.Now(),
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO trades (id, card_id, quantity, unit_price, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		trade.ID, trade.CardID, trade.Quantity, trade.UnitPrice, trade.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to insert trade: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO trade_ownerships (trade_id, user_id)
		 VALUES ($1, $2)`,
		trade.ID, sellerID,
	); err != nil {
		return nil, fmt.Errorf("failed to insert trade ownership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return trade, nil
}

// ListTrades は出品一覧をカード名・出品者名付きで作成日時の新しい順に返す。
// INNER JOINのため、Ownershipを持たないカート専用のTradeは含まれない。
func (r *PostgresMarketRepo) ListTrades(ctx context.Context) ([]model.TradeListing, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.card_id, t.quantity, t.unit_price, t.created_at,
		        c.name, u.username
		 FROM trades t
		 JOIN trade_ownerships tow ON tow.trade_id = t.id
		 JOIN users u ON u.id = tow.user_id
		 JOIN cards c ON c.id = t.card_id
		 ORDER BY t.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var listings []model.TradeListing
	for rows.Next() {
		var l model.TradeListing
		if err := rows.Scan(
			&l.ID, &l.CardID, &l.Quantity, &l.UnitPrice, &l.CreatedAt,
			&l.CardName, &l.SellerUsername,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trade listings: %w", err)
	}

	return listings, nil
}

// compile-time interface check
var _ MarketRepository = (*PostgresMarketRepo)(nil)
