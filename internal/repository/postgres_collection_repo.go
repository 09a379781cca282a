package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresCollectionRepo はPostgreSQLを使用した所有カードリポジトリ。
type PostgresCollectionRepo struct {
	db *sql.DB
}

// NewPostgresCollectionRepo はPostgresCollectionRepoを生成する。
func NewPostgresCollectionRepo(db *sql.DB) *PostgresCollectionRepo {
	return &PostgresCollectionRepo{db: db}
}

// UpsertOwned は所有カードを冪等に加算する。
// 「存在確認してから分岐」ではなく単一のUPSERT文で行い、並行加算でも取りこぼさない。
func (r *PostgresCollectionRepo) UpsertOwned(ctx context.Context, userID, cardID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive: %d", quantity)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO owned_cards (user_id, card_id, owned_count)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, card_id)
		 DO UPDATE SET owned_count = owned_cards.owned_count + EXCLUDED.owned_count`,
		userID, cardID, quantity,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert owned card: %w", err)
	}
	return nil
}

// ListByUserID はユーザーの所有カード一覧をカード情報付きで返す。
// カード名の昇順で返す。
func (r *PostgresCollectionRepo) ListByUserID(ctx context.Context, userID string) ([]OwnedCardDetail, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.oracle_text, c.image_url, c.mana_cost, c.price, c.rarity, c.created_at,
		        oc.owned_count
		 FROM owned_cards oc
		 JOIN cards c ON c.id = oc.card_id
		 WHERE oc.user_id = $1
		 ORDER BY c.name ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned cards: %w", err)
	}
	defer rows.Close()

	var details []OwnedCardDetail
	for rows.Next() {
		var d OwnedCardDetail
		if err := rows.Scan(
			&d.ID, &d.Name, &d.OracleText, &d.ImageURL, &d.ManaCost, &d.Price, &d.Rarity, &d.CreatedAt,
			&d.OwnedCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan owned card: %w", err)
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate owned cards: %w", err)
	}

	return details, nil
}

// compile-time interface check
var _ CollectionRepository = (*PostgresCollectionRepo)(nil)
