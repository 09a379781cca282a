package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/rhystic/internal/model"
)

// PostgresCardRepo はPostgreSQLを使用したカードリポジトリ。
type PostgresCardRepo struct {
	db *sql.DB
}

// NewPostgresCardRepo はPostgresCardRepoを生成する。
func NewPostgresCardRepo(db *sql.DB) *PostgresCardRepo {
	return &PostgresCardRepo{db: db}
}

// EnsureKnown はカードが未登録なら挿入する。登録済みの場合は何もしない。
// ON CONFLICT DO NOTHINGにより、同一IDでの二重呼び出しはエラーにも上書きにもならない。
func (r *PostgresCardRepo) EnsureKnown(ctx context.Context, card *model.Card) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cards (id, name, oracle_text, image_url, mana_cost, price, rarity, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		card.ID, card.Name, card.OracleText, card.ImageURL,
		card.ManaCost, card.Price, card.Rarity, card.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure card: %w", err)
	}
	return nil
}

// FindByID は指定IDのカードを取得する。見つからない場合はnilを返す。
func (r *PostgresCardRepo) FindByID(ctx context.Context, id string) (*model.Card, error) {
	card := &model.Card{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, oracle_text, image_url, mana_cost, price, rarity, created_at
		 FROM cards WHERE id = $1`,
		id,
	).Scan(&card.ID, &card.Name, &card.OracleText, &card.ImageURL,
		&card.ManaCost, &card.Price, &card.Rarity, &card.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find card: %w", err)
	}

	return card, nil
}

// compile-time interface check
var _ CardRepository = (*PostgresCardRepo)(nil)
