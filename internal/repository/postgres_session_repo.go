package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/rhystic/internal/model"
)

// sessionData はsessions.data JSONB列の構造。
// フラッシュメッセージ以外の状態は持たせない（ユーザー情報は毎回DBから再取得する）。
type sessionData struct {
	Flash string `json:"flash,omitempty"`
}

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, data, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.UserID, []byte("{}"), session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, data, expires_at, created_at
		 FROM sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &session.UserID, &raw, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	var data sessionData
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to decode session data: %w", err)
		}
	}
	session.Flash = data.Flash

	return session, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// SetFlash はセッションに1回限りの通知メッセージを設定する。
func (r *PostgresSessionRepo) SetFlash(ctx context.Context, id, message string) error {
	raw, err := json.Marshal(sessionData{Flash: message})
	if err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE sessions SET data = $2 WHERE id = $1`,
		id, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to set flash: %w", err)
	}
	return nil
}

// PopFlash は通知メッセージを取得して消費する。未設定なら空文字列を返す。
// 消費前の値の取得と消去を単一文で行い、二重表示を防ぐ。
// RETURNINGは更新後の行を返すため、消費前の値はCTEで運搬する。
func (r *PostgresSessionRepo) PopFlash(ctx context.Context, id string) (string, error) {
	var flash sql.NullString
	err := r.db.QueryRowContext(ctx,
		`WITH old AS (
		     SELECT id, data->>'flash' AS flash FROM sessions WHERE id = $1 FOR UPDATE
		 )
		 UPDATE sessions s SET data = s.data - 'flash'
		 FROM old
		 WHERE s.id = old.id
		 RETURNING old.flash`,
		id,
	).Scan(&flash)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to pop flash: %w", err)
	}

	return flash.String, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
