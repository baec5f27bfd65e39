package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/qanda/internal/model"
)

// PostgresStore はPostgreSQLを使用したセッションストア。
// dataカラムはNULL許容で、NULLはレコード未設定（匿名セッション）を表す。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Register は新しいセッションを発行して永続化する。
func (s *PostgresStore) Register(ctx context.Context) (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at) VALUES ($1, $2)`,
		id, time.Now(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to register session: %w", err)
	}

	slog.Info("session registered", slog.String("session_id", id.String()))
	return id, nil
}

// IsValid は指定IDのセッションが登録済みかを返す。
func (s *PostgresStore) IsValid(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sessions WHERE id = $1`,
		id,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check session validity: %w", err)
	}
	return count == 1, nil
}

// Get は指定IDのセッションレコードを取得する。
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (model.SessionRecord, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM sessions WHERE id = $1`,
		id,
	).Scan(&data)

	if err == sql.ErrNoRows {
		return model.SessionRecord{}, model.ErrSessionNotFound
	}
	if err != nil {
		return model.SessionRecord{}, fmt.Errorf("failed to get session record: %w", err)
	}

	// dataがNULLのセッションはレコード未設定の匿名セッション
	if data == nil {
		return model.SessionRecord{}, nil
	}

	var record model.SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.SessionRecord{}, fmt.Errorf("failed to decode session record: %w", err)
	}
	return record, nil
}

// Set はレコードを全置換で保存する。
// 未登録IDへのSetはミドルウェアの不変条件違反なのでエラーを返す。
func (s *PostgresStore) Set(ctx context.Context, id uuid.UUID, record model.SessionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode session record: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET data = $1 WHERE id = $2`,
		data, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set session record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set on unregistered session %s: %w", id, model.ErrSessionNotFound)
	}

	return nil
}

// Deregister はセッションを破棄する。
func (s *PostgresStore) Deregister(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to deregister session: %w", err)
	}

	slog.Info("session deregistered", slog.String("session_id", id.String()))
	return nil
}

// compile-time interface check
var _ Store = (*PostgresStore)(nil)
