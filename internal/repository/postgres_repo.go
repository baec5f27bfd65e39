package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/qanda/internal/model"
)

// PostgresRepository はPostgreSQLを使用したRepository実装。
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository はPostgresRepositoryを生成する。
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// RegisterUser は新規ユーザーを作成し、Google identityに紐付ける。
// identityの挿入はON CONFLICT DO NOTHINGで行い、影響行数が0の場合は
// 同一subjectの並行登録とみなしてロールバックする。同一subjectに対して
// 2ユーザーが作られることはストレージの一意性制約が防ぐ。
func (r *PostgresRepository) RegisterUser(ctx context.Context, auth model.Auth) (*model.User, error) {
	if auth.Google == nil {
		return nil, fmt.Errorf("unsupported auth provider: %q", auth.Provider)
	}
	gu := auth.Google

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user ID: %w", err)
	}

	user := &model.User{
		ID:        id,
		Email:     gu.Email,
		Picture:   gu.Picture,
		CreatedAt: time.Now(),
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, picture, created_at)
		 VALUES ($1, $2, $3, $4)`,
		user.ID, user.Email, user.Picture, user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO google_identities (sub, user_id, name, given_name, picture, email, email_verified, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (sub) DO NOTHING`,
		gu.Sub, user.ID, gu.Name, gu.GivenName, gu.Picture, gu.Email, gu.EmailVerified, user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert identity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		// subjectは既に別ユーザーに紐付いている
		return nil, &model.UserAlreadyExistsError{Auth: auth}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return user, nil
}

// DeleteUser は指定ユーザーを削除する。
// 関連するgoogle_identities、commentsはCASCADE削除される。
func (r *PostgresRepository) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete user %s: %w", userID, model.ErrUserNotFound)
	}
	return nil
}

// GetUserFromAuth は既存の紐付けからユーザーを解決する。
func (r *PostgresRepository) GetUserFromAuth(ctx context.Context, auth model.Auth) (*model.User, error) {
	if auth.Google == nil {
		return nil, fmt.Errorf("unsupported auth provider: %q", auth.Provider)
	}

	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.picture, u.created_at
		 FROM google_identities gi
		 INNER JOIN users u ON u.id = gi.user_id
		 WHERE gi.sub = $1`,
		auth.Google.Sub,
	).Scan(&user.ID, &user.Email, &user.Picture, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by auth: %w", err)
	}

	return user, nil
}

// GetUserFromID は指定IDのユーザーを取得する。
func (r *PostgresRepository) GetUserFromID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, picture, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &user.Picture, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// GetAuthFromUser はユーザーに紐付くGoogleプロフィールの逆引きを行う。
func (r *PostgresRepository) GetAuthFromUser(ctx context.Context, user *model.User) (model.Auth, error) {
	gu := model.GoogleUser{}
	err := r.db.QueryRowContext(ctx,
		`SELECT sub, name, given_name, picture, email, email_verified
		 FROM google_identities
		 WHERE user_id = $1`,
		user.ID,
	).Scan(&gu.Sub, &gu.Name, &gu.GivenName, &gu.Picture, &gu.Email, &gu.EmailVerified)

	if err == sql.ErrNoRows {
		return model.Auth{}, model.ErrAuthNotFound
	}
	if err != nil {
		return model.Auth{}, fmt.Errorf("failed to find auth by user: %w", err)
	}

	return model.NewGoogleAuth(gu), nil
}

// AddQuestion は決定的IDをキーに冪等なUPSERTを行う。
// (document_id, position) の一意性はIDの決定性から従う。
func (r *PostgresRepository) AddQuestion(ctx context.Context, document model.DocumentRef, position int, tags []string) (*model.Question, error) {
	q := &model.Question{
		ID:         model.QuestionID(document, position),
		DocumentID: document.ID,
		Position:   position,
		Tags:       tags,
	}

	tagsJSON, err := json.Marshal(q.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO questions (id, document_id, position, tags)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET tags = EXCLUDED.tags`,
		q.ID, q.DocumentID, q.Position, tagsJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert question: %w", err)
	}

	return q, nil
}

// GetQuestion は指定IDのQuestionを取得する。
func (r *PostgresRepository) GetQuestion(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q := &model.Question{}
	var tagsJSON []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT id, document_id, position, tags FROM questions WHERE id = $1`,
		id,
	).Scan(&q.ID, &q.DocumentID, &q.Position, &tagsJSON)

	if err == sql.ErrNoRows {
		return nil, model.ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find question: %w", err)
	}

	if err := json.Unmarshal(tagsJSON, &q.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}

	return q, nil
}

// AddComment は親にコメントを追加する。
func (r *PostgresRepository) AddComment(ctx context.Context, parent model.Commentable, owner *model.User, content string) (*model.Comment, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate comment ID: %w", err)
	}

	c := &model.Comment{
		ID:        id,
		Parent:    parent,
		OwnerID:   owner.ID,
		Content:   content,
		CreatedAt: time.Now(),
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO comments (id, parent_kind, parent_id, owner_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, string(c.Parent.Kind), c.Parent.ID, c.OwnerID, c.Content, c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert comment: %w", err)
	}

	return c, nil
}

// GetCommentList は親に付いたコメントを挿入順で返す。
func (r *PostgresRepository) GetCommentList(ctx context.Context, parent model.Commentable) ([]model.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, parent_kind, parent_id, owner_id, content, created_at
		 FROM comments
		 WHERE parent_kind = $1 AND parent_id = $2
		 ORDER BY seq ASC`,
		string(parent.Kind), parent.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []model.Comment
	for rows.Next() {
		var c model.Comment
		var kind string
		if err := rows.Scan(&c.ID, &kind, &c.Parent.ID, &c.OwnerID, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		c.Parent.Kind = model.CommentableKind(kind)
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}

	return comments, nil
}

// compile-time interface check
var _ Repository = (*PostgresRepository)(nil)
