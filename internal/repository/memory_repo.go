package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/qanda/internal/model"
)

// MemoryRepository はインメモリのRepository実装。
// テストとストレージなしのローカル起動で使用する。
// Repositoryの契約（UPSERT冪等性、subject一意性、挿入順）を
// Postgres実装と同一に守る。
type MemoryRepository struct {
	mu sync.Mutex

	users     map[uuid.UUID]model.User
	subjects  map[string]uuid.UUID // provider subject -> user ID
	auths     map[uuid.UUID]model.Auth
	questions map[uuid.UUID]model.Question
	comments  []model.Comment
}

// NewMemoryRepository はMemoryRepositoryを生成する。
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:     make(map[uuid.UUID]model.User),
		subjects:  make(map[string]uuid.UUID),
		auths:     make(map[uuid.UUID]model.Auth),
		questions: make(map[uuid.UUID]model.Question),
	}
}

// RegisterUser は新規ユーザーを作成し、subjectに紐付ける。
func (r *MemoryRepository) RegisterUser(ctx context.Context, auth model.Auth) (*model.User, error) {
	if auth.Google == nil {
		return nil, fmt.Errorf("unsupported auth provider: %q", auth.Provider)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.subjects[auth.Google.Sub]; exists {
		return nil, &model.UserAlreadyExistsError{Auth: auth}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user ID: %w", err)
	}

	user := model.User{
		ID:        id,
		Email:     auth.Google.Email,
		Picture:   auth.Google.Picture,
		CreatedAt: time.Now(),
	}

	r.users[user.ID] = user
	r.subjects[auth.Google.Sub] = user.ID
	r.auths[user.ID] = auth

	return &user, nil
}

// DeleteUser は指定ユーザーと関連データを削除する。
func (r *MemoryRepository) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userID]; !ok {
		return fmt.Errorf("delete user %s: %w", userID, model.ErrUserNotFound)
	}

	delete(r.users, userID)
	if auth, ok := r.auths[userID]; ok {
		delete(r.subjects, auth.SubjectID())
		delete(r.auths, userID)
	}

	kept := r.comments[:0]
	for _, c := range r.comments {
		if c.OwnerID != userID {
			kept = append(kept, c)
		}
	}
	r.comments = kept

	return nil
}

// GetUserFromAuth は既存の紐付けからユーザーを解決する。
func (r *MemoryRepository) GetUserFromAuth(ctx context.Context, auth model.Auth) (*model.User, error) {
	if auth.Google == nil {
		return nil, fmt.Errorf("unsupported auth provider: %q", auth.Provider)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.subjects[auth.Google.Sub]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	user := r.users[id]
	return &user, nil
}

// GetUserFromID は指定IDのユーザーを取得する。
func (r *MemoryRepository) GetUserFromID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return &user, nil
}

// GetAuthFromUser はユーザーに紐付くAuthの逆引きを行う。
func (r *MemoryRepository) GetAuthFromUser(ctx context.Context, user *model.User) (model.Auth, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	auth, ok := r.auths[user.ID]
	if !ok {
		return model.Auth{}, model.ErrAuthNotFound
	}
	return auth, nil
}

// AddQuestion は決定的IDをキーに冪等なUPSERTを行う。
func (r *MemoryRepository) AddQuestion(ctx context.Context, document model.DocumentRef, position int, tags []string) (*model.Question, error) {
	q := model.Question{
		ID:         model.QuestionID(document, position),
		DocumentID: document.ID,
		Position:   position,
		Tags:       append([]string(nil), tags...),
	}

	r.mu.Lock()
	r.questions[q.ID] = q
	r.mu.Unlock()

	return &q, nil
}

// GetQuestion は指定IDのQuestionを取得する。
func (r *MemoryRepository) GetQuestion(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.questions[id]
	if !ok {
		return nil, model.ErrQuestionNotFound
	}
	return &q, nil
}

// AddComment は親にコメントを追加する。
func (r *MemoryRepository) AddComment(ctx context.Context, parent model.Commentable, owner *model.User, content string) (*model.Comment, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate comment ID: %w", err)
	}

	c := model.Comment{
		ID:        id,
		Parent:    parent,
		OwnerID:   owner.ID,
		Content:   content,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	r.comments = append(r.comments, c)
	r.mu.Unlock()

	return &c, nil
}

// GetCommentList は親に付いたコメントを挿入順で返す。
func (r *MemoryRepository) GetCommentList(ctx context.Context, parent model.Commentable) ([]model.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []model.Comment
	for _, c := range r.comments {
		if c.Parent == parent {
			result = append(result, c)
		}
	}
	return result, nil
}

// QuestionCount は保持しているQuestion数を返す。テスト用。
func (r *MemoryRepository) QuestionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.questions)
}

// compile-time interface check
var _ Repository = (*MemoryRepository)(nil)
