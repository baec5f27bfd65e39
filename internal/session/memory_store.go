package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hitoshi/qanda/internal/model"
)

// MemoryStore はインメモリのセッションストア。テスト用。
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]model.SessionRecord
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]model.SessionRecord)}
}

// Register は新しいセッションを発行する。
func (s *MemoryStore) Register(ctx context.Context) (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	s.mu.Lock()
	s.records[id] = model.SessionRecord{}
	s.mu.Unlock()

	return id, nil
}

// IsValid は指定IDのセッションが登録済みかを返す。
func (s *MemoryStore) IsValid(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	return ok, nil
}

// Get は指定IDのセッションレコードを取得する。
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (model.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return model.SessionRecord{}, model.ErrSessionNotFound
	}
	return record, nil
}

// Set はレコードを全置換で保存する。
func (s *MemoryStore) Set(ctx context.Context, id uuid.UUID, record model.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("set on unregistered session %s: %w", id, model.ErrSessionNotFound)
	}
	s.records[id] = record
	return nil
}

// Deregister はセッションを破棄する。
func (s *MemoryStore) Deregister(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// Count は登録済みセッション数を返す。テスト用。
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)
