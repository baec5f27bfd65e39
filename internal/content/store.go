package content

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/hitoshi/qanda/internal/model"
)

// Store は取り込み済みドキュメントの共有インメモリテーブル。
// 読み取り（配信）は並行に走り、書き込みは値の差し替えのみで完了する。
// パースやI/Oをロック中に行ってはならない。
type Store struct {
	mu   sync.RWMutex
	docs map[uuid.UUID]*model.Document
}

// NewStore は空のStoreを生成する。
func NewStore() *Store {
	return &Store{docs: make(map[uuid.UUID]*model.Document)}
}

// Replace はドキュメントのエントリを全置換する。フィールド単位の
// マージはしない。初回登録も再取り込みも同じ操作で扱う。
func (s *Store) Replace(doc *model.Document) {
	s.mu.Lock()
	s.docs[doc.ID] = doc
	s.mu.Unlock()
}

// Get は指定IDのドキュメントを返す。
func (s *Store) Get(id uuid.UUID) (*model.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	return doc, ok
}

// List は全ドキュメントをタイトル順で返す。
func (s *Store) List() []*model.Document {
	s.mu.RLock()
	docs := make([]*model.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Metadata.Title != docs[j].Metadata.Title {
			return docs[i].Metadata.Title < docs[j].Metadata.Title
		}
		return docs[i].ID.String() < docs[j].ID.String()
	})
	return docs
}

// Paths は現在ロード済みの全ドキュメントの正規化済みソースパスを返す。
// 変更通知との突き合わせに使う。
func (s *Store) Paths() map[string]uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make(map[string]uuid.UUID, len(s.docs))
	for id, doc := range s.docs {
		paths[doc.Path] = id
	}
	return paths
}

// Count はロード済みドキュメント数を返す。
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
