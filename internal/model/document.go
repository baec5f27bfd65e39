package model

import (
	"time"

	"github.com/google/uuid"
)

// Metadata はドキュメントに埋め込まれたメタデータブロックを表す。
// 著者がドキュメントの先頭付近にTOMLブロックとして1つだけ宣言する。
type Metadata struct {
	UUID  uuid.UUID `toml:"uuid" json:"uuid"`
	Title string    `toml:"title" json:"title"`
	Tags  []string  `toml:"tags" json:"tags"`
}

// Document は取り込み済みドキュメントのインメモリ表現。
// 取り込み時に生成され、ソース変更時は全置換される。部分更新はしない。
type Document struct {
	ID       uuid.UUID
	HTML     string
	Metadata Metadata
	Path     string
	LoadedAt time.Time
}
