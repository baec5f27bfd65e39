// Package content はmarkdownドキュメントの取り込みパイプラインを提供する。
// 起動時のスキャンとファイル変更時の再取り込みで、設問ブロックを
// リポジトリへ永続化しつつ、配信用HTMLを共有ドキュメントテーブルへ
// 全置換で公開する。
package content

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/hitoshi/qanda/internal/metrics"
	"github.com/hitoshi/qanda/internal/model"
	"github.com/hitoshi/qanda/internal/repository"
)

// Pipeline はドキュメント取り込みの全工程を束ねる。
// パースとリポジトリ登録はロックの外で行い、テーブルへの公開は
// Storeの全置換のみで完了する。
type Pipeline struct {
	repo      repository.Repository
	store     *Store
	md        goldmark.Markdown
	collector *metrics.Collector
}

// NewPipeline はPipelineを生成する。collectorはnilでもよい。
func NewPipeline(repo repository.Repository, store *Store, collector *metrics.Collector) *Pipeline {
	return &Pipeline{
		repo:      repo,
		store:     store,
		md:        newMarkdown(),
		collector: collector,
	}
}

// IngestOne は1つのmarkdownファイルを取り込み、ドキュメントテーブルへ
// 公開する。工程:
//
//  1. パースしてtomlメタデータブロックを取り出す（必須）。
//  2. 設問ブロックを文書順に走査し、位置0から採番する。ドキュメントの
//     タグとブロックローカルのタグをマージ・重複排除・文字列長順で
//     整列し、リポジトリへ冪等UPSERTする。
//  3. 登録結果（決定的ID、位置、タグ）をブロックに注釈し、HTMLへ描画する。
//  4. Documentを組み立ててテーブルのエントリを全置換する。
//
// 失敗時はテーブルを変更しない。既存バージョンがあればそのまま配信される。
func (p *Pipeline) IngestOne(ctx context.Context, path string) (*model.Document, error) {
	started := time.Now()
	doc, err := p.ingestOne(ctx, path)
	p.collector.RecordIngest(err == nil, time.Since(started))
	if err != nil {
		return nil, err
	}

	p.store.Replace(doc)
	slog.Info("document ingested",
		slog.String("document_id", doc.ID.String()),
		slog.String("path", path),
	)
	return doc, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, path string) (*model.Document, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	root := p.md.Parser().Parse(text.NewReader(source))

	meta, err := extractMetadata(root, source)
	if err != nil {
		return nil, fmt.Errorf("failed to ingest %s: %w", path, err)
	}

	if err := p.registerQuestions(ctx, root, meta); err != nil {
		return nil, fmt.Errorf("failed to ingest %s: %w", path, err)
	}

	var buf bytes.Buffer
	if err := p.md.Renderer().Render(&buf, source, root); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", path, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	return &model.Document{
		ID:       meta.UUID,
		HTML:     buf.String(),
		Metadata: meta,
		Path:     absPath,
		LoadedAt: time.Now(),
	}, nil
}

// registerQuestions は設問ブロックを文書順に採番・登録し、
// 描画用の注釈を書き込む。
func (p *Pipeline) registerQuestions(ctx context.Context, root ast.Node, meta model.Metadata) error {
	var blocks []*QuestionBlock
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if qb, ok := n.(*QuestionBlock); ok {
			blocks = append(blocks, qb)
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return err
	}

	ref := model.DocumentRef{ID: meta.UUID}
	for position, qb := range blocks {
		tags := MergeTags(meta.Tags, qb.BlockTags)

		question, err := p.repo.AddQuestion(ctx, ref, position, tags)
		if err != nil {
			return fmt.Errorf("failed to register question at position %d: %w", position, err)
		}
		p.collector.RecordQuestionUpserted()

		qb.Position = question.Position
		qb.QuestionID = question.ID
		qb.Tags = question.Tags
	}
	return nil
}

// ScanAll はルート直下および配下の*.mdを全て取り込む。
// サーバーがリクエストを受け付ける前に呼ぶこと。個別ドキュメントの
// 失敗はログに残してスキップし、残りの取り込みを続行する。
func (p *Pipeline) ScanAll(ctx context.Context, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}
		if _, err := p.IngestOne(ctx, path); err != nil {
			slog.Error("failed to ingest document, skipping",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
		return nil
	})
}

// MergeTags はドキュメントのタグとブロックローカルのタグをマージし、
// 重複を除去して文字列長順（安定）で返す。長さ順は表示上の都合であり、
// 消費側が依存してよい意味的な順序ではない。
func MergeTags(docTags, blockTags []string) []string {
	seen := make(map[string]struct{}, len(docTags)+len(blockTags))
	merged := make([]string, 0, len(docTags)+len(blockTags))
	for _, tag := range append(append([]string{}, docTags...), blockTags...) {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		merged = append(merged, tag)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return len(merged[i]) < len(merged[j])
	})
	return merged
}
