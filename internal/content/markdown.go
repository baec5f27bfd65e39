package content

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/hitoshi/qanda/internal/model"
)

// newMarkdown は取り込み用のgoldmark環境を構築する。
// コンテンツは著者自身が書くため、raw HTMLの通過を許可する。
func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			&questionExtension{},
		),
		goldmark.WithRendererOptions(
			gmhtml.WithUnsafe(),
		),
	)
}

// extractMetadata はドキュメント先頭付近のtomlフェンスコードブロックを
// メタデータとして取り出し、ASTから取り除く。ちょうど1つ存在することを
// 期待する。欠落・重複・パース失敗はそのドキュメントの取り込みエラーで
// あり、プロセス全体のエラーではない。
func extractMetadata(doc ast.Node, source []byte) (model.Metadata, error) {
	var meta model.Metadata
	var block *ast.FencedCodeBlock

	for child := doc.FirstChild(); child != nil; child = child.NextSibling() {
		fcb, ok := child.(*ast.FencedCodeBlock)
		if !ok {
			continue
		}
		if string(fcb.Language(source)) != "toml" {
			continue
		}
		if block != nil {
			return meta, fmt.Errorf("document has more than one toml metadata block")
		}
		block = fcb
	}

	if block == nil {
		return meta, fmt.Errorf("document has no toml metadata block")
	}

	var buf bytes.Buffer
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		buf.Write(segment.Value(source))
	}

	if err := toml.Unmarshal(buf.Bytes(), &meta); err != nil {
		return meta, fmt.Errorf("failed to parse metadata block: %w", err)
	}
	if meta.UUID == uuid.Nil {
		return meta, fmt.Errorf("metadata block is missing uuid")
	}

	// メタデータブロックは配信用HTMLに含めない
	doc.RemoveChild(doc, block)

	return meta, nil
}
