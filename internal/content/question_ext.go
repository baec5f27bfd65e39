package content

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// questionMarker は設問ブロックの開始フェンス。
// ブロックローカルのタグをスペース区切りで続けられる:
//
//	:::question tag1 tag2
//	本文（通常のmarkdown）
//	:::
var (
	questionMarker = []byte(":::question")
	closingFence   = []byte(":::")
)

// QuestionBlock は設問ブロックのASTノード。
// パース時にはBlockTagsのみが埋まり、Position/QuestionID/Tagsは
// 取り込みパイプラインがリポジトリ登録後に注釈として書き込む。
type QuestionBlock struct {
	ast.BaseBlock

	// BlockTags は開始フェンスに書かれたブロックローカルのタグ。
	BlockTags []string

	// 以下は取り込み時の注釈。レンダラーが属性として出力する。
	Position   int
	QuestionID uuid.UUID
	Tags       []string
}

// KindQuestionBlock はQuestionBlockのノード種別。
var KindQuestionBlock = ast.NewNodeKind("QuestionBlock")

// Kind はノード種別を返す。
func (n *QuestionBlock) Kind() ast.NodeKind {
	return KindQuestionBlock
}

// Dump はデバッグ用にノードをダンプする。
func (n *QuestionBlock) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"BlockTags": strings.Join(n.BlockTags, " "),
	}, nil)
}

// questionBlockParser は :::question フェンスをパースするブロックパーサー。
type questionBlockParser struct{}

func (p *questionBlockParser) Trigger() []byte {
	return []byte{':'}
}

func (p *questionBlockParser) Open(parent ast.Node, reader text.Reader, pc parser.Context) (ast.Node, parser.State) {
	line, _ := reader.PeekLine()
	if !bytes.HasPrefix(line, questionMarker) {
		return nil, parser.NoChildren
	}

	rest := bytes.TrimSpace(line[len(questionMarker):])
	node := &QuestionBlock{BlockTags: splitTags(rest)}
	reader.Advance(len(line) - 1)
	return node, parser.HasChildren
}

func (p *questionBlockParser) Continue(node ast.Node, reader text.Reader, pc parser.Context) parser.State {
	line, _ := reader.PeekLine()
	if bytes.Equal(bytes.TrimSpace(line), closingFence) {
		reader.Advance(len(line) - 1)
		return parser.Close
	}
	return parser.Continue | parser.HasChildren
}

func (p *questionBlockParser) Close(node ast.Node, reader text.Reader, pc parser.Context) {}

func (p *questionBlockParser) CanInterruptParagraph() bool {
	return true
}

func (p *questionBlockParser) CanAcceptIndentedLine() bool {
	return false
}

// splitTags はフェンス残部をスペース区切りのタグ列として分解する。
func splitTags(rest []byte) []string {
	if len(rest) == 0 {
		return nil
	}
	return strings.Fields(string(rest))
}

// questionHTMLRenderer はQuestionBlockをHTMLのdivとして描画する。
// 注釈済みの属性（位置、決定的ID、マージ済みタグ）をdata属性に出力し、
// フロントエンドのスクリプトがAPIと突き合わせられるようにする。
type questionHTMLRenderer struct{}

func (r *questionHTMLRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindQuestionBlock, r.renderQuestionBlock)
}

func (r *questionHTMLRenderer) renderQuestionBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*QuestionBlock)
	if entering {
		fmt.Fprintf(w, "<div class=\"question\" id=\"q%d\" data-position=\"%d\" data-id=\"%s\" data-tags=\"%s\">\n",
			n.Position, n.Position, n.QuestionID, html.EscapeString(strings.Join(n.Tags, ",")))
	} else {
		_, _ = w.WriteString("</div>\n")
	}
	return ast.WalkContinue, nil
}

// questionExtension は設問ブロックのパーサーとレンダラーを
// goldmark環境へ登録するExtender。
type questionExtension struct{}

func (e *questionExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithBlockParsers(util.Prioritized(&questionBlockParser{}, 100)),
	)
	m.Renderer().AddOptions(
		renderer.WithNodeRenderers(util.Prioritized(&questionHTMLRenderer{}, 100)),
	)
}
