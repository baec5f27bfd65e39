package content

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/hitoshi/qanda/internal/model"
	"github.com/hitoshi/qanda/internal/repository"
)

const testDocUUID = "b3a2c60e-33f1-4f20-9c2d-8f53a33c91aa"

const testDocSource = "# タイトル\n" +
	"\n" +
	"```toml\n" +
	"uuid = \"" + testDocUUID + "\"\n" +
	"title = \"First Post\"\n" +
	"tags = [\"a\"]\n" +
	"```\n" +
	"\n" +
	"本文の段落。\n" +
	"\n" +
	":::question bb\n" +
	"最初の設問です。\n" +
	":::\n" +
	"\n" +
	"途中の段落。\n" +
	"\n" +
	":::question\n" +
	"2番目の設問です。\n" +
	":::\n"

func writeTestDoc(t *testing.T, dir, name, source string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatalf("failed to write test doc: %v", err)
	}
	return path
}

// questionDivs はレンダリング済みHTMLからclass="question"のdivを
// 文書順に取り出す。
func questionDivs(t *testing.T, rendered string) []map[string]string {
	t.Helper()
	root, err := html.Parse(strings.NewReader(rendered))
	if err != nil {
		t.Fatalf("failed to parse rendered HTML: %v", err)
	}

	var divs []map[string]string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "div" {
			attrs := make(map[string]string, len(n.Attr))
			for _, a := range n.Attr {
				attrs[a.Key] = a.Val
			}
			if attrs["class"] == "question" {
				divs = append(divs, attrs)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return divs
}

func TestPipeline_IngestOne_RendersAnnotatedQuestionDivs(t *testing.T) {
	repo := repository.NewMemoryRepository()
	store := NewStore()
	pipeline := NewPipeline(repo, store, nil)

	path := writeTestDoc(t, t.TempDir(), "post.md", testDocSource)

	doc, err := pipeline.IngestOne(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestOne() error = %v", err)
	}

	if doc.ID != uuid.MustParse(testDocUUID) {
		t.Errorf("document ID = %s, want %s", doc.ID, testDocUUID)
	}
	if doc.Metadata.Title != "First Post" {
		t.Errorf("title = %q, want %q", doc.Metadata.Title, "First Post")
	}

	divs := questionDivs(t, doc.HTML)
	if len(divs) != 2 {
		t.Fatalf("question div count = %d, want 2", len(divs))
	}

	ref := model.DocumentRef{ID: doc.ID}
	for position, div := range divs {
		if div["data-position"] != strconv.Itoa(position) {
			t.Errorf("div %d data-position = %q", position, div["data-position"])
		}
		wantID := model.QuestionID(ref, position).String()
		if div["data-id"] != wantID {
			t.Errorf("div %d data-id = %q, want %q", position, div["data-id"], wantID)
		}
	}

	// ドキュメントタグとブロックタグのマージ（文字列長順）
	if divs[0]["data-tags"] != "a,bb" {
		t.Errorf("q0 data-tags = %q, want %q", divs[0]["data-tags"], "a,bb")
	}
	if divs[1]["data-tags"] != "a" {
		t.Errorf("q1 data-tags = %q, want %q", divs[1]["data-tags"], "a")
	}

	if divs[0]["id"] != "q0" || divs[1]["id"] != "q1" {
		t.Errorf("div ids = %q, %q, want q0, q1", divs[0]["id"], divs[1]["id"])
	}
}

func TestPipeline_IngestOne_RemovesMetadataBlock(t *testing.T) {
	repo := repository.NewMemoryRepository()
	pipeline := NewPipeline(repo, NewStore(), nil)

	path := writeTestDoc(t, t.TempDir(), "post.md", testDocSource)

	doc, err := pipeline.IngestOne(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestOne() error = %v", err)
	}

	if strings.Contains(doc.HTML, testDocUUID) {
		t.Error("metadata block must not appear in the rendered HTML")
	}
}

func TestPipeline_IngestOne_MissingMetadata_Fails(t *testing.T) {
	repo := repository.NewMemoryRepository()
	store := NewStore()
	pipeline := NewPipeline(repo, store, nil)

	path := writeTestDoc(t, t.TempDir(), "broken.md", "# no metadata\n\njust text\n")

	if _, err := pipeline.IngestOne(context.Background(), path); err == nil {
		t.Fatal("expected error for a document without a metadata block")
	}
	if store.Count() != 0 {
		t.Error("failed ingestion must not publish a document")
	}
}

func TestPipeline_IngestOne_DuplicateMetadata_Fails(t *testing.T) {
	repo := repository.NewMemoryRepository()
	store := NewStore()
	pipeline := NewPipeline(repo, store, nil)

	source := testDocSource +
		"\n" +
		"```toml\n" +
		"uuid = \"" + testDocUUID + "\"\n" +
		"title = \"Second Block\"\n" +
		"```\n"
	path := writeTestDoc(t, t.TempDir(), "duplicated.md", source)

	if _, err := pipeline.IngestOne(context.Background(), path); err == nil {
		t.Fatal("expected error for a document with two metadata blocks")
	}
	if store.Count() != 0 {
		t.Error("failed ingestion must not publish a document")
	}
}

func TestPipeline_ReIngest_KeepsQuestionIdentity(t *testing.T) {
	repo := repository.NewMemoryRepository()
	store := NewStore()
	pipeline := NewPipeline(repo, store, nil)

	path := writeTestDoc(t, t.TempDir(), "post.md", testDocSource)
	ctx := context.Background()

	first, err := pipeline.IngestOne(ctx, path)
	if err != nil {
		t.Fatalf("first IngestOne() error = %v", err)
	}
	second, err := pipeline.IngestOne(ctx, path)
	if err != nil {
		t.Fatalf("second IngestOne() error = %v", err)
	}

	// 再取り込みしても設問は増えず、同じIDにUPSERTされる
	if repo.QuestionCount() != 2 {
		t.Errorf("question count after re-ingest = %d, want 2", repo.QuestionCount())
	}
	if store.Count() != 1 {
		t.Errorf("document count after re-ingest = %d, want 1", store.Count())
	}
	if first.ID != second.ID {
		t.Errorf("document identity changed across re-ingest: %s != %s", first.ID, second.ID)
	}
}

func TestPipeline_ScanAll_SkipsBrokenDocuments(t *testing.T) {
	repo := repository.NewMemoryRepository()
	store := NewStore()
	pipeline := NewPipeline(repo, store, nil)

	dir := t.TempDir()
	writeTestDoc(t, dir, "good.md", testDocSource)
	writeTestDoc(t, dir, "broken.md", "no metadata here\n")
	writeTestDoc(t, dir, "notes.txt", "not markdown\n")

	if err := pipeline.ScanAll(context.Background(), dir); err != nil {
		t.Fatalf("ScanAll() error = %v", err)
	}

	if store.Count() != 1 {
		t.Errorf("document count = %d, want 1 (broken and non-md skipped)", store.Count())
	}
}

func TestMergeTags(t *testing.T) {
	tests := []struct {
		name      string
		docTags   []string
		blockTags []string
		want      []string
	}{
		{
			name:      "dedup and length sort",
			docTags:   []string{"golang", "db"},
			blockTags: []string{"db", "a"},
			want:      []string{"a", "db", "golang"},
		},
		{
			name:      "equal length keeps first-seen order",
			docTags:   []string{"bb", "aa"},
			blockTags: []string{"cc"},
			want:      []string{"bb", "aa", "cc"},
		},
		{
			name:    "empty block tags",
			docTags: []string{"x"},
			want:    []string{"x"},
		},
		{
			name: "both empty",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeTags(tt.docTags, tt.blockTags)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MergeTags(%v, %v) = %v, want %v", tt.docTags, tt.blockTags, got, tt.want)
			}
		})
	}
}
