package security

import (
	"strings"
	"testing"
)

func TestSanitize_RemovesScriptContent(t *testing.T) {
	s := NewCommentSanitizer()

	got := s.Sanitize(`before<script>alert("xss")</script>after`)

	if strings.Contains(got, "<script") || strings.Contains(got, "alert") {
		t.Errorf("script content must be removed, got %q", got)
	}
	if !strings.Contains(got, "before") || !strings.Contains(got, "after") {
		t.Errorf("surrounding text must survive, got %q", got)
	}
}

func TestSanitize_RemovesEventAttributes(t *testing.T) {
	s := NewCommentSanitizer()

	got := s.Sanitize(`<p onclick="alert(1)">text</p>`)

	if strings.Contains(got, "onclick") {
		t.Errorf("event attributes must be removed, got %q", got)
	}
	if !strings.Contains(got, "<p>text</p>") {
		t.Errorf("allowed tag must survive without attributes, got %q", got)
	}
}

func TestSanitize_KeepsAllowedFormatting(t *testing.T) {
	s := NewCommentSanitizer()

	in := "<strong>bold</strong> and <code>code</code>"
	if got := s.Sanitize(in); got != in {
		t.Errorf("Sanitize(%q) = %q, want unchanged", in, got)
	}
}

func TestSanitize_RemovesImages(t *testing.T) {
	s := NewCommentSanitizer()

	got := s.Sanitize(`<img src="https://example.com/a.png">text`)
	if strings.Contains(got, "<img") {
		t.Errorf("img must be removed from comments, got %q", got)
	}
}

func TestSanitize_LinksGetSafeAttributes(t *testing.T) {
	s := NewCommentSanitizer()

	got := s.Sanitize(`<a href="https://example.com">link</a>`)

	if !strings.Contains(got, `target="_blank"`) {
		t.Errorf("links must open in a new tab, got %q", got)
	}
	if !strings.Contains(got, "noopener") || !strings.Contains(got, "noreferrer") {
		t.Errorf("links must carry rel=noopener noreferrer, got %q", got)
	}
}

func TestSanitize_TrimsWhitespace(t *testing.T) {
	s := NewCommentSanitizer()

	if got := s.Sanitize("  hello  \n"); got != "hello" {
		t.Errorf("Sanitize should trim surrounding whitespace, got %q", got)
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	s := NewCommentSanitizer()

	in := `<p>text <a href="https://example.com">link</a></p>`
	once := s.Sanitize(in)
	twice := s.Sanitize(once)
	if once != twice {
		t.Errorf("Sanitize must be idempotent: %q != %q", once, twice)
	}
}
