package highlight

import (
	"strings"
	"testing"
)

func TestFormatMessagePassesPlainTextThrough(t *testing.T) {
	out := FormatMessage("just some text\nmore text", "github-dark")
	if len(out) != 2 || out[0] != "just some text" || out[1] != "more text" {
		t.Fatalf("got %v", out)
	}
}

func TestFormatMessageHighlightsFencedBlock(t *testing.T) {
	text := "before\n```go\nfunc main() {}\n```\nafter"
	out := FormatMessage(text, "github-dark")

	if out[0] != "before" {
		t.Fatalf("out[0] = %q, want %q", out[0], "before")
	}
	if out[len(out)-1] != "after" {
		t.Fatalf("last line = %q, want %q", out[len(out)-1], "after")
	}
	body := strings.Join(out[1:len(out)-1], "\n")
	if !strings.Contains(body, "main") {
		t.Fatalf("highlighted body missing source text: %q", body)
	}
}

func TestHighlightUnknownLanguageReturnsTextUnchanged(t *testing.T) {
	text := "some code"
	if got := Highlight(text, "not-a-real-language", "github-dark", ""); got != text {
		t.Fatalf("got %q, want unchanged %q", got, text)
	}
}

func TestThemeBgReturnsHexOrEmpty(t *testing.T) {
	if bg := ThemeBg("not-a-real-theme"); bg != "" {
		t.Fatalf("unknown theme should yield no background, got %q", bg)
	}
}
