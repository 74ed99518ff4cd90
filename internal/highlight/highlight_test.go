package highlight

import (
	"strings"
	"testing"
)

func TestSearch_CaseInsensitive(t *testing.T) {
	in := "Hello there\nsecond hello\n"
	res := Search(in, "hello", func(s string) string { return "[[" + s + "]]" })

	if res.Count != 2 {
		t.Fatalf("expected 2 matches, got %d", res.Count)
	}
	if len(res.Lines) != 2 || res.Lines[0] != 0 || res.Lines[1] != 1 {
		t.Fatalf("unexpected match lines: %#v", res.Lines)
	}
	if !strings.Contains(res.Text, "[[Hello]]") || !strings.Contains(res.Text, "[[hello]]") {
		t.Fatalf("marker not applied: %q", res.Text)
	}
}

func TestSearch_EmptyQueryPassesThrough(t *testing.T) {
	in := "unchanged \x1b[31mcontent\x1b[0m"
	res := Search(in, "  ", func(s string) string { return "<" + s + ">" })
	if res.Text != in || res.Count != 0 {
		t.Fatalf("expected pass-through, got %q count=%d", res.Text, res.Count)
	}
}

func TestSearch_PreservesEscapeSequences(t *testing.T) {
	in := "a \x1b[31mhello\x1b[0m b"
	res := Search(in, "hello", func(s string) string { return "<" + s + ">" })

	if res.Count != 1 {
		t.Fatalf("expected 1 match, got %d", res.Count)
	}
	if !strings.Contains(res.Text, "\x1b[31m<hello>\x1b[0m") {
		t.Fatalf("expected escape sequences to stay intact, got %q", res.Text)
	}
}

func TestSearch_DoesNotMatchAcrossEscapeBoundaries(t *testing.T) {
	in := "he\x1b[31mll\x1b[0mo"
	res := Search(in, "hello", func(s string) string { return "<" + s + ">" })
	if res.Count != 0 {
		t.Fatalf("expected 0 matches across escape boundaries, got %d", res.Count)
	}
}
