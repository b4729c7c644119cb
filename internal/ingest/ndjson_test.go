package ingest

import (
	"bytes"
	"testing"
)

// scanAll feeds the whole input in one chunk and flushes, mirroring the
// original single-shot split_newlines semantics for comparison.
func scanAll(t *testing.T, input string, maxLine int) [][]byte {
	t.Helper()
	s := newLineScanner(maxLine)
	lines, err := s.Feed([]byte(input))
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if tail := s.Flush(); len(tail) > 0 {
		lines = append(lines, tail)
	}
	return lines
}

func assertLines(t *testing.T, got [][]byte, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d lines %q, want %d lines %q", len(got), got, len(want), want)
	}
	for i := range want {
		if !bytes.Equal(got[i], []byte(want[i])) {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLineScanner_NoNewline(t *testing.T) {
	assertLines(t, scanAll(t, "ab\rc", 0), []string{"ab\rc"})
}

func TestLineScanner_Newlines(t *testing.T) {
	assertLines(t, scanAll(t, "a\nb\nc", 0), []string{"a", "b", "c"})
}

func TestLineScanner_CRNLs(t *testing.T) {
	assertLines(t, scanAll(t, "a\r\nb\r\nc", 0), []string{"a", "b", "c"})
}

func TestLineScanner_SeveralNewlines(t *testing.T) {
	assertLines(t, scanAll(t, "a\n\n\nb\n\n\nc", 0), []string{"a", "b", "c"})
}

func TestLineScanner_SeveralCRNLs(t *testing.T) {
	assertLines(t, scanAll(t, "a\r\n\r\n\nb\r\n\r\n\r\nc", 0), []string{"a", "b", "c"})
}

func TestLineScanner_TrailingNewline(t *testing.T) {
	assertLines(t, scanAll(t, "abc\n", 0), []string{"abc"})
}

func TestLineScanner_TrailingCRNL(t *testing.T) {
	assertLines(t, scanAll(t, "abc\r\n", 0), []string{"abc"})
}

func TestLineScanner_TrailingNewlines(t *testing.T) {
	assertLines(t, scanAll(t, "abc\n\n", 0), []string{"abc"})
}

func TestLineScanner_TrailingCRNLs(t *testing.T) {
	assertLines(t, scanAll(t, "abc\r\n\r\n", 0), []string{"abc"})
}

func TestLineScanner_ExtraCarriageReturn(t *testing.T) {
	assertLines(t, scanAll(t, "a\r\r\nb\r\r\nc\r\r\n", 0), []string{"a\r", "b\r", "c\r"})
}

func TestLineScanner_Empty(t *testing.T) {
	assertLines(t, scanAll(t, "", 0), nil)
}

func TestLineScanner_OnlyNewlines(t *testing.T) {
	assertLines(t, scanAll(t, "\n\n", 0), nil)
}

func TestLineScanner_IncrementalFeed(t *testing.T) {
	s := newLineScanner(0)

	lines1, err := s.Feed([]byte("hello wor"))
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(lines1) != 0 {
		t.Fatalf("expected no complete lines yet, got %q", lines1)
	}

	lines2, err := s.Feed([]byte("ld\nsecond"))
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	assertLines(t, lines2, []string{"hello world"})

	if tail := s.Flush(); string(tail) != "second" {
		t.Errorf("Flush() = %q, want %q", tail, "second")
	}
}

func TestLineScanner_MaxLineExceeded(t *testing.T) {
	s := newLineScanner(4)

	_, err := s.Feed([]byte("toolong"))
	if err == nil {
		t.Fatal("expected PayloadTooLarge error when remainder exceeds maxLine")
	}
}

func TestLineScanner_MaxLineNotExceededAtBoundary(t *testing.T) {
	s := newLineScanner(4)

	_, err := s.Feed([]byte("1234"))
	if err != nil {
		t.Fatalf("Feed() error = %v, want nil at exactly maxLine bytes", err)
	}
}

func TestLineScanner_CompletedLineExceedsMax(t *testing.T) {
	s := newLineScanner(2)

	lines, err := s.Feed([]byte("12\n34\n563\n23"))
	if err == nil {
		t.Fatal("expected PayloadTooLarge for a completed line over maxLine")
	}
	assertLines(t, lines, []string{"12", "34"})
}
