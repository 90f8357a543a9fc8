package index

import (
	"strings"
	"testing"
)

func TestSplitTextEmpty(t *testing.T) {
	t.Parallel()

	if got := SplitText("", ChunkSize, ChunkOverlap); got != nil {
		t.Errorf("SplitText(\"\") = %v, want nil", got)
	}
}

func TestSplitTextShort(t *testing.T) {
	t.Parallel()

	s := "short text"
	got := SplitText(s, ChunkSize, ChunkOverlap)
	if len(got) != 1 || got[0] != s {
		t.Errorf("SplitText() = %v, want [%q]", got, s)
	}
}

func TestSplitTextOverlap(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("abcdefghij", 20) // 200 chars
	got := SplitText(s, 100, 10)

	if len(got) != 3 {
		t.Fatalf("chunk count = %d, want 3", len(got))
	}
	// Each boundary shares the overlap region.
	if got[0][90:] != got[1][:10] {
		t.Error("first boundary missing overlap")
	}
	if got[1][90:] != got[2][:10] {
		t.Error("second boundary missing overlap")
	}
	if len(got[0]) != 100 || len(got[1]) != 100 {
		t.Errorf("full chunk lengths = %d, %d, want 100", len(got[0]), len(got[1]))
	}
}

func TestSplitTextCoversInput(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("x", 1300)
	got := SplitText(s, ChunkSize, ChunkOverlap)

	var total int
	for _, c := range got {
		if len(c) > ChunkSize {
			t.Errorf("chunk length %d exceeds size %d", len(c), ChunkSize)
		}
		total += len(c)
	}
	// Overlap means total exceeds input, but never falls short.
	if total < len(s) {
		t.Errorf("chunks cover %d chars, input has %d", total, len(s))
	}
	if !strings.HasSuffix(s, got[len(got)-1]) {
		t.Error("last chunk is not a suffix of the input")
	}
}

func TestSplitTextUnicode(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("資料庫", 100) // 300 runes, 900 bytes
	got := SplitText(s, 100, 10)

	for _, c := range got {
		if n := len([]rune(c)); n > 100 {
			t.Errorf("chunk rune length %d exceeds 100", n)
		}
	}
}

func TestSplitTextInvalidOverlap(t *testing.T) {
	t.Parallel()

	// overlap >= size would never advance; it is ignored instead.
	s := strings.Repeat("y", 250)
	got := SplitText(s, 100, 100)
	if len(got) != 3 {
		t.Errorf("chunk count = %d, want 3 (overlap ignored)", len(got))
	}
}
