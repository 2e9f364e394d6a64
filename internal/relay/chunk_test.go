package relay

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitChunks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		limit int
		want  []int
	}{
		{"empty", "", 4096, nil},
		{"short", "hello", 4096, []int{5}},
		{"exact limit", strings.Repeat("x", 4096), 4096, []int{4096}},
		{"ten thousand", strings.Repeat("x", 10000), 4096, []int{4096, 4096, 1808}},
		{"multibyte runes", strings.Repeat("я", 9), 4, []int{4, 4, 1}},
		{"default limit", strings.Repeat("x", 5000), 0, []int{4096, 904}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			chunks := SplitChunks(tc.text, tc.limit)
			if len(chunks) != len(tc.want) {
				t.Fatalf("got %d chunks, want %d", len(chunks), len(tc.want))
			}
			for i, c := range chunks {
				if n := utf8.RuneCountInString(c); n != tc.want[i] {
					t.Fatalf("chunk %d has %d runes, want %d", i, n, tc.want[i])
				}
			}
			if strings.Join(chunks, "") != tc.text {
				t.Fatal("concatenation does not reconstruct the text")
			}
		})
	}
}
