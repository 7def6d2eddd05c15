package ingest

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "latin terminators",
			text: "First sentence. Second one! Third?",
			want: []string{"First sentence.", "Second one!", "Third?"},
		},
		{
			name: "cjk terminators",
			text: "これは文です。質問ですか？最後です！",
			want: []string{"これは文です。", "質問ですか？", "最後です！"},
		},
		{
			name: "newlines split",
			text: "no punctuation here\nsecond line",
			want: []string{"no punctuation here", "second line"},
		},
		{
			name: "terminator runs stay attached",
			text: "Wait... really?! Yes.",
			want: []string{"Wait...", "really?!", "Yes."},
		},
		{
			name: "empty",
			text: "   \n\t  ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d sentences %q, want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sentence %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// buildDocument produces a document of roughly n characters from numbered
// sentences, so chunk boundaries are easy to reason about.
func buildDocument(n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		b.WriteString("Sentence number ")
		b.WriteString(strings.Repeat("x", 20))
		b.WriteString(". ")
	}
	return b.String()
}

func TestChunkTextSizeBounds(t *testing.T) {
	text := buildDocument(1200)
	chunks := ChunkText(text, 500, 50)

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 500+50 {
			t.Errorf("chunk %d has %d characters, want <= 550", i, n)
		}
	}
}

func TestChunkTextOverlapSeeding(t *testing.T) {
	text := buildDocument(1200)
	chunks := ChunkText(text, 500, 50)
	if len(chunks) < 2 {
		t.Fatalf("need at least two chunks, got %d", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		prevTail := strings.TrimSpace(lastRunes(chunks[i-1], 50))
		if prevTail == "" {
			continue
		}
		if !strings.HasPrefix(chunks[i], prevTail) {
			t.Errorf("chunk %d does not start with predecessor tail %q: %q",
				i, prevTail, chunks[i][:min(len(chunks[i]), 80)])
		}
	}
}

func TestChunkTextCoverage(t *testing.T) {
	text := "Alpha beta gamma. Delta epsilon zeta! Eta theta iota? Kappa lambda mu."
	chunks := ChunkText(text, 40, 10)

	// Every sentence must appear in some chunk; non-overlap word sequence
	// reconstructs the original modulo whitespace.
	for _, sent := range SplitSentences(text) {
		found := false
		for _, c := range chunks {
			if strings.Contains(c, sent) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("sentence %q missing from all chunks %q", sent, chunks)
		}
	}
}

func TestChunkTextSingleOversizedSentence(t *testing.T) {
	long := strings.Repeat("word ", 200) + "end."
	chunks := ChunkText(long, 100, 10)
	if len(chunks) != 1 {
		t.Fatalf("oversized single sentence should stay one chunk, got %d", len(chunks))
	}
}

func TestChunkTextEmpty(t *testing.T) {
	if got := ChunkText("", 500, 50); got != nil {
		t.Errorf("empty text produced chunks: %q", got)
	}
	if got := ChunkText("\n\n \t", 500, 50); got != nil {
		t.Errorf("whitespace text produced chunks: %q", got)
	}
}
