// Package ingest turns raw documents into retrievable knowledge: text is
// split into overlapping sentence-aligned chunks, and every chunk is stored
// through the knowledge store so it gets an embedding and auto-connect
// edges like any other node.
package ingest

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunking defaults, in characters.
const (
	DefaultChunkSize = 500
	DefaultOverlap   = 50
)

// sentenceTerminator reports whether r ends a sentence. Covers Latin and
// CJK terminal punctuation.
func sentenceTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

// SplitSentences splits text on terminal punctuation and newlines,
// keeping the punctuation with its sentence. Whitespace-only fragments are
// dropped.
func SplitSentences(text string) []string {
	var sentences []string
	var b strings.Builder

	flush := func() {
		s := strings.TrimSpace(b.String())
		b.Reset()
		if s != "" {
			sentences = append(sentences, s)
		}
	}

	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' || r == '\r' {
			flush()
			continue
		}
		b.WriteRune(r)
		if !sentenceTerminator(r) {
			continue
		}
		// Keep runs like "..." or "?!" attached to one sentence.
		if i+1 < len(runes) && sentenceTerminator(runes[i+1]) {
			continue
		}
		flush()
	}
	flush()

	return sentences
}

// ChunkText splits text into chunks of at most chunkSize characters built
// from whole sentences, each chunk seeded with the last overlap characters
// of its predecessor for continuity. A single sentence longer than
// chunkSize becomes its own oversized chunk rather than being split
// mid-sentence. Text with no extractable sentences yields nil.
func ChunkText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultOverlap
	}

	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0      // rune count of cur
	hasBody := false // cur holds at least one sentence beyond the seed

	closeChunk := func() {
		closed := cur.String()
		chunks = append(chunks, closed)
		cur.Reset()
		curLen = 0
		hasBody = false
		if overlap > 0 {
			tail := lastRunes(closed, overlap)
			cur.WriteString(tail)
			curLen = utf8.RuneCountInString(tail)
		}
	}

	for _, sent := range sentences {
		sentLen := utf8.RuneCountInString(sent)
		if hasBody && curLen+1+sentLen > chunkSize {
			closeChunk()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(sent)
		curLen += sentLen
		hasBody = true
	}
	if hasBody {
		chunks = append(chunks, cur.String())
	}

	return chunks
}

// lastRunes returns the trailing n runes of s, trimmed of leading
// whitespace so overlap seeds never start mid-air.
func lastRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		runes = runes[len(runes)-n:]
	}
	return strings.TrimLeftFunc(string(runes), unicode.IsSpace)
}
