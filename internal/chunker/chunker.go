// Package chunker splits file text into overlapping, line-aware chunks.
//
// The growth/overlap contract here is adapted from the teacher's generic
// rune-scanning fallback chunker (indexer.CodeChunker.chunkGenericCode): scan
// forward accumulating size, cut when a size bound is crossed, then restart the
// next chunk a fixed distance behind the cut to hedge against content split at
// a boundary. This version scans by line instead of by rune so that chunk
// boundaries are always whole source lines, which keeps citations meaningful.
package chunker

import "strings"

const (
	// MinChars is the target lower bound for a chunk's size, in characters
	// (including newline terminators). Chunks smaller than this are only ever
	// emitted at end-of-file.
	MinChars = 900
	// MaxChars is the growth bound: a chunk keeps taking lines while its size
	// is below this value, so the last line taken can carry it past MaxChars.
	MaxChars = 1800
	// Overlap is how many lines the next chunk backs up from the previous
	// chunk's end line, so content near a cut appears in two chunks.
	Overlap = 15
)

// Span is one emitted chunk: a 1-based inclusive line range and its text.
// Concatenating Text recovers lines[StartLine-1 .. EndLine-1] joined by "\n".
type Span struct {
	Text      string
	StartLine int
	EndLine   int
}

// Chunk splits text into overlapping line-aware spans per the size/overlap
// contract. An empty input yields no spans.
func Chunk(text string) []Span {
	if text == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	n := len(lines)

	var spans []Span
	start := 1 // 1-based

	for start <= n {
		end := start
		size := len(lines[end-1]) + 1 // +1 accounts for the line terminator

		for size < MaxChars && end < n {
			end++
			size += len(lines[end-1]) + 1
		}

		spans = append(spans, Span{
			Text:      strings.Join(lines[start-1:end], "\n"),
			StartLine: start,
			EndLine:   end,
		})

		if end >= n {
			break
		}

		next := end - Overlap
		if next <= start {
			next = end + 1
		}
		start = next
	}

	return spans
}
