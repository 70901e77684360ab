// Package ingest turns uploaded documents into indexed knowledge: it
// splits text into overlapping chunks, embeds them via the knowledge
// store, and tracks uploaded-document records.
package ingest

import (
	"strings"
	"unicode/utf8"
)

// Splitter defaults; sized for embedding-friendly chunks.
const (
	DefaultChunkSize = 500
	DefaultOverlap   = 50
)

// defaultSeparators is the split ladder, coarsest first. CJK sentence
// terminators are included so Chinese and Japanese prose splits on
// sentence boundaries rather than mid-sentence.
var defaultSeparators = []string{"\n\n", "\n", "。", "！", "？", ".", "!", "?", " ", ""}

// Splitter recursively splits text into chunks of at most chunkSize
// runes with overlap runes carried between adjacent chunks.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// NewSplitter creates a splitter. Non-positive chunkSize or negative
// overlap fall back to the defaults; overlap is capped below chunkSize.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &Splitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: defaultSeparators,
	}
}

// Split splits text into ordered chunks. Whitespace-only input yields no
// chunks.
func (s *Splitter) Split(text string) []string {
	raw := s.split(text, s.separators)
	out := make([]string, 0, len(raw))
	for _, chunk := range raw {
		chunk = strings.TrimSpace(chunk)
		if chunk != "" {
			out = append(out, chunk)
		}
	}
	return out
}

func (s *Splitter) split(text string, separators []string) []string {
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= s.chunkSize {
		return []string{text}
	}

	sep := ""
	var remaining []string
	for i, candidate := range separators {
		if candidate == "" {
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			remaining = separators[i+1:]
			break
		}
	}

	if sep == "" {
		return s.hardCut(text)
	}

	parts := strings.SplitAfter(text, sep)
	return s.merge(parts, remaining)
}

// merge packs parts into chunks of at most chunkSize runes, carrying an
// overlap tail between adjacent chunks. Parts that alone exceed the
// chunk size are split further with the finer separators.
func (s *Splitter) merge(parts []string, finer []string) []string {
	var chunks []string
	var buf []string
	bufLen := 0

	flush := func() {
		if bufLen > 0 {
			chunks = append(chunks, strings.Join(buf, ""))
		}
	}

	for _, part := range parts {
		partLen := utf8.RuneCountInString(part)
		if partLen == 0 {
			continue
		}

		if partLen > s.chunkSize {
			flush()
			buf, bufLen = nil, 0
			chunks = append(chunks, s.split(part, finer)...)
			continue
		}

		if bufLen+partLen > s.chunkSize && bufLen > 0 {
			chunks = append(chunks, strings.Join(buf, ""))
			// Keep an overlap tail for continuity with the next chunk.
			for bufLen > s.overlap || (bufLen+partLen > s.chunkSize && bufLen > 0) {
				bufLen -= utf8.RuneCountInString(buf[0])
				buf = buf[1:]
			}
		}

		buf = append(buf, part)
		bufLen += partLen
	}

	flush()
	return chunks
}

// hardCut splits by rune count when no separator applies.
func (s *Splitter) hardCut(text string) []string {
	runes := []rune(text)
	step := s.chunkSize - s.overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := min(start+s.chunkSize, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
