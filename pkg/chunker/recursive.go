package chunker

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultSeparators splits on blank lines, then lines, then words, then characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// MarkdownSeparators prefer headings, code fences and horizontal rules before
// falling back to the default separators. They are regular expressions.
var MarkdownSeparators = []string{
	"\n#{1,6} ",
	"```\n",
	`\n\*\*\*+\n`,
	`\n---+\n`,
	`\n___+\n`,
	`\n\n`,
	`\n`,
	" ",
	"",
}

// RecursiveSplitter splits text on a priority list of separators, recursing into
// pieces that are still too long, and merges small pieces back together so each
// chunk is as close to ChunkSize runes as possible with ChunkOverlap runes shared
// between neighbours. Separators stay attached to the start of the following piece.
type RecursiveSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
	IsRegex      bool
}

// NewRecursiveSplitter returns a splitter over DefaultSeparators.
func NewRecursiveSplitter(size, overlap int) *RecursiveSplitter {
	return &RecursiveSplitter{
		ChunkSize:    size,
		ChunkOverlap: overlap,
		Separators:   DefaultSeparators,
	}
}

// NewMarkdownSplitter returns a splitter that prefers markdown section boundaries.
func NewMarkdownSplitter(size, overlap int) *RecursiveSplitter {
	return &RecursiveSplitter{
		ChunkSize:    size,
		ChunkOverlap: overlap,
		Separators:   MarkdownSeparators,
		IsRegex:      true,
	}
}

// Split implements Splitter.
func (s *RecursiveSplitter) Split(_ context.Context, text string) ([]string, error) {
	return s.split(text, s.Separators), nil
}

func (s *RecursiveSplitter) pattern(sep string) *regexp.Regexp {
	if s.IsRegex {
		return regexp.MustCompile(sep)
	}
	return regexp.MustCompile(regexp.QuoteMeta(sep))
}

func (s *RecursiveSplitter) split(text string, separators []string) []string {
	var final []string

	// pick the first separator that occurs in the text
	separator := separators[len(separators)-1]
	var next []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if s.pattern(sep).MatchString(text) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	var good []string
	for _, piece := range splitKeepingSeparator(text, separator, s) {
		if runeLen(piece) < s.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(next) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, next)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}
	return final
}

// splitKeepingSeparator splits text so every piece after the first begins with the
// separator match that preceded it. An empty separator splits into runes.
func splitKeepingSeparator(text, separator string, s *RecursiveSplitter) []string {
	var pieces []string
	if separator == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	matches := s.pattern(separator).FindAllStringIndex(text, -1)
	start := 0
	for _, m := range matches {
		if m[0] == m[1] {
			continue
		}
		pieces = append(pieces, text[start:m[0]])
		start = m[0]
	}
	pieces = append(pieces, text[start:])

	out := pieces[:0]
	for _, p := range pieces {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// merge combines pieces into chunks no longer than ChunkSize, carrying up to
// ChunkOverlap runes of trailing pieces into the next chunk. Each pass through the
// eviction loop removes a piece, so it always terminates even when the overlap is
// not smaller than the chunk size.
func (s *RecursiveSplitter) merge(pieces []string) []string {
	var docs []string
	var current []string
	total := 0

	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > s.ChunkSize && len(current) > 0 {
			if doc := joinPieces(current); doc != "" {
				docs = append(docs, doc)
			}
			for len(current) > 0 && (total > s.ChunkOverlap || (total+n > s.ChunkSize && total > 0)) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if doc := joinPieces(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func joinPieces(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
