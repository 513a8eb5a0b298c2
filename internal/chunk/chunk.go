// Package chunk splits document content into retrieval-sized segments with
// stable, deterministic identifiers.
//
// The splitter prefers semantic boundaries: paragraphs first, then sentences,
// and only hard-slices (with word-boundary backoff) when a single sentence
// exceeds the target size. Adjacent chunks share a configurable overlap so
// context at chunk borders is not lost to retrieval.
//
// Determinism is a contract, not an optimization: identical input text and
// parameters always produce the identical chunk sequence, so chunk ids are
// stable and re-chunking an unchanged version is a no-op diff.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DefaultSize is the default target chunk length in characters.
const DefaultSize = 1000

// DefaultOverlap is the default number of characters shared by adjacent
// chunks.
const DefaultOverlap = 200

// wordBackoffWindow is how far a hard slice may back up to land on a word
// boundary instead of cutting mid-word.
const wordBackoffWindow = 50

// segmentSep joins segments when assembling chunk text.
const segmentSep = "\n\n"

// Chunk is one retrieval-sized segment of a document version.
type Chunk struct {
	Index int
	Text  string
}

// Chunker splits text into chunks. The zero value is not usable; construct
// with New.
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithSize sets the target chunk size in characters. Non-positive values are
// ignored.
func WithSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets the overlap between adjacent chunks in characters.
// Negative values are ignored.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a Chunker. An overlap that reaches the chunk size is clamped to
// a quarter of the size; otherwise chunking could not advance.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		size:    DefaultSize,
		overlap: DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

// Size returns the configured target chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks text. Empty or whitespace-only text yields nil, never an
// error. Text no longer than the target size yields a single chunk.
func (c *Chunker) Split(text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= c.size {
		return []Chunk{{Index: 0, Text: text}}
	}

	return c.pack(c.segmentize(text))
}

// segmentize reduces text to an ordered list of segments, each no longer than
// the target size, splitting on paragraph then sentence boundaries and
// hard-slicing oversized sentences.
func (c *Chunker) segmentize(text string) []string {
	var segments []string
	for _, para := range splitParagraphs(text) {
		if len(para) <= c.size {
			segments = append(segments, para)
			continue
		}
		for _, sent := range splitSentences(para) {
			if len(sent) <= c.size {
				segments = append(segments, sent)
				continue
			}
			segments = append(segments, c.hardSlice(sent)...)
		}
	}
	return segments
}

// pack greedily groups consecutive segments into size-bounded chunks. The
// overlap is applied at segment granularity: each chunk after the first
// re-includes the previous chunk's trailing segments up to the overlap
// budget, so shared context always starts on a semantic boundary.
func (c *Chunker) pack(segments []string) []Chunk {
	var chunks []Chunk

	i := 0
	for i < len(segments) {
		j := i
		length := 0
		for j < len(segments) {
			add := len(segments[j])
			if length > 0 {
				add += len(segmentSep)
			}
			if length > 0 && length+add > c.size {
				break
			}
			length += add
			j++
		}

		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  strings.Join(segments[i:j], segmentSep),
		})
		if j >= len(segments) {
			break
		}

		// Step the next start back over trailing segments that fit the
		// overlap budget. Never past i+1, so progress is guaranteed.
		next := j
		budget := c.overlap
		for next > i+1 && len(segments[next-1]) <= budget {
			budget -= len(segments[next-1])
			next--
		}
		i = next
	}

	return chunks
}

// hardSlice cuts an oversized sentence into size-bounded pieces, backing up
// to a word boundary when one is near and never cutting mid-rune. Pieces
// share the configured overlap, since segment-level overlap cannot help
// inside a single unbreakable run of text.
func (c *Chunker) hardSlice(text string) []string {
	var out []string

	start := 0
	for start < len(text) {
		end := start + c.size
		if end >= len(text) {
			if piece := strings.TrimSpace(text[start:]); piece != "" {
				out = append(out, piece)
			}
			break
		}

		windowStart := max(start+1, end-wordBackoffWindow)
		if idx := strings.LastIndexByte(text[windowStart:end], ' '); idx >= 0 {
			end = windowStart + idx
		}
		end = runeFloor(text, end)
		if end <= start {
			end = runeCeil(text, start+c.size)
		}

		if piece := strings.TrimSpace(text[start:end]); piece != "" {
			out = append(out, piece)
		}

		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = runeCeil(text, next)
	}

	return out
}

// ID computes the deterministic chunk identifier for a (document, version,
// index) triple. The hash keys the vector index upsert, so the derivation
// must never change across releases.
func ID(docID uuid.UUID, versionNumber, index int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%d:%d", docID, versionNumber, index))
	return hex.EncodeToString(sum[:])
}

// splitParagraphs splits on blank lines, trimming and dropping empty parts.
func splitParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sentenceEnders are the two-byte sequences treated as sentence boundaries.
var sentenceEnders = []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}

// splitSentences splits a paragraph at sentence-ending punctuation, keeping
// the punctuation with the preceding sentence.
func splitSentences(text string) []string {
	var out []string
	rest := text
	for {
		cut := -1
		for _, end := range sentenceEnders {
			if idx := strings.Index(rest, end); idx >= 0 && (cut < 0 || idx < cut) {
				cut = idx
			}
		}
		if cut < 0 {
			break
		}
		if s := strings.TrimSpace(rest[:cut+1]); s != "" {
			out = append(out, s)
		}
		rest = rest[cut+2:]
	}
	if s := strings.TrimSpace(rest); s != "" {
		out = append(out, s)
	}
	return out
}

// runeFloor moves idx down to the nearest rune start.
func runeFloor(s string, idx int) int {
	if idx >= len(s) {
		return len(s)
	}
	for idx > 0 && !utf8.RuneStart(s[idx]) {
		idx--
	}
	return idx
}

// runeCeil moves idx up to the nearest rune start.
func runeCeil(s string, idx int) int {
	for idx < len(s) && !utf8.RuneStart(s[idx]) {
		idx++
	}
	return idx
}
