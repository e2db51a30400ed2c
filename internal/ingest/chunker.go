package ingest

import (
	"strings"
	"unicode"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

type Options struct {
	ChunkSize int
	Overlap   int
}

func (o *Options) applyDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Overlap >= o.ChunkSize {
		o.Overlap = o.ChunkSize / 5
	}
}

// Chunk splits text into windows of at most ChunkSize characters that
// overlap by Overlap characters. A window ends early on a paragraph break or
// sentence end when one falls in its second half.
func Chunk(text string, opts Options) []string {
	opts.applyDefaults()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	r := []rune(text)
	if len(r) <= opts.ChunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(r) {
		end := min(start+opts.ChunkSize, len(r))
		if end < len(r) {
			end = snap(r, start, end, opts.ChunkSize)
		}

		if c := strings.TrimSpace(string(r[start:end])); c != "" {
			chunks = append(chunks, c)
		}
		if end == len(r) {
			break
		}

		next := end - opts.Overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// snap moves end back to the last paragraph break, or failing that the last
// sentence end, past the middle of the window.
func snap(r []rune, start, end, size int) int {
	floor := start + size/2

	for i := end - 1; i > floor; i-- {
		if r[i] == '\n' && r[i-1] == '\n' {
			return i + 1
		}
	}

	for i := end - 1; i > floor; i-- {
		switch r[i] {
		case '.', '!', '?':
			if unicode.IsSpace(r[i+1]) {
				return i + 1
			}
		}
	}

	return end
}
