package ingest

import "strings"

// Splitter defaults match the ingestion contract: 1000-character chunks with
// a 200-character overlap.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Piece is one split of a page's text, annotated with its byte offset in
// the source text.
type Piece struct {
	Text       string
	StartIndex int
}

// Splitter recursively splits text into overlapping chunks. It prefers the
// coarsest separator that appears in the text (paragraph, line, word) and
// falls back to a hard character split, then merges adjacent splits up to
// the chunk size, carrying an overlap between consecutive chunks.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewSplitter creates a splitter. Non-positive arguments fall back to the
// defaults; the overlap is clamped below the chunk size.
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}
}

// Split produces the chunks of text in order, each annotated with the byte
// offset where it starts. Consecutive chunks overlap, so offsets are found
// by scanning forward from just past the previous chunk's start.
func (s *Splitter) Split(text string) []Piece {
	chunks := s.split(text, s.separators)

	pieces := make([]Piece, 0, len(chunks))
	searchFrom := 0
	for _, c := range chunks {
		start := searchFrom
		if idx := strings.Index(text[searchFrom:], c); idx >= 0 {
			start = searchFrom + idx
		}
		pieces = append(pieces, Piece{Text: c, StartIndex: start})
		searchFrom = start + 1
	}
	return pieces
}

func (s *Splitter) split(text string, separators []string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= s.chunkSize {
		return []string{text}
	}

	// Pick the first separator that occurs in the text; the empty separator
	// always matches and means a hard character split.
	sep := ""
	rest := []string{}
	for i, sp := range separators {
		if sp == "" {
			break
		}
		if strings.Contains(text, sp) {
			sep = sp
			rest = separators[i+1:]
			break
		}
	}

	if sep == "" {
		return s.hardSplit(text)
	}

	var final []string
	var pending []string
	flush := func() {
		if len(pending) > 0 {
			final = append(final, s.merge(pending, sep)...)
			pending = nil
		}
	}

	for _, part := range strings.Split(text, sep) {
		if len(part) <= s.chunkSize {
			pending = append(pending, part)
			continue
		}
		// An oversized part is split again with finer separators; pending
		// splits are merged first to preserve order.
		flush()
		final = append(final, s.split(part, rest)...)
	}
	flush()
	return final
}

// merge combines adjacent splits into chunks up to the chunk size. When a
// chunk is emitted, trailing splits totalling at most the overlap are kept
// to seed the next chunk.
func (s *Splitter) merge(splits []string, sep string) []string {
	var chunks []string
	var cur []string

	joinedLen := func(parts []string) int {
		n := 0
		for i, p := range parts {
			if i > 0 {
				n += len(sep)
			}
			n += len(p)
		}
		return n
	}

	for _, sp := range splits {
		if len(cur) > 0 && joinedLen(cur)+len(sep)+len(sp) > s.chunkSize {
			if chunk := strings.TrimSpace(strings.Join(cur, sep)); chunk != "" {
				chunks = append(chunks, strings.Join(cur, sep))
			}
			// Drop leading splits until the carried tail fits the overlap.
			for len(cur) > 0 && joinedLen(cur) > s.chunkOverlap {
				cur = cur[1:]
			}
		}
		cur = append(cur, sp)
	}
	if len(cur) > 0 {
		if chunk := strings.TrimSpace(strings.Join(cur, sep)); chunk != "" {
			chunks = append(chunks, strings.Join(cur, sep))
		}
	}
	return chunks
}

// hardSplit slices text into chunk-size windows advancing by size-overlap.
func (s *Splitter) hardSplit(text string) []string {
	stride := s.chunkSize - s.chunkOverlap
	var chunks []string
	for start := 0; start < len(text); start += stride {
		end := start + s.chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}
	return chunks
}
