package service

import (
	"github.com/matthewtan01/pdf-rag/types"
)

var DefaultDocumentServiceConfig = types.DocumentServiceConfig{
	MaxChunkSize: 1000,
	OverlapSize:  200,
	Separator:    "\n",
}

// TextSplitter splits text into overlapping chunks of bounded size,
// preferring to cut just after a separator.
type TextSplitter struct {
	maxChunkSize int    // Maximum size of each text chunk, in runes
	overlapSize  int    // Size of overlap between chunks, in runes
	separator    []rune // Preferred split point
}

// NewTextSplitter creates a splitter with configurable chunk sizes. Zero or
// negative sizes fall back to the defaults; an overlap that does not fit in a
// chunk is reduced to a quarter of the chunk size.
func NewTextSplitter(config types.DocumentServiceConfig) *TextSplitter {
	s := &TextSplitter{
		maxChunkSize: config.MaxChunkSize,
		overlapSize:  config.OverlapSize,
		separator:    []rune(config.Separator),
	}
	if s.maxChunkSize <= 0 {
		s.maxChunkSize = DefaultDocumentServiceConfig.MaxChunkSize
	}
	if s.overlapSize < 0 {
		s.overlapSize = DefaultDocumentServiceConfig.OverlapSize
	}
	if s.overlapSize >= s.maxChunkSize {
		s.overlapSize = s.maxChunkSize / 4
	}
	return s
}

func (s *TextSplitter) MaxChunkSize() int { return s.maxChunkSize }

func (s *TextSplitter) OverlapSize() int { return s.overlapSize }

// SplitText returns the chunks of text in source order. Every chunk is at
// most maxChunkSize runes and each chunk after the first starts overlapSize
// runes before the end of its predecessor. A run without separators that is
// longer than maxChunkSize is cut at exactly maxChunkSize runes.
func (s *TextSplitter) SplitText(text string) []types.DocumentChunk {
	runes := []rune(text)
	textLen := len(runes)
	if textLen == 0 {
		return nil
	}

	estimated := textLen/(s.maxChunkSize-s.overlapSize) + 1
	chunks := make([]types.DocumentChunk, 0, estimated)

	currentPos := 0
	for {
		chunkEnd := currentPos + s.maxChunkSize
		if chunkEnd >= textLen {
			chunkEnd = textLen
		} else if cut := s.lastSeparatorEnd(runes, currentPos, chunkEnd); cut-currentPos > s.overlapSize {
			// only cut at the separator if the next chunk still moves forward
			chunkEnd = cut
		}

		chunks = append(chunks, types.DocumentChunk{
			Index:   len(chunks),
			Content: string(runes[currentPos:chunkEnd]),
			Start:   currentPos,
			End:     chunkEnd,
		})

		if chunkEnd == textLen {
			break
		}
		currentPos = chunkEnd - s.overlapSize
	}

	return chunks
}

// lastSeparatorEnd returns the position just after the last separator that
// lies entirely inside runes[from:to], or -1.
func (s *TextSplitter) lastSeparatorEnd(runes []rune, from, to int) int {
	n := len(s.separator)
	if n == 0 {
		return -1
	}
	for i := to - n; i >= from; i-- {
		if runes[i] != s.separator[0] {
			continue
		}
		match := true
		for j := 1; j < n; j++ {
			if runes[i+j] != s.separator[j] {
				match = false
				break
			}
		}
		if match {
			return i + n
		}
	}
	return -1
}

// Overlap returns how many runes next shares with prev.
func Overlap(prev, next types.DocumentChunk) int {
	if next.Start >= prev.End {
		return 0
	}
	return prev.End - next.Start
}

// JoinChunks rebuilds the source text from chunks produced by SplitText.
func JoinChunks(chunks []types.DocumentChunk) string {
	var out []rune
	for i, c := range chunks {
		r := []rune(c.Content)
		if i > 0 {
			r = r[Overlap(chunks[i-1], c):]
		}
		out = append(out, r...)
	}
	return string(out)
}
