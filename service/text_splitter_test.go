package service

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewtan01/pdf-rag/types"
)

func defaultSplitter() *TextSplitter {
	return NewTextSplitter(DefaultDocumentServiceConfig)
}

func assertChunkInvariants(t *testing.T, s *TextSplitter, text string, chunks []types.DocumentChunk) {
	t.Helper()
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), s.MaxChunkSize(), "chunk %d too long", i)
		assert.Equal(t, c.End-c.Start, utf8.RuneCountInString(c.Content))
		if i > 0 {
			assert.Equal(t, s.OverlapSize(), Overlap(chunks[i-1], c), "overlap between %d and %d", i-1, i)
		}
	}
	assert.Equal(t, text, JoinChunks(chunks))
}

func TestNewTextSplitter(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s := defaultSplitter()
		assert.Equal(t, 1000, s.MaxChunkSize())
		assert.Equal(t, 200, s.OverlapSize())
	})

	t.Run("zero values fall back", func(t *testing.T) {
		s := NewTextSplitter(types.DocumentServiceConfig{MaxChunkSize: 0, OverlapSize: -1})
		assert.Equal(t, 1000, s.MaxChunkSize())
		assert.Equal(t, 200, s.OverlapSize())
	})

	t.Run("overlap exceeds chunk size", func(t *testing.T) {
		s := NewTextSplitter(types.DocumentServiceConfig{MaxChunkSize: 100, OverlapSize: 150})
		assert.Equal(t, 25, s.OverlapSize())
	})
}

func TestSplitText_Empty(t *testing.T) {
	assert.Empty(t, defaultSplitter().SplitText(""))
}

func TestSplitText_ShortText(t *testing.T) {
	chunks := defaultSplitter().SplitText("hello\nworld")
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello\nworld", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 11, chunks[0].End)
}

func TestSplitText_LongParagraphWithoutSeparators(t *testing.T) {
	s := defaultSplitter()
	text := strings.Repeat("abcdefghij", 250)

	chunks := s.SplitText(text)

	require.Len(t, chunks, 3)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 1000, chunks[0].End)
	assert.Equal(t, 800, chunks[1].Start)
	assert.Equal(t, 1800, chunks[1].End)
	assert.Equal(t, 1600, chunks[2].Start)
	assert.Equal(t, 2500, chunks[2].End)
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Content)
		assert.Equal(t, string(prev[len(prev)-200:]), string([]rune(chunks[i].Content)[:200]))
	}
	assertChunkInvariants(t, s, text, chunks)
}

func TestSplitText_PrefersSeparator(t *testing.T) {
	s := NewTextSplitter(types.DocumentServiceConfig{MaxChunkSize: 20, OverlapSize: 4, Separator: "\n"})
	text := "first line here\nsecond line here\nthird"

	chunks := s.SplitText(text)

	require.NotEmpty(t, chunks)
	assert.Equal(t, "first line here\n", chunks[0].Content)
	assertChunkInvariants(t, s, text, chunks)
}

func TestSplitText_SeparatorInsideOverlapIsIgnored(t *testing.T) {
	// the only separator sits within the first overlapSize runes, so cutting
	// there would stall; the splitter falls back to a hard cut
	s := NewTextSplitter(types.DocumentServiceConfig{MaxChunkSize: 10, OverlapSize: 4, Separator: "\n"})
	text := "ab\ncdefghijklmnop"

	chunks := s.SplitText(text)

	assert.Equal(t, "ab\ncdefghi", chunks[0].Content)
	assertChunkInvariants(t, s, text, chunks)
}

func TestSplitText_MultiRuneSeparator(t *testing.T) {
	s := NewTextSplitter(types.DocumentServiceConfig{MaxChunkSize: 12, OverlapSize: 2, Separator: "\n\n"})
	text := "para one\n\npara two\n\npara three"

	chunks := s.SplitText(text)

	assert.Equal(t, "para one\n\n", chunks[0].Content)
	assertChunkInvariants(t, s, text, chunks)
}

func TestSplitText_CountsRunes(t *testing.T) {
	s := NewTextSplitter(types.DocumentServiceConfig{MaxChunkSize: 5, OverlapSize: 1, Separator: "\n"})
	text := "héllo wörld ünïcode"

	chunks := s.SplitText(text)

	assertChunkInvariants(t, s, text, chunks)
}

func TestSplitText_NoSeparatorConfigured(t *testing.T) {
	s := NewTextSplitter(types.DocumentServiceConfig{MaxChunkSize: 10, OverlapSize: 3})
	text := "line one\nline two\nline three"

	chunks := s.SplitText(text)

	assert.Equal(t, "line one\nl", chunks[0].Content)
	assertChunkInvariants(t, s, text, chunks)
}

func TestSplitText_RoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []rune("abc de\nfg\n\nhé ü")
	configs := []types.DocumentServiceConfig{
		DefaultDocumentServiceConfig,
		{MaxChunkSize: 50, OverlapSize: 10, Separator: "\n"},
		{MaxChunkSize: 7, OverlapSize: 0, Separator: " "},
		{MaxChunkSize: 30, OverlapSize: 29, Separator: "\n\n"},
	}

	for _, cfg := range configs {
		s := NewTextSplitter(cfg)
		for n := 0; n < 40; n++ {
			length := rng.Intn(3000)
			r := make([]rune, length)
			for i := range r {
				r[i] = alphabet[rng.Intn(len(alphabet))]
			}
			text := string(r)
			chunks := s.SplitText(text)
			if length == 0 {
				assert.Empty(t, chunks)
				continue
			}
			assertChunkInvariants(t, s, text, chunks)
		}
	}
}

func TestJoinChunks_Empty(t *testing.T) {
	assert.Equal(t, "", JoinChunks(nil))
}
