package database

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/matthewtan01/pdf-rag/types"
)

// MemoryIndexer builds brute-force cosine similarity indexes held in process
// memory.
type MemoryIndexer struct {
	embedder Embedder
	topK     int
	logger   *zap.Logger
}

func NewMemoryIndexer(embedder Embedder, topK int, logger *zap.Logger) *MemoryIndexer {
	if topK <= 0 {
		topK = defaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryIndexer{embedder: embedder, topK: topK, logger: logger}
}

func (m *MemoryIndexer) Build(ctx context.Context, chunks []types.DocumentChunk) (Index, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := embedInBatches(ctx, m.embedder, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEmbedding, err)
	}
	for i := range vectors {
		normalize(vectors[i])
	}
	m.logger.Info("memory index built", zap.Int("chunks", len(chunks)))
	return &memoryIndex{
		embedder: m.embedder,
		topK:     m.topK,
		chunks:   append([]types.DocumentChunk(nil), chunks...),
		vectors:  vectors,
	}, nil
}

type memoryIndex struct {
	embedder Embedder
	topK     int

	mu      sync.RWMutex
	chunks  []types.DocumentChunk
	vectors [][]float32
	closed  bool
}

func (i *memoryIndex) Retrieve(ctx context.Context, query string) ([]types.SearchResult, error) {
	qv, err := i.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(qv) != 1 {
		return nil, errMismatch(1, len(qv))
	}
	query32 := qv[0]
	normalize(query32)

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return nil, fmt.Errorf("index is closed")
	}

	results := make([]types.SearchResult, len(i.chunks))
	for j := range i.chunks {
		results[j] = types.SearchResult{Chunk: i.chunks[j], Score: dot(i.vectors[j], query32)}
	}
	// Ties keep source order.
	sort.SliceStable(results, func(a, b int) bool { return results[a].Score > results[b].Score })
	if len(results) > i.topK {
		results = results[:i.topK]
	}
	return results, nil
}

func (i *memoryIndex) Size() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.chunks)
}

func (i *memoryIndex) Close(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	i.chunks = nil
	i.vectors = nil
	return nil
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func errMismatch(want, got int) error {
	return fmt.Errorf("embedder returned %d vectors for %d texts", got, want)
}
