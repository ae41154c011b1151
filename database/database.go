package database

import (
	"context"

	"github.com/matthewtan01/pdf-rag/types"
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Indexer embeds chunks and builds a queryable similarity index.
type Indexer interface {
	Build(ctx context.Context, chunks []types.DocumentChunk) (Index, error)
}

// Index is a built similarity index over one set of chunks.
type Index interface {
	// Retrieve returns the passages most relevant to query, best first.
	Retrieve(ctx context.Context, query string) ([]types.SearchResult, error)
	// Size is the number of indexed chunks.
	Size() int
	// Close releases the index; it must not be used afterwards.
	Close(ctx context.Context) error
}

const defaultTopK = 4

// embedBatchSize bounds how many texts go into one embedding request.
const embedBatchSize = 100

func embedInBatches(ctx context.Context, embedder Embedder, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := embedder.Embed(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		if len(batch) != end-i {
			return nil, errMismatch(end-i, len(batch))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}
