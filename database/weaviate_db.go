package database

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.uber.org/zap"

	"github.com/matthewtan01/pdf-rag/config"
	"github.com/matthewtan01/pdf-rag/types"
)

const BATCH_SIZE = 200

// CLASS_PREFIX is prepended to the per-build class name. Weaviate class
// names must start with an upper case letter.
const CLASS_PREFIX = "PdfChunk"

var chunkFields = []graphql.Field{
	{Name: "content"},
	{Name: "position"},
	{Name: "start"},
	{Name: "end"},
	{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
}

func newChunkClass(name string) *models.Class {
	return &models.Class{
		Class: name,
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "position", DataType: []string{"int"}},
			{Name: "start", DataType: []string{"int"}},
			{Name: "end", DataType: []string{"int"}},
		},
		// vectors are computed client side by the configured embedder
		Vectorizer:      "none",
		VectorIndexType: "hnsw",
	}
}

func newClassName() string {
	return CLASS_PREFIX + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WeaviateIndexer stores each built index in its own Weaviate class.
type WeaviateIndexer struct {
	client   *weaviate.Client
	embedder Embedder
	topK     int
	logger   *zap.Logger
}

func NewWeaviateIndexer(cfg config.WeaviateStoreConfig, embedder Embedder, topK int, logger *zap.Logger) (*WeaviateIndexer, error) {
	var scheme string
	if strings.HasPrefix(cfg.Host, "https") {
		scheme = "https"
	} else {
		scheme = "http"
	}
	host := strings.TrimPrefix(cfg.Host, scheme+"://")
	wcfg := weaviate.Config{
		Host:   host,
		Scheme: scheme,
	}
	if cfg.APIKey != "" {
		wcfg.AuthConfig = auth.ApiKey{
			Value: cfg.APIKey,
		}
		wcfg.Headers = map[string]string{
			"X-Weaviate-Api-Key":     cfg.APIKey,
			"X-Weaviate-Cluster-Url": fmt.Sprintf("%s://%s", scheme, host),
		}
	}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create weaviate client: %v", types.ErrConfiguration, err)
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeaviateIndexer{
		client:   client,
		embedder: embedder,
		topK:     topK,
		logger:   logger,
	}, nil
}

// Build embeds chunks, creates a fresh class and inserts them. A class left
// behind by a failed build is deleted before returning.
func (s *WeaviateIndexer) Build(ctx context.Context, chunks []types.DocumentChunk) (Index, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := embedInBatches(ctx, s.embedder, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEmbedding, err)
	}

	className := newClassName()
	if err := s.client.Schema().ClassCreator().WithClass(newChunkClass(className)).Do(ctx); err != nil {
		return nil, fmt.Errorf("%w: failed to create class %s: %v", types.ErrIndexing, className, err)
	}

	if err := s.insert(ctx, className, chunks, vectors); err != nil {
		// ctx may already be done, cleanup gets its own
		if derr := s.deleteClass(context.WithoutCancel(ctx), className); derr != nil {
			s.logger.Warn("failed to delete partial class", zap.String("class", className), zap.Error(derr))
		}
		return nil, fmt.Errorf("%w: %v", types.ErrIndexing, err)
	}

	s.logger.Info("weaviate index built", zap.String("class", className), zap.Int("chunks", len(chunks)))
	return &weaviateIndex{
		indexer:   s,
		className: className,
		size:      len(chunks),
	}, nil
}

func (s *WeaviateIndexer) insert(ctx context.Context, className string, chunks []types.DocumentChunk, vectors [][]float32) error {
	total := len(chunks)
	for i := 0; i < total; i += BATCH_SIZE {
		end := i + BATCH_SIZE
		if end > total {
			end = total
		}

		batcher := s.client.Batch().ObjectsBatcher()
		for j := i; j < end; j++ {
			batcher = batcher.WithObjects(&models.Object{
				Class: className,
				Properties: map[string]interface{}{
					"content":  chunks[j].Content,
					"position": chunks[j].Index,
					"start":    chunks[j].Start,
					"end":      chunks[j].End,
				},
				Vector: vectors[j],
			})
		}

		resp, err := batcher.Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert batch %d-%d: %v", i, end, err)
		}
		for _, obj := range resp {
			if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
				return fmt.Errorf("failed to insert batch %d-%d: %s", i, end, obj.Result.Errors.Error[0].Message)
			}
		}
		s.logger.Debug("inserted batch", zap.String("class", className), zap.Int("from", i), zap.Int("to", end), zap.Int("total", total))
	}
	return nil
}

func (s *WeaviateIndexer) deleteClass(ctx context.Context, className string) error {
	return s.client.Schema().ClassDeleter().WithClassName(className).Do(ctx)
}

type weaviateIndex struct {
	indexer   *WeaviateIndexer
	className string
	size      int

	closeOnce sync.Once
	closeErr  error
}

func (i *weaviateIndex) Retrieve(ctx context.Context, query string) ([]types.SearchResult, error) {
	qv, err := i.indexer.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(qv) != 1 {
		return nil, errMismatch(1, len(qv))
	}

	nearVector := i.indexer.client.GraphQL().NearVectorArgBuilder().WithVector(qv[0])
	result, err := i.indexer.client.GraphQL().Get().
		WithClassName(i.className).
		WithFields(chunkFields...).
		WithNearVector(nearVector).
		WithLimit(i.indexer.topK).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("search failed: %v", result.Errors[0].Message)
	}
	return parseSearchResults(result.Data, i.className), nil
}

func (i *weaviateIndex) Size() int { return i.size }

func (i *weaviateIndex) Close(ctx context.Context) error {
	i.closeOnce.Do(func() {
		i.closeErr = i.indexer.deleteClass(ctx, i.className)
	})
	return i.closeErr
}

// parseSearchResults reads Get.<className> from a GraphQL response. Weaviate
// returns results ordered by ascending distance; Score is 1 - distance.
func parseSearchResults(data map[string]models.JSONObject, className string) []types.SearchResult {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	items, ok := get[className].([]interface{})
	if !ok {
		return nil
	}
	results := make([]types.SearchResult, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		content, _ := obj["content"].(string)
		res := types.SearchResult{
			Chunk: types.DocumentChunk{
				Index:   parseInt(obj["position"]),
				Content: content,
				Start:   parseInt(obj["start"]),
				End:     parseInt(obj["end"]),
			},
		}
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if d, ok := additional["distance"].(float64); ok {
				res.Score = float32(1 - d)
			}
		}
		results = append(results, res)
	}
	return results
}

func parseInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}
