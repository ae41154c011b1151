package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matthewtan01/pdf-rag/database"
	"github.com/matthewtan01/pdf-rag/types"
	"github.com/matthewtan01/pdf-rag/utils"
)

// FileService runs the Process action: uploaded PDFs become the index behind
// the active conversation.
type FileService struct {
	extractor    TextExtractor
	splitter     *TextSplitter
	indexer      database.Indexer
	llm          AIService
	history      *database.HistoryStore
	handle       *ConversationHandle
	pipelineOpts PipelineOptions
	indexTimeout time.Duration
	logger       *zap.Logger

	mu sync.Mutex // one Process at a time
}

func NewFileService(
	extractor TextExtractor,
	splitter *TextSplitter,
	indexer database.Indexer,
	llm AIService,
	history *database.HistoryStore,
	handle *ConversationHandle,
	pipelineOpts PipelineOptions,
	indexTimeout time.Duration,
) *FileService {
	logger := pipelineOpts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileService{
		extractor:    extractor,
		splitter:     splitter,
		indexer:      indexer,
		llm:          llm,
		history:      history,
		handle:       handle,
		pipelineOpts: pipelineOpts,
		indexTimeout: indexTimeout,
		logger:       logger,
	}
}

// Process extracts, splits and indexes files, then makes the new index the
// active one. On any error the previously active index stays in place.
// status may be nil.
func (s *FileService) Process(ctx context.Context, files []types.UploadedFile, status chan<- types.ProcessingDocumentStatus) (*types.ProcessResult, error) {
	if err := validateFiles(files); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	logger := s.logger.With(zap.String("process_id", id))
	total := len(files)

	texts := make([]string, 0, total)
	names := make([]string, 0, total)
	for i := range files {
		s.report(ctx, status, types.ProcessingDocumentStatus{
			Status:         types.ProcessingStatusExtracting,
			Message:        "Extracting " + files[i].Name,
			Progress:       float64(i) / float64(total),
			TotalFiles:     total,
			ProcessedFiles: i,
		})
		text, err := s.extractor.ExtractText(ctx, files[i].Data)
		if err != nil {
			logger.Error("extraction failed", zap.String("file", files[i].Name), zap.Error(err))
			return nil, fmt.Errorf("%s: %w", files[i].Name, err)
		}
		// raw bytes are not retained after extraction
		files[i].Data = nil
		texts = append(texts, text)
		names = append(names, files[i].Name)
	}

	text := strings.Join(texts, "\n")
	s.report(ctx, status, types.ProcessingDocumentStatus{
		Status:         types.ProcessingStatusSplitting,
		Message:        "Splitting text",
		Progress:       1,
		TotalFiles:     total,
		ProcessedFiles: total,
	})
	chunks := s.splitter.SplitText(text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no text found in the uploaded documents", types.ErrExtraction)
	}

	s.report(ctx, status, types.ProcessingDocumentStatus{
		Status:         types.ProcessingStatusIndexing,
		Message:        fmt.Sprintf("Indexing %d chunks", len(chunks)),
		Progress:       1,
		TotalFiles:     total,
		ProcessedFiles: total,
	})
	index, err := s.buildIndex(ctx, chunks)
	if err != nil {
		logger.Error("indexing failed", zap.Int("chunks", len(chunks)), zap.Error(err))
		return nil, err
	}

	pipeline := NewConversationPipeline(index, s.llm, s.history, s.pipelineOpts)
	if old := s.handle.Replace(pipeline); old != nil {
		if err := old.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to close previous index", zap.Error(err))
		}
	}

	result := &types.ProcessResult{
		ID:         id,
		Files:      names,
		Characters: len([]rune(text)),
		Chunks:     len(chunks),
	}
	logger.Info("documents processed",
		zap.Strings("files", names),
		zap.Int("characters", result.Characters),
		zap.Int("chunks", result.Chunks))
	s.report(ctx, status, types.ProcessingDocumentStatus{
		Status:         types.ProcessingStatusCompleted,
		Message:        "Done processing documents",
		Progress:       1,
		TotalFiles:     total,
		ProcessedFiles: total,
	})
	return result, nil
}

func (s *FileService) buildIndex(ctx context.Context, chunks []types.DocumentChunk) (database.Index, error) {
	if s.indexTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.indexTimeout)
		defer cancel()
	}
	var index database.Index
	err := utils.Retry(ctx, s.pipelineOpts.RetryAttempts, s.pipelineOpts.RetryBaseDelay, func(ctx context.Context) error {
		var err error
		index, err = s.indexer.Build(ctx, chunks)
		return err
	})
	return index, err
}

func (s *FileService) report(ctx context.Context, status chan<- types.ProcessingDocumentStatus, st types.ProcessingDocumentStatus) {
	if status == nil {
		return
	}
	select {
	case status <- st:
	case <-ctx.Done():
	}
}

func validateFiles(files []types.UploadedFile) error {
	if len(files) == 0 {
		return fmt.Errorf("%w: no files uploaded", types.ErrInvalidInput)
	}
	for _, f := range files {
		if !utils.IsPDF(f.Name) {
			return fmt.Errorf("%w: unsupported file type: %s", types.ErrInvalidInput, f.Name)
		}
	}
	return nil
}
