package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/matthewtan01/pdf-rag/database"
	"github.com/matthewtan01/pdf-rag/types"
	"github.com/matthewtan01/pdf-rag/utils"
)

const (
	// DefaultSystemTemplate receives the retrieved passages in place of {context}.
	DefaultSystemTemplate = "You are an AI assistant that answer questions based on retrieved context:\n {context}\nGive your answer in plain text only."

	DefaultContextSeparator = "\n\n"
)

type PipelineOptions struct {
	SystemTemplate    string
	ContextSeparator  string
	RetrievalTimeout  time.Duration
	GenerationTimeout time.Duration
	RetryAttempts     int
	RetryBaseDelay    time.Duration
	Logger            *zap.Logger
}

// ConversationPipeline answers questions against one built index and records
// every completed exchange in the shared history store.
type ConversationPipeline struct {
	index   database.Index
	llm     AIService
	history *database.HistoryStore
	opts    PipelineOptions
	logger  *zap.Logger

	// held for reading by every turn, for writing by Close
	inflight sync.RWMutex
	closed   bool
}

func NewConversationPipeline(index database.Index, llm AIService, history *database.HistoryStore, opts PipelineOptions) *ConversationPipeline {
	if opts.SystemTemplate == "" {
		opts.SystemTemplate = DefaultSystemTemplate
	}
	if opts.ContextSeparator == "" {
		opts.ContextSeparator = DefaultContextSeparator
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationPipeline{
		index:   index,
		llm:     llm,
		history: history,
		opts:    opts,
		logger:  logger,
	}
}

func (p *ConversationPipeline) Index() database.Index { return p.index }

// Ask answers question for the session identified by key.
func (p *ConversationPipeline) Ask(ctx context.Context, key, question string) (*types.ChatResponse, error) {
	return p.ask(ctx, key, question, nil)
}

// AskStream is Ask with the reply delivered incrementally to handler when the
// AI service supports streaming. History is only written once the reply is
// complete.
func (p *ConversationPipeline) AskStream(ctx context.Context, key, question string, handler types.StreamHandler) (*types.ChatResponse, error) {
	return p.ask(ctx, key, question, handler)
}

func (p *ConversationPipeline) ask(ctx context.Context, key, question string, handler types.StreamHandler) (*types.ChatResponse, error) {
	question, err := normalizeQuestion(question)
	if err != nil {
		return nil, err
	}

	p.inflight.RLock()
	defer p.inflight.RUnlock()
	if p.closed {
		return nil, types.ErrNoDocuments
	}

	h := p.history.GetOrCreate(key)
	h.Lock()
	defer h.Unlock()
	prior := h.Messages()

	sources, err := p.retrieve(ctx, question)
	if err != nil {
		p.logger.Error("retrieval failed", zap.String("session", key), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", types.ErrRetrieval, err)
	}

	human := types.NewHumanMessage(question)
	messages := append(prior, human)
	reply, err := p.generate(ctx, p.systemPrompt(sources), messages, handler)
	if err != nil {
		p.logger.Error("generation failed", zap.String("session", key), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", types.ErrGeneration, err)
	}

	assistant := types.NewAssistantMessage(reply)
	h.Append(human, assistant)
	p.logger.Debug("turn recorded",
		zap.String("session", key),
		zap.Int("sources", len(sources)),
		zap.Int("messages", len(prior)+2))

	return &types.ChatResponse{
		SessionID: key,
		Message:   &assistant,
		Sources:   sources,
	}, nil
}

func (p *ConversationPipeline) retrieve(ctx context.Context, question string) ([]types.SearchResult, error) {
	if p.opts.RetrievalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.RetrievalTimeout)
		defer cancel()
	}
	var sources []types.SearchResult
	err := utils.Retry(ctx, p.opts.RetryAttempts, p.opts.RetryBaseDelay, func(ctx context.Context) error {
		var err error
		sources, err = p.index.Retrieve(ctx, question)
		return err
	})
	return sources, err
}

func (p *ConversationPipeline) generate(ctx context.Context, prompt string, messages []types.Message, handler types.StreamHandler) (string, error) {
	if p.opts.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.GenerationTimeout)
		defer cancel()
	}

	streamer, streaming := p.llm.(StreamingAIService)
	var reply string
	err := utils.Retry(ctx, p.opts.RetryAttempts, p.opts.RetryBaseDelay, func(ctx context.Context) error {
		var err error
		if handler != nil && streaming {
			sent := false
			reply, err = streamer.ChatStream(ctx, prompt, messages, func(delta string) {
				sent = true
				handler(delta)
			})
			if err != nil && sent {
				// the client already saw part of this reply
				return utils.Permanent(err)
			}
			return err
		}
		reply, err = p.llm.Chat(ctx, prompt, messages)
		if err == nil && handler != nil {
			handler(reply)
		}
		return err
	})
	return reply, err
}

func (p *ConversationPipeline) systemPrompt(sources []types.SearchResult) string {
	passages := make([]string, len(sources))
	for i, s := range sources {
		passages[i] = s.Chunk.Content
	}
	return strings.Replace(p.opts.SystemTemplate, "{context}", strings.Join(passages, p.opts.ContextSeparator), 1)
}

// Close waits for in-flight turns and releases the bound index.
func (p *ConversationPipeline) Close(ctx context.Context) error {
	p.inflight.Lock()
	defer p.inflight.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.index.Close(ctx)
}

func normalizeQuestion(question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", types.ErrEmptyQuestion
	}
	return question, nil
}

// ConversationHandle holds the process-wide active pipeline. Each Process
// action swaps in a new one.
type ConversationHandle struct {
	current atomic.Pointer[ConversationPipeline]
}

func (h *ConversationHandle) Current() *ConversationPipeline {
	return h.current.Load()
}

// Replace makes p active and returns the pipeline it replaced, if any.
func (h *ConversationHandle) Replace(p *ConversationPipeline) *ConversationPipeline {
	return h.current.Swap(p)
}

func (h *ConversationHandle) Ask(ctx context.Context, key, question string) (*types.ChatResponse, error) {
	return h.AskStream(ctx, key, question, nil)
}

func (h *ConversationHandle) AskStream(ctx context.Context, key, question string, handler types.StreamHandler) (*types.ChatResponse, error) {
	if _, err := normalizeQuestion(question); err != nil {
		return nil, err
	}
	for {
		p := h.Current()
		if p == nil {
			return nil, types.ErrNoDocuments
		}
		resp, err := p.ask(ctx, key, question, handler)
		// p may have been replaced and closed before the turn started
		if errors.Is(err, types.ErrNoDocuments) && h.Current() != p {
			continue
		}
		return resp, err
	}
}

// Close closes the active pipeline, leaving the handle empty.
func (h *ConversationHandle) Close(ctx context.Context) error {
	if p := h.Replace(nil); p != nil {
		return p.Close(ctx)
	}
	return nil
}
