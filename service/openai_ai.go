package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/matthewtan01/pdf-rag/types"
)

type OpenAIService struct {
	client         *openai.Client
	model          string
	embeddingModel string
	logger         *zap.Logger
}

func NewOpenAIService(baseURL, apiKey, model, embeddingModel string, logger *zap.Logger) *OpenAIService {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL // Set this to your local LLM server URL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	if embeddingModel == "" {
		embeddingModel = string(openai.SmallEmbedding3)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIService{
		client:         openai.NewClientWithConfig(config),
		model:          model,
		embeddingModel: embeddingModel,
		logger:         logger,
	}
}

func toOpenAIMessages(prompt string, messages []types.Message) []openai.ChatCompletionMessage {
	openaiMessages := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: prompt,
	})
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == types.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return openaiMessages
}

func (s *OpenAIService) Chat(ctx context.Context, prompt string, messages []types.Message) (string, error) {
	resp, err := s.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Messages: toOpenAIMessages(prompt, messages),
			Model:    s.model,
		},
	)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no response generated")
	}
	s.logger.Debug("chat completion",
		zap.String("model", s.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	return resp.Choices[0].Message.Content, nil
}

func (s *OpenAIService) ChatStream(ctx context.Context, prompt string, messages []types.Message, handler types.StreamHandler) (string, error) {
	stream, err := s.client.CreateChatCompletionStream(
		ctx,
		openai.ChatCompletionRequest{
			Messages: toOpenAIMessages(prompt, messages),
			Model:    s.model,
			Stream:   true,
		},
	)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("error receiving response from stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		reply.WriteString(delta)
		if handler != nil {
			handler(delta)
		}
	}
	if reply.Len() == 0 {
		return "", errors.New("no response generated")
	}
	return reply.String(), nil
}

// Embed implements database.Embedder with the OpenAI embeddings endpoint.
func (s *OpenAIService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(s.embeddingModel),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return vectors, nil
}
