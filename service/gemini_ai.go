package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/matthewtan01/pdf-rag/types"
)

const geminiEmbedBatchSize = 100

type GeminiService struct {
	apiKeys        []string
	currentKey     int
	client         *genai.Client
	retired        []*genai.Client // replaced clients may still serve in-flight calls
	modelName      string
	embeddingModel string
	mu             sync.Mutex
	logger         *zap.Logger
}

func NewGeminiService(ctx context.Context, apiKeys []string, modelName, embeddingModel string, logger *zap.Logger) (*GeminiService, error) {
	if len(apiKeys) == 0 {
		return nil, fmt.Errorf("%w: no API keys provided", types.ErrConfiguration)
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	if embeddingModel == "" {
		embeddingModel = "text-embedding-004"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	service := &GeminiService{
		apiKeys:        apiKeys,
		modelName:      modelName,
		embeddingModel: embeddingModel,
		logger:         logger,
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKeys[0]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	service.client = client
	return service, nil
}

func (s *GeminiService) currentClient() *genai.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// rotateAPIKey moves to the next key. A no-op with a single key. The caller
// passes the client that failed so concurrent failures rotate only once.
func (s *GeminiService) rotateAPIKey(ctx context.Context, failed *genai.Client) (bool, error) {
	if len(s.apiKeys) < 2 {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != failed {
		return true, nil
	}

	next := (s.currentKey + 1) % len(s.apiKeys)
	client, err := genai.NewClient(ctx, option.WithAPIKey(s.apiKeys[next]))
	if err != nil {
		return false, err
	}
	s.retired = append(s.retired, s.client)
	s.client = client
	s.currentKey = next
	s.logger.Warn("rotated gemini api key", zap.Int("key_index", next))
	return true, nil
}

func (s *GeminiService) newModel(client *genai.Client, prompt string) *genai.GenerativeModel {
	model := client.GenerativeModel(s.modelName)
	if prompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt)}}
	}
	return model
}

// splitHistory turns messages into Gemini history plus the final question.
func splitHistory(messages []types.Message) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", errors.New("no message to send")
	}
	history := make([]*genai.Content, 0, len(messages)-1)
	for _, msg := range messages[:len(messages)-1] {
		role := "user"
		if msg.Role == types.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Parts: []genai.Part{genai.Text(msg.Content)},
			Role:  role,
		})
	}
	return history, messages[len(messages)-1].Content, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return sb.String()
}

func (s *GeminiService) Chat(ctx context.Context, prompt string, messages []types.Message) (string, error) {
	history, question, err := splitHistory(messages)
	if err != nil {
		return "", err
	}

	send := func(client *genai.Client) (*genai.GenerateContentResponse, error) {
		chat := s.newModel(client, prompt).StartChat()
		chat.History = history
		return chat.SendMessage(ctx, genai.Text(question))
	}

	client := s.currentClient()
	resp, err := send(client)
	if err != nil {
		// Try rotating API key if there's an error
		rotated, rerr := s.rotateAPIKey(ctx, client)
		if rerr != nil || !rotated {
			return "", err
		}
		resp, err = send(s.currentClient())
		if err != nil {
			return "", err
		}
	}

	if len(resp.Candidates) == 0 {
		return "", errors.New("no response generated")
	}
	return responseText(resp), nil
}

func (s *GeminiService) ChatStream(ctx context.Context, prompt string, messages []types.Message, handler types.StreamHandler) (string, error) {
	history, question, err := splitHistory(messages)
	if err != nil {
		return "", err
	}

	start := func(client *genai.Client) *genai.GenerateContentResponseIterator {
		chat := s.newModel(client, prompt).StartChat()
		chat.History = history
		return chat.SendMessageStream(ctx, genai.Text(question))
	}

	client := s.currentClient()
	iter := start(client)
	var reply strings.Builder
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			// a key can only be swapped before anything reached the handler
			if reply.Len() > 0 {
				return "", err
			}
			rotated, rerr := s.rotateAPIKey(ctx, client)
			if rerr != nil || !rotated {
				return "", err
			}
			client = s.currentClient()
			iter = start(client)
			continue
		}

		delta := responseText(resp)
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

// Embed implements database.Embedder with BatchEmbedContents.
func (s *GeminiService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	em := s.currentClient().EmbeddingModel(s.embeddingModel)
	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += geminiEmbedBatchSize {
		end := i + geminiEmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := em.NewBatch()
		for _, text := range texts[i:end] {
			batch = batch.AddContent(genai.Text(text))
		}
		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != end-i {
			return nil, fmt.Errorf("expected %d embeddings, got %d", end-i, len(resp.Embeddings))
		}
		for _, e := range resp.Embeddings {
			vectors = append(vectors, e.Values)
		}
	}
	return vectors, nil
}

func (s *GeminiService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, c := range s.retired {
		errs = append(errs, c.Close())
	}
	s.retired = nil
	if s.client != nil {
		errs = append(errs, s.client.Close())
		s.client = nil
	}
	return errors.Join(errs...)
}
