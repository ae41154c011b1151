package service

import (
	"context"

	"github.com/matthewtan01/pdf-rag/types"
)

// AIService generates a reply for a system prompt and the chat turns that
// follow it; the last message is the question being answered.
type AIService interface {
	Chat(ctx context.Context, prompt string, messages []types.Message) (string, error)
}

// StreamingAIService additionally delivers the reply incrementally. The full
// reply is returned once the stream ends.
type StreamingAIService interface {
	AIService
	ChatStream(ctx context.Context, prompt string, messages []types.Message, handler types.StreamHandler) (string, error)
}
