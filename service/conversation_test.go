package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewtan01/pdf-rag/database"
	"github.com/matthewtan01/pdf-rag/types"
)

type fakeIndex struct {
	mu       sync.Mutex
	passages []string
	err      error
	block    bool
	closed   bool
	queries  []string
}

func (f *fakeIndex) Retrieve(ctx context.Context, query string) ([]types.SearchResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	results := make([]types.SearchResult, len(f.passages))
	for i, p := range f.passages {
		results[i] = types.SearchResult{Chunk: types.DocumentChunk{Index: i, Content: p}, Score: 1}
	}
	return results, nil
}

func (f *fakeIndex) Size() int { return len(f.passages) }

func (f *fakeIndex) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeIndex) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type chatCall struct {
	prompt   string
	messages []types.Message
}

// fakeLLM answers "R<n>" for the n-th successful call.
type fakeLLM struct {
	mu       sync.Mutex
	calls    []chatCall
	failures int
	err      error
}

func (f *fakeLLM) Chat(ctx context.Context, prompt string, messages []types.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, chatCall{prompt: prompt, messages: messages})
	if f.err != nil {
		return "", f.err
	}
	if f.failures > 0 {
		f.failures--
		return "", errors.New("transient")
	}
	return fmt.Sprintf("R%d", len(f.calls)), nil
}

type fakeStreamingLLM struct {
	fakeLLM
	deltas []string
	failAt int // fail after this many deltas when > 0
}

func (f *fakeStreamingLLM) ChatStream(ctx context.Context, prompt string, messages []types.Message, handler types.StreamHandler) (string, error) {
	reply := ""
	for i, d := range f.deltas {
		if f.failAt > 0 && i == f.failAt {
			return "", errors.New("stream broken")
		}
		reply += d
		handler(d)
	}
	return reply, nil
}

func newTestPipeline(index database.Index, llm AIService, history *database.HistoryStore) *ConversationPipeline {
	return NewConversationPipeline(index, llm, history, PipelineOptions{
		RetryAttempts:  2,
		RetryBaseDelay: time.Millisecond,
	})
}

func TestConversationPipeline_TwoTurnsThreadHistory(t *testing.T) {
	index := &fakeIndex{passages: []string{"passage A", "passage B"}}
	llm := &fakeLLM{}
	history := database.NewHistoryStore()
	p := newTestPipeline(index, llm, history)

	resp1, err := p.Ask(context.Background(), "s1", "Q1")
	require.NoError(t, err)
	assert.Equal(t, "R1", resp1.Message.Content)
	assert.Equal(t, types.RoleAssistant, resp1.Message.Role)
	assert.Len(t, resp1.Sources, 2)

	resp2, err := p.Ask(context.Background(), "s1", "Q2")
	require.NoError(t, err)
	assert.Equal(t, "R2", resp2.Message.Content)

	msgs := history.GetOrCreate("s1").Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, []types.Role{types.RoleHuman, types.RoleAssistant, types.RoleHuman, types.RoleAssistant},
		[]types.Role{msgs[0].Role, msgs[1].Role, msgs[2].Role, msgs[3].Role})
	assert.Equal(t, []string{"Q1", "R1", "Q2", "R2"},
		[]string{msgs[0].Content, msgs[1].Content, msgs[2].Content, msgs[3].Content})

	require.Len(t, llm.calls, 2)
	first := llm.calls[0]
	require.Len(t, first.messages, 1)
	assert.Equal(t, "Q1", first.messages[0].Content)

	second := llm.calls[1]
	require.Len(t, second.messages, 3)
	assert.Equal(t, "Q1", second.messages[0].Content)
	assert.Equal(t, types.RoleHuman, second.messages[0].Role)
	assert.Equal(t, "R1", second.messages[1].Content)
	assert.Equal(t, types.RoleAssistant, second.messages[1].Role)
	assert.Equal(t, "Q2", second.messages[2].Content)

	assert.Equal(t, []string{"Q1", "Q2"}, index.queries)
}

func TestConversationPipeline_SystemPromptEmbedsContextInOrder(t *testing.T) {
	index := &fakeIndex{passages: []string{"second best", "best"}}
	llm := &fakeLLM{}
	p := newTestPipeline(index, llm, database.NewHistoryStore())

	_, err := p.Ask(context.Background(), "s1", "q")
	require.NoError(t, err)

	assert.Equal(t,
		"You are an AI assistant that answer questions based on retrieved context:\n second best\n\nbest\nGive your answer in plain text only.",
		llm.calls[0].prompt)
}

func TestConversationPipeline_RetrievalFailureLeavesHistory(t *testing.T) {
	history := database.NewHistoryStore()
	history.Append("s1", types.NewHumanMessage("old"), types.NewAssistantMessage("reply"))
	p := newTestPipeline(&fakeIndex{err: errors.New("index down")}, &fakeLLM{}, history)

	_, err := p.Ask(context.Background(), "s1", "Q")

	assert.ErrorIs(t, err, types.ErrRetrieval)
	assert.Equal(t, 2, history.GetOrCreate("s1").Len())
}

func TestConversationPipeline_GenerationFailureLeavesHistory(t *testing.T) {
	history := database.NewHistoryStore()
	llm := &fakeLLM{err: errors.New("llm down")}
	p := newTestPipeline(&fakeIndex{passages: []string{"x"}}, llm, history)

	_, err := p.Ask(context.Background(), "s1", "Q")

	assert.ErrorIs(t, err, types.ErrGeneration)
	assert.Equal(t, 0, history.GetOrCreate("s1").Len())
	assert.Len(t, llm.calls, 2, "generation is retried")
}

func TestConversationPipeline_RetriesTransientGeneration(t *testing.T) {
	history := database.NewHistoryStore()
	llm := &fakeLLM{failures: 1}
	p := newTestPipeline(&fakeIndex{}, llm, history)

	resp, err := p.Ask(context.Background(), "s1", "Q")

	require.NoError(t, err)
	assert.Equal(t, "R2", resp.Message.Content)
	assert.Equal(t, 2, history.GetOrCreate("s1").Len())
}

func TestConversationPipeline_RetrievalTimeout(t *testing.T) {
	history := database.NewHistoryStore()
	p := NewConversationPipeline(&fakeIndex{block: true}, &fakeLLM{}, history, PipelineOptions{
		RetrievalTimeout: 20 * time.Millisecond,
	})

	start := time.Now()
	_, err := p.Ask(context.Background(), "s1", "Q")

	assert.ErrorIs(t, err, types.ErrRetrieval)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 0, history.GetOrCreate("s1").Len())
}

func TestConversationPipeline_SessionsAreIndependent(t *testing.T) {
	history := database.NewHistoryStore()
	p := newTestPipeline(&fakeIndex{}, &fakeLLM{}, history)

	_, err := p.Ask(context.Background(), "alice", "QA")
	require.NoError(t, err)
	_, err = p.Ask(context.Background(), "bob", "QB")
	require.NoError(t, err)

	alice := history.GetOrCreate("alice").Messages()
	bob := history.GetOrCreate("bob").Messages()
	require.Len(t, alice, 2)
	require.Len(t, bob, 2)
	assert.Equal(t, "QA", alice[0].Content)
	assert.Equal(t, "QB", bob[0].Content)
}

func TestConversationPipeline_EmptyQuestion(t *testing.T) {
	history := database.NewHistoryStore()
	llm := &fakeLLM{}
	p := newTestPipeline(&fakeIndex{}, llm, history)

	_, err := p.Ask(context.Background(), "s1", "   \n")

	assert.ErrorIs(t, err, types.ErrEmptyQuestion)
	assert.Empty(t, llm.calls)
	assert.Empty(t, history.Sessions())
}

func TestConversationPipeline_ConcurrentTurnsKeepPairsTogether(t *testing.T) {
	history := database.NewHistoryStore()
	p := newTestPipeline(&fakeIndex{}, &fakeLLM{}, history)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := p.Ask(context.Background(), "s1", fmt.Sprintf("Q%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs := history.GetOrCreate("s1").Messages()
	require.Len(t, msgs, 40)
	for i := 0; i < len(msgs); i += 2 {
		assert.Equal(t, types.RoleHuman, msgs[i].Role)
		assert.Equal(t, types.RoleAssistant, msgs[i+1].Role)
	}
}

func TestConversationPipeline_AskStream(t *testing.T) {
	history := database.NewHistoryStore()
	llm := &fakeStreamingLLM{deltas: []string{"Hel", "lo"}}
	p := newTestPipeline(&fakeIndex{}, llm, history)

	var got []string
	resp, err := p.AskStream(context.Background(), "s1", "Q", func(d string) { got = append(got, d) })

	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Message.Content)
	assert.Equal(t, []string{"Hel", "lo"}, got)
	assert.Equal(t, 2, history.GetOrCreate("s1").Len())
}

func TestConversationPipeline_AskStreamBrokenMidway(t *testing.T) {
	history := database.NewHistoryStore()
	llm := &fakeStreamingLLM{deltas: []string{"a", "b", "c"}, failAt: 2}
	p := newTestPipeline(&fakeIndex{}, llm, history)

	var got []string
	_, err := p.AskStream(context.Background(), "s1", "Q", func(d string) { got = append(got, d) })

	assert.ErrorIs(t, err, types.ErrGeneration)
	assert.Equal(t, []string{"a", "b"}, got, "no retry after deltas were delivered")
	assert.Equal(t, 0, history.GetOrCreate("s1").Len())
}

func TestConversationPipeline_AskStreamWithoutStreamingService(t *testing.T) {
	p := newTestPipeline(&fakeIndex{}, &fakeLLM{}, database.NewHistoryStore())

	var got []string
	resp, err := p.AskStream(context.Background(), "s1", "Q", func(d string) { got = append(got, d) })

	require.NoError(t, err)
	assert.Equal(t, []string{resp.Message.Content}, got)
}

func TestConversationPipeline_Close(t *testing.T) {
	index := &fakeIndex{}
	p := newTestPipeline(index, &fakeLLM{}, database.NewHistoryStore())

	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()))
	assert.True(t, index.isClosed())

	_, err := p.Ask(context.Background(), "s1", "Q")
	assert.ErrorIs(t, err, types.ErrNoDocuments)
}

func TestConversationHandle(t *testing.T) {
	var h ConversationHandle
	history := database.NewHistoryStore()

	_, err := h.Ask(context.Background(), "s1", "Q")
	assert.ErrorIs(t, err, types.ErrNoDocuments)

	_, err = h.Ask(context.Background(), "s1", "")
	assert.ErrorIs(t, err, types.ErrEmptyQuestion)

	first := newTestPipeline(&fakeIndex{passages: []string{"old"}}, &fakeLLM{}, history)
	assert.Nil(t, h.Replace(first))
	_, err = h.Ask(context.Background(), "s1", "Q1")
	require.NoError(t, err)

	second := newTestPipeline(&fakeIndex{passages: []string{"new"}}, &fakeLLM{}, history)
	assert.Same(t, first, h.Replace(second))
	assert.Same(t, second, h.Current())

	resp, err := h.Ask(context.Background(), "s1", "Q2")
	require.NoError(t, err)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "new", resp.Sources[0].Chunk.Content)
	assert.Equal(t, 4, history.GetOrCreate("s1").Len(), "history survives a new index")

	require.NoError(t, h.Close(context.Background()))
	assert.Nil(t, h.Current())
}
