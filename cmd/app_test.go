package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matthewtan01/pdf-rag/config"
	"github.com/matthewtan01/pdf-rag/service"
	"github.com/matthewtan01/pdf-rag/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.OpenAIAPIKey = "sk-test"
	return cfg
}

func TestNewApplication_OpenAIMemory(t *testing.T) {
	app, err := newApplication(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer app.Close(context.Background())

	assert.NotNil(t, app.fileService)
	assert.Nil(t, app.handle.Current())
	assert.Empty(t, app.history.Sessions())
}

func TestNewApplication_UnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.IndexBackend = "faiss"
	_, err := newApplication(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

type staticIndex struct{}

func (staticIndex) Retrieve(context.Context, string) ([]types.SearchResult, error) {
	return []types.SearchResult{{Chunk: types.DocumentChunk{Content: "ctx"}}}, nil
}

func (staticIndex) Size() int { return 1 }

func (staticIndex) Close(context.Context) error { return nil }

type upperLLM struct{}

func (upperLLM) Chat(ctx context.Context, prompt string, messages []types.Message) (string, error) {
	return strings.ToUpper(messages[len(messages)-1].Content), nil
}

func loadedApp(t *testing.T) *application {
	t.Helper()
	app, err := newApplication(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	app.handle.Replace(service.NewConversationPipeline(staticIndex{}, upperLLM{}, app.history, service.PipelineOptions{}))
	return app
}

func TestRunChatLoop_RendersWholeHistory(t *testing.T) {
	app := loadedApp(t)
	var out bytes.Buffer

	err := runChatLoop(context.Background(), app, "cli", strings.NewReader("first\n\nsecond\n"), &out)

	require.NoError(t, err)
	msgs := app.history.GetOrCreate("cli").Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "SECOND", msgs[3].Content)
	// history is printed again after every answer
	assert.Equal(t, 2, strings.Count(out.String(), "FIRST"))
	assert.Equal(t, 1, strings.Count(out.String(), "SECOND"))
}

func TestRenderHistory_OrderAndRoles(t *testing.T) {
	var out bytes.Buffer
	renderHistory(&out, []types.Message{
		types.NewHumanMessage("question"),
		types.NewAssistantMessage("answer"),
	})
	s := out.String()
	assert.Less(t, strings.Index(s, "question"), strings.Index(s, "answer"))
}

func TestProcessWithStatus_PrintsEveryStatusBeforeReturning(t *testing.T) {
	var out bytes.Buffer

	result, err := processWithStatus(context.Background(), &out, func(ctx context.Context, status chan<- types.ProcessingDocumentStatus) (*types.ProcessResult, error) {
		for _, msg := range []string{"extracting a.pdf", "splitting", "indexing", "completed"} {
			status <- types.ProcessingDocumentStatus{Message: msg}
		}
		return &types.ProcessResult{Chunks: 3}, nil
	})
	out.WriteString("summary\n")

	require.NoError(t, err)
	assert.Equal(t, 3, result.Chunks)
	s := out.String()
	last := -1
	for _, msg := range []string{"extracting a.pdf", "splitting", "indexing", "completed", "summary"} {
		idx := strings.Index(s, msg)
		require.GreaterOrEqual(t, idx, 0, msg)
		assert.Greater(t, idx, last, msg)
		last = idx
	}
}

func TestNewRouter_Routes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app := loadedApp(t)
	router := newRouter(app)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/chat",
		strings.NewReader(`{"question":"hi"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"HI"`)
	assert.Equal(t, 2, app.history.GetOrCreate(app.cfg.DefaultSessionID).Len())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))
	assert.Contains(t, w.Body.String(), app.cfg.DefaultSessionID)
}
