package types

type ChatRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

type ChatResponse struct {
	SessionID string         `json:"session_id"`
	Message   *Message       `json:"message"`
	Sources   []SearchResult `json:"sources,omitempty"`
}

type HistoryResponse struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}

type SessionsResponse struct {
	Sessions []string `json:"sessions"`
}
