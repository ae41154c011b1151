package types

import "encoding/json"

const (
	TypeWebsocketPing      = "ping"
	TypeWebsocketPong      = "pong"
	TypeWebsocketChat      = "chat"
	TypeWebsocketChatDelta = "chat_delta"
	TypeWebsocketError     = "error"
)

type WebsocketRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type WebSocketChatPayload struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

type WebSocketResponse struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type WebSocketDeltaResponse struct {
	SessionID string `json:"session_id"`
	Delta     string `json:"delta"`
}

type WebSocketErrorResponse struct {
	Message string `json:"message"`
}
