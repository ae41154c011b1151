package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matthewtan01/pdf-rag/types"
)

const (
	wsReadLimit   = 512 * 1024 // 512KB max message size
	wsPongWait    = 60 * time.Second
	wsWriteWait   = 10 * time.Second
	wsTurnBacklog = 8
)

type WebSocketService struct {
	handle         *ConversationHandle
	defaultSession string
	upgrader       websocket.Upgrader
	pongWait       time.Duration
	logger         *zap.Logger
}

func NewWebSocketService(handle *ConversationHandle, defaultSession string, logger *zap.Logger) *WebSocketService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketService{
		handle:         handle,
		defaultSession: defaultSession,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins (adjust for production)
			},
		},
		pongWait: wsPongWait,
		logger:   logger,
	}
}

// wsConn serialises writes; gorilla allows one concurrent writer.
type wsConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (s *WebSocketService) HandleChat(w http.ResponseWriter, r *http.Request) {
	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn := &wsConn{Conn: raw}
	defer conn.Close()

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(s.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongWait))
		return nil
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.keepAlive(ctx, conn)

	// chat turns run one at a time, in arrival order, while the loop below
	// keeps reading so pongs are still processed during long answers
	turns := make(chan types.WebSocketChatPayload, wsTurnBacklog)
	var worker sync.WaitGroup
	worker.Add(1)
	go func() {
		defer worker.Done()
		for payload := range turns {
			if ctx.Err() != nil {
				continue
			}
			s.handleChatMessage(ctx, conn, payload)
		}
	}()
	defer func() {
		close(turns)
		cancel()
		worker.Wait()
	}()

	for {
		_, p, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.pongWait))

		var req types.WebsocketRequest
		if err := json.Unmarshal(p, &req); err != nil {
			s.sendError(conn, "invalid message")
			continue
		}

		switch req.Type {
		case types.TypeWebsocketChat:
			var payload types.WebSocketChatPayload
			if err := json.Unmarshal(req.Payload, &payload); err != nil {
				s.sendError(conn, "invalid chat payload")
				continue
			}
			select {
			case turns <- payload:
			default:
				s.sendError(conn, "too many pending chat messages")
			}
		case types.TypeWebsocketPing:
			if err := conn.send(types.WebSocketResponse{Type: types.TypeWebsocketPong}); err != nil {
				s.logger.Warn("websocket write error", zap.Error(err))
				return
			}
		default:
			s.sendError(conn, "unknown message type: "+req.Type)
		}
	}
}

func (s *WebSocketService) handleChatMessage(ctx context.Context, conn *wsConn, payload types.WebSocketChatPayload) {
	sessionID := payload.SessionID
	if sessionID == "" {
		sessionID = s.defaultSession
	}

	resp, err := s.handle.AskStream(ctx, sessionID, payload.Question, func(delta string) {
		if err := conn.send(types.WebSocketResponse{
			Type:    types.TypeWebsocketChatDelta,
			Payload: types.WebSocketDeltaResponse{SessionID: sessionID, Delta: delta},
		}); err != nil {
			s.logger.Debug("dropping delta", zap.Error(err))
		}
	})
	if err != nil {
		s.logger.Error("chat failed", zap.String("session", sessionID), zap.Error(err))
		s.sendError(conn, err.Error())
		return
	}
	if err := conn.send(types.WebSocketResponse{Type: types.TypeWebsocketChat, Payload: resp}); err != nil {
		s.logger.Warn("websocket write error", zap.Error(err))
	}
}

func (s *WebSocketService) sendError(conn *wsConn, message string) {
	if err := conn.send(types.WebSocketResponse{
		Type:    types.TypeWebsocketError,
		Payload: types.WebSocketErrorResponse{Message: message},
	}); err != nil {
		s.logger.Warn("websocket write error", zap.Error(err))
	}
}

func (s *WebSocketService) keepAlive(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(s.pongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
