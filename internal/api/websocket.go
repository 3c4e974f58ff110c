package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/fairlens/backend/internal/intake"
	"github.com/fairlens/backend/internal/logging"
)

// WebSocket message types for the upload progress protocol
const (
	// Client -> Server messages
	MsgTypePing      = "ping"
	MsgTypeSubscribe = "subscribe"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeProgress  = "progress"
	MsgTypeComplete  = "complete"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocketHandler pushes upload state changes to connected clients. The
// EventSource progress stream covers single-tab use; the socket exists for
// clients that keep a long-lived connection open across uploads.
type WebSocketHandler struct {
	intake   IntakeService
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewWebSocketHandler creates a new WebSocket progress handler
func NewWebSocketHandler(svc IntakeService) *WebSocketHandler {
	return &WebSocketHandler{
		intake: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Local gateway; same-origin enforcement happens at CORS level
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
		},
		log: logging.NewLogger("websocket"),
	}
}

// HandleWebSocket upgrades the connection and streams upload state. A reader
// goroutine services pings; the main loop polls the controller and pushes
// snapshots whenever anything changed.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	wsh.log.Debug().Str("remote", ws.RemoteAddr().String()).Msg("client connected")

	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeConnected,
		Timestamp: time.Now().UnixMilli(),
	})

	done := make(chan struct{})
	go wsh.readLoop(ws, done)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var last intake.State
	for {
		select {
		case <-ticker.C:
			state := wsh.intake.Snapshot()
			if state == last {
				continue
			}
			if !wsh.pushState(ws, state) {
				return nil
			}
			last = state

		case <-done:
			wsh.log.Debug().Msg("client disconnected")
			return nil

		case <-c.Request().Context().Done():
			return nil
		}
	}
}

// readLoop drains client messages and answers pings. Closing done ends the
// push loop when the client goes away.
func (wsh *WebSocketHandler) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				wsh.log.Debug().Err(err).Msg("connection error")
			}
			return
		}

		switch msg.Type {
		case MsgTypePing:
			wsh.sendMessage(ws, WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
		case MsgTypeSubscribe:
			// Snapshots are pushed unconditionally; subscribe is a no-op kept
			// for client compatibility.
		default:
			wsh.sendError(ws, "Unknown message type: "+msg.Type)
		}
	}
}

// pushState sends one state snapshot; returns false if the write failed.
func (wsh *WebSocketHandler) pushState(ws *websocket.Conn, state intake.State) bool {
	msgType := MsgTypeProgress
	switch state.Status {
	case intake.StatusComplete:
		msgType = MsgTypeComplete
	case intake.StatusError:
		msgType = MsgTypeError
	}

	return wsh.sendMessage(ws, WSMessage{
		Type:      msgType,
		ID:        state.JobID,
		Payload:   mustJSON(state),
		Timestamp: time.Now().UnixMilli(),
	})
}

// Helper methods

func (wsh *WebSocketHandler) sendMessage(ws *websocket.Conn, msg WSMessage) bool {
	if err := ws.WriteJSON(msg); err != nil {
		wsh.log.Debug().Err(err).Msg("failed to send message")
		return false
	}
	return true
}

func (wsh *WebSocketHandler) sendError(ws *websocket.Conn, message string) {
	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeError,
		Payload:   mustJSON(map[string]string{"message": message}),
		Timestamp: time.Now().UnixMilli(),
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
