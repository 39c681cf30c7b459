package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/NexaFlowAI/voice-widget-service/pkg/logger"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
	pingInterval = 20 * time.Second
)

// WebsocketClient speaks the SDK's realtime control protocol over a
// websocket: control frames out (start/stop/mute), event frames in. One
// websocket connection maps to one call.
type WebsocketClient struct {
	serverURL string
	apiKey    string

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[EventType][]Handler
	closed   chan struct{}

	// gorilla/websocket allows one concurrent writer; every control frame
	// and ping goes through this mutex
	writeMu sync.Mutex
}

// NewWebsocketClient creates a client for the given SDK realtime endpoint
func NewWebsocketClient(serverURL, apiKey string) *WebsocketClient {
	return &WebsocketClient{
		serverURL: serverURL,
		apiKey:    apiKey,
		handlers:  make(map[EventType][]Handler),
	}
}

// On registers an event handler. Registration is expected to happen once, at
// orchestrator construction, before any call starts.
func (c *WebsocketClient) On(eventType EventType, handler Handler) {
	c.mu.Lock()
	c.handlers[eventType] = append(c.handlers[eventType], handler)
	c.mu.Unlock()
}

// controlFrame is the outbound wire shape
type controlFrame struct {
	Type        string        `json:"type"` // "start", "stop", "mute"
	AssistantID string        `json:"assistantId,omitempty"`
	Muted       *bool         `json:"muted,omitempty"`
	Variables   *CallMetadata `json:"variableValues,omitempty"`
}

// eventFrame is the inbound wire shape
type eventFrame struct {
	Type    string                 `json:"type"`
	CallID  string                 `json:"callId,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Start dials the SDK, sends the start control frame and launches the event
// read loop. It returns once the start frame is written; EventCallStart
// arrives later, when the SDK reports audio flowing.
func (c *WebsocketClient) Start(ctx context.Context, assistantID string, meta CallMetadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("call already in progress")
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.serverURL, header)
	if err != nil {
		return fmt.Errorf("failed to connect to voice server: %w", err)
	}

	frame := controlFrame{Type: "start", AssistantID: assistantID, Variables: &meta}
	if err := c.writeJSON(conn, frame); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send start frame: %w", err)
	}

	c.conn = conn
	c.closed = make(chan struct{})

	go c.readLoop(conn, c.closed)
	go c.pingLoop(conn, c.closed)

	logger.Base().Info("voice call started", zap.String("assistant_id", assistantID))
	return nil
}

// Stop requests a call teardown. The SDK acknowledges with a call-end event;
// the connection is closed when the read loop exits.
func (c *WebsocketClient) Stop(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	if err := c.writeJSON(conn, controlFrame{Type: "stop"}); err != nil {
		return fmt.Errorf("failed to send stop frame: %w", err)
	}
	return nil
}

// SetMuted forwards the mute flag to the SDK
func (c *WebsocketClient) SetMuted(muted bool) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("no active call")
	}

	return c.writeJSON(conn, controlFrame{Type: "mute", Muted: &muted})
}

// readLoop decodes inbound event frames and dispatches them until the
// connection drops. Transport failures surface as an error event so the
// orchestrator's normal error path handles them.
func (c *WebsocketClient) readLoop(conn *websocket.Conn, closed chan struct{}) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
		close(closed)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Base().Info("voice connection closed")
				return
			}
			logger.Base().Warn("voice connection read failed", zap.Error(err))
			c.dispatch(Event{Type: EventError, Err: err})
			return
		}

		var frame eventFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.Base().Warn("skipping malformed voice event frame", zap.Error(err))
			continue
		}

		event := Event{
			Type:    EventType(frame.Type),
			CallID:  frame.CallID,
			Payload: frame.Payload,
		}
		if frame.Error != "" {
			event.Err = fmt.Errorf("%s", frame.Error)
		}
		c.dispatch(event)

		// The SDK sends nothing after call-end; tear the socket down.
		if event.Type == EventCallEnd {
			return
		}
	}
}

// Ping writes a ping frame on the active connection. Used by the mobile
// continuity guard as its keepalive.
func (c *WebsocketClient) Ping() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("no active call")
	}

	return c.writePing(conn)
}

// pingLoop keeps the connection alive through idle stretches of a call
func (c *WebsocketClient) pingLoop(conn *websocket.Conn, closed chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			if err := c.writePing(conn); err != nil {
				return
			}
		}
	}
}

// writeJSON and writePing are the only places a frame leaves the connection;
// the write deadline is set under the same lock.
func (c *WebsocketClient) writeJSON(conn *websocket.Conn, v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

func (c *WebsocketClient) writePing(conn *websocket.Conn) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *WebsocketClient) dispatch(event Event) {
	c.mu.Lock()
	handlers := append([]Handler(nil), c.handlers[event.Type]...)
	c.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}
