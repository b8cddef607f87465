package channel

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is an ordered bidirectional message stream carrying the SRP
// handshake. The production transport is a WebSocket; tests use an in-memory
// implementation.
type Transport interface {
	Send(Message) error
	Receive() (Message, error)
	Close() error
}

// wsTransport adapts a gorilla WebSocket connection to the Transport
// interface, framing each Message as one JSON text frame.
type wsTransport struct {
	conn *websocket.Conn
}

// NewWebSocketTransport wraps an upgraded connection. The timeout bounds the
// whole handshake: read and write deadlines are set once, so a stalled
// client cannot pin the connection.
func NewWebSocketTransport(conn *websocket.Conn, timeout time.Duration) Transport {
	if timeout > 0 {
		deadline := time.Now().Add(timeout)
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Receive() (Message, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return Message{}, err
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (t *wsTransport) Close() error {
	t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}
