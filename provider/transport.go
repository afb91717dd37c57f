package provider

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one live connection to a venue feed. ReadMessage blocks until a
// frame arrives or the connection dies.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(payload []byte) error
	Close() error
}

// Transport dials venue endpoints. The session depends only on this
// contract; tests substitute an in-memory implementation.
type Transport interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

type WSTransport struct {
	HandshakeTimeout time.Duration
}

func NewWSTransport(handshakeTimeout time.Duration) *WSTransport {
	return &WSTransport{HandshakeTimeout: handshakeTimeout}
}

func (t *WSTransport) Dial(ctx context.Context, endpoint string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: t.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, msg, err := c.conn.ReadMessage()
	return msg, err
}

func (c *wsConn) WriteMessage(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
