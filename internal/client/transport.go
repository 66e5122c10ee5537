package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the server
	writeWait = 10 * time.Second

	// The server pings well inside this window
	readWait = 70 * time.Second
)

// Conn is one established transport connection carrying envelope frames
type Conn interface {
	// WriteFrame is safe for concurrent use
	WriteFrame(frame []byte) error
	// ReadFrame blocks until the next frame or a transport failure
	ReadFrame() ([]byte, error)
	Close() error
}

// Transport opens connections to the chat server
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// WSTransport dials the chat server over WebSocket
type WSTransport struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
}

func NewWSTransport(url string) *WSTransport {
	return &WSTransport{
		URL: url,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
		},
	}
}

func (t *WSTransport) Dial(ctx context.Context) (Conn, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, _, err := dialer.DialContext(ctx, t.URL, t.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.URL, err)
	}
	return newWSConn(conn), nil
}

type wsConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	c := &wsConn{conn: conn}

	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	return c
}

func (c *wsConn) WriteFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	for {
		messageType, frame, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.TextMessage {
			c.conn.SetReadDeadline(time.Now().Add(readWait))
			return frame, nil
		}
	}
}

// Close says goodbye to the server before tearing the connection down
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
