package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicepilot-ai/voicepilot/pkg/core"
)

// Stream is one duplex connection to the relay. Send marshals a frame and
// writes it; Receive blocks for the next upstream message.
type Stream interface {
	Send(v any) error
	Receive() ([]byte, error)
	Close() error
}

// Dialer opens streams. Tests substitute a scripted implementation.
type Dialer interface {
	Dial(ctx context.Context, url string) (Stream, error)
}

// WebSocketDialer dials the relay over a websocket.
type WebSocketDialer struct {
	// HandshakeTimeout bounds the dial; zero means 10 seconds.
	HandshakeTimeout time.Duration
}

// Dial opens the websocket connection.
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Stream, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, core.NewTransportError("dial", err)
	}
	return &wsStream{conn: conn}, nil
}

// wsStream wraps a websocket connection. Writes are serialized because the
// send path is hit from both the capture callback and the controller
// goroutine.
type wsStream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *wsStream) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return core.NewTransportError("marshal", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return core.NewTransportError("send", err)
	}
	return nil
}

func (s *wsStream) Receive() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, core.NewTransportError("receive", err)
	}
	return data, nil
}

func (s *wsStream) Close() error {
	s.writeMu.Lock()
	s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	s.writeMu.Unlock()
	return s.conn.Close()
}
