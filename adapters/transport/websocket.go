// Package transport connects to the voice-agent endpoint over WebSocket and
// turns wire frames into inbound messages.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/swara/domain/entities"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks
)

// Client is a WebSocket transport to the agent. Text frames carry JSON
// messages; binary frames carry raw PCM and are attributed to the message of
// the most recent audio traffic.
type Client struct {
	url    string
	header http.Header
	logger *zap.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	messages chan entities.InboundMessage
	closed   bool

	// currentID attributes raw binary frames to a message stream.
	currentID string
	binarySeq int
}

// NewClient creates a transport for the given endpoint URL.
func NewClient(url string, header http.Header, logger *zap.Logger) *Client {
	return &Client{
		url:      url,
		header:   header,
		logger:   logger,
		messages: make(chan entities.InboundMessage, 64),
	}
}

// Connect dials the endpoint. The wait is bounded by ctx; on deadline the
// caller sees ErrConnectTimeout.
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	conn, _, err := dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("dial %s: %w", c.url, entities.ErrConnectTimeout)
		}
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readPump(conn)
	go c.pingLoop(conn)

	c.logger.Info("Connected to agent", zap.String("url", c.url))
	return nil
}

// Messages returns the inbound stream. The channel closes when the
// connection ends.
func (c *Client) Messages() <-chan entities.InboundMessage {
	return c.messages
}

// Send writes an outbound JSON message to the agent.
func (c *Client) Send(v interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// Close tears the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		close(c.messages)
		return nil
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return conn.Close()
}

func (c *Client) readPump(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		alreadyClosed := c.closed
		c.closed = true
		c.mu.Unlock()
		if !alreadyClosed {
			conn.Close()
		}
		close(c.messages)
	}()

	for {
		frameType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("Connection closed unexpectedly", zap.Error(err))
			}
			return
		}

		switch frameType {
		case websocket.TextMessage:
			msg, err := c.parseTextFrame(payload)
			if err != nil {
				c.logger.Warn("Skipping unparseable frame", zap.Error(err))
				continue
			}
			c.messages <- msg
		case websocket.BinaryMessage:
			c.messages <- c.wrapBinaryFrame(payload)
		}
	}
}

// parseTextFrame decodes a JSON message, filling in identity fields the
// agent omitted.
func (c *Client) parseTextFrame(payload []byte) (entities.InboundMessage, error) {
	var msg entities.InboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return entities.InboundMessage{}, fmt.Errorf("parse message: %w", err)
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	if msg.Type == entities.MessageTypeAudioChunk {
		c.mu.Lock()
		if c.currentID != msg.ID {
			c.currentID = msg.ID
			c.binarySeq = 0
		}
		c.mu.Unlock()
	}
	return msg, nil
}

// wrapBinaryFrame turns a raw PCM frame into an audio_chunk message on the
// current message stream, numbering frames in arrival order.
func (c *Client) wrapBinaryFrame(payload []byte) entities.InboundMessage {
	c.mu.Lock()
	if c.currentID == "" {
		c.currentID = uuid.New().String()
	}
	id := c.currentID
	seq := c.binarySeq
	c.binarySeq++
	c.mu.Unlock()

	return entities.InboundMessage{
		ID:        id,
		Type:      entities.MessageTypeAudioChunk,
		Timestamp: time.Now().UnixMilli(),
		Data:      payload,
		Metadata:  entities.MessageMetadata{Sequence: &seq},
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			return
		}
	}
}
