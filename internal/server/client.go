package server

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Client is one websocket connection. The identity fields are written only
// by the event loop.
type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        zerolog.Logger
	send       chan *ServerMessage
	stop       chan struct{}
	stopOnce   sync.Once

	// boundUserId is set before registration when the upgrade request
	// carried a valid session token.
	boundUserId int

	userId    int
	username  string
	isAdmin   bool
	sessionId int
}

func NewClient(conn *websocket.Conn, cs *ChatServer, l zerolog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:         id,
		conn:       conn,
		chatServer: cs,
		log:        l.With().Str("conn_id", id).Logger(),
		send:       make(chan *ServerMessage, sendBufferSize),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Id() string {
	return c.id
}

// BindUser restricts the connection to authenticating as userId. It must be
// called before RegisterClient.
func (c *Client) BindUser(userId int) {
	c.boundUserId = userId
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug().Msg("write exiting")
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Error().Err(err).Msg("failed to serialize message")
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.chatServer.DeRegisterClient(c)
		c.log.Debug().Msg("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("ws: read")
			}
			return
		}

		req, err := parseRequest(raw)
		if err != nil {
			c.log.Debug().Err(err).Msg("rejected inbound frame")
			c.queueMessage(ErrorMessage(err))
			continue
		}

		if err := c.chatServer.enqueue(c, req); err != nil {
			if errors.Is(err, ErrServiceUnavailable) {
				c.queueMessage(ErrorMessage(err))
				continue
			}
			return
		}
	}
}

// queueMessage performs a non-blocking enqueue on the client's send buffer.
// It never blocks the caller; a full or stopped client drops the message.
func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case <-c.stop:
		return false
	default:
	}

	select {
	case c.send <- msg:
	default:
		c.log.Warn().Str("type", msg.Type).Msg("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warn().Err(err).Msg("write message")
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) authenticated() bool {
	return c.userId != 0
}
