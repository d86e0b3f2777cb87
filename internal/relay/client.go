package relay

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-meetrelay/internal/broker"
	"github.com/teris-io/shortid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Identity is the participant identity the external auth layer attached
// to the connection. It is trusted as-is.
type Identity struct {
	Uid      string
	Username string
}

// Client is one live transport connection. It holds at most one channel
// and one fabric subscription at a time; both are mutated only from the
// read goroutine, so membership and subscription never diverge.
type Client struct {
	conn      *websocket.Conn
	server    *RelayServer
	log       *log.Logger
	sessionId string

	uid      string
	username string

	// channelName is the channel currently joined, empty when unjoined.
	channelName string
	sub         broker.Subscription
	forwardDone chan struct{}

	send     chan []byte
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(id Identity, conn *websocket.Conn, rs *RelayServer, logger *log.Logger) *Client {
	sid, err := shortid.Generate()
	if err != nil {
		logger.Println("generate session id:", err)
	}

	return &Client{
		conn:      conn,
		server:    rs,
		log:       logger,
		sessionId: sid,
		uid:       id.Uid,
		username:  id.Username,
		send:      make(chan []byte, 256),
		stop:      make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("client %s: write exiting", c.sessionId)
	}()

	for {
		select {
		case payload := <-c.send:
			if !c.sendMessage(websocket.TextMessage, payload) {
				return
			}
		case <-c.stop:
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
		c.cleanup()
		c.log.Printf("client %s: read exiting", c.sessionId)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ControlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.queueEvent(NewErrorEvent("invalid message: " + err.Error()))
			continue
		}

		c.server.dispatch(c, &msg)
	}
}

// queuePayload hands a payload to the write pump. It reports false when
// the transport is closed or its queue is full; the payload is dropped.
func (c *Client) queuePayload(payload []byte) bool {
	select {
	case <-c.stop:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		c.log.Printf("client %s: send queue full, dropping payload", c.sessionId)
		return false
	}
}

func (c *Client) queueEvent(event any) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		c.log.Printf("client %s: marshal event: %v", c.sessionId, err)
		return false
	}

	return c.queuePayload(payload)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
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

// cleanup tears down channel state before the connection is discarded:
// membership removal first, then subscription release, unconditionally.
func (c *Client) cleanup() {
	c.server.releaseChannel(c)
	c.server.deregisterClient(c)
	c.stopClient()
}
