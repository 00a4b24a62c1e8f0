package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/valyala/bytebufferpool"

	"chatcore/pkg/fanout"
	"chatcore/pkg/logger"
	"chatcore/pkg/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 4096
)

// clientOp is an inbound control frame. Clients use the socket only for
// ephemeral signals; durable writes go through the HTTP API.
type clientOp struct {
	Op     string `json:"op"`
	Thread string `json:"thread,omitempty"`
	UpTo   int64  `json:"up_to,omitempty"`
}

// client is one websocket session for one user. Events from every
// attached subscription funnel into send; a full send buffer tears the
// session down rather than blocking the dispatcher.
type client struct {
	gw     *Gateway
	conn   *websocket.Conn
	connID string
	user   string

	send chan models.Event
	done chan struct{}
	subs []*fanout.Subscription
}

// readPump consumes control frames until the peer goes away. Pongs feed
// the presence heartbeat.
func (c *client) readPump() {
	defer c.teardown()
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.gw.presence.Heartbeat(c.user, c.connID)
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("ws_read_failed", "user", c.user, "error", err)
			}
			return
		}
		var op clientOp
		if err := json.Unmarshal(data, &op); err != nil {
			logger.Warn("ws_bad_frame", "user", c.user, "error", err)
			continue
		}
		c.handleOp(op)
	}
}

func (c *client) handleOp(op clientOp) {
	switch op.Op {
	case "typing_start":
		if op.Thread != "" {
			c.gw.typing.StartTyping(op.Thread, c.user)
		}
	case "typing_stop":
		if op.Thread != "" {
			c.gw.typing.StopTyping(op.Thread, c.user)
		}
	case "mark_seen":
		if op.Thread == "" {
			return
		}
		if _, err := c.gw.threads.MarkSeen(op.Thread, c.user, op.UpTo); err != nil {
			logger.Warn("ws_mark_seen_failed", "user", c.user, "thread", op.Thread, "error", err)
		}
	case "heartbeat":
		c.gw.presence.Heartbeat(c.user, c.connID)
	default:
		logger.Debug("ws_unknown_op", "user", c.user, "op", op.Op)
	}
}

// writePump serializes events onto the socket and keeps the connection
// alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeEvent(ev); err != nil {
				logger.Warn("ws_write_failed", "user", c.user, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) writeEvent(ev models.Event) error {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	if err := json.NewEncoder(bb).Encode(ev); err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, bb.B)
}

// forward drains one subscription into the shared send channel.
func (c *client) forward(sub *fanout.Subscription) {
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			select {
			case c.send <- ev:
			case <-c.done:
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) teardown() {
	c.gw.detach(c)
}
