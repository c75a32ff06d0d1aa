package websocket

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"chit-chat/internal/events"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Frame is the JSON shape of every websocket message in both directions.
type Frame struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// TypingFunc re-publishes an on-input signal for the given user.
type TypingFunc func(ctx context.Context, targetID uuid.UUID)

// Client is a middleman between the websocket connection and the broker.
type Client struct {
	// The user ID this client represents.
	UserID uuid.UUID

	// The websocket connection.
	Conn *websocket.Conn

	// Events addressed to UserID.
	Sub *events.Subscription

	// Called for incoming on-input frames.
	Typing TypingFunc
}

// Run serves the connection until either side goes away.
func (c *Client) Run(ctx context.Context) {
	go c.WritePump()
	c.ReadPump(ctx)
}

// ReadPump reads client frames. Only on-input frames are acted on.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Sub.Close()
		c.Conn.Close()
		log.Printf("WebSocket Client ReadPump stopped for User %s", c.UserID)
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error for User %s: %v", c.UserID, err)
			}
			break
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			log.Printf("WebSocket ignoring malformed frame from User %s: %v", c.UserID, err)
			continue
		}
		if frame.Event != events.OnInput || c.Typing == nil {
			continue
		}
		target, err := uuid.Parse(frame.Data)
		if err != nil {
			log.Printf("WebSocket ignoring on-input with bad id from User %s", c.UserID)
			continue
		}
		c.Typing(ctx, target)
	}
}

// WritePump writes subscription events to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		log.Printf("WebSocket Client WritePump stopped for User %s", c.UserID)
	}()
	for {
		select {
		case ev, ok := <-c.Sub.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The subscription ended.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(Frame{Event: ev.Name, Data: ev.Data}); err != nil {
				log.Printf("WebSocket write error for User %s: %v", c.UserID, err)
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("WebSocket write error (Ping) for User %s: %v", c.UserID, err)
				return
			}
		}
	}
}
