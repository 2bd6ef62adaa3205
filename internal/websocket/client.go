package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"marketchat/internal/conversation"
	"marketchat/internal/models"
	"marketchat/internal/services"
	"marketchat/pkg/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Upper bound for storing one message sent over the socket
	sendTimeout = 10 * time.Second

	defaultSendBuffer = 256
)

// MessageSender persists a message and hands it to the hub for delivery.
type MessageSender interface {
	SendMessage(ctx context.Context, in services.SendInput) (*models.Message, error)
}

type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	sender MessageSender

	// authUserID is the user proven by the handshake token, empty for
	// anonymous connections.
	authUserID string

	// userID is the last user announced by register-user. Only the read
	// pump touches it.
	userID string

	closed     int32
	sendClosed int32
}

func newClient(hub *Hub, conn *websocket.Conn, sender MessageSender, authUserID string) *Client {
	return &Client{
		id:         uuid.New().String(),
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, hub.sendBuffer),
		sender:     sender,
		authUserID: authUserID,
		userID:     authUserID,
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

func (c *Client) close() {
	atomic.StoreInt32(&c.closed, 1)
}

// closeSendChannel is called by the hub loop only.
func (c *Client) closeSendChannel() {
	if atomic.CompareAndSwapInt32(&c.sendClosed, 0, 1) {
		close(c.send)
	}
}

// enqueue is called by the hub loop only. It reports false when the queue is
// full.
func (c *Client) enqueue(frame []byte) bool {
	if atomic.LoadInt32(&c.sendClosed) == 1 {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// replyError queues an error event from outside the hub loop.
func (c *Client) replyError(code, message string) {
	c.hub.do(func() { c.hub.sendError(c, code, message) })
}

func (c *Client) readPump() {
	defer func() {
		c.close()
		c.hub.unregisterClient(c)
		if err := c.conn.Close(); err != nil {
			slog.Debug("Error closing connection", "clientID", c.id, "error", err)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.isClosed() {
			return websocket.ErrCloseSent
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "clientID", c.id, "userID", c.userID, "error", err)
			} else {
				slog.Debug("WebSocket connection closed", "clientID", c.id, "userID", c.userID, "error", err)
			}
			return
		}

		envelopes, err := protocol.Split(frame)
		for _, env := range envelopes {
			if !c.handle(env) {
				return
			}
		}
		if err != nil {
			slog.Warn("Failed to unmarshal message", "clientID", c.id, "userID", c.userID, "error", err)
			c.replyError(protocol.CodeInvalidMessage, "Invalid message format")
		}
	}
}

// handle routes one inbound event. It returns false once the hub is gone.
func (c *Client) handle(env protocol.Envelope) bool {
	switch env.Event {
	case protocol.EventSendMessage:
		c.handleSendMessage(env)
		return true

	case protocol.EventRegisterUser:
		var data protocol.RegisterUserData
		if err := env.Decode(&data); err == nil && conversation.ValidUserID(data.UserID) &&
			(c.authUserID == "" || c.authUserID == data.UserID) {
			c.userID = data.UserID
		}
	}

	return c.hub.dispatch(&ClientEvent{Client: c, Envelope: env})
}

// handleSendMessage stores the message before anything is broadcast. The hub
// loop only ever sees messages that already carry a durable id.
func (c *Client) handleSendMessage(env protocol.Envelope) {
	c.hub.metrics.countInbound(env.Event)

	var data protocol.SendMessageData
	if err := env.Decode(&data); err != nil {
		c.replyError(protocol.CodeInvalidPayload, "invalid send-message payload")
		return
	}

	senderID := data.SenderID
	if senderID == "" {
		senderID = c.userID
	}
	if c.authUserID != "" && senderID != c.authUserID {
		c.replyError(protocol.CodeForbidden, "cannot send as another user")
		return
	}

	receiverID := data.ReceiverID
	if receiverID == "" {
		other, err := conversation.Counterpart(data.RoomID, senderID)
		if err != nil {
			c.replyError(protocol.CodeInvalidPayload, "cannot resolve receiver from room id")
			return
		}
		receiverID = other
	}

	ctx, cancel := context.WithTimeout(c.hub.ctx, sendTimeout)
	defer cancel()

	msg, err := c.sender.SendMessage(ctx, services.SendInput{
		SenderID:   senderID,
		ReceiverID: receiverID,
		SenderName: data.SenderName,
		Content:    data.Message,
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidUserID) || errors.Is(err, services.ErrEmptyContent) {
			c.replyError(protocol.CodeInvalidPayload, err.Error())
			return
		}
		slog.Error("Failed to store message", "clientID", c.id, "senderID", senderID, "receiverID", receiverID, "error", err)
		c.replyError(protocol.CodeMessageNotStored, "message could not be stored")
		return
	}

	slog.Debug("Message stored", "clientID", c.id, "messageID", msg.ID)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				slog.Debug("Error getting next writer", "clientID", c.id, "error", err)
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				queued, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(queued)
			}

			if err := w.Close(); err != nil {
				slog.Debug("Error closing writer", "clientID", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("Error sending ping", "clientID", c.id, "error", err)
				return
			}
		}
	}
}

// ServeWS upgrades the request and attaches the connection to the hub.
// authUserID may be empty for anonymous connections.
func ServeWS(hub *Hub, upgrader *websocket.Upgrader, sender MessageSender, w http.ResponseWriter, r *http.Request, authUserID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "userID", authUserID, "error", err)
		return
	}

	client := newClient(hub, conn, sender, authUserID)

	if err := hub.registerClient(client); err != nil {
		slog.Error("Failed to attach connection", "clientID", client.id, "error", err)
		conn.Close()
		return
	}
	slog.Info("New WebSocket connection established", "clientID", client.id, "userID", authUserID)

	go client.writePump()
	go client.readPump()
}
