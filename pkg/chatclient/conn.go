// Package chatclient is the client side of marketplace chat: one realtime
// connection per session, a REST client, and the conversation, typing and
// notification state built on top of them.
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"marketchat/internal/conversation"
	"marketchat/pkg/protocol"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

var (
	ErrNotConnected = errors.New("chatclient: not connected")
	ErrClosed       = errors.New("chatclient: connection closed")
)

const (
	maxReadBytes = 1 << 20
	writeTimeout = 10 * time.Second
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

type StateData struct {
	State string `json:"state"`
}

type Options struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8080/api/v1/ws.
	URL    string
	Token  string
	UserID string
	Policy ReconnectPolicy
	Header http.Header
	Logger *slog.Logger
}

// Conn is a realtime session. After a dropped connection it reconnects
// following Policy and replays register-user and the active join-chat.
type Conn struct {
	opts Options
	bus  *Bus
	log  *slog.Logger

	mu         sync.Mutex
	ws         *websocket.Conn
	activePeer string

	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial connects and registers opts.UserID. The first connection uses the
// same retry policy as later reconnects.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	if !conversation.ValidUserID(opts.UserID) {
		return nil, fmt.Errorf("chatclient: invalid user id %q", opts.UserID)
	}
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = DefaultReconnectPolicy()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		opts:   opts,
		bus:    NewBus(log),
		log:    log.With("userID", opts.UserID),
		ctx:    runCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.setState(Connecting)
	ws, err := c.connect(ctx, 0)
	if err != nil {
		cancel()
		c.setState(Disconnected)
		return nil, err
	}

	go c.run(ws)
	return c, nil
}

func (c *Conn) UserID() string {
	return c.opts.UserID
}

func (c *Conn) State() State {
	return State(c.state.Load())
}

func (c *Conn) Subscribe(types ...protocol.EventType) *Subscription {
	return c.bus.Subscribe(types...)
}

// Done is closed once the connection is permanently down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	raw, _ := json.Marshal(StateData{State: s.String()})
	c.bus.Publish(protocol.Envelope{Event: EventConnectionState, Data: raw})
	c.log.Debug("Connection state changed", "state", s)
}

// connect tries up to Policy.MaxAttempts times. A non-zero startAttempt
// means the previous connection was lost and the first dial also waits.
func (c *Conn) connect(ctx context.Context, startAttempt int) (*websocket.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= c.opts.Policy.MaxAttempts; attempt++ {
		if attempt > 1 || startAttempt > 0 {
			if err := sleepContext(ctx, c.opts.Policy.Delay(attempt)); err != nil {
				return nil, err
			}
		}

		ws, err := c.dialOnce(ctx)
		if err == nil {
			return ws, nil
		}
		lastErr = err
		c.log.Warn("Connection attempt failed", "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("chatclient: giving up after %d attempts: %w", c.opts.Policy.MaxAttempts, lastErr)
}

func (c *Conn) dialOnce(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, err
	}
	if c.opts.Token != "" {
		q := u.Query()
		q.Set("token", c.opts.Token)
		u.RawQuery = q.Encode()
	}

	dialCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	ws, _, err := websocket.Dial(dialCtx, u.String(), &websocket.DialOptions{HTTPHeader: c.opts.Header})
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(maxReadBytes)

	if err := c.handshake(ctx, ws); err != nil {
		ws.Close(websocket.StatusInternalError, "handshake failed")
		return nil, err
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	c.setState(Connected)
	return ws, nil
}

// handshake registers the user and rejoins the active conversation.
func (c *Conn) handshake(ctx context.Context, ws *websocket.Conn) error {
	if err := write(ctx, ws, protocol.EventRegisterUser, protocol.RegisterUserData{UserID: c.opts.UserID}); err != nil {
		return err
	}

	c.mu.Lock()
	peer := c.activePeer
	c.mu.Unlock()
	if peer == "" {
		return nil
	}
	return write(ctx, ws, protocol.EventJoinChat, protocol.JoinChatData{UserID: c.opts.UserID, OtherUserID: peer})
}

func (c *Conn) run(ws *websocket.Conn) {
	defer close(c.done)
	defer c.bus.Close()

	for {
		err := c.readLoop(ws)

		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()

		if c.ctx.Err() != nil {
			c.setState(Disconnected)
			return
		}
		c.log.Warn("Connection lost, reconnecting", "error", err)
		c.setState(Connecting)

		ws, err = c.connect(c.ctx, 1)
		if err != nil {
			c.log.Error("Reconnection failed", "error", err)
			c.setState(Disconnected)
			return
		}
		c.log.Info("Reconnected")
	}
}

func (c *Conn) readLoop(ws *websocket.Conn) error {
	for {
		_, frame, err := ws.Read(c.ctx)
		if err != nil {
			return err
		}
		envelopes, err := protocol.Split(frame)
		for _, env := range envelopes {
			c.bus.Publish(env)
		}
		if err != nil {
			c.log.Warn("Dropping malformed frame", "error", err)
		}
	}
}

func write(ctx context.Context, ws *websocket.Conn, event protocol.EventType, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, protocol.Envelope{Event: event, Data: raw})
}

// Emit sends one event on the current connection.
func (c *Conn) Emit(ctx context.Context, event protocol.EventType, data any) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	return write(ctx, ws, event, data)
}

// JoinChat subscribes the session to the conversation with otherUserID and
// remembers it for reconnects.
func (c *Conn) JoinChat(ctx context.Context, otherUserID string) error {
	c.mu.Lock()
	c.activePeer = otherUserID
	c.mu.Unlock()
	return c.Emit(ctx, protocol.EventJoinChat, protocol.JoinChatData{UserID: c.opts.UserID, OtherUserID: otherUserID})
}

// LeaveChat forgets the active conversation. The server keeps the room
// membership until the connection closes.
func (c *Conn) LeaveChat(otherUserID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activePeer == otherUserID {
		c.activePeer = ""
	}
}

func (c *Conn) SendMessage(ctx context.Context, receiverID, text, senderName string) error {
	return c.Emit(ctx, protocol.EventSendMessage, protocol.SendMessageData{
		RoomID:     conversation.RoomID(c.opts.UserID, receiverID),
		ReceiverID: receiverID,
		Message:    text,
		SenderID:   c.opts.UserID,
		SenderName: senderName,
	})
}

func (c *Conn) SendTyping(ctx context.Context, otherUserID string, typing bool) error {
	return c.Emit(ctx, protocol.EventTyping, protocol.TypingData{
		RoomID:   conversation.RoomID(c.opts.UserID, otherUserID),
		UserID:   c.opts.UserID,
		IsTyping: typing,
	})
}

// Close shuts the session down without reconnecting.
func (c *Conn) Close() error {
	c.cancel()

	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	if ws != nil {
		// The cancelled read may already have torn the socket down.
		_ = ws.Close(websocket.StatusNormalClosure, "")
	}
	<-c.done
	return nil
}
