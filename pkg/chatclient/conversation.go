package chatclient

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"marketchat/internal/conversation"
	"marketchat/pkg/protocol"
)

var ErrEmptyMessage = errors.New("chatclient: message is empty")

type EntryStatus int

const (
	// Pending entries were sent but the server has not echoed them yet.
	Pending EntryStatus = iota
	Confirmed
	Failed
)

func (s EntryStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Failed:
		return "failed"
	default:
		return "confirmed"
	}
}

// Entry is one line of a conversation. Local entries carry a LocalID until
// the server echo gives them a durable ID.
type Entry struct {
	LocalID    int64
	ID         string
	SenderID   string
	ReceiverID string
	Content    string
	CreatedAt  time.Time
	Status     EntryStatus
}

// Conversation merges stored history with realtime events for one peer.
type Conversation struct {
	conn   *Conn
	api    *API
	self   string
	other  string
	roomID string
	log    *slog.Logger

	typing *TypingIndicator

	mu         sync.Mutex
	entries    []Entry
	seen       map[string]struct{}
	lastLocal  int64
	peer       Peer
	peerTyping bool

	updates chan struct{}
	sub     *Subscription
	cancel  context.CancelFunc
	done    chan struct{}
}

// OpenConversation subscribes to realtime events, loads history, joins the
// room, marks the conversation read and resolves the peer. Only a missing
// connection is fatal; REST failures degrade to empty history or a
// placeholder peer.
func OpenConversation(ctx context.Context, conn *Conn, api *API, otherUserID string) (*Conversation, error) {
	if conn == nil {
		return nil, ErrNotConnected
	}
	self := conn.UserID()
	c := &Conversation{
		conn:    conn,
		api:     api,
		self:    self,
		other:   otherUserID,
		roomID:  conversation.RoomID(self, otherUserID),
		log:     conn.log.With("otherUserID", otherUserID),
		seen:    make(map[string]struct{}),
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	// Subscribe first so nothing sent while history loads is lost.
	c.sub = conn.Subscribe(protocol.EventReceiveMessage, protocol.EventUserTyping, protocol.EventError)

	history, err := api.History(ctx, otherUserID)
	if err != nil {
		c.log.Warn("Failed to load history", "error", err)
	}
	for _, m := range history {
		c.appendStored(m)
	}

	if err := conn.JoinChat(ctx, otherUserID); err != nil {
		c.log.Warn("Join deferred until reconnect", "error", err)
	}
	if _, err := api.MarkRead(ctx, otherUserID); err != nil {
		c.log.Warn("Failed to mark conversation read", "error", err)
	}
	c.peer, err = api.Peer(ctx, otherUserID)
	if err != nil {
		c.log.Debug("Using placeholder peer", "error", err)
	}

	c.typing = NewTypingIndicator(func(typing bool) {
		sendCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := conn.SendTyping(sendCtx, otherUserID, typing); err != nil {
			c.log.Debug("Failed to send typing", "error", err)
		}
	})

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(runCtx)

	c.changed()
	return c, nil
}

func (c *Conversation) RoomID() string {
	return c.roomID
}

func (c *Conversation) Peer() Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

func (c *Conversation) PeerTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerTyping
}

// Messages returns a snapshot of the conversation in display order.
func (c *Conversation) Messages() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.entries...)
}

// Updates fires after the conversation changes. Multiple changes may
// coalesce into one signal.
func (c *Conversation) Updates() <-chan struct{} {
	return c.updates
}

func (c *Conversation) changed() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// Keystroke reports local typing activity.
func (c *Conversation) Keystroke() {
	c.typing.Keystroke()
}

// Send shows the message immediately as pending and emits it. The entry
// is confirmed when the server echoes it back with a durable id, or marked
// failed when the server reports it could not be stored.
func (c *Conversation) Send(ctx context.Context, text, senderName string) (int64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, ErrEmptyMessage
	}
	c.typing.Stop()

	c.mu.Lock()
	c.lastLocal++
	local := c.lastLocal
	c.entries = append(c.entries, Entry{
		LocalID:    local,
		SenderID:   c.self,
		ReceiverID: c.other,
		Content:    text,
		CreatedAt:  time.Now(),
		Status:     Pending,
	})
	c.mu.Unlock()
	c.changed()

	if err := c.conn.SendMessage(ctx, c.other, text, senderName); err != nil {
		c.setStatus(local, Failed)
		return local, err
	}
	return local, nil
}

func (c *Conversation) setStatus(local int64, status EntryStatus) {
	c.mu.Lock()
	for i := range c.entries {
		if c.entries[i].LocalID == local {
			c.entries[i].Status = status
			break
		}
	}
	c.mu.Unlock()
	c.changed()
}

func (c *Conversation) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-c.sub.C:
			if !ok {
				return
			}
			c.handle(env)
		}
	}
}

func (c *Conversation) handle(env protocol.Envelope) {
	switch env.Event {
	case protocol.EventReceiveMessage:
		var data protocol.ReceiveMessageData
		if err := env.Decode(&data); err != nil {
			c.log.Warn("Ignoring malformed message", "error", err)
			return
		}
		if !c.belongs(data) {
			return
		}
		c.receive(data)

	case protocol.EventUserTyping:
		var data protocol.UserTypingData
		if err := env.Decode(&data); err != nil || data.UserID != c.other || c.other == c.self {
			return
		}
		c.mu.Lock()
		c.peerTyping = data.IsTyping
		c.mu.Unlock()
		c.changed()

	case protocol.EventError:
		var data protocol.ErrorData
		if err := env.Decode(&data); err != nil {
			return
		}
		switch data.Code {
		case protocol.CodeMessageNotStored, protocol.CodeInvalidPayload:
			c.failOldestPending(data)
		}
	}
}

// failOldestPending marks the earliest unconfirmed send as failed. The server
// answers sends in order, so a rejection always belongs to the oldest one.
func (c *Conversation) failOldestPending(data protocol.ErrorData) {
	c.mu.Lock()
	failed := false
	for i := range c.entries {
		if c.entries[i].Status == Pending {
			c.entries[i].Status = Failed
			failed = true
			break
		}
	}
	c.mu.Unlock()

	if failed {
		c.log.Warn("Message rejected by server", "code", data.Code, "message", data.Message)
		c.changed()
	}
}

// belongs filters events for other rooms this session joined earlier.
func (c *Conversation) belongs(data protocol.ReceiveMessageData) bool {
	if data.RoomID != "" {
		return data.RoomID == c.roomID
	}
	return conversation.RoomID(data.SenderID, data.ReceiverID) == c.roomID
}

func (c *Conversation) receive(data protocol.ReceiveMessageData) {
	c.mu.Lock()
	defer c.changed()
	defer c.mu.Unlock()

	if _, dup := c.seen[data.ID]; dup && data.ID != "" {
		return
	}
	if data.ID != "" {
		c.seen[data.ID] = struct{}{}
	}

	if data.SenderID == c.self {
		for i := range c.entries {
			e := &c.entries[i]
			if e.Status == Pending && e.Content == data.Message {
				e.ID = data.ID
				e.CreatedAt = data.Timestamp
				e.Status = Confirmed
				return
			}
		}
	}

	c.entries = append(c.entries, Entry{
		ID:         data.ID,
		SenderID:   data.SenderID,
		ReceiverID: data.ReceiverID,
		Content:    data.Message,
		CreatedAt:  data.Timestamp,
		Status:     Confirmed,
	})
	if data.SenderID == c.other && data.SenderID != c.self {
		c.peerTyping = false
	}
}

func (c *Conversation) appendStored(m Message) {
	if m.ID != "" {
		if _, dup := c.seen[m.ID]; dup {
			return
		}
		c.seen[m.ID] = struct{}{}
	}
	c.entries = append(c.entries, Entry{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
		Status:     Confirmed,
	})
}

// Close stops following the conversation. The connection stays open.
func (c *Conversation) Close() {
	c.typing.Stop()
	c.cancel()
	c.sub.Unsubscribe()
	<-c.done
	c.conn.LeaveChat(c.other)
}
