package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"marketchat/internal/conversation"
	"marketchat/internal/models"
	"marketchat/pkg/protocol"
)

var ErrHubStopped = errors.New("hub stopped")

const (
	presenceTimeout = 3 * time.Second
	presenceBacklog = 1024
)

// PresenceTracker mirrors online state to a shared store.
type PresenceTracker interface {
	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string) error
}

// ClientEvent is an inbound event routed to the hub loop.
type ClientEvent struct {
	Client   *Client
	Envelope protocol.Envelope
}

type presenceUpdate struct {
	userID string
	online bool
}

type delivery struct {
	msg        *models.Message
	senderName string
}

type HubOptions struct {
	Logger   *slog.Logger
	Presence PresenceTracker // optional
	Metrics  *Metrics        // optional

	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int
}

// Hub routes realtime events between connections.
//
// All registry state is owned by the goroutine running Run; every other
// method hands work to that goroutine over a channel. Events are therefore
// processed one at a time in arrival order, which gives each room a total
// order of delivery.
type Hub struct {
	registry *Registry
	clients  map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan *ClientEvent
	deliveries chan delivery
	queries    chan func()

	presence   PresenceTracker
	presenceQ  chan presenceUpdate
	metrics    *Metrics
	log        *slog.Logger
	sendBuffer int

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	running  atomic.Bool
	stopOnce sync.Once
}

func NewHub(opts HubOptions) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	sendBuffer := opts.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}

	return &Hub{
		registry:   NewRegistry(),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *ClientEvent),
		deliveries: make(chan delivery),
		queries:    make(chan func()),
		presence:   opts.Presence,
		presenceQ:  make(chan presenceUpdate, presenceBacklog),
		metrics:    metrics,
		log:        log,
		sendBuffer: sendBuffer,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	if !h.running.CompareAndSwap(false, true) {
		return
	}
	defer close(h.done)

	if h.presence != nil {
		go h.presenceWorker()
	}

	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case ev := <-h.inbound:
			h.handleClientEvent(ev)

		case d := <-h.deliveries:
			h.deliver(d)

		case fn := <-h.queries:
			fn()

		case <-h.ctx.Done():
			h.shutdown()
			h.log.Info("WebSocket hub shutting down")
			return
		}
	}
}

// Stop terminates the loop and closes every connection.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.cancel()
		if h.running.Load() {
			<-h.done
		}
	})
}

func (h *Hub) registerClient(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.ctx.Done():
		return ErrHubStopped
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

func (h *Hub) dispatch(ev *ClientEvent) bool {
	select {
	case h.inbound <- ev:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// do runs fn on the hub loop and waits for it. It returns false when the hub
// is stopped.
func (h *Hub) do(fn func()) bool {
	done := make(chan struct{})
	select {
	case h.queries <- func() { fn(); close(done) }:
	case <-h.ctx.Done():
		return false
	}
	<-done
	return true
}

// DeliverMessage broadcasts a stored message to its room and notifies the
// receiver's connections. It returns once the hub loop has accepted the
// message.
func (h *Hub) DeliverMessage(msg *models.Message, senderName string) {
	select {
	case h.deliveries <- delivery{msg: msg, senderName: senderName}:
	case <-h.ctx.Done():
		h.log.Warn("Dropping delivery, hub stopped", "messageID", msg.ID)
	}
}

// IsOnline reports whether userID has at least one registered connection.
func (h *Hub) IsOnline(userID string) bool {
	var online bool
	h.do(func() { online = h.registry.IsOnline(userID) })
	return online
}

func (h *Hub) Stats() RegistryStats {
	var stats RegistryStats
	h.do(func() { stats = h.registry.Stats() })
	return stats
}

func (h *Hub) addClient(c *Client) {
	h.clients[c.id] = c
	h.registry.Connect(c.id)
	h.metrics.observe(h.registry.Stats())
	h.log.Debug("Client connected", "clientID", c.id)
}

func (h *Hub) removeClient(c *Client) {
	if h.clients[c.id] != c {
		return
	}
	delete(h.clients, c.id)
	c.closeSendChannel()

	rec, lastSession, _ := h.registry.Disconnect(c.id)
	h.metrics.observe(h.registry.Stats())
	h.log.Info("Client disconnected", "clientID", c.id, "userID", rec.UserID)

	if lastSession {
		h.updatePresence(rec.UserID, false)
	}
}

func (h *Hub) shutdown() {
	for id, c := range h.clients {
		c.closeSendChannel()
		h.registry.Disconnect(id)
		delete(h.clients, id)
	}
	h.metrics.observe(h.registry.Stats())
}

func (h *Hub) handleClientEvent(ev *ClientEvent) {
	c := ev.Client
	if h.clients[c.id] != c {
		return
	}
	h.metrics.countInbound(ev.Envelope.Event)

	switch ev.Envelope.Event {
	case protocol.EventRegisterUser:
		h.handleRegister(c, ev.Envelope)
	case protocol.EventJoinChat:
		h.handleJoin(c, ev.Envelope)
	case protocol.EventTyping:
		h.handleTyping(c, ev.Envelope)
	default:
		h.sendError(c, protocol.CodeUnknownEvent, "unknown event: "+ev.Envelope.Event.String())
	}
}

func (h *Hub) handleRegister(c *Client, env protocol.Envelope) {
	var data protocol.RegisterUserData
	if err := env.Decode(&data); err != nil || !conversation.ValidUserID(data.UserID) {
		h.sendError(c, protocol.CodeInvalidPayload, "register-user requires a valid user id")
		return
	}
	if c.authUserID != "" && c.authUserID != data.UserID {
		h.sendError(c, protocol.CodeForbidden, "cannot register as another user")
		return
	}

	first, vacated, err := h.registry.Register(c.id, data.UserID)
	if err != nil {
		h.log.Error("Failed to register user", "clientID", c.id, "userID", data.UserID, "error", err)
		return
	}
	h.metrics.observe(h.registry.Stats())
	h.log.Info("User registered", "clientID", c.id, "userID", data.UserID)

	if vacated != "" {
		h.updatePresence(vacated, false)
	}
	if first {
		h.updatePresence(data.UserID, true)
	}
}

func (h *Hub) handleJoin(c *Client, env protocol.Envelope) {
	var data protocol.JoinChatData
	if err := env.Decode(&data); err != nil {
		h.sendError(c, protocol.CodeInvalidPayload, "invalid join-chat payload")
		return
	}
	userID := data.UserID
	if userID == "" {
		rec, _ := h.registry.Lookup(c.id)
		userID = rec.UserID
	}
	if c.authUserID != "" && c.authUserID != userID {
		h.sendError(c, protocol.CodeForbidden, "cannot join another user's conversation")
		return
	}
	if !conversation.ValidUserID(userID) || !conversation.ValidUserID(data.OtherUserID) {
		h.sendError(c, protocol.CodeInvalidPayload, "join-chat requires userId and otherUserId")
		return
	}

	roomID := conversation.RoomID(userID, data.OtherUserID)
	added, err := h.registry.JoinRoom(c.id, roomID)
	if err != nil {
		h.log.Error("Failed to join room", "clientID", c.id, "roomID", roomID, "error", err)
		return
	}
	if added {
		h.metrics.observe(h.registry.Stats())
	}
	h.log.Info("User joined room", "clientID", c.id, "userID", userID, "roomID", roomID, "rejoin", !added)
}

func (h *Hub) handleTyping(c *Client, env protocol.Envelope) {
	var data protocol.TypingData
	if err := env.Decode(&data); err != nil || data.RoomID == "" {
		h.log.Debug("Ignoring typing event without room", "clientID", c.id)
		return
	}
	if data.UserID == "" {
		rec, _ := h.registry.Lookup(c.id)
		data.UserID = rec.UserID
	}
	if c.authUserID != "" && data.UserID != c.authUserID {
		h.sendError(c, protocol.CodeForbidden, "cannot type as another user")
		return
	}
	// Only members may signal a room, and only as one of its participants.
	if !h.registry.InRoom(c.id, data.RoomID) {
		h.log.Debug("Ignoring typing event for unjoined room", "clientID", c.id, "roomID", data.RoomID)
		return
	}
	if _, err := conversation.Counterpart(data.RoomID, data.UserID); err != nil {
		h.log.Debug("Ignoring typing event from non-participant", "clientID", c.id, "roomID", data.RoomID, "userID", data.UserID)
		return
	}

	frame, err := protocol.Encode(protocol.EventUserTyping, protocol.UserTypingData{
		UserID:   data.UserID,
		IsTyping: data.IsTyping,
	})
	if err != nil {
		h.log.Error("Failed to encode typing event", "error", err)
		return
	}

	for _, connID := range h.registry.RoomMembers(data.RoomID) {
		if connID == c.id {
			continue
		}
		h.sendTo(connID, protocol.EventUserTyping, frame)
	}
}

func (h *Hub) deliver(d delivery) {
	msg := d.msg
	roomID := conversation.RoomID(msg.SenderID, msg.ReceiverID)

	frame, err := protocol.Encode(protocol.EventReceiveMessage, protocol.ReceiveMessageData{
		ID:         msg.ID,
		RoomID:     roomID,
		Message:    msg.Content,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		SenderName: d.senderName,
		Timestamp:  msg.CreatedAt,
	})
	if err != nil {
		h.log.Error("Failed to encode message", "messageID", msg.ID, "error", err)
		return
	}

	members := h.registry.RoomMembers(roomID)
	for _, connID := range members {
		h.sendTo(connID, protocol.EventReceiveMessage, frame)
	}

	notified := 0
	if msg.ReceiverID != msg.SenderID {
		note, err := protocol.Encode(protocol.EventNewMessage, protocol.NewMessageData{
			ID:         msg.ID,
			SenderID:   msg.SenderID,
			SenderName: d.senderName,
			Message:    msg.Content,
			Timestamp:  msg.CreatedAt,
		})
		if err != nil {
			h.log.Error("Failed to encode notification", "messageID", msg.ID, "error", err)
			return
		}
		for _, connID := range h.registry.Connections(msg.ReceiverID) {
			h.sendTo(connID, protocol.EventNewMessage, note)
			notified++
		}
	}

	h.log.Debug("Message delivered", "messageID", msg.ID, "roomID", roomID,
		"roomConnections", len(members), "notifiedConnections", notified)
}

func (h *Hub) sendTo(connID string, event protocol.EventType, frame []byte) {
	c := h.clients[connID]
	if c == nil {
		return
	}
	if !c.enqueue(frame) {
		h.log.Warn("Send buffer full, closing client", "clientID", c.id)
		h.metrics.Dropped.Inc()
		h.removeClient(c)
		return
	}
	h.metrics.Deliveries.WithLabelValues(event.String()).Inc()
}

// sendError must run on the hub loop.
func (h *Hub) sendError(c *Client, code, message string) {
	frame, err := protocol.Encode(protocol.EventError, protocol.ErrorData{Code: code, Message: message})
	if err != nil {
		return
	}
	h.sendTo(c.id, protocol.EventError, frame)
}

// updatePresence queues a presence write. A single worker applies the queue
// in order, so a quick connect and disconnect cannot land reversed.
func (h *Hub) updatePresence(userID string, online bool) {
	if h.presence == nil || userID == "" {
		return
	}
	select {
	case h.presenceQ <- presenceUpdate{userID: userID, online: online}:
	default:
		h.log.Warn("Presence queue full, dropping update", "userID", userID, "online", online)
	}
}

func (h *Hub) presenceWorker() {
	for {
		select {
		case u := <-h.presenceQ:
			h.applyPresence(u)
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) applyPresence(u presenceUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	var err error
	if u.online {
		err = h.presence.SetUserOnline(ctx, u.userID)
	} else {
		err = h.presence.SetUserOffline(ctx, u.userID)
	}
	if err != nil {
		h.log.Error("Failed to update presence", "userID", u.userID, "online", u.online, "error", err)
	}
}
