package chatclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"marketchat/pkg/protocol"
)

const popupTTL = 5 * time.Second

// Notification is a client-local record of an incoming message.
type Notification struct {
	ID         int64
	MessageID  string
	SenderID   string
	SenderName string
	Message    string
	Timestamp  time.Time
	IsRead     bool
}

// NotificationCenter keeps received notifications newest first, plus the
// popup currently shown. Nothing here is persisted.
type NotificationCenter struct {
	mu       sync.Mutex
	items    []Notification
	popup    *Notification
	popupGen uint64
	lastID   int64
	ttl      time.Duration
	now      func() time.Time
	changed  chan struct{}
}

func NewNotificationCenter() *NotificationCenter {
	return &NotificationCenter{
		ttl:     popupTTL,
		now:     time.Now,
		changed: make(chan struct{}, 1),
	}
}

// Changed fires after any mutation. Multiple changes may coalesce.
func (n *NotificationCenter) Changed() <-chan struct{} {
	return n.changed
}

func (n *NotificationCenter) notify() {
	select {
	case n.changed <- struct{}{}:
	default:
	}
}

// Add records a notification, makes it the popup and returns its id. Ids
// are time based and strictly increasing.
func (n *NotificationCenter) Add(data protocol.NewMessageData) int64 {
	n.mu.Lock()
	now := n.now()
	id := now.UnixMilli()
	if id <= n.lastID {
		id = n.lastID + 1
	}
	n.lastID = id

	item := Notification{
		ID:         id,
		MessageID:  data.ID,
		SenderID:   data.SenderID,
		SenderName: data.SenderName,
		Message:    data.Message,
		Timestamp:  now,
	}
	n.items = append([]Notification{item}, n.items...)

	popup := item
	n.popup = &popup
	n.popupGen++
	gen := n.popupGen
	ttl := n.ttl
	n.mu.Unlock()

	time.AfterFunc(ttl, func() { n.expirePopup(gen) })
	n.notify()
	return id
}

func (n *NotificationCenter) expirePopup(gen uint64) {
	n.mu.Lock()
	if gen != n.popupGen || n.popup == nil {
		n.mu.Unlock()
		return
	}
	n.popup = nil
	n.mu.Unlock()
	n.notify()
}

// Notifications returns a copy of the list, newest first.
func (n *NotificationCenter) Notifications() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.items...)
}

func (n *NotificationCenter) UnreadCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, item := range n.items {
		if !item.IsRead {
			count++
		}
	}
	return count
}

// Popup returns the notification currently shown, if any.
func (n *NotificationCenter) Popup() (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.popup == nil {
		return Notification{}, false
	}
	return *n.popup, true
}

func (n *NotificationCenter) MarkRead(id int64) bool {
	n.mu.Lock()
	found := false
	for i := range n.items {
		if n.items[i].ID == id && !n.items[i].IsRead {
			n.items[i].IsRead = true
			found = true
			break
		}
	}
	if found && n.popup != nil && n.popup.ID == id {
		n.popup.IsRead = true
	}
	n.mu.Unlock()

	if found {
		n.notify()
	}
	return found
}

func (n *NotificationCenter) Remove(id int64) bool {
	n.mu.Lock()
	found := false
	for i := range n.items {
		if n.items[i].ID == id {
			n.items = append(n.items[:i], n.items[i+1:]...)
			found = true
			break
		}
	}
	n.mu.Unlock()

	if found {
		n.notify()
	}
	return found
}

// Dismiss removes the notification and hides the popup.
func (n *NotificationCenter) Dismiss(id int64) {
	n.Remove(id)

	n.mu.Lock()
	n.popup = nil
	n.popupGen++
	n.mu.Unlock()
	n.notify()
}

func (n *NotificationCenter) ClearAll() {
	n.mu.Lock()
	n.items = nil
	n.popup = nil
	n.popupGen++
	n.mu.Unlock()
	n.notify()
}

// Listen feeds new-message events from conn into the center until ctx is
// done or the connection closes.
func (n *NotificationCenter) Listen(ctx context.Context, conn *Conn) {
	sub := conn.Subscribe(protocol.EventNewMessage)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C:
			if !ok {
				return
			}
			var data protocol.NewMessageData
			if err := env.Decode(&data); err != nil {
				slog.Warn("Ignoring malformed notification", "error", err)
				continue
			}
			n.Add(data)
		}
	}
}
