package chatclient

import (
	"testing"
	"time"

	"marketchat/pkg/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFrozenCenter(at time.Time) *NotificationCenter {
	n := NewNotificationCenter()
	n.now = func() time.Time { return at }
	return n
}

func TestNotificationCenterAdd(t *testing.T) {
	n := newFrozenCenter(time.UnixMilli(1_700_000_000_000))

	first := n.Add(protocol.NewMessageData{ID: "m1", SenderID: "buyer", SenderName: "Bob", Message: "hi"})
	second := n.Add(protocol.NewMessageData{ID: "m2", SenderID: "buyer", Message: "still there?"})

	assert.Equal(t, int64(1_700_000_000_000), first)
	assert.Equal(t, first+1, second, "ids stay strictly increasing within one millisecond")

	items := n.Notifications()
	require.Len(t, items, 2)
	assert.Equal(t, "m2", items[0].MessageID, "newest first")
	assert.Equal(t, "Bob", items[1].SenderName)
	assert.Equal(t, 2, n.UnreadCount())

	popup, ok := n.Popup()
	require.True(t, ok)
	assert.Equal(t, second, popup.ID)
}

func TestNotificationCenterReadAndRemove(t *testing.T) {
	n := NewNotificationCenter()
	a := n.Add(protocol.NewMessageData{ID: "a"})
	b := n.Add(protocol.NewMessageData{ID: "b"})

	assert.True(t, n.MarkRead(a))
	assert.False(t, n.MarkRead(a), "already read")
	assert.Equal(t, 1, n.UnreadCount())

	assert.True(t, n.Remove(b))
	assert.False(t, n.Remove(b))
	assert.Equal(t, 0, n.UnreadCount())
	require.Len(t, n.Notifications(), 1)
}

func TestNotificationCenterDismissAndClear(t *testing.T) {
	n := NewNotificationCenter()
	a := n.Add(protocol.NewMessageData{ID: "a"})
	n.Add(protocol.NewMessageData{ID: "b"})

	n.Dismiss(a)
	_, ok := n.Popup()
	assert.False(t, ok)
	assert.Len(t, n.Notifications(), 1)

	n.ClearAll()
	assert.Empty(t, n.Notifications())
	assert.Equal(t, 0, n.UnreadCount())
}

func TestNotificationPopupAutoDismisses(t *testing.T) {
	n := NewNotificationCenter()
	n.ttl = 30 * time.Millisecond

	n.Add(protocol.NewMessageData{ID: "a"})
	_, ok := n.Popup()
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok := n.Popup()
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, n.Notifications(), 1, "the list keeps the notification")
}

func TestNotificationPopupTimerOnlyHidesItsOwnPopup(t *testing.T) {
	n := NewNotificationCenter()
	n.ttl = 200 * time.Millisecond

	n.Add(protocol.NewMessageData{ID: "a"})
	time.Sleep(120 * time.Millisecond)
	second := n.Add(protocol.NewMessageData{ID: "b"})
	time.Sleep(120 * time.Millisecond)

	popup, ok := n.Popup()
	require.True(t, ok, "the first popup's timer must not hide the second")
	assert.Equal(t, second, popup.ID)
}
