package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomIDIsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"u1", "u2"},
		{"65a1f0c2e4b0a1b2c3d4e5f6", "65a1f0c2e4b0a1b2c3d4e5f7"},
		{"b", "a"},
		{"same", "same"},
		{"Z", "a"},
	}

	for _, p := range pairs {
		assert.Equal(t, RoomID(p[0], p[1]), RoomID(p[1], p[0]), "pair %v", p)
	}
}

func TestRoomIDSortsParticipants(t *testing.T) {
	assert.Equal(t, "u1-u2", RoomID("u2", "u1"))
	assert.Equal(t, "alice-bob", RoomID("alice", "bob"))
}

func TestParticipantsInvertsRoomID(t *testing.T) {
	a, b, err := Participants(RoomID("u9", "u3"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u3", "u9"}, []string{a, b})
}

func TestParticipantsRejectsMalformedRooms(t *testing.T) {
	for _, room := range []string{"", "u1", "u1-", "-u2", "a-b-c"} {
		_, _, err := Participants(room)
		assert.ErrorIs(t, err, ErrInvalidRoomID, "room %q", room)
	}
}

func TestCounterpart(t *testing.T) {
	room := RoomID("buyer", "seller")

	other, err := Counterpart(room, "buyer")
	require.NoError(t, err)
	assert.Equal(t, "seller", other)

	other, err = Counterpart(room, "seller")
	require.NoError(t, err)
	assert.Equal(t, "buyer", other)

	_, err = Counterpart(room, "stranger")
	assert.ErrorIs(t, err, ErrNotParticipant)

	self, err := Counterpart(RoomID("me", "me"), "me")
	require.NoError(t, err)
	assert.Equal(t, "me", self)
}

func TestValidUserID(t *testing.T) {
	assert.True(t, ValidUserID("65a1f0c2e4b0a1b2c3d4e5f6"))
	assert.True(t, ValidUserID("42"))
	assert.False(t, ValidUserID(""))
	assert.False(t, ValidUserID("550e8400-e29b-41d4-a716-446655440000"))
}
