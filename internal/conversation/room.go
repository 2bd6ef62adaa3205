// Package conversation derives pairwise room identities from the two
// participants of a direct conversation.
package conversation

import (
	"errors"
	"strings"
)

// Delimiter joins the two participant ids of a room. User ids must never
// contain it, otherwise Participants cannot split a room id unambiguously.
const Delimiter = "-"

var (
	ErrInvalidRoomID  = errors.New("invalid room id")
	ErrNotParticipant = errors.New("user is not a participant of the room")
)

// ValidUserID reports whether id can take part in a room.
func ValidUserID(id string) bool {
	return id != "" && !strings.Contains(id, Delimiter)
}

// RoomID returns the canonical room of the unordered pair {userA, userB}.
func RoomID(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + Delimiter + userB
}

// Participants splits a room id back into its two participants, lowest first.
func Participants(roomID string) (string, string, error) {
	parts := strings.Split(roomID, Delimiter)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidRoomID
	}
	return parts[0], parts[1], nil
}

// Counterpart returns the participant of roomID that is not userID.
// For a self conversation the user is its own counterpart.
func Counterpart(roomID, userID string) (string, error) {
	a, b, err := Participants(roomID)
	if err != nil {
		return "", err
	}
	switch userID {
	case a:
		return b, nil
	case b:
		return a, nil
	default:
		return "", ErrNotParticipant
	}
}
