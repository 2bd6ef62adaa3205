package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterUserAcceptsBareString(t *testing.T) {
	envs, err := Split([]byte(`{"event":"register-user","data":"65a1f0c2e4b0a1b2c3d4e5f6"}`))
	require.NoError(t, err)
	require.Len(t, envs, 1)

	var d RegisterUserData
	require.NoError(t, envs[0].Decode(&d))
	assert.Equal(t, "65a1f0c2e4b0a1b2c3d4e5f6", d.UserID)
}

func TestRegisterUserAcceptsObject(t *testing.T) {
	envs, err := Split([]byte(`{"event":"register-user","data":{"userId":"u1"}}`))
	require.NoError(t, err)

	var d RegisterUserData
	require.NoError(t, envs[0].Decode(&d))
	assert.Equal(t, "u1", d.UserID)
}

func TestSplitBatchedFrame(t *testing.T) {
	a, err := Encode(EventUserTyping, UserTypingData{UserID: "u1", IsTyping: true})
	require.NoError(t, err)
	b, err := Encode(EventUserTyping, UserTypingData{UserID: "u1", IsTyping: false})
	require.NoError(t, err)

	frame := append(append(append([]byte{}, a...), '\n'), b...)
	envs, err := Split(frame)
	require.NoError(t, err)
	require.Len(t, envs, 2)

	var first, second UserTypingData
	require.NoError(t, envs[0].Decode(&first))
	require.NoError(t, envs[1].Decode(&second))
	assert.True(t, first.IsTyping)
	assert.False(t, second.IsTyping)
}

func TestDecodeEmptyPayload(t *testing.T) {
	err := Envelope{Event: EventTyping}.Decode(&TypingData{})
	assert.Error(t, err)
}

func TestIsClientEvent(t *testing.T) {
	assert.True(t, EventSendMessage.IsClientEvent())
	assert.True(t, EventTyping.IsClientEvent())
	assert.False(t, EventReceiveMessage.IsClientEvent())
	assert.False(t, EventNewMessage.IsClientEvent())
}
