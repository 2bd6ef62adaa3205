package main

import (
	"bytes"
	"testing"
	"time"

	"marketchat/pkg/chatclient"

	"github.com/stretchr/testify/assert"
)

func TestSessionFlagsWSURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:8080":   "ws://localhost:8080/api/v1/ws",
		"https://chat.cars.test/": "wss://chat.cars.test/api/v1/ws",
	}
	for server, want := range tests {
		f := &sessionFlags{server: server}
		assert.Equal(t, want, f.wsURL())
	}
}

func TestTranscriptPrintsConfirmedEntriesOnce(t *testing.T) {
	var out bytes.Buffer
	tr := &transcript{out: &out, self: "buyer", peer: "Sam"}
	at := time.Date(2024, 5, 1, 15, 4, 0, 0, time.Local)

	entries := []chatclient.Entry{
		{ID: "m1", SenderID: "seller", Content: "Hello", CreatedAt: at, Status: chatclient.Confirmed},
		{LocalID: 1, SenderID: "buyer", Content: "Hi", Status: chatclient.Pending},
	}
	tr.render(entries, true)

	entries[1].ID = "m2"
	entries[1].CreatedAt = at
	entries[1].Status = chatclient.Confirmed
	tr.render(entries, true)

	assert.Equal(t, "[3:04PM] Sam: Hello\nSam is typing...\n[3:04PM] you: Hi\n", out.String())
}

func TestTranscriptReportsFailedSendOnce(t *testing.T) {
	var out bytes.Buffer
	tr := &transcript{out: &out, self: "buyer", peer: "Sam"}

	entries := []chatclient.Entry{
		{LocalID: 1, SenderID: "buyer", Content: "Hi", Status: chatclient.Failed},
	}
	tr.render(entries, false)
	tr.render(entries, false)

	assert.Equal(t, "! not delivered: Hi\n", out.String())
}

func TestRootCommandTree(t *testing.T) {
	root := buildRootCmd()
	for _, name := range []string{"token", "open", "notifications", "unread"} {
		cmd, _, err := root.Find([]string{name})
		assert.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}
