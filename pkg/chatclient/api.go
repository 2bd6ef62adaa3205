package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PlaceholderPeer is returned when the user service cannot describe a peer.
var PlaceholderPeer = Peer{Name: "User", Email: "user@example.com"}

var ErrUnexpectedResponse = errors.New("chatclient: unexpected response")

type Peer struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Message is a stored message as seen by the client.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	IsRead     bool      `json:"isRead"`
	CreatedAt  time.Time `json:"createdAt"`
}

// wireMessage accepts the field spellings older servers used.
type wireMessage struct {
	ID         string          `json:"id"`
	MongoID    string          `json:"_id"`
	Sender     json.RawMessage `json:"sender"`
	SenderID   string          `json:"senderId"`
	Receiver   json.RawMessage `json:"receiver"`
	ReceiverID string          `json:"receiverId"`
	Content    string          `json:"content"`
	Text       string          `json:"message"`
	IsRead     bool            `json:"isRead"`
	CreatedAt  *time.Time      `json:"createdAt"`
	Timestamp  *time.Time      `json:"timestamp"`
}

func (w wireMessage) normalize() Message {
	m := Message{
		ID:         firstNonEmpty(w.ID, w.MongoID),
		SenderID:   firstNonEmpty(w.SenderID, refID(w.Sender)),
		ReceiverID: firstNonEmpty(w.ReceiverID, refID(w.Receiver)),
		Content:    firstNonEmpty(w.Content, w.Text),
		IsRead:     w.IsRead,
	}
	switch {
	case w.CreatedAt != nil:
		m.CreatedAt = *w.CreatedAt
	case w.Timestamp != nil:
		m.CreatedAt = *w.Timestamp
	}
	return m
}

// refID reads a user reference that is either a bare id or an object
// carrying _id or id.
func refID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID      string `json:"id"`
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	return firstNonEmpty(obj.ID, obj.MongoID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// decodeMessages accepts {data:{messages:[...]}}, {messages:[...]},
// {data:[...]} and a bare array.
func decodeMessages(body []byte) ([]Message, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrUnexpectedResponse
	}

	var wire []wireMessage
	if body[0] == '[' {
		if err := json.Unmarshal(body, &wire); err != nil {
			return nil, err
		}
		return normalizeAll(wire), nil
	}

	var obj struct {
		Data     json.RawMessage `json:"data"`
		Messages []wireMessage   `json:"messages"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, err
	}
	if len(obj.Data) > 0 && string(obj.Data) != "null" {
		return decodeMessages(obj.Data)
	}
	if obj.Messages != nil {
		return normalizeAll(obj.Messages), nil
	}
	return nil, ErrUnexpectedResponse
}

func normalizeAll(wire []wireMessage) []Message {
	out := make([]Message, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.normalize())
	}
	return out
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// APIError is a non-2xx answer from the REST API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chatclient: http %d", e.Status)
	}
	return fmt.Sprintf("chatclient: http %d: %s", e.Status, e.Message)
}

// API talks to the REST endpoints under BaseURL (e.g. http://host/api/v1).
type API struct {
	BaseURL string
	Token   string
	// UserPath is the user lookup route, relative to BaseURL, with %s for
	// the user id.
	UserPath string
	HTTP     *http.Client
}

func NewAPI(baseURL, token string) *API {
	return &API{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Token:    token,
		UserPath: "/auth/user/%s",
		HTTP:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *API) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		_ = json.Unmarshal(payload, &env)
		return nil, &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	return payload, nil
}

// data unwraps the response envelope into v.
func (a *API) data(ctx context.Context, method, path string, body, v any) error {
	payload, err := a.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return err
	}
	if len(env.Data) == 0 {
		return ErrUnexpectedResponse
	}
	return json.Unmarshal(env.Data, v)
}

// History returns the conversation with otherUserID, oldest first.
func (a *API) History(ctx context.Context, otherUserID string) ([]Message, error) {
	payload, err := a.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(otherUserID), nil)
	if err != nil {
		return nil, err
	}
	return decodeMessages(payload)
}

func (a *API) SendMessage(ctx context.Context, receiverID, content, senderName string) (Message, error) {
	var out struct {
		Message wireMessage `json:"message"`
	}
	req := map[string]string{"receiverId": receiverID, "content": content}
	if senderName != "" {
		req["senderName"] = senderName
	}
	if err := a.data(ctx, http.MethodPost, "/messages", req, &out); err != nil {
		return Message{}, err
	}
	return out.Message.normalize(), nil
}

// MarkRead marks every message from otherUserID as read and returns how
// many changed.
func (a *API) MarkRead(ctx context.Context, otherUserID string) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	err := a.data(ctx, http.MethodPut, "/messages/"+url.PathEscape(otherUserID)+"/read", nil, &out)
	return out.Updated, err
}

func (a *API) UnreadCount(ctx context.Context) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	err := a.data(ctx, http.MethodGet, "/unread", nil, &out)
	return out.Count, err
}

// Peer looks up a user. Any failure yields PlaceholderPeer together with
// the error so callers can render something either way.
func (a *API) Peer(ctx context.Context, userID string) (Peer, error) {
	payload, err := a.do(ctx, http.MethodGet, fmt.Sprintf(a.UserPath, url.PathEscape(userID)), nil)
	if err != nil {
		return placeholder(userID), err
	}

	var out struct {
		User *Peer `json:"user"`
		Data *struct {
			User *Peer `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return placeholder(userID), err
	}
	user := out.User
	if user == nil && out.Data != nil {
		user = out.Data.User
	}
	if user == nil {
		return placeholder(userID), ErrUnexpectedResponse
	}
	if user.ID == "" {
		user.ID = userID
	}
	return *user, nil
}

func placeholder(userID string) Peer {
	p := PlaceholderPeer
	p.ID = userID
	return p
}
