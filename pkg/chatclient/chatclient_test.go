package chatclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"marketchat/internal/api/routes"
	"marketchat/internal/auth"
	"marketchat/internal/database"
	"marketchat/internal/models"
	"marketchat/internal/repositories/postgres"
	"marketchat/internal/services"
	"marketchat/internal/websocket"
	"marketchat/pkg/chatclient"
	"marketchat/pkg/protocol"

	coderws "github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	buyerID  = "65a1f0c2e4b0a1b2c3d4e5f6"
	sellerID = "65a1f0c2e4b0a1b2c3d4e5f7"
)

type chatServer struct {
	srv   *httptest.Server
	db    *gorm.DB
	auth  *auth.AuthService
	users *services.UserService
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()

	db, err := database.NewSQLiteConnection(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	hub := websocket.NewHub(websocket.HubOptions{})
	go hub.Run()

	authService := auth.NewAuthService("test-secret", time.Hour)
	userService := services.NewUserService(postgres.NewUserRepository(db))
	router := routes.NewRouter(routes.Deps{
		Hub:           hub,
		ChatService:   services.NewChatService(postgres.NewMessageRepository(db), hub, nil),
		UserService:   userService,
		Auth:          authService,
		RequireWSAuth: true,
	})
	router.SetupRoutes()

	srv := httptest.NewServer(router.GetEngine())
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})
	return &chatServer{srv: srv, db: db, auth: authService, users: userService}
}

func (s *chatServer) session(t *testing.T, userID string) (*chatclient.Conn, *chatclient.API) {
	t.Helper()

	token, err := s.auth.IssueToken(userID)
	require.NoError(t, err)

	conn, err := chatclient.Dial(context.Background(), chatclient.Options{
		URL:    "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/v1/ws",
		Token:  token,
		UserID: userID,
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn, chatclient.NewAPI(s.srv.URL+"/api/v1", token)
}

func TestConversationEndToEnd(t *testing.T) {
	s := newChatServer(t)
	ctx := context.Background()

	require.NoError(t, s.users.SaveUser(ctx, &models.User{ID: sellerID, Name: "Sam", Email: "sam@cars.test"}))

	buyer, buyerAPI := s.session(t, buyerID)
	seller, sellerAPI := s.session(t, sellerID)
	assert.Equal(t, chatclient.Connected, buyer.State())

	// A message stored before either side opens the conversation.
	_, err := sellerAPI.SendMessage(ctx, buyerID, "Thanks for your interest", "Sam")
	require.NoError(t, err)

	notifications := chatclient.NewNotificationCenter()
	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()
	go notifications.Listen(listenCtx, seller)

	buyerConv, err := chatclient.OpenConversation(ctx, buyer, buyerAPI, sellerID)
	require.NoError(t, err)
	defer buyerConv.Close()

	sellerConv, err := chatclient.OpenConversation(ctx, seller, sellerAPI, buyerID)
	require.NoError(t, err)
	defer sellerConv.Close()

	history := buyerConv.Messages()
	require.Len(t, history, 1)
	assert.Equal(t, "Thanks for your interest", history[0].Content)
	assert.Equal(t, "Sam", buyerConv.Peer().Name)
	assert.Equal(t, chatclient.PlaceholderPeer.Name, sellerConv.Peer().Name, "the buyer has no profile")

	count, err := buyerAPI.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "opening the conversation marks it read")

	// Both sides have joined once the buyer sees the seller typing.
	sellerConv.Keystroke()
	require.Eventually(t, buyerConv.PeerTyping, 2*time.Second, 10*time.Millisecond)

	local, err := buyerConv.Send(ctx, "Is the car still available?", "Bob")
	require.NoError(t, err)
	assert.Positive(t, local)

	require.Eventually(t, func() bool {
		msgs := buyerConv.Messages()
		last := msgs[len(msgs)-1]
		return last.Status == chatclient.Confirmed && last.ID != ""
	}, 2*time.Second, 10*time.Millisecond, "the echo confirms the pending entry")

	msgs := buyerConv.Messages()
	require.Len(t, msgs, 2, "the echo replaces the pending entry instead of duplicating it")
	assert.Equal(t, local, msgs[1].LocalID)

	require.Eventually(t, func() bool {
		return len(sellerConv.Messages()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, msgs[1].ID, sellerConv.Messages()[1].ID)

	require.Eventually(t, func() bool {
		return len(notifications.Notifications()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	n := notifications.Notifications()[0]
	assert.Equal(t, buyerID, n.SenderID)
	assert.Equal(t, "Bob", n.SenderName)
	assert.Equal(t, "Is the car still available?", n.Message)
}

func TestConversationMarksRejectedSendFailed(t *testing.T) {
	server := newChatServer(t)
	ctx := context.Background()

	conn, api := server.session(t, buyerID)
	conv, err := chatclient.OpenConversation(ctx, conn, api, sellerID)
	require.NoError(t, err)
	defer conv.Close()

	_, err = conv.Send(ctx, "   ", "Bob")
	assert.ErrorIs(t, err, chatclient.ErrEmptyMessage)
	assert.Empty(t, conv.Messages())

	// Without the table every insert fails on the server.
	require.NoError(t, server.db.Migrator().DropTable(&models.Message{}))

	local, err := conv.Send(ctx, "Is it still available?", "Bob")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msgs := conv.Messages()
		return len(msgs) == 1 && msgs[0].Status == chatclient.Failed
	}, 2*time.Second, 10*time.Millisecond)

	msgs := conv.Messages()
	assert.Equal(t, local, msgs[0].LocalID)
	assert.Empty(t, msgs[0].ID)
}

func TestDialGivesUpAfterPolicy(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	_, err := chatclient.Dial(context.Background(), chatclient.Options{
		URL:    url,
		UserID: buyerID,
		Policy: chatclient.ReconnectPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Factor: 2},
	})
	assert.ErrorContains(t, err, "giving up after 2 attempts")
}

func TestReconnectReplaysRegisterAndJoin(t *testing.T) {
	var connections atomic.Int32
	received := make(chan []protocol.Envelope, 2)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := coderws.Accept(w, r, nil)
		if err != nil {
			return
		}
		n := connections.Add(1)

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		var got []protocol.Envelope
		for len(got) < 2 {
			var env protocol.Envelope
			if err := wsjson.Read(ctx, ws, &env); err != nil {
				break
			}
			got = append(got, env)
		}
		received <- got

		if n == 1 {
			ws.Close(coderws.StatusGoingAway, "restart")
			return
		}
		for {
			if _, _, err := ws.Read(context.Background()); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	conn, err := chatclient.Dial(context.Background(), chatclient.Options{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		UserID: buyerID,
		Policy: chatclient.ReconnectPolicy{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond, MaxDelay: 20 * time.Millisecond, Factor: 2},
	})
	require.NoError(t, err)
	defer conn.Close()

	states := conn.Subscribe(chatclient.EventConnectionState)
	defer states.Unsubscribe()

	require.NoError(t, conn.JoinChat(context.Background(), sellerID))

	for i := 0; i < 2; i++ {
		select {
		case got := <-received:
			require.Len(t, got, 2)
			assert.Equal(t, protocol.EventRegisterUser, got[0].Event)
			assert.Equal(t, protocol.EventJoinChat, got[1].Event)

			var join protocol.JoinChatData
			require.NoError(t, got[1].Decode(&join))
			assert.Equal(t, sellerID, join.OtherUserID)
		case <-time.After(3 * time.Second):
			t.Fatalf("connection %d did not replay the handshake", i+1)
		}
	}

	var seen []string
	require.Eventually(t, func() bool {
		for {
			select {
			case env := <-states.C:
				var s chatclient.StateData
				if env.Decode(&s) == nil {
					seen = append(seen, s.State)
				}
			default:
				return len(seen) >= 2 && seen[len(seen)-1] == "connected"
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, seen, "connecting")
	assert.Equal(t, int32(2), connections.Load())
}
