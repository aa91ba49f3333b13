package live

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/sosed/internal/model"
)

func TestHubAddAndRemove(t *testing.T) {
	hub := NewHub()
	c := &client{id: "a"}

	hub.add(1, c)
	assert.Equal(t, 1, hub.Subscribers(1))

	hub.remove(1, c)
	assert.Equal(t, 0, hub.Subscribers(1))
	assert.Empty(t, hub.rooms)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	hub.Publish(1, model.Message{ID: 1, Content: "nobody listens"})
	assert.Equal(t, 0, hub.Subscribers(1))
}

func dial(t *testing.T, hub *Hub, conversationID int64) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, conversationID)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Subscribers(conversationID) > 0 }, time.Second, 10*time.Millisecond)
	return conn
}

func TestPublishReachesSubscriber(t *testing.T) {
	hub := NewHub()
	conn := dial(t, hub, 7)

	hub.Publish(7, model.Message{ID: 3, ConversationID: 7, SenderID: 1, Content: "hello"})
	hub.Publish(8, model.Message{ID: 4, ConversationID: 8, Content: "other room"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "message", ev.Type)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "hello", ev.Message.Content)
}

func TestClosedClientIsUnsubscribed(t *testing.T) {
	hub := NewHub()
	conn := dial(t, hub, 9)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Subscribers(9) == 0 }, time.Second, 10*time.Millisecond)
}
