package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenAuth map[string]int64

func (a tokenAuth) Authenticate(_ context.Context, credential string) (int64, error) {
	if id, ok := a[credential]; ok {
		return id, nil
	}
	return 0, errors.New("unknown token")
}

func newTestServer(t *testing.T, r *Router) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	h := NewHandler(r, tokenAuth{"alice-token": 1}, 16, zerolog.Nop())
	engine.GET("/ws", h.HandleConnection)
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
}

func TestHandshakeRejectsBadCredential(t *testing.T) {
	r := newTestRouter(newFakeMembers(), nil)
	srv := newTestServer(t, r)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=nope"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, r.SessionCount(1))
}

func TestSessionRoundTrip(t *testing.T) {
	members := newFakeMembers()
	members.add(42, 1)
	r := newTestRouter(members, nil)
	srv := newTestServer(t, r)

	header := http.Header{"Authorization": []string{"Bearer alice-token"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return r.SessionCount(1) == 1 }, time.Second, 10*time.Millisecond)

	ev, err := NewEvent(EventNewMessage, map[string]string{"text": "hi"})
	require.NoError(t, err)
	require.NoError(t, r.Publish(context.Background(), []int64{1}, ev))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, EventNewMessage, got.Name)
	assert.JSONEq(t, `{"text":"hi"}`, string(got.Data))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": ControlSwitchChat,
		"data":  map[string]int64{"chatId": 42, "prevChatId": 0},
	}))
	assert.Eventually(t, func() bool {
		viewers := r.RoomViewers(42)
		return len(viewers) == 1 && viewers[0] == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return r.SessionCount(1) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, r.RoomViewers(42))
}
