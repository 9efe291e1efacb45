package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yigit/chatsphere/internal/app/models/dto"
	"github.com/yigit/chatsphere/internal/config"
	"github.com/yigit/chatsphere/internal/pkg/auth"
	"github.com/yigit/chatsphere/internal/pkg/websocket"
)

type testApp struct {
	engine *gin.Engine
	deps   *Dependencies
}

func newTestApp(t *testing.T, postsPerWindow int) *testApp {
	t.Helper()
	auth.BcryptCost = bcrypt.MinCost
	mr := miniredis.RunT(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf(`
server:
  mode: test
database:
  driver: memory
jwt:
  secret: test-secret
redis:
  enabled: true
  addr: %s
ratelimit:
  enabled: true
  messages: %d
  window: 1m
`, mr.Addr(), postsPerWindow)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	ctx := context.Background()
	infra, err := SetupInfrastructure(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = infra.Close() })

	deps, err := BuildDependencies(cfg, infra, zerolog.Nop())
	require.NoError(t, err)
	return &testApp{engine: SetupRouter(cfg, deps), deps: deps}
}

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Error *dto.ErrorDetail `json:"error"`
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

type account struct {
	id    int64
	token string
}

func (a *testApp) register(t *testing.T, handle string) account {
	t.Helper()
	rec, env := a.do(t, http.MethodPost, "/api/v1/auth/register", "", dto.RegisterRequest{
		Name: "User " + handle, UserName: handle, Password: "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[dto.AuthResponse](t, env)
	return account{id: resp.User.ID, token: resp.Token.AccessToken}
}

func (a *testApp) createChat(t *testing.T, creator account, req dto.CreateChatRequest) int64 {
	t.Helper()
	rec, env := a.do(t, http.MethodPost, "/api/v1/chats", creator.token, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[dto.ChatResponse](t, env).ID
}

func chatPath(chatID int64, suffix string) string {
	return fmt.Sprintf("/api/v1/chats/%d%s", chatID, suffix)
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t, 10)

	rec, _ := app.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metricsRec := httptest.NewRecorder()
	app.engine.ServeHTTP(metricsRec, req)
	assert.Equal(t, http.StatusOK, metricsRec.Code)
}

func TestRegisterLoginAndProfile(t *testing.T) {
	app := newTestApp(t, 10)
	alice := app.register(t, "alice")

	rec, env := app.do(t, http.MethodPost, "/api/v1/auth/register", "", dto.RegisterRequest{
		Name: "Other Alice", UserName: "alice", Password: "password123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)

	rec, _ = app.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"userName": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = app.do(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{UserName: "alice", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env = app.do(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{UserName: "alice", Password: "password123"})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[dto.AuthResponse](t, env)
	assert.Equal(t, alice.id, login.User.ID)

	rec, env = app.do(t, http.MethodGet, "/api/v1/users/me", login.Token.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decode[dto.UserResponse](t, env).UserName)
	assert.NotContains(t, rec.Body.String(), "password")

	rec, _ = app.do(t, http.MethodGet, "/api/v1/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = app.do(t, http.MethodGet, "/api/v1/users/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	app.register(t, "albert")
	app.register(t, "bob")
	rec, env = app.do(t, http.MethodGet, "/api/v1/users?search=al", alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode[dto.UserListResponse](t, env).TotalItems)

	rec, _ = app.do(t, http.MethodGet, "/api/v1/users/abc", alice.token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = app.do(t, http.MethodGet, "/api/v1/users/9999", alice.token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDirectChatOverHTTP(t *testing.T) {
	app := newTestApp(t, 10)
	alice, bob, carol := app.register(t, "alice"), app.register(t, "bob"), app.register(t, "carol")

	chatID := app.createChat(t, alice, dto.CreateChatRequest{Kind: "direct", Members: []int64{bob.id}})

	rec, _ := app.do(t, http.MethodPost, "/api/v1/chats", bob.token, dto.CreateChatRequest{Kind: "direct", Members: []int64{alice.id}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = app.do(t, http.MethodPost, chatPath(chatID, "/messages"), bob.token, dto.CreateMessageRequest{Text: "hi alice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env := app.do(t, http.MethodGet, "/api/v1/chats", alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]dto.ChatSummaryResponse](t, env)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].UnreadCount)
	assert.Equal(t, "User bob", rows[0].Name)
	require.NotNil(t, rows[0].LastMessageText)
	assert.Equal(t, "hi alice", *rows[0].LastMessageText)

	rec, env = app.do(t, http.MethodGet, chatPath(chatID, "/messages?limit=10"), alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[dto.MessagePageResponse](t, env)
	require.Len(t, page.Messages, 1)
	assert.Nil(t, page.NextCursor)

	rec, env = app.do(t, http.MethodGet, chatPath(chatID, ""), alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[dto.ChatSummaryResponse](t, env).UnreadCount)

	rec, env = app.do(t, http.MethodGet, chatPath(chatID, fmt.Sprintf("/messages/%d/seen", page.Messages[0].ID)), bob.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[dto.MessageSeenResponse](t, env).SeenByOthers)

	rec, env = app.do(t, http.MethodGet, chatPath(chatID, "/seen"), alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snapshot := decode[dto.ChatSeenSnapshotResponse](t, env)
	assert.Equal(t, 2, snapshot.TotalChatMembers)
	assert.NotNil(t, snapshot.MinLastSeen)

	rec, _ = app.do(t, http.MethodGet, chatPath(chatID, ""), carol.token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = app.do(t, http.MethodGet, chatPath(9999, ""), alice.token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = app.do(t, http.MethodGet, "/api/v1/chats/abc", alice.token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGroupMembershipOverHTTP(t *testing.T) {
	app := newTestApp(t, 10)
	alice, bob, carol, dave := app.register(t, "alice"), app.register(t, "bob"), app.register(t, "carol"), app.register(t, "dave")

	name := "Weekend plans"
	chatID := app.createChat(t, alice, dto.CreateChatRequest{Kind: "group", Name: &name, Members: []int64{bob.id, carol.id}})

	rec, _ := app.do(t, http.MethodPost, chatPath(chatID, "/members"), bob.token, dto.AddMemberRequest{UserID: dave.id})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = app.do(t, http.MethodPost, chatPath(chatID, "/members"), alice.token, dto.AddMemberRequest{UserID: dave.id, Role: "subscriber"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec, _ = app.do(t, http.MethodPost, chatPath(chatID, "/members"), alice.token, dto.AddMemberRequest{UserID: dave.id})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env := app.do(t, http.MethodGet, chatPath(chatID, "/members"), dave.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]dto.ChatMemberResponse](t, env), 4)

	rec, _ = app.do(t, http.MethodPost, chatPath(chatID, "/messages"), dave.token, dto.CreateMessageRequest{Text: "can I talk?"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = app.do(t, http.MethodGet, chatPath(chatID, "/messages"), dave.token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = app.do(t, http.MethodPost, chatPath(chatID, "/seen"), dave.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, chatID, decode[dto.MarkSeenResponse](t, env).ChatID)

	rec, _ = app.do(t, http.MethodDelete, chatPath(chatID, fmt.Sprintf("/members/%d", dave.id)), dave.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = app.do(t, http.MethodGet, chatPath(chatID, ""), dave.token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = app.do(t, http.MethodDelete, chatPath(chatID, "/members/xyz"), alice.token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostRateLimitAndIdempotency(t *testing.T) {
	app := newTestApp(t, 3)
	alice, bob := app.register(t, "alice"), app.register(t, "bob")
	chatID := app.createChat(t, alice, dto.CreateChatRequest{Kind: "direct", Members: []int64{bob.id}})
	post := chatPath(chatID, "/messages")

	rec, _ := app.do(t, http.MethodPost, post, alice.token, dto.CreateMessageRequest{Text: "one"}, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))

	rec, _ = app.do(t, http.MethodPost, post, alice.token, dto.CreateMessageRequest{Text: "one"}, "Idempotency-Key", "k1")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = app.do(t, http.MethodPost, post, alice.token, dto.CreateMessageRequest{Text: "two"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, env := app.do(t, http.MethodPost, post, alice.token, dto.CreateMessageRequest{Text: "three"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.ErrorCodeRateLimited, env.Error.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// A rejected post releases its key
	rec, _ = app.do(t, http.MethodPost, post, bob.token, dto.CreateMessageRequest{Text: "   "}, "Idempotency-Key", "k2")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = app.do(t, http.MethodPost, post, bob.token, dto.CreateMessageRequest{Text: "hello"}, "Idempotency-Key", "k2")
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, env = app.do(t, http.MethodGet, post, bob.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[dto.MessagePageResponse](t, env).Messages, 3)
}

func TestPushSessionReceivesMessagesAndReportsPresence(t *testing.T) {
	app := newTestApp(t, 10)
	alice, bob := app.register(t, "alice"), app.register(t, "bob")
	chatID := app.createChat(t, alice, dto.CreateChatRequest{Kind: "direct", Members: []int64{bob.id}})

	srv := httptest.NewServer(app.engine)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + alice.token

	_, resp, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := gorilla.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return app.deps.WSRouter.SessionCount(alice.id) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": websocket.ControlSwitchChat, "data": map[string]int64{"chatId": chatID}}))
	require.Eventually(t, func() bool {
		rec, env := app.do(t, http.MethodGet, chatPath(chatID, "/presence"), bob.token, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		return len(decode[dto.PresenceResponse](t, env).UserIDs) == 1
	}, 2*time.Second, 20*time.Millisecond)

	rec, _ := app.do(t, http.MethodPost, chatPath(chatID, "/messages"), bob.token, dto.CreateMessageRequest{Text: "ping"})
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev websocket.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, websocket.EventNewMessage, ev.Name)
	var msg dto.MessageResponse
	require.NoError(t, json.Unmarshal(ev.Data, &msg))
	assert.Equal(t, "ping", msg.Text)
	assert.Equal(t, bob.id, msg.AuthorID)

	rec, _ = app.do(t, http.MethodPost, chatPath(chatID, "/seen"), bob.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, websocket.EventChatSeen, ev.Name)
	var seen dto.ChatSeenEvent
	require.NoError(t, json.Unmarshal(ev.Data, &seen))
	assert.Equal(t, bob.id, seen.UserID)
}
