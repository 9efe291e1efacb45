package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/yigit/chatsphere/internal/app/models"
	"github.com/yigit/chatsphere/internal/app/models/dto"
	"github.com/yigit/chatsphere/internal/app/repositories"
	"github.com/yigit/chatsphere/internal/app/repositories/memory"
	"github.com/yigit/chatsphere/internal/pkg/websocket"
)

type published struct {
	recipients []int64
	ev         websocket.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, recipients []int64, ev websocket.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{recipients: append([]int64(nil), recipients...), ev: ev})
	return nil
}

func (p *recordingPublisher) named(name string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.ev.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type testClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

type harness struct {
	repos      *repositories.Repositories
	publisher  *recordingPublisher
	clock      *testClock
	membership *MembershipService
	unread     *UnreadCalculator
	summary    *SummaryCache
	messages   *MessageLog
	chats      ChatService
}

func newHarness(t *testing.T, unreadCap int) *harness {
	t.Helper()
	logger := zerolog.Nop()
	h := &harness{
		repos:     memory.NewRepositories(),
		publisher: &recordingPublisher{},
		clock: &testClock{
			now:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			step: time.Millisecond,
		},
	}

	dispatcher := NewDispatcher(h.repos.Members, h.publisher, nil, logger)
	h.membership = NewMembershipService(h.repos, dispatcher, h.clock.Now, logger)
	h.unread = NewUnreadCalculator(h.repos, unreadCap)
	h.summary = NewSummaryCache(h.repos, h.unread, logger)
	h.messages = NewMessageLog(h.repos, h.summary, dispatcher, nil, h.clock.Now, 0, logger)
	h.chats = NewChatService(ChatServiceDeps{
		Repos:      h.repos,
		Membership: h.membership,
		Messages:   h.messages,
		Summary:    h.summary,
		Unread:     h.unread,
		Dispatcher: dispatcher,
		Clock:      h.clock.Now,
	}, logger)
	return h
}

func (h *harness) user(t *testing.T, handle string) int64 {
	t.Helper()
	u := &models.User{UserName: handle, Name: "User " + handle, Password: "x"}
	require.NoError(t, h.repos.Users.Create(context.Background(), u))
	return u.ID
}

func (h *harness) direct(t *testing.T, a, b int64) int64 {
	t.Helper()
	chat, err := h.chats.CreateChat(context.Background(), a, &dto.CreateChatRequest{
		Kind:    string(models.ChatKindDirect),
		Members: []int64{b},
	})
	require.NoError(t, err)
	return chat.ID
}

func (h *harness) group(t *testing.T, name string, creator int64, others ...int64) int64 {
	t.Helper()
	chat, err := h.chats.CreateChat(context.Background(), creator, &dto.CreateChatRequest{
		Kind:    string(models.ChatKindGroup),
		Name:    &name,
		Members: others,
	})
	require.NoError(t, err)
	return chat.ID
}

func (h *harness) post(t *testing.T, author, chatID int64, text string) *dto.MessageResponse {
	t.Helper()
	msg, err := h.chats.PostMessage(context.Background(), author, chatID, &dto.CreateMessageRequest{Text: text})
	require.NoError(t, err)
	return msg
}

func (h *harness) summaryOf(t *testing.T, userID, chatID int64) dto.ChatSummaryResponse {
	t.Helper()
	rows, err := h.chats.ListChats(context.Background(), userID)
	require.NoError(t, err)
	for _, r := range rows {
		if r.ID == chatID {
			return r
		}
	}
	require.FailNow(t, fmt.Sprintf("chat %d not in summaries of user %d", chatID, userID))
	return dto.ChatSummaryResponse{}
}
