// Package memory provides in-process implementations of the repository interfaces. Each
// method is atomic on its own, mirroring the single-row guarantees of the Postgres stores.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yigit/chatsphere/internal/app/models"
	"github.com/yigit/chatsphere/internal/app/repositories"
	"github.com/yigit/chatsphere/internal/pkg/apperrors"
)

type memberKey struct {
	chatID int64
	userID int64
}

// Store holds all tables
type Store struct {
	mu sync.RWMutex

	users       map[int64]*models.User
	userNames   map[string]int64
	chats       map[int64]*models.Chat
	directChats map[string]int64
	members     map[memberKey]*models.ChatMember
	messages    map[int64]*models.Message
	chatLog     map[int64][]*models.Message // ascending (created_at, id)

	userSeq    int64
	chatSeq    int64
	messageSeq int64
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		users:       make(map[int64]*models.User),
		userNames:   make(map[string]int64),
		chats:       make(map[int64]*models.Chat),
		directChats: make(map[string]int64),
		members:     make(map[memberKey]*models.ChatMember),
		messages:    make(map[int64]*models.Message),
		chatLog:     make(map[int64][]*models.Message),
	}
}

// NewRepositories wires a fresh store behind the repository interfaces
func NewRepositories() *repositories.Repositories {
	s := NewStore()
	return &repositories.Repositories{
		Users:    &UserRepository{s: s},
		Chats:    &ChatRepository{s: s},
		Members:  &ChatMemberRepository{s: s},
		Messages: &MessageRepository{s: s},
	}
}

var (
	_ repositories.IUserRepository       = (*UserRepository)(nil)
	_ repositories.IChatRepository       = (*ChatRepository)(nil)
	_ repositories.IChatMemberRepository = (*ChatMemberRepository)(nil)
	_ repositories.IMessageRepository    = (*MessageRepository)(nil)
)

// --- users ---

// UserRepository is the in-memory user store
type UserRepository struct{ s *Store }

func (r *UserRepository) Create(_ context.Context, user *models.User) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.userNames[user.UserName]; taken {
		return apperrors.NewConflictError("user name already taken")
	}
	s.userSeq++
	now := time.Now().UTC()
	user.ID = s.userSeq
	user.CreatedAt, user.UpdatedAt = now, now

	cp := *user
	s.users[cp.ID] = &cp
	s.userNames[cp.UserName] = cp.ID
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepository) GetByUserName(ctx context.Context, userName string) (*models.User, error) {
	r.s.mu.RLock()
	id, ok := r.s.userNames[userName]
	r.s.mu.RUnlock()
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepository) GetByIDs(_ context.Context, ids []int64) (map[int64]*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make(map[int64]*models.User, len(ids))
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			cp := *u
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *UserRepository) List(_ context.Context, search string, offset, limit int) ([]*models.User, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	search = strings.ToLower(search)
	var matched []*models.User
	for _, u := range r.s.users {
		if search == "" ||
			strings.HasPrefix(strings.ToLower(u.UserName), search) ||
			strings.HasPrefix(strings.ToLower(u.Name), search) {
			cp := *u
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].UserName < matched[j].UserName })

	total := int64(len(matched))
	if offset >= len(matched) {
		return []*models.User{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

// --- chats ---

// ChatRepository is the in-memory chat store
type ChatRepository struct{ s *Store }

func (r *ChatRepository) Create(_ context.Context, chat *models.Chat, members []*models.ChatMember) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var key string
	if chat.IsDirect() {
		if len(chat.Members) != 2 {
			return apperrors.NewValidationError("direct chat requires exactly two members")
		}
		key = models.DirectKey(chat.Members[0], chat.Members[1])
		if _, exists := s.directChats[key]; exists {
			return apperrors.NewConflictError("direct chat already exists")
		}
	}
	for _, m := range members {
		if _, ok := s.users[m.UserID]; !ok {
			return apperrors.NewResourceNotFoundError("chat or user not found")
		}
	}

	s.chatSeq++
	chat.ID = s.chatSeq
	cp := cloneChat(chat)
	s.chats[chat.ID] = cp
	if key != "" {
		s.directChats[key] = chat.ID
	}

	for _, m := range members {
		m.ChatID = chat.ID
		if m.CreatedAt.IsZero() {
			m.CreatedAt = m.LastSeen
		}
		m.UpdatedAt = m.CreatedAt
		mc := *m
		s.members[memberKey{chat.ID, m.UserID}] = &mc
	}
	return nil
}

func (r *ChatRepository) GetByID(_ context.Context, id int64) (*models.Chat, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.chats[id]
	if !ok {
		return nil, apperrors.ErrChatNotFound
	}
	return cloneChat(c), nil
}

func (r *ChatRepository) GetByIDs(_ context.Context, ids []int64) (map[int64]*models.Chat, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make(map[int64]*models.Chat, len(ids))
	for _, id := range ids {
		if c, ok := r.s.chats[id]; ok {
			out[id] = cloneChat(c)
		}
	}
	return out, nil
}

func (r *ChatRepository) FindDirect(ctx context.Context, userA, userB int64) (*models.Chat, error) {
	r.s.mu.RLock()
	id, ok := r.s.directChats[models.DirectKey(userA, userB)]
	r.s.mu.RUnlock()
	if !ok {
		return nil, apperrors.ErrChatNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *ChatRepository) UpdateSummary(_ context.Context, msg *models.Message) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.chats[msg.ChatID]
	if !ok {
		return false, apperrors.ErrChatNotFound
	}
	if !c.SummaryIsOlderThan(msg) {
		return false, nil
	}

	id, text, author, at := msg.ID, msg.Text, msg.AuthorID, msg.CreatedAt
	c.LastMessageID = &id
	c.LastMessageText = &text
	c.LastMessageAuthor = &author
	c.LastMessageAt = &at
	if at.After(c.UpdatedAt) {
		c.UpdatedAt = at
	}
	return true, nil
}

func (r *ChatRepository) Touch(_ context.Context, chatID int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.chats[chatID]
	if !ok {
		return apperrors.ErrChatNotFound
	}
	if at.After(c.UpdatedAt) {
		c.UpdatedAt = at
	}
	return nil
}

func cloneChat(c *models.Chat) *models.Chat {
	cp := *c
	if c.Members != nil {
		cp.Members = append([]int64(nil), c.Members...)
	}
	return &cp
}

// --- members ---

// ChatMemberRepository is the in-memory membership store
type ChatMemberRepository struct{ s *Store }

func (r *ChatMemberRepository) Add(_ context.Context, member *models.ChatMember) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[member.ChatID]; !ok {
		return apperrors.NewResourceNotFoundError("chat or user not found")
	}
	if _, ok := s.users[member.UserID]; !ok {
		return apperrors.NewResourceNotFoundError("chat or user not found")
	}
	key := memberKey{member.ChatID, member.UserID}
	if _, exists := s.members[key]; exists {
		return apperrors.NewConflictError("user is already a member of this chat")
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = member.LastSeen
	}
	member.UpdatedAt = member.CreatedAt
	cp := *member
	s.members[key] = &cp
	return nil
}

func (r *ChatMemberRepository) Get(_ context.Context, chatID, userID int64) (*models.ChatMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.members[memberKey{chatID, userID}]
	if !ok {
		return nil, apperrors.NewResourceNotFoundError("membership not found")
	}
	cp := *m
	return &cp, nil
}

func (r *ChatMemberRepository) ListByChat(_ context.Context, chatID int64) ([]*models.ChatMember, error) {
	return r.filter(func(m *models.ChatMember) bool { return m.ChatID == chatID },
		func(a, b *models.ChatMember) bool {
			if a.CreatedAt.Equal(b.CreatedAt) {
				return a.UserID < b.UserID
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}), nil
}

func (r *ChatMemberRepository) ListByUser(_ context.Context, userID int64) ([]*models.ChatMember, error) {
	return r.filter(func(m *models.ChatMember) bool { return m.UserID == userID },
		func(a, b *models.ChatMember) bool { return a.ChatID < b.ChatID }), nil
}

func (r *ChatMemberRepository) filter(keep func(*models.ChatMember) bool, less func(a, b *models.ChatMember) bool) []*models.ChatMember {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*models.ChatMember
	for _, m := range r.s.members {
		if keep(m) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (r *ChatMemberRepository) Remove(_ context.Context, chatID, userID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := memberKey{chatID, userID}
	if _, ok := r.s.members[key]; !ok {
		return apperrors.NewResourceNotFoundError("membership not found")
	}
	delete(r.s.members, key)
	return nil
}

func (r *ChatMemberRepository) TouchLastSeen(_ context.Context, chatID, userID int64, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.members[memberKey{chatID, userID}]
	if !ok || !m.LastSeen.Before(at) {
		return false, nil
	}
	m.LastSeen = at
	m.UpdatedAt = at
	return true, nil
}

func (r *ChatMemberRepository) MinLastSeen(_ context.Context, chatID, excludeUserID int64) (*time.Time, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var earliest *time.Time
	count := 0
	for k, m := range r.s.members {
		if k.chatID != chatID || k.userID == excludeUserID {
			continue
		}
		count++
		if earliest == nil || m.LastSeen.Before(*earliest) {
			seen := m.LastSeen
			earliest = &seen
		}
	}
	return earliest, count, nil
}

// --- messages ---

// MessageRepository is the in-memory message log
type MessageRepository struct{ s *Store }

func (r *MessageRepository) Create(_ context.Context, msg *models.Message) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[msg.ChatID]; !ok {
		return apperrors.ErrChatNotFound
	}
	s.messageSeq++
	msg.ID = s.messageSeq
	cp := *msg
	cp.Author = nil
	s.messages[cp.ID] = &cp

	log := s.chatLog[cp.ChatID]
	i := sort.Search(len(log), func(i int) bool { return cp.Before(log[i]) })
	log = append(log, nil)
	copy(log[i+1:], log[i:])
	log[i] = &cp
	s.chatLog[cp.ChatID] = log
	return nil
}

func (r *MessageRepository) GetByID(_ context.Context, id int64) (*models.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.messages[id]
	if !ok {
		return nil, apperrors.ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *MessageRepository) Page(_ context.Context, chatID int64, before *repositories.MessageCursor, limit int) ([]*models.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	log := r.s.chatLog[chatID]
	end := len(log)
	if before != nil {
		pivot := &models.Message{ID: before.ID, CreatedAt: before.CreatedAt}
		end = sort.Search(len(log), func(i int) bool { return !log[i].Before(pivot) })
	}

	out := make([]*models.Message, 0, limit)
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		cp := *log[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MessageRepository) CountSince(_ context.Context, chatID int64, since time.Time, excludeAuthor int64, limit int) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	log := r.s.chatLog[chatID]
	count := 0
	for i := len(log) - 1; i >= 0 && count < limit; i-- {
		if !log[i].CreatedAt.After(since) {
			break
		}
		if log[i].AuthorID != excludeAuthor {
			count++
		}
	}
	return count, nil
}
