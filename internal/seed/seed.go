// Package seed creates demo users and chats for local development
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/rs/zerolog"
	"github.com/yigit/chatsphere/internal/app/models"
	"github.com/yigit/chatsphere/internal/app/models/dto"
	"github.com/yigit/chatsphere/internal/app/repositories"
	"github.com/yigit/chatsphere/internal/app/services"
	"github.com/yigit/chatsphere/internal/pkg/apperrors"
)

// DemoPassword is the password of every seeded user
const DemoPassword = "chatsphere-demo"

// Options controls the generated data
type Options struct {
	Users int
	// Seed makes the generated names and messages reproducible
	Seed int64
}

// Seeder creates demo data through the regular services so every invariant holds
type Seeder struct {
	auth   *services.AuthService
	users  repositories.IUserRepository
	chats  services.ChatService
	logger zerolog.Logger
}

// NewSeeder creates a new Seeder
func NewSeeder(auth *services.AuthService, users repositories.IUserRepository, chats services.ChatService, logger zerolog.Logger) *Seeder {
	return &Seeder{auth: auth, users: users, chats: chats, logger: logger}
}

// CreateDefaultData creates demo1..demoN, a direct chat between the first two and a group with
// everyone. Running it again reuses the existing users and skips the existing direct chat.
func (s *Seeder) CreateDefaultData(ctx context.Context, opts Options) error {
	if opts.Users < 2 {
		return nil
	}
	faker := gofakeit.New(opts.Seed)

	ids := make([]int64, 0, opts.Users)
	for i := 1; i <= opts.Users; i++ {
		id, err := s.ensureUser(ctx, faker, fmt.Sprintf("demo%d", i))
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	direct, err := s.chats.CreateChat(ctx, ids[0], &dto.CreateChatRequest{
		Kind:    string(models.ChatKindDirect),
		Members: []int64{ids[1]},
	})
	switch {
	case errors.Is(err, apperrors.ErrConflict):
		s.logger.Info().Msg("Demo data already present, skipping chats")
		return nil
	case err != nil:
		return fmt.Errorf("failed to create demo direct chat: %w", err)
	}
	if err := s.converse(ctx, faker, direct.ID, ids[:2], 4); err != nil {
		return err
	}

	if len(ids) >= 3 {
		name := faker.BuzzWord() + " " + faker.HipsterWord()
		bio := faker.Sentence(8)
		group, err := s.chats.CreateChat(ctx, ids[0], &dto.CreateChatRequest{
			Kind:    string(models.ChatKindGroup),
			Name:    &name,
			Bio:     &bio,
			Members: ids[1:],
		})
		if err != nil {
			return fmt.Errorf("failed to create demo group chat: %w", err)
		}
		if err := s.converse(ctx, faker, group.ID, ids, 2*len(ids)); err != nil {
			return err
		}
	}

	s.logger.Info().Int("users", len(ids)).Str("password", DemoPassword).Msg("Demo data created")
	return nil
}

func (s *Seeder) ensureUser(ctx context.Context, faker *gofakeit.Faker, handle string) (int64, error) {
	if existing, err := s.users.GetByUserName(ctx, handle); err == nil {
		return existing.ID, nil
	} else if !errors.Is(err, apperrors.ErrResourceNotFound) {
		return 0, err
	}

	resp, err := s.auth.Register(ctx, &dto.RegisterRequest{
		Name:     displayName(faker),
		UserName: handle,
		Password: DemoPassword,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create demo user %s: %w", handle, err)
	}
	return resp.User.ID, nil
}

// converse posts n messages round robin between the authors
func (s *Seeder) converse(ctx context.Context, faker *gofakeit.Faker, chatID int64, authors []int64, n int) error {
	for i := 0; i < n; i++ {
		text := faker.Sentence(faker.Number(3, 12))
		if _, err := s.chats.PostMessage(ctx, authors[i%len(authors)], chatID, &dto.CreateMessageRequest{Text: text}); err != nil {
			return fmt.Errorf("failed to post demo message: %w", err)
		}
	}
	return nil
}

// displayName returns a fake full name that fits the 5 to 30 character rule
func displayName(faker *gofakeit.Faker) string {
	name := faker.FirstName() + " " + faker.LastName()
	if len(name) > 30 {
		name = name[:30]
	}
	for len(name) < 5 {
		name += "."
	}
	return strings.TrimSpace(name)
}
