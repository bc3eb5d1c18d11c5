package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-otp-auth/internal/domain"
	"github.com/go-otp-auth/internal/infrastructure/sns"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldRole      = "role"
	fieldIsDeleted = "is_deleted"
	fieldDeletedAt = "deleted_at"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// Service is the admin view of accounts. Accounts are never hard-deleted.
type Service interface {
	List(ctx context.Context, limit int, cursor string) ([]domain.User, string, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	SetRole(ctx context.Context, actorID, userID, role string) (*domain.User, error)
	Delete(ctx context.Context, actorID, userID string) error
	Restore(ctx context.Context, userID string) (*domain.User, error)
}

type userStore interface {
	ScanPage(ctx context.Context, limit int32, cursor string) ([]domain.User, string, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type service struct {
	repo   userStore
	events sns.EventPublisher
	now    func() time.Time
}

type ServiceDeps struct {
	UserRepo userStore
	Events   sns.EventPublisher
	Now      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{repo: deps.UserRepo, events: deps.Events, now: deps.Now}
	if s.events == nil {
		s.events = sns.Discard{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *service) List(ctx context.Context, limit int, cursor string) ([]domain.User, string, error) {
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return s.repo.ScanPage(ctx, int32(limit), cursor)
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

func (s *service) SetRole(ctx context.Context, actorID, userID, role string) (*domain.User, error) {
	if !domain.ValidRole(role) {
		return nil, fmt.Errorf("invalid role: %w", domain.ErrBadRequest)
	}
	if actorID == userID && role != domain.RoleAdmin {
		return nil, fmt.Errorf("admins cannot demote themselves: %w", domain.ErrBadRequest)
	}
	if err := s.repo.Update(ctx, userID, map[string]interface{}{fieldRole: role}); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, userID)
}

func (s *service) Delete(ctx context.Context, actorID, userID string) error {
	if actorID == userID {
		return fmt.Errorf("admins cannot delete their own account: %w", domain.ErrBadRequest)
	}
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.IsDeleted {
		return nil
	}
	if err := s.repo.Update(ctx, userID, map[string]interface{}{
		fieldIsDeleted: true,
		fieldDeletedAt: s.now().UTC(),
	}); err != nil {
		return err
	}
	s.publish(ctx, domain.EventUserDeleted, u)
	return nil
}

func (s *service) Restore(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.IsDeleted {
		return u, nil
	}
	if err := s.repo.Update(ctx, userID, map[string]interface{}{
		fieldIsDeleted: false,
		fieldDeletedAt: nil,
	}); err != nil {
		return nil, err
	}
	u.IsDeleted = false
	u.DeletedAt = nil
	s.publish(ctx, domain.EventUserRestored, u)
	return u, nil
}

func (s *service) publish(ctx context.Context, eventType string, u *domain.User) {
	ev := domain.AuthEvent{Type: eventType, UserID: u.UserID, Email: u.Email, OccurredAt: s.now().UTC()}
	if err := s.events.Publish(ctx, ev); err != nil {
		slog.Warn("failed to publish auth event", "type", eventType, "user_id", u.UserID, "err", err)
	}
}
