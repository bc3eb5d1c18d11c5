package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-otp-auth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) ScanPage(ctx context.Context, limit int32, cursor string) ([]domain.User, string, error) {
	args := m.Called(ctx, limit, cursor)
	return args.Get(0).([]domain.User), args.String(1), args.Error(2)
}
func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

type mockEvents struct{ mock.Mock }

func (m *mockEvents) Publish(ctx context.Context, ev domain.AuthEvent) error {
	return m.Called(ctx, ev).Error(0)
}

// --- builder ---

var fixedNow = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func newService(us *mockUserStore, ev *mockEvents) Service {
	deps := ServiceDeps{UserRepo: us, Now: func() time.Time { return fixedNow }}
	if ev != nil {
		deps.Events = ev
	}
	return NewService(deps)
}

// --- List ---

func TestList_ClampsLimit(t *testing.T) {
	us := &mockUserStore{}
	us.On("ScanPage", mock.Anything, int32(50), "").Return([]domain.User{}, "", nil)
	us.On("ScanPage", mock.Anything, int32(100), "c1").Return([]domain.User{{UserID: "u1"}}, "c2", nil)

	svc := newService(us, nil)
	_, _, err := svc.List(context.Background(), 0, "")
	require.NoError(t, err)

	users, next, err := svc.List(context.Background(), 1000, "c1")
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, "c2", next)
}

// --- SetRole ---

func TestSetRole_InvalidRole(t *testing.T) {
	_, err := newService(&mockUserStore{}, nil).SetRole(context.Background(), "admin1", "u1", "root")
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestSetRole_CannotDemoteSelf(t *testing.T) {
	_, err := newService(&mockUserStore{}, nil).SetRole(context.Background(), "admin1", "admin1", domain.RoleUser)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestSetRole_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	us.On("Update", mock.Anything, "u1", map[string]interface{}{fieldRole: domain.RoleAdmin}).Return(nil)
	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Role: domain.RoleAdmin}, nil)

	u, err := newService(us, nil).SetRole(context.Background(), "admin1", "u1", domain.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, u.IsAdmin())
}

// --- Delete ---

func TestDelete_Self(t *testing.T) {
	err := newService(&mockUserStore{}, nil).Delete(context.Background(), "admin1", "admin1")
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestDelete_NotFound(t *testing.T) {
	us := &mockUserStore{}
	us.On("Get", mock.Anything, "u1").Return(nil, domain.ErrNotFound)

	err := newService(us, nil).Delete(context.Background(), "admin1", "u1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestDelete_SoftDeletesAndPublishes(t *testing.T) {
	us := &mockUserStore{}
	ev := &mockEvents{}
	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Email: "a@x.com"}, nil)
	us.On("Update", mock.Anything, "u1", map[string]interface{}{
		fieldIsDeleted: true,
		fieldDeletedAt: fixedNow,
	}).Return(nil)
	ev.On("Publish", mock.Anything, domain.AuthEvent{
		Type: domain.EventUserDeleted, UserID: "u1", Email: "a@x.com", OccurredAt: fixedNow,
	}).Return(errors.New("sns down"))

	require.NoError(t, newService(us, ev).Delete(context.Background(), "admin1", "u1"))
	us.AssertExpectations(t)
	ev.AssertExpectations(t)
}

func TestDelete_AlreadyDeletedIsNoop(t *testing.T) {
	us := &mockUserStore{}
	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", IsDeleted: true}, nil)

	require.NoError(t, newService(us, nil).Delete(context.Background(), "admin1", "u1"))
	us.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

// --- Restore ---

func TestRestore_ClearsDeletion(t *testing.T) {
	us := &mockUserStore{}
	deletedAt := fixedNow.Add(-time.Hour)
	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", IsDeleted: true, DeletedAt: &deletedAt}, nil)
	us.On("Update", mock.Anything, "u1", map[string]interface{}{
		fieldIsDeleted: false,
		fieldDeletedAt: nil,
	}).Return(nil)

	u, err := newService(us, nil).Restore(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, u.IsDeleted)
	assert.Nil(t, u.DeletedAt)
}

func TestRestore_PropagatesStoreError(t *testing.T) {
	us := &mockUserStore{}
	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", IsDeleted: true}, nil)
	us.On("Update", mock.Anything, "u1", mock.Anything).Return(errors.New("boom"))

	_, err := newService(us, nil).Restore(context.Background(), "u1")
	assert.EqualError(t, err, "boom")
}
