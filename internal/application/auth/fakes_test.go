package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/go-otp-auth/internal/domain"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memUsers is an in-memory user store. Partial updates go through the same
// attribute marshalling as the DynamoDB repository.
type memUsers struct {
	mu    sync.Mutex
	byID  map[string]domain.User
	fails int
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[string]domain.User)}
}

func (m *memUsers) Get(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return &u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return m.find(func(u domain.User) bool { return u.Email == email })
}

func (m *memUsers) GetByGoogleSub(_ context.Context, sub string) (*domain.User, error) {
	return m.find(func(u domain.User) bool { return u.GoogleSub != "" && u.GoogleSub == sub })
}

func (m *memUsers) find(match func(domain.User) bool) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if match(u) {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
}

func (m *memUsers) Create(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[u.UserID]; ok {
		return fmt.Errorf("user already exists: %w", domain.ErrConflict)
	}
	for _, other := range m.byID {
		if other.Email == u.Email {
			return fmt.Errorf("email already registered: %w", domain.ErrConflict)
		}
	}
	m.byID[u.UserID] = *u
	return nil
}

func (m *memUsers) Update(_ context.Context, userID string, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return err
	}
	for k, v := range updates {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return err
		}
		item[k] = av
	}
	var out domain.User
	if err := attributevalue.UnmarshalMap(item, &out); err != nil {
		return err
	}
	m.byID[userID] = out
	return nil
}

func (m *memUsers) IncrementFailedLogins(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return 0, errors.New("no such user")
	}
	u.FailedLoginAttempts++
	m.byID[userID] = u
	return u.FailedLoginAttempts, nil
}

// put seeds a user directly.
func (m *memUsers) put(u domain.User) {
	m.mu.Lock()
	m.byID[u.UserID] = u
	m.mu.Unlock()
}

func (m *memUsers) byEmail(email string) (domain.User, bool) {
	u, err := m.GetByEmail(context.Background(), email)
	if err != nil {
		return domain.User{}, false
	}
	return *u, true
}

func (m *memUsers) countEmail(email string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.byID {
		if u.Email == email {
			n++
		}
	}
	return n
}

// lookupBarrier holds the first n GetByEmail calls until all n have read the
// store, so every caller sees the same snapshot before any of them writes.
type lookupBarrier struct {
	*memUsers
	n       int
	mu      sync.Mutex
	arrived int
	release chan struct{}
}

func newLookupBarrier(users *memUsers, n int) *lookupBarrier {
	return &lookupBarrier{memUsers: users, n: n, release: make(chan struct{})}
}

func (b *lookupBarrier) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := b.memUsers.GetByEmail(ctx, email)
	b.mu.Lock()
	b.arrived++
	held := b.arrived <= b.n
	if b.arrived == b.n {
		close(b.release)
	}
	b.mu.Unlock()
	if held {
		<-b.release
	}
	return u, err
}

// insertOnLookup seeds row right after the first GetByEmail returns, as if a
// concurrent request had written it in between.
type insertOnLookup struct {
	*memUsers
	row  domain.User
	once sync.Once
}

func (s *insertOnLookup) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.memUsers.GetByEmail(ctx, email)
	s.once.Do(func() { s.memUsers.put(s.row) })
	return u, err
}

type sentMail struct {
	to      string
	code    string
	purpose domain.OTPPurpose
}

// memMailer records every code it is asked to deliver.
type memMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *memMailer) SendVerificationCode(to, _ string, code string, _ time.Duration) error {
	return m.record(to, code, domain.OTPPurposeEmailVerification)
}

func (m *memMailer) SendPasswordResetCode(to, _ string, code string, _ time.Duration) error {
	return m.record(to, code, domain.OTPPurposePasswordReset)
}

func (m *memMailer) record(to, code string, purpose domain.OTPPurpose) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, code: code, purpose: purpose})
	return nil
}

func (m *memMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// lastCode returns the most recent code mailed to (to, purpose).
func (m *memMailer) lastCode(to string, purpose domain.OTPPurpose) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].to == to && m.sent[i].purpose == purpose {
			return m.sent[i].code
		}
	}
	return ""
}

type memEvents struct {
	mu     sync.Mutex
	events []domain.AuthEvent
	err    error
}

func (m *memEvents) Publish(_ context.Context, ev domain.AuthEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.err
}

func (m *memEvents) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Type)
	}
	return out
}
