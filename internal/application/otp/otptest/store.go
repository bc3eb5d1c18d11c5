// Package otptest provides an in-memory otp.Store with the same conditional
// write semantics as the DynamoDB repository.
package otptest

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-otp-auth/internal/domain"
)

type Store struct {
	mu      sync.Mutex
	records map[string]domain.OTP
}

func NewStore() *Store {
	return &Store{records: make(map[string]domain.OTP)}
}

func key(identity string, purpose domain.OTPPurpose) string {
	return identity + "#" + string(purpose)
}

func (s *Store) Put(_ context.Context, rec *domain.OTP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key(rec.Identity, rec.Purpose)] = *rec
	return nil
}

func (s *Store) Get(_ context.Context, identity string, purpose domain.OTPPurpose) (*domain.OTP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key(identity, purpose)]
	if !ok {
		return nil, fmt.Errorf("otp not found: %w", domain.ErrNotFound)
	}
	return &rec, nil
}

func (s *Store) Delete(_ context.Context, identity string, purpose domain.OTPPurpose, otpID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(identity, purpose)
	if rec, ok := s.records[k]; ok && rec.OTPID == otpID {
		delete(s.records, k)
	}
	return nil
}

func (s *Store) RecordAttempt(_ context.Context, rec *domain.OTP, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(rec.Identity, rec.Purpose)
	cur, ok := s.records[k]
	if !ok || cur.OTPID != rec.OTPID || cur.Attempts != rec.Attempts || cur.Verified {
		return fmt.Errorf("otp changed concurrently: %w", domain.ErrConflict)
	}
	cur.Attempts++
	if verified {
		cur.Verified = true
	}
	s.records[k] = cur
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Peek returns a copy of the record for (identity, purpose), if any.
func (s *Store) Peek(identity string, purpose domain.OTPPurpose) (domain.OTP, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key(identity, purpose)]
	return rec, ok
}
