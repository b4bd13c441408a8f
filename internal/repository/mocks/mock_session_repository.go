package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"docconvert/internal/repository"
)

type MockSessionRepository struct {
	mock.Mock
}

var _ repository.SessionRepository = (*MockSessionRepository)(nil)

func (m *MockSessionRepository) Get(ctx context.Context, id string, now time.Time) ([]byte, error) {
	args := m.Called(ctx, id, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockSessionRepository) Upsert(ctx context.Context, id string, data []byte, expiresAt time.Time) error {
	args := m.Called(ctx, id, data, expiresAt)
	return args.Error(0)
}

func (m *MockSessionRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSessionRepository) DeleteAll(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}
