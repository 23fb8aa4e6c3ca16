package app

import (
	"context"

	"marketplace_chat_service/internal/chat/domain"

	"github.com/stretchr/testify/mock"
)

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// Create mock insert message
func (m *MockMessageRepository) Create(ctx context.Context, msg *domain.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// FindRecent mock history
func (m *MockMessageRepository) FindRecent(ctx context.Context, room string, limit int) ([]domain.ChatMessage, error) {
	args := m.Called(ctx, room, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.ChatMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

// MarkRead mock mark read
func (m *MockMessageRepository) MarkRead(ctx context.Context, room string, readerID int64) (int64, error) {
	args := m.Called(ctx, room, readerID)
	return args.Get(0).(int64), args.Error(1)
}

// CountUnread mock unread count
func (m *MockMessageRepository) CountUnread(ctx context.Context, room string, readerID int64) (int64, error) {
	args := m.Called(ctx, room, readerID)
	return args.Get(0).(int64), args.Error(1)
}

// MockBookingRepository Mock BookingRepository
type MockBookingRepository struct {
	mock.Mock
}

// FindByID mock find booking
func (m *MockBookingRepository) FindByID(ctx context.Context, id int64) (domain.BookingRef, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.BookingRef), args.Error(1)
}

// MockUserRepository Mock UserRepository
type MockUserRepository struct {
	mock.Mock
}

// FindByID mock find user
func (m *MockUserRepository) FindByID(ctx context.Context, id int64) (domain.Identity, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Identity), args.Error(1)
}

// FindUsernames mock usernames
func (m *MockUserRepository) FindUsernames(ctx context.Context, ids []int64) (map[int64]string, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) != nil {
		return args.Get(0).(map[int64]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockEventPublisher Mock MessageEventPublisher
type MockEventPublisher struct {
	mock.Mock
}

// Publish mock publish event
func (m *MockEventPublisher) Publish(ctx context.Context, ev domain.MessageCreatedEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// Close mock close
func (m *MockEventPublisher) Close() error {
	return m.Called().Error(0)
}

// MockTokenValidator Mock token validator
type MockTokenValidator struct {
	mock.Mock
}

// Validate mock validate
func (m *MockTokenValidator) Validate(tokenStr string) (int64, error) {
	args := m.Called(tokenStr)
	return args.Get(0).(int64), args.Error(1)
}

// MockRoomPubSub Mock RoomPubSub
type MockRoomPubSub struct {
	mock.Mock
}

// Publish mock redis publish
func (m *MockRoomPubSub) Publish(ctx context.Context, room string, message interface{}) error {
	args := m.Called(ctx, room, message)
	return args.Error(0)
}

// Subscribe mock redis subscribe
func (m *MockRoomPubSub) Subscribe(ctx context.Context, handler func(room string, payload []byte)) error {
	args := m.Called(ctx, handler)
	return args.Error(0)
}
