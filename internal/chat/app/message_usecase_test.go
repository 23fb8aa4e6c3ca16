package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMessageUseCaseSaveBookingRoom(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()

	msgRepo := new(MockMessageRepository)
	msgRepo.On("Create", ctx, mock.MatchedBy(func(m *domain.ChatMessage) bool {
		return m.RoomIdentifier == "booking_42" && m.BookingID != nil && *m.BookingID == 42 &&
			m.SenderID == 1 && m.MessageContent == "hello" && !m.IsRead
	})).Run(func(args mock.Arguments) {
		m := args.Get(1).(*domain.ChatMessage)
		m.ID = 100
		m.Timestamp = time.Now().UTC()
	}).Return(nil)

	events := new(MockEventPublisher)
	events.On("Publish", mock.Anything, mock.MatchedBy(func(ev domain.MessageCreatedEvent) bool {
		return ev.ID == 100 && ev.RoomName == "booking_42"
	})).Return(nil)

	uc := NewMessageUseCase(msgRepo, bookingRepoWith42(), new(MockUserRepository), events)
	msg, err := uc.Save(ctx, customer, "booking_42", "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(100), msg.ID)

	uc.Wait()
	msgRepo.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestMessageUseCaseSaveWithoutBooking(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()

	tests := []struct {
		name     string
		room     string
		bookings *MockBookingRepository
	}{
		{"missing booking", "booking_7", bookingRepoWith42()},
		{"booking lookup error", "booking_42", func() *MockBookingRepository {
			m := new(MockBookingRepository)
			m.On("FindByID", mock.Anything, int64(42)).Return(domain.BookingRef{}, errors.New("timeout"))
			return m
		}()},
		{"direct room", "chat_user_1_user_2", new(MockBookingRepository)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgRepo := new(MockMessageRepository)
			msgRepo.On("Create", ctx, mock.MatchedBy(func(m *domain.ChatMessage) bool {
				return m.BookingID == nil && m.RoomIdentifier == tt.room
			})).Return(nil)

			uc := NewMessageUseCase(msgRepo, tt.bookings, new(MockUserRepository), nil)
			_, err := uc.Save(ctx, customer, tt.room, "hi")
			require.NoError(t, err)
			msgRepo.AssertExpectations(t)
		})
	}
}

func TestMessageUseCaseSavePersistenceFailure(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()

	msgRepo := new(MockMessageRepository)
	msgRepo.On("Create", ctx, mock.Anything).Return(errors.New("unique violation"))
	events := new(MockEventPublisher)

	uc := NewMessageUseCase(msgRepo, new(MockBookingRepository), new(MockUserRepository), events)
	_, err := uc.Save(ctx, customer, "chat_user_1_user_2", "hi")
	assert.ErrorIs(t, err, domain.ErrPersistence)

	uc.Wait()
	events.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestMessageUseCaseEventFailureIgnored(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()

	msgRepo := new(MockMessageRepository)
	msgRepo.On("Create", ctx, mock.Anything).Return(nil)
	events := new(MockEventPublisher)
	events.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	uc := NewMessageUseCase(msgRepo, new(MockBookingRepository), new(MockUserRepository), events)
	_, err := uc.Save(ctx, customer, "chat_user_1_user_2", "hi")
	assert.NoError(t, err)
	uc.Wait()
	events.AssertNumberOfCalls(t, "Publish", 1)
}

func TestMessageUseCaseHistoryViews(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	msgRepo := new(MockMessageRepository)
	msgRepo.On("FindRecent", ctx, "booking_42", 50).Return([]domain.ChatMessage{
		{ID: 1, SenderID: 1, RoomIdentifier: "booking_42", MessageContent: "a", Timestamp: ts},
		{ID: 2, SenderID: 2, RoomIdentifier: "booking_42", MessageContent: "b", Timestamp: ts},
		{ID: 3, SenderID: 1, RoomIdentifier: "booking_42", MessageContent: "c", Timestamp: ts},
	}, nil)
	users := new(MockUserRepository)
	users.On("FindUsernames", ctx, []int64{1, 2}).Return(map[int64]string{1: "customer", 2: "provider"}, nil)

	uc := NewMessageUseCase(msgRepo, new(MockBookingRepository), users, nil)
	views, err := uc.HistoryViews(ctx, "booking_42", 50, 2)
	require.NoError(t, err)
	require.Len(t, views, 3)

	assert.Equal(t, []int64{1, 2, 3}, []int64{views[0].ID, views[1].ID, views[2].ID})
	assert.Equal(t, "customer", views[0].SenderUsername)
	assert.False(t, views[0].IsSelf)
	assert.True(t, views[1].IsSelf)
	assert.Equal(t, "2025-03-01T12:00:00Z", views[0].Timestamp)
	assert.Equal(t, "booking_42", views[2].RoomName)
}

func TestMessageUseCaseHistoryUsernameFailure(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()

	msgRepo := new(MockMessageRepository)
	msgRepo.On("FindRecent", ctx, "booking_42", 10).Return([]domain.ChatMessage{{ID: 1, SenderID: 1}}, nil)
	users := new(MockUserRepository)
	users.On("FindUsernames", ctx, mock.Anything).Return(nil, errors.New("db down"))

	views, err := NewMessageUseCase(msgRepo, nil, users, nil).HistoryViews(ctx, "booking_42", 10, 1)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Empty(t, views[0].SenderUsername)
}

func TestMessageUseCaseMarkReadAndUnread(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()

	msgRepo := new(MockMessageRepository)
	msgRepo.On("MarkRead", ctx, "booking_42", int64(1)).Return(int64(3), nil).Once()
	msgRepo.On("MarkRead", ctx, "booking_42", int64(1)).Return(int64(0), errors.New("db down")).Once()
	msgRepo.On("CountUnread", ctx, "booking_42", int64(2)).Return(int64(4), nil)

	uc := NewMessageUseCase(msgRepo, nil, nil, nil)
	assert.NoError(t, uc.MarkRead(ctx, "booking_42", customer))
	assert.ErrorIs(t, uc.MarkRead(ctx, "booking_42", customer), domain.ErrPersistence)

	n, err := uc.UnreadCount(ctx, "booking_42", provider)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
