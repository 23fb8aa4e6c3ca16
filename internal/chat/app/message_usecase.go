package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/internal/chat/repository"
	errprocess "marketplace_chat_service/pkg/err"
	"marketplace_chat_service/pkg/logger"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

const eventPublishTimeout = 5 * time.Second

// MessageGateway 對 message store 的唯一入口
type MessageGateway interface {
	Save(ctx context.Context, sender domain.Identity, room string, body string) (domain.ChatMessage, error)
	History(ctx context.Context, room string, limit int) ([]domain.ChatMessage, error)
	HistoryViews(ctx context.Context, room string, limit int, viewerID int64) ([]domain.MessageView, error)
	MarkRead(ctx context.Context, room string, reader domain.Identity) error
	UnreadCount(ctx context.Context, room string, reader domain.Identity) (int64, error)
}

// MessageUseCase implements MessageGateway
type MessageUseCase struct {
	msgRepo  repository.MessageRepository
	bookings repository.BookingRepository
	users    repository.UserRepository
	events   repository.MessageEventPublisher

	wg sync.WaitGroup
}

// NewMessageUseCase create MessageUseCase
func NewMessageUseCase(
	msgRepo repository.MessageRepository,
	bookings repository.BookingRepository,
	users repository.UserRepository,
	events repository.MessageEventPublisher,
) *MessageUseCase {
	if events == nil {
		events = repository.NewNoopEventPublisher()
	}
	return &MessageUseCase{
		msgRepo:  msgRepo,
		bookings: bookings,
		users:    users,
		events:   events,
	}
}

// Save 寫入訊息; booking room 且 booking 存在時帶 booking_id, 否則為 null
func (uc *MessageUseCase) Save(ctx context.Context, sender domain.Identity, room string, body string) (domain.ChatMessage, error) {
	msg := domain.ChatMessage{
		SenderID:       sender.ID,
		RoomIdentifier: room,
		MessageContent: body,
		BookingID:      uc.resolveBookingID(ctx, room),
	}

	if err := uc.msgRepo.Create(ctx, &msg); err != nil {
		return domain.ChatMessage{}, errprocess.Wrap(domain.ErrPersistence, err,
			zap.String("room", room), zap.Int64("user_id", sender.ID))
	}

	uc.publishCreated(msg)
	return msg, nil
}

func (uc *MessageUseCase) resolveBookingID(ctx context.Context, room string) *int64 {
	desc := domain.ParseRoom(room)
	if desc.Kind != domain.RoomBooking {
		return nil
	}

	booking, err := uc.bookings.FindByID(ctx, desc.BookingID)
	if err != nil {
		if !errors.Is(err, domain.ErrBookingNotFound) {
			logger.Log.Warn("booking lookup failed, saving without booking link",
				zap.String("room", room), zap.Error(err))
		}
		return nil
	}
	return lo.ToPtr(booking.ID)
}

// 事件送出與聊天流程無關, 失敗只記 log
func (uc *MessageUseCase) publishCreated(msg domain.ChatMessage) {
	ev := domain.NewMessageCreatedEvent(msg)

	uc.wg.Add(1)
	go func() {
		defer uc.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), eventPublishTimeout)
		defer cancel()
		if err := uc.events.Publish(ctx, ev); err != nil {
			logger.Log.Warn("publish message event failed",
				zap.Int64("message_id", ev.ID), zap.String("room", ev.RoomName), zap.Error(err))
		}
	}()
}

// Wait 等待送出中的事件 (shutdown 用)
func (uc *MessageUseCase) Wait() {
	uc.wg.Wait()
}

// History 最近 limit 筆, 舊的在前
func (uc *MessageUseCase) History(ctx context.Context, room string, limit int) ([]domain.ChatMessage, error) {
	msgs, err := uc.msgRepo.FindRecent(ctx, room, limit)
	if err != nil {
		return nil, errprocess.Wrap(domain.ErrPersistence, err, zap.String("room", room))
	}
	return msgs, nil
}

// HistoryViews History 加上 sender_username 與 is_self
func (uc *MessageUseCase) HistoryViews(ctx context.Context, room string, limit int, viewerID int64) ([]domain.MessageView, error) {
	msgs, err := uc.History(ctx, room, limit)
	if err != nil {
		return nil, err
	}

	senderIDs := lo.Uniq(lo.Map(msgs, func(m domain.ChatMessage, _ int) int64 { return m.SenderID }))
	names, err := uc.users.FindUsernames(ctx, senderIDs)
	if err != nil {
		// 名稱只是顯示用
		logger.Log.Warn("load sender usernames failed", zap.String("room", room), zap.Error(err))
		names = map[int64]string{}
	}

	return lo.Map(msgs, func(m domain.ChatMessage, _ int) domain.MessageView {
		return domain.NewBroadcast(m, names[m.SenderID]).ViewFor(viewerID)
	}), nil
}

// MarkRead room 內非 reader 的訊息標為已讀
func (uc *MessageUseCase) MarkRead(ctx context.Context, room string, reader domain.Identity) error {
	n, err := uc.msgRepo.MarkRead(ctx, room, reader.ID)
	if err != nil {
		return errprocess.Wrap(domain.ErrPersistence, err, zap.String("room", room), zap.Int64("user_id", reader.ID))
	}
	logger.Log.Debug("messages marked read", zap.String("room", room), zap.Int64("user_id", reader.ID), zap.Int64("count", n))
	return nil
}

// UnreadCount room 內非 reader 發送的未讀數
func (uc *MessageUseCase) UnreadCount(ctx context.Context, room string, reader domain.Identity) (int64, error) {
	n, err := uc.msgRepo.CountUnread(ctx, room, reader.ID)
	if err != nil {
		return 0, errprocess.Wrap(domain.ErrPersistence, err, zap.String("room", room), zap.Int64("user_id", reader.ID))
	}
	return n, nil
}
