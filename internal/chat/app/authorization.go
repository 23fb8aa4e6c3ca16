package app

import (
	"context"
	"fmt"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/internal/chat/repository"
)

// RoomAuthorizer 決定 principal 能否進入 room
type RoomAuthorizer interface {
	Check(ctx context.Context, p domain.Principal, room domain.RoomDescriptor) error
}

// Authorizer booking room 查一次 booking, direct room 不查
type Authorizer struct {
	bookings repository.BookingRepository
}

// NewAuthorizer create Authorizer
func NewAuthorizer(bookings repository.BookingRepository) *Authorizer {
	return &Authorizer{bookings: bookings}
}

// Check nil 表示允許; 拒絕一律包 domain.ErrAuthorization, 查詢失敗也視為拒絕
func (a *Authorizer) Check(ctx context.Context, p domain.Principal, room domain.RoomDescriptor) error {
	id, ok := p.Identity()
	if !ok {
		return fmt.Errorf("%w: anonymous principal", domain.ErrAuthorization)
	}

	switch room.Kind {
	case domain.RoomBooking:
		booking, err := a.bookings.FindByID(ctx, room.BookingID)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrAuthorization, err)
		}
		if !booking.Allows(id) {
			return fmt.Errorf("%w: user %d not a party of booking %d", domain.ErrAuthorization, id.ID, booking.ID)
		}
		return nil

	case domain.RoomDirect:
		if !room.IsMember(id.ID) {
			return fmt.Errorf("%w: user %d not in %s", domain.ErrAuthorization, id.ID, room.Name)
		}
		return nil

	default:
		return fmt.Errorf("%w: %w", domain.ErrAuthorization, domain.ErrUnrecognizedRoom)
	}
}

// Authorize bool 版本
func (a *Authorizer) Authorize(ctx context.Context, p domain.Principal, room domain.RoomDescriptor) bool {
	return a.Check(ctx, p, room) == nil
}
