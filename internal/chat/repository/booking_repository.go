package repository

import (
	"context"
	"errors"
	"fmt"

	"marketplace_chat_service/internal/chat/domain"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
)

// Querier pgxpool.Pool, pgx.Conn 與 pgx.Tx 都符合
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// BookingRepository booking read model, chat 不會修改 booking
type BookingRepository interface {
	FindByID(ctx context.Context, id int64) (domain.BookingRef, error)
}

type bookingRepository struct {
	db Querier
}

// NewBookingRepository create a BookingRepository on api_booking
func NewBookingRepository(db Querier) BookingRepository {
	return &bookingRepository{db: db}
}

const findBookingSQL = `SELECT id, customer_id, provider_profile_id, status FROM api_booking WHERE id = $1`

func (r *bookingRepository) FindByID(ctx context.Context, id int64) (domain.BookingRef, error) {
	var b domain.BookingRef
	err := r.db.QueryRow(ctx, findBookingSQL, id).Scan(&b.ID, &b.CustomerID, &b.ProviderUserID, &b.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BookingRef{}, domain.ErrBookingNotFound
	}
	if err != nil {
		return domain.BookingRef{}, fmt.Errorf("find booking %d: %w", id, err)
	}
	return b, nil
}
