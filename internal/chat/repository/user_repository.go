package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/pkg/database"
	"marketplace_chat_service/pkg/logger"

	"github.com/jackc/pgx/v4"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// UserRepository user read model
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (domain.Identity, error)
	// FindUsernames 找不到的 id 不會出現在結果
	FindUsernames(ctx context.Context, ids []int64) (map[int64]string, error)
}

type userRepository struct {
	db Querier
}

// NewUserRepository create a UserRepository on api_user
func NewUserRepository(db Querier) UserRepository {
	return &userRepository{db: db}
}

const (
	findUserSQL      = `SELECT id, username, is_provider FROM api_user WHERE id = $1 AND is_active`
	findUsernamesSQL = `SELECT id, username FROM api_user WHERE id = ANY($1)`
)

func (r *userRepository) FindByID(ctx context.Context, id int64) (domain.Identity, error) {
	var u domain.Identity
	err := r.db.QueryRow(ctx, findUserSQL, id).Scan(&u.ID, &u.Username, &u.IsProvider)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Identity{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("find user %d: %w", id, err)
	}
	return u, nil
}

func (r *userRepository) FindUsernames(ctx context.Context, ids []int64) (map[int64]string, error) {
	result := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx, findUsernamesSQL, lo.Uniq(ids))
	if err != nil {
		return nil, fmt.Errorf("find usernames: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan username: %w", err)
		}
		result[id] = name
	}
	return result, rows.Err()
}

type cachedUserRepository struct {
	next  UserRepository
	cache database.RedisRepository[domain.Identity]
	ttl   time.Duration
}

// NewCachedUserRepository redis cache in front of UserRepository, cache 錯誤只記 log
func NewCachedUserRepository(next UserRepository, cache database.RedisRepository[domain.Identity], ttl time.Duration) UserRepository {
	return &cachedUserRepository{next: next, cache: cache, ttl: ttl}
}

func identityKey(id int64) string {
	return "chat:identity:" + strconv.FormatInt(id, 10)
}

func (r *cachedUserRepository) FindByID(ctx context.Context, id int64) (domain.Identity, error) {
	u, err := r.cache.Get(ctx, identityKey(id))
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, database.ErrCacheMiss) {
		logger.Log.Warn("identity cache get failed", zap.Int64("user_id", id), zap.Error(err))
	}

	u, err = r.next.FindByID(ctx, id)
	if err != nil {
		return domain.Identity{}, err
	}

	if err := r.cache.Set(ctx, identityKey(id), u, r.ttl); err != nil {
		logger.Log.Warn("identity cache set failed", zap.Int64("user_id", id), zap.Error(err))
	}
	return u, nil
}

func (r *cachedUserRepository) FindUsernames(ctx context.Context, ids []int64) (map[int64]string, error) {
	result := make(map[int64]string, len(ids))
	var missing []int64

	for _, id := range lo.Uniq(ids) {
		u, err := r.cache.Get(ctx, identityKey(id))
		if err != nil {
			missing = append(missing, id)
			continue
		}
		result[id] = u.Username
	}

	if len(missing) == 0 {
		return result, nil
	}

	found, err := r.next.FindUsernames(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, name := range found {
		result[id] = name
	}
	return result, nil
}
