package repository

import (
	"context"
	"fmt"
	"slices"
	"time"

	"marketplace_chat_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	messageCollection = "chat_messages"
	counterCollection = "counters"
	messageCounterKey = "chat_message"
)

type mongoMessageRepository struct {
	coll     *mongo.Collection
	counters *mongo.Collection
}

// NewMongoMessageRepository create a MessageRepository on mongo, id 用 counters 遞增
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &mongoMessageRepository{
		coll:     db.Collection(messageCollection),
		counters: db.Collection(counterCollection),
	}
}

// EnsureMongoIndexes room_identifier + _id 查詢用
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(messageCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "room_identifier", Value: 1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "room_identifier", Value: 1}, {Key: "is_read", Value: 1}}},
	})
	return err
}

func (r *mongoMessageRepository) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": messageCounterKey},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

func (r *mongoMessageRepository) Create(ctx context.Context, msg *domain.ChatMessage) error {
	id, err := r.nextID(ctx)
	if err != nil {
		return fmt.Errorf("allocate message id: %w", err)
	}

	msg.ID = id
	if msg.Timestamp.IsZero() {
		// mongo 只存到毫秒
		msg.Timestamp = time.Now().UTC().Truncate(time.Millisecond)
	}
	if _, err := r.coll.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (r *mongoMessageRepository) FindRecent(ctx context.Context, room string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		return []domain.ChatMessage{}, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}).SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, bson.M{"room_identifier": room}, opts)
	if err != nil {
		return nil, fmt.Errorf("find recent messages: %w", err)
	}

	msgs := []domain.ChatMessage{}
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func unreadFilter(room string, readerID int64) bson.M {
	return bson.M{
		"room_identifier": room,
		"sender_id":       bson.M{"$ne": readerID},
		"is_read":         false,
	}
}

func (r *mongoMessageRepository) MarkRead(ctx context.Context, room string, readerID int64) (int64, error) {
	res, err := r.coll.UpdateMany(ctx, unreadFilter(room, readerID), bson.M{"$set": bson.M{"is_read": true}})
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *mongoMessageRepository) CountUnread(ctx context.Context, room string, readerID int64) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, unreadFilter(room, readerID))
	if err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return n, nil
}
