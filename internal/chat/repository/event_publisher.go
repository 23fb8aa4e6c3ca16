package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"marketplace_chat_service/internal/chat/domain"

	"github.com/segmentio/kafka-go"
	"github.com/streadway/amqp"
)

// MessageCreatedRoutingKey rabbitmq routing key / event name
const MessageCreatedRoutingKey = "chat.message.created"

// MessageEventPublisher 訊息建立後通知其他服務 (通知, 搜尋索引...)
type MessageEventPublisher interface {
	Publish(ctx context.Context, ev domain.MessageCreatedEvent) error
	Close() error
}

// KafkaWriter *kafka.Writer
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaEventPublisher struct {
	writer KafkaWriter
}

// NewKafkaEventPublisher key 為 room name, 同 room 的事件在同一 partition
func NewKafkaEventPublisher(w KafkaWriter) MessageEventPublisher {
	return &kafkaEventPublisher{writer: w}
}

func (p *kafkaEventPublisher) Publish(ctx context.Context, ev domain.MessageCreatedEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.RoomName),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(MessageCreatedRoutingKey)},
		},
	})
}

func (p *kafkaEventPublisher) Close() error {
	return p.writer.Close()
}

// AMQPChannel *amqp.Channel
type AMQPChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type rabbitEventPublisher struct {
	channel  AMQPChannel
	exchange string
}

// NewRabbitEventPublisher publish to topic exchange with MessageCreatedRoutingKey
func NewRabbitEventPublisher(ch AMQPChannel, exchange string) MessageEventPublisher {
	return &rabbitEventPublisher{channel: ch, exchange: exchange}
}

func (p *rabbitEventPublisher) Publish(_ context.Context, ev domain.MessageCreatedEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	err = p.channel.Publish(p.exchange, MessageCreatedRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    strconv.FormatInt(ev.ID, 10),
		Timestamp:    time.Now(),
		Type:         MessageCreatedRoutingKey,
		Body:         data,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func (p *rabbitEventPublisher) Close() error {
	return p.channel.Close()
}

type noopEventPublisher struct{}

// NewNoopEventPublisher events.driver 未設定時使用
func NewNoopEventPublisher() MessageEventPublisher {
	return noopEventPublisher{}
}

func (noopEventPublisher) Publish(context.Context, domain.MessageCreatedEvent) error { return nil }

func (noopEventPublisher) Close() error { return nil }
