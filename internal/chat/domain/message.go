package domain

import "time"

// ChatMessage 聊天訊息, room_identifier 建立後不可變
type ChatMessage struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement" bson:"_id" json:"id"`
	BookingID      *int64    `gorm:"column:booking_id;index" bson:"booking_id,omitempty" json:"booking_id,omitempty"`
	SenderID       int64     `gorm:"column:sender_id;not null;index" bson:"sender_id" json:"sender_id"`
	MessageContent string    `gorm:"column:message_content;type:text;not null" bson:"message_content" json:"message"`
	Timestamp      time.Time `gorm:"column:timestamp;not null;index" bson:"timestamp" json:"timestamp"`
	IsRead         bool      `gorm:"column:is_read;not null;default:false" bson:"is_read" json:"is_read"`
	RoomIdentifier string    `gorm:"column:room_identifier;size:255;not null;index" bson:"room_identifier" json:"room_name"`
}

// TableName gorm table
func (ChatMessage) TableName() string {
	return "api_chatmessage"
}

// MessageCreatedEvent 訊息儲存成功後送到 broker
type MessageCreatedEvent struct {
	ID        int64     `json:"id"`
	RoomName  string    `json:"room_name"`
	BookingID *int64    `json:"booking_id,omitempty"`
	SenderID  int64     `json:"sender_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessageCreatedEvent -
func NewMessageCreatedEvent(m ChatMessage) MessageCreatedEvent {
	return MessageCreatedEvent{
		ID:        m.ID,
		RoomName:  m.RoomIdentifier,
		BookingID: m.BookingID,
		SenderID:  m.SenderID,
		Message:   m.MessageContent,
		Timestamp: m.Timestamp,
	}
}
