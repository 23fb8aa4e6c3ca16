package domain

import "time"

// EventType outbound event type
type EventType string

const (
	// EventMessageHistory 加入後送一次
	EventMessageHistory EventType = "message_history"
	// EventChatMessage 每次成功送出
	EventChatMessage EventType = "chat_message"
	// EventError 只送給發起的連線
	EventError EventType = "error"
)

// client 看得到的錯誤訊息, 不帶內部細節
const (
	ErrTextInvalidFormat = "Invalid message format."
	ErrTextSaveFailed    = "Failed to save or send message. You might not be authorized for this chat."
)

// WSRequest inbound {"message": "..."}, 其他欄位忽略
type WSRequest struct {
	Message *string `json:"message" validate:"required"`
}

// MessageView 單則訊息, is_self 依接收者計算
type MessageView struct {
	ID             int64  `json:"id"`
	SenderID       int64  `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	Message        string `json:"message"`
	Timestamp      string `json:"timestamp"`
	IsSelf         bool   `json:"is_self"`
	RoomName       string `json:"room_name"`
}

// HistoryEvent message_history
type HistoryEvent struct {
	Type     EventType     `json:"type"`
	Messages []MessageView `json:"messages"`
}

// ChatMessageEvent chat_message
type ChatMessageEvent struct {
	Type EventType `json:"type"`
	MessageView
}

// ErrorEvent error
type ErrorEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

// Broadcast 廣播內容, 不含 is_self; 透過 redis 傳遞時也用這個結構
type Broadcast struct {
	ID             int64     `json:"id"`
	SenderID       int64     `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	Message        string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
	RoomName       string    `json:"room_name"`
}

// NewBroadcast -
func NewBroadcast(m ChatMessage, senderUsername string) Broadcast {
	return Broadcast{
		ID:             m.ID,
		SenderID:       m.SenderID,
		SenderUsername: senderUsername,
		Message:        m.MessageContent,
		Timestamp:      m.Timestamp,
		RoomName:       m.RoomIdentifier,
	}
}

// ViewFor is_self = sender_id == recipient
func (b Broadcast) ViewFor(recipientID int64) MessageView {
	return MessageView{
		ID:             b.ID,
		SenderID:       b.SenderID,
		SenderUsername: b.SenderUsername,
		Message:        b.Message,
		Timestamp:      FormatTimestamp(b.Timestamp),
		IsSelf:         b.SenderID == recipientID,
		RoomName:       b.RoomName,
	}
}

// FormatTimestamp ISO-8601
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// NewChatMessageEvent -
func NewChatMessageEvent(b Broadcast, recipientID int64) ChatMessageEvent {
	return ChatMessageEvent{Type: EventChatMessage, MessageView: b.ViewFor(recipientID)}
}

// NewErrorEvent -
func NewErrorEvent(text string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: text}
}
