package domain

import (
	"fmt"
	"regexp"
	"strconv"
)

// RoomKind 聊天室種類
type RoomKind int

const (
	// RoomUnrecognized 無法解析, 授權一律拒絕
	RoomUnrecognized RoomKind = iota
	// RoomBooking booking_<id>
	RoomBooking
	// RoomDirect chat_user_<a>_user_<b>
	RoomDirect
)

func (k RoomKind) String() string {
	switch k {
	case RoomBooking:
		return "booking"
	case RoomDirect:
		return "direct"
	default:
		return "unrecognized"
	}
}

var (
	bookingRoomPattern = regexp.MustCompile(`^booking_(\d+)$`)
	directRoomPattern  = regexp.MustCompile(`^chat_user_(\d+)_user_(\d+)$`)
	// RoomNamePattern 連線路徑允許的字元
	RoomNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// RoomDescriptor parsed room name. Name 保留原始字串
type RoomDescriptor struct {
	Kind      RoomKind
	Name      string
	BookingID int64
	// UserA, UserB 依照名稱中的順序保留
	UserA int64
	UserB int64
}

// ParseRoom 純函式, 任何無法解析的輸入都回傳 RoomUnrecognized
func ParseRoom(name string) RoomDescriptor {
	desc := RoomDescriptor{Kind: RoomUnrecognized, Name: name}

	if m := bookingRoomPattern.FindStringSubmatch(name); m != nil {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return desc
		}
		desc.Kind = RoomBooking
		desc.BookingID = id
		return desc
	}

	if m := directRoomPattern.FindStringSubmatch(name); m != nil {
		a, errA := strconv.ParseInt(m[1], 10, 64)
		b, errB := strconv.ParseInt(m[2], 10, 64)
		if errA != nil || errB != nil {
			return desc
		}
		desc.Kind = RoomDirect
		desc.UserA = a
		desc.UserB = b
	}

	return desc
}

// IsMember direct room 成員判斷, 順序無關
func (d RoomDescriptor) IsMember(userID int64) bool {
	return d.Kind == RoomDirect && (userID == d.UserA || userID == d.UserB)
}

// GroupName broadcaster group key
func (d RoomDescriptor) GroupName() string {
	return d.Name
}

// BookingRoomName build booking_<id>
func BookingRoomName(id int64) string {
	return fmt.Sprintf("booking_%d", id)
}

// DirectRoomName build chat_user_<a>_user_<b>
func DirectRoomName(a, b int64) string {
	return fmt.Sprintf("chat_user_%d_user_%d", a, b)
}
