package websocket

import (
	"encoding/json"
	"time"
)

// MessageType определяет типы кадров
type MessageType string

const (
	// Системные типы
	TypePing  MessageType = "ping"
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"

	// Типы сообщений
	TypeMessage       MessageType = "message"
	TypeMessageEdit   MessageType = "message_edit"
	TypeMessageDelete MessageType = "message_delete"
	TypeTimeline      MessageType = "timeline"

	// Типы комнат
	TypeRooms       MessageType = "rooms"
	TypeRoomsFilter MessageType = "rooms_filter"
	TypeRoomCreate  MessageType = "room_create"
	TypeRoomJoin    MessageType = "room_join"
	TypeRoomJoined  MessageType = "room_joined"
	TypeRoomLeave   MessageType = "room_leave"
	TypeRoomDelete  MessageType = "room_delete"
)

type Message struct {
	Type      MessageType     `json:"type"`
	RoomID    string          `json:"room_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ErrorPayload тело кадра TypeError
type ErrorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
