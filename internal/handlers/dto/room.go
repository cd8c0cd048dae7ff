package dto

import "github.com/thereayou/cipherchat/internal/models"

type CreateRoomRequest struct {
	Name   string  `json:"name"`
	Secret *string `json:"secret"`
}

type EnterRoomRequest struct {
	Secret *string `json:"secret"`
}

// RoomResponse комната без секрета
type RoomResponse struct {
	models.Room
	HasSecret bool `json:"has_secret"`
}

func NewRoomResponse(room models.Room) RoomResponse {
	return RoomResponse{Room: room, HasSecret: room.HasSecret()}
}

func NewRoomList(rooms []models.Room) []RoomResponse {
	out := make([]RoomResponse, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, NewRoomResponse(r))
	}
	return out
}
