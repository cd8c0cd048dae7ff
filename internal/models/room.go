package models

import "time"

// Поля документа комнаты
const (
	RoomFieldName      = "name"
	RoomFieldCreatedBy = "createdBy"
	RoomFieldCreatorID = "createdByUid"
	RoomFieldCreatedAt = "createdAt"
	RoomFieldPassKey   = "passKey"
)

type Room struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedBy string     `json:"created_by"`
	CreatorID string     `json:"creator_uid,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Secret    *string    `json:"-"`
}

func (r Room) HasSecret() bool {
	return r.Secret != nil && *r.Secret != ""
}

// DecodeRoom проверяет сырой документ комнаты
func DecodeRoom(doc Document) (Room, error) {
	name, err := doc.requiredString(RoomFieldName)
	if err != nil {
		return Room{}, err
	}
	createdBy, err := doc.optionalString(RoomFieldCreatedBy)
	if err != nil {
		return Room{}, err
	}
	creatorID, err := doc.optionalString(RoomFieldCreatorID)
	if err != nil {
		return Room{}, err
	}
	createdAt, err := doc.optionalTime(RoomFieldCreatedAt)
	if err != nil {
		return Room{}, err
	}
	passKey, err := doc.optionalString(RoomFieldPassKey)
	if err != nil {
		return Room{}, err
	}

	room := Room{
		ID:        doc.ID,
		Name:      name,
		CreatedBy: createdBy,
		CreatorID: creatorID,
		CreatedAt: createdAt,
	}
	if passKey != "" {
		room.Secret = &passKey
	}
	return room, nil
}
