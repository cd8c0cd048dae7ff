package models

import (
	"time"
)

// Поля документа сообщения
const (
	MessageFieldText      = "text"
	MessageFieldIV        = "iv"
	MessageFieldName      = "name"
	MessageFieldAvatar    = "avatar"
	MessageFieldUID       = "uid"
	MessageFieldRoomID    = "roomId"
	MessageFieldCreatedAt = "createdAt"
	MessageFieldEditedAt  = "editedAt"
	MessageFieldReadBy    = "readBy"
	MessageFieldIsCode    = "isCode"
)

type Author struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Message сохраненное сообщение. CipherText и IV расшифровываются только вместе.
// CreatedAt == nil пока сервер не подтвердил запись
type Message struct {
	ID         string     `json:"id"`
	RoomID     string     `json:"room_id"`
	Author     Author     `json:"author"`
	CipherText string     `json:"-"`
	IV         string     `json:"-"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	EditedAt   *time.Time `json:"edited_at,omitempty"`
	ReadBy     []string   `json:"read_by"`
	IsCode     bool       `json:"is_code"`
}

func (m Message) ReadByUser(uid string) bool {
	for _, r := range m.ReadBy {
		if r == uid {
			return true
		}
	}
	return false
}

// DecodeMessage проверяет сырой документ сообщения
func DecodeMessage(doc Document) (Message, error) {
	var (
		msg Message
		err error
	)
	msg.ID = doc.ID

	if msg.Author.UID, err = doc.requiredString(MessageFieldUID); err != nil {
		return Message{}, err
	}
	if msg.RoomID, err = doc.requiredString(MessageFieldRoomID); err != nil {
		return Message{}, err
	}
	if msg.CipherText, err = doc.requiredString(MessageFieldText); err != nil {
		return Message{}, err
	}
	if msg.IV, err = doc.requiredString(MessageFieldIV); err != nil {
		return Message{}, err
	}
	if msg.Author.Name, err = doc.optionalString(MessageFieldName); err != nil {
		return Message{}, err
	}
	if msg.Author.AvatarURL, err = doc.optionalString(MessageFieldAvatar); err != nil {
		return Message{}, err
	}
	if msg.CreatedAt, err = doc.optionalTime(MessageFieldCreatedAt); err != nil {
		return Message{}, err
	}
	if msg.EditedAt, err = doc.optionalTime(MessageFieldEditedAt); err != nil {
		return Message{}, err
	}
	if msg.ReadBy, err = doc.optionalStrings(MessageFieldReadBy); err != nil {
		return Message{}, err
	}
	if msg.IsCode, err = doc.optionalBool(MessageFieldIsCode); err != nil {
		return Message{}, err
	}

	if msg.EditedAt != nil && msg.CreatedAt != nil && !msg.EditedAt.After(*msg.CreatedAt) {
		return Message{}, &MalformedDocumentError{ID: doc.ID, Field: MessageFieldEditedAt, Reason: "not after createdAt"}
	}
	return msg, nil
}
