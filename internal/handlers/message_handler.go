package handlers

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
	"github.com/thereayou/cipherchat/internal/cache"
	"github.com/thereayou/cipherchat/internal/handlers/dto"
	"github.com/thereayou/cipherchat/internal/services"
	"github.com/thereayou/cipherchat/internal/websocket"
)

// MessageHandler разбирает кадры WebSocket клиента
type MessageHandler struct {
	store    services.DocumentStore
	secrets  cache.Factory
	messages *services.MessageService
}

func NewMessageHandler(store services.DocumentStore, secrets cache.Factory, messages *services.MessageService) *MessageHandler {
	return &MessageHandler{store: store, secrets: secrets, messages: messages}
}

type roomPayload struct {
	Name   string  `json:"name"`
	Secret *string `json:"secret"`
}

type messageRef struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

type filterPayload struct {
	Query string `json:"q"`
}

func decode(msg *websocket.Message, v interface{}) error {
	if len(msg.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return websocket.ErrInvalidMessage
	}
	return nil
}

func (h *MessageHandler) HandleMessage(client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypeRoomJoin:
		return h.handleRoomJoin(client, msg)

	case websocket.TypeRoomCreate:
		return h.handleRoomCreate(client, msg)

	case websocket.TypeRoomLeave:
		client.Leave()
		return nil

	case websocket.TypeRoomDelete:
		return h.handleRoomDelete(client, msg)

	case websocket.TypeRoomsFilter:
		var payload filterPayload
		if err := decode(msg, &payload); err != nil {
			return err
		}
		return client.SendMessage(websocket.TypeRooms, "", dto.NewRoomList(client.FilterRooms(payload.Query)))

	case websocket.TypeMessage:
		return h.handleTextMessage(client, msg)

	case websocket.TypeMessageEdit:
		return h.handleMessageEdit(client, msg)

	case websocket.TypeMessageDelete:
		return h.handleMessageDelete(client, msg)

	default:
		logrus.WithField("type", string(msg.Type)).Debug("Unknown message type")
		return websocket.ErrInvalidMessage
	}
}

func (h *MessageHandler) gate(client *websocket.Client) *services.AccessGate {
	return services.NewAccessGate(h.store, h.secrets(client.Session.UID))
}

func (h *MessageHandler) handleRoomJoin(client *websocket.Client, msg *websocket.Message) error {
	if msg.RoomID == "" {
		return websocket.ErrInvalidMessage
	}
	var payload roomPayload
	if err := decode(msg, &payload); err != nil {
		return err
	}

	room, err := h.gate(client).LookupRoom(client.Context(), msg.RoomID)
	if err != nil {
		return err
	}
	if err := client.Enter(room, payload.Secret); err != nil {
		return err
	}
	return client.SendMessage(websocket.TypeRoomJoined, room.ID, dto.NewRoomResponse(room))
}

func (h *MessageHandler) handleRoomCreate(client *websocket.Client, msg *websocket.Message) error {
	var payload roomPayload
	if err := decode(msg, &payload); err != nil {
		return err
	}

	room, err := client.CreateRoom(payload.Name, payload.Secret)
	if err != nil {
		return err
	}
	return client.SendMessage(websocket.TypeRoomJoined, room.ID, dto.NewRoomResponse(room))
}

func (h *MessageHandler) handleRoomDelete(client *websocket.Client, msg *websocket.Message) error {
	if msg.RoomID == "" {
		return websocket.ErrInvalidMessage
	}

	gate := h.gate(client)
	room, err := gate.LookupRoom(client.Context(), msg.RoomID)
	if err != nil {
		return err
	}
	if err := gate.DeleteRoom(client.Context(), client.Session, room); err != nil {
		return err
	}

	if current, ok := client.Current(); ok && current.ID == room.ID {
		client.Leave()
	}
	return nil
}

// handleTextMessage отправляет в комнату, открытую у клиента. Новая лента
// придет через подписку, отдельного ответа нет
func (h *MessageHandler) handleTextMessage(client *websocket.Client, msg *websocket.Message) error {
	room, ok := client.Current()
	if !ok || room.ID == "" {
		return services.ErrNoActiveRoom
	}

	var payload dto.MessagePayload
	if err := decode(msg, &payload); err != nil {
		return err
	}

	_, err := h.messages.Send(client.Context(), client.Session, room, payload.Text, payload.IsCode)
	return err
}

func (h *MessageHandler) handleMessageEdit(client *websocket.Client, msg *websocket.Message) error {
	var payload messageRef
	if err := decode(msg, &payload); err != nil {
		return err
	}
	if payload.MessageID == "" {
		return websocket.ErrInvalidMessage
	}

	message, err := h.messages.Get(client.Context(), payload.MessageID)
	if err != nil {
		return err
	}
	_, err = h.messages.Edit(client.Context(), client.Session, message, payload.Text)
	return err
}

func (h *MessageHandler) handleMessageDelete(client *websocket.Client, msg *websocket.Message) error {
	var payload messageRef
	if err := decode(msg, &payload); err != nil {
		return err
	}
	if payload.MessageID == "" {
		return websocket.ErrInvalidMessage
	}

	message, err := h.messages.Get(client.Context(), payload.MessageID)
	if err != nil {
		return err
	}
	return h.messages.Delete(client.Context(), client.Session, message)
}
