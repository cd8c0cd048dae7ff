package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/thereayou/cipherchat/internal/crypto"
	"github.com/thereayou/cipherchat/internal/models"
)

// MessageService отправляет, правит и удаляет сообщения.
// Текст уходит в хранилище только зашифрованным.
type MessageService struct {
	store DocumentStore
	keys  crypto.KeyProvider
	opts  options
}

func NewMessageService(store DocumentStore, keys crypto.KeyProvider, opts ...Option) *MessageService {
	return &MessageService{
		store: store,
		keys:  keys,
		opts:  buildOptions("messages", opts),
	}
}

func (s *MessageService) Policy() EditPolicy {
	return s.opts.policy
}

func (s *MessageService) Send(ctx context.Context, author models.Session, room models.Room, text string, isCode bool) (models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, &ValidationError{Field: "text", Err: ErrEmptyMessage}
	}

	cipherText, iv, err := s.seal(room.ID, text)
	if err != nil {
		return models.Message{}, err
	}

	doc, err := s.store.Create(ctx, CollectionMessages, map[string]any{
		models.MessageFieldText:   cipherText,
		models.MessageFieldIV:     iv,
		models.MessageFieldName:   author.DisplayName,
		models.MessageFieldAvatar: author.PhotoURL,
		models.MessageFieldUID:    author.UID,
		models.MessageFieldRoomID: room.ID,
		models.MessageFieldIsCode: isCode,
	})
	if err != nil {
		s.opts.log.WithError(err).WithFields(logrus.Fields{
			"room_id": room.ID,
			"uid":     author.UID,
		}).Error("Failed to send message")
		return models.Message{}, backendError("send message", err)
	}

	msg, err := models.DecodeMessage(doc)
	if err != nil {
		return models.Message{}, backendError("send message", err)
	}
	return msg, nil
}

// Edit перешифровывает текст новым iv и проставляет editedAt
func (s *MessageService) Edit(ctx context.Context, actor models.Session, msg models.Message, text string) (models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, &ValidationError{Field: "text", Err: ErrEmptyMessage}
	}

	now := s.opts.now()
	if err := s.opts.policy.AuthorizeEdit(msg, actor.UID, now); err != nil {
		return models.Message{}, err
	}

	cipherText, iv, err := s.seal(msg.RoomID, text)
	if err != nil {
		return models.Message{}, err
	}

	editedAt := now.UTC()
	if !editedAt.After(*msg.CreatedAt) {
		editedAt = msg.CreatedAt.Add(time.Millisecond)
	}

	err = s.store.Update(ctx, CollectionMessages, msg.ID, map[string]any{
		models.MessageFieldText:     cipherText,
		models.MessageFieldIV:       iv,
		models.MessageFieldEditedAt: editedAt,
	})
	if errors.Is(err, ErrDocumentNotFound) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		s.opts.log.WithError(err).WithField("message_id", msg.ID).Error("Failed to edit message")
		return models.Message{}, backendError("edit message", err)
	}

	msg.CipherText = cipherText
	msg.IV = iv
	msg.EditedAt = &editedAt
	return msg, nil
}

func (s *MessageService) Delete(ctx context.Context, actor models.Session, msg models.Message) error {
	if err := s.opts.policy.AuthorizeDelete(msg, actor.UID); err != nil {
		return err
	}

	err := s.store.Delete(ctx, CollectionMessages, msg.ID)
	if errors.Is(err, ErrDocumentNotFound) {
		return ErrMessageNotFound
	}
	if err != nil {
		s.opts.log.WithError(err).WithField("message_id", msg.ID).Error("Failed to delete message")
		return backendError("delete message", err)
	}
	return nil
}

func (s *MessageService) Get(ctx context.Context, id string) (models.Message, error) {
	doc, err := s.store.Get(ctx, CollectionMessages, id)
	if errors.Is(err, ErrDocumentNotFound) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, backendError("get message", err)
	}

	msg, err := models.DecodeMessage(doc)
	if err != nil {
		return models.Message{}, backendError("get message", err)
	}
	return msg, nil
}

// Open расшифровывает сообщение ключом его комнаты
func (s *MessageService) Open(msg models.Message) (string, error) {
	key, err := s.keys.KeyFor(msg.RoomID)
	if err != nil {
		return "", backendError("resolve key", err)
	}
	return crypto.Decrypt(msg.CipherText, key, msg.IV)
}

func (s *MessageService) seal(roomID, text string) (string, string, error) {
	key, err := s.keys.KeyFor(roomID)
	if err != nil {
		return "", "", backendError("resolve key", err)
	}
	cipherText, iv, err := crypto.Encrypt(text, key)
	if err != nil {
		return "", "", backendError("encrypt", err)
	}
	return cipherText, iv, nil
}
