package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/thereayou/cipherchat/internal/models"
)

const (
	CollectionRooms    = "rooms"
	CollectionMessages = "messages"
)

var ErrDocumentNotFound = errors.New("document not found")

// Filter проверка поля документа на равенство
type Filter struct {
	Field string
	Value any
}

type Query struct {
	Collection string
	Where      []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// MessageTopic тема уведомлений о сообщениях одной комнаты
func MessageTopic(roomID string) string {
	return CollectionMessages + ":" + roomID
}

// Topic тема, на которую подписывается живой запрос. Запрос сообщений
// с фильтром по комнате слушает только свою комнату.
func Topic(q Query) string {
	if q.Collection == CollectionMessages {
		for _, f := range q.Where {
			if f.Field == models.MessageFieldRoomID {
				return MessageTopic(fmt.Sprint(f.Value))
			}
		}
	}
	return q.Collection
}

// WriteTopics темы, которые будит запись документа с такими полями.
// Коллекция уведомляется всегда, сообщение еще и в теме своей комнаты.
func WriteTopics(collection string, fields map[string]any) []string {
	topics := []string{collection}
	if collection != CollectionMessages {
		return topics
	}
	if roomID, ok := fields[models.MessageFieldRoomID]; ok && roomID != nil {
		topics = append(topics, MessageTopic(fmt.Sprint(roomID)))
	}
	return topics
}

// Snapshot одна доставка живого запроса: весь текущий результат
// или ошибка, которая завершила подписку
type Snapshot struct {
	Docs []models.Document
	Err  error
}

// Subscription отменяемый живой запрос. Changes закрывается после
// Unsubscribe или отмены контекста
type Subscription interface {
	Changes() <-chan Snapshot
	Unsubscribe()
}

// DocumentStore хранилище документов с уведомлениями об изменениях
type DocumentStore interface {
	// Create сохраняет документ под новым id и проставляет серверный createdAt
	Create(ctx context.Context, collection string, fields map[string]any) (models.Document, error)
	Get(ctx context.Context, collection, id string) (models.Document, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, q Query) ([]models.Document, error)
	Subscribe(ctx context.Context, q Query) (Subscription, error)
	// ArrayUnion атомарно добавляет в список значения, которых там еще нет
	ArrayUnion(ctx context.Context, collection, id, field string, values ...string) error
}

// SecretCache помнит секреты комнат, которые вводил текущий пользователь
type SecretCache interface {
	Get(ctx context.Context, roomID string) (string, bool, error)
	Set(ctx context.Context, roomID, secret string) error
	Delete(ctx context.Context, roomID string) error
	Clear(ctx context.Context) error
}
