package services

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/thereayou/cipherchat/internal/models"
)

type Decision int

const (
	Denied Decision = iota
	Granted
)

func (d Decision) String() string {
	if d == Granted {
		return "granted"
	}
	return "denied"
}

// AccessGate создает комнаты и пускает в них. Секрет сравнивается
// строго побайтно, без нормализации.
type AccessGate struct {
	store DocumentStore
	cache SecretCache
	log   *logrus.Entry
}

func NewAccessGate(store DocumentStore, cache SecretCache) *AccessGate {
	return &AccessGate{
		store: store,
		cache: cache,
		log:   logrus.WithField("component", "access_gate"),
	}
}

// CreateRoom сохраняет имя как есть, пробелы обрезаются только для проверки на пустоту.
// Пустой секрет означает открытую комнату.
func (g *AccessGate) CreateRoom(ctx context.Context, creator models.Session, name string, secret *string) (models.Room, error) {
	if strings.TrimSpace(name) == "" {
		return models.Room{}, &ValidationError{Field: "name", Err: ErrEmptyRoomName}
	}

	fields := map[string]any{
		models.RoomFieldName:      name,
		models.RoomFieldCreatedBy: creator.Identity(),
		models.RoomFieldCreatorID: creator.UID,
	}
	protected := secret != nil && *secret != ""
	if protected {
		fields[models.RoomFieldPassKey] = *secret
	}

	doc, err := g.store.Create(ctx, CollectionRooms, fields)
	if err != nil {
		g.log.WithError(err).WithField("uid", creator.UID).Error("Failed to create room")
		return models.Room{}, backendError("create room", err)
	}

	room, err := models.DecodeRoom(doc)
	if err != nil {
		return models.Room{}, backendError("create room", err)
	}

	// создатель входит повторно без запроса секрета
	if protected {
		if err := g.cache.Set(ctx, room.ID, *secret); err != nil {
			g.log.WithError(err).WithField("room_id", room.ID).Warn("Failed to cache room secret")
		}
	}

	g.log.WithFields(logrus.Fields{
		"room_id": room.ID,
		"uid":     creator.UID,
	}).Info("Room created")
	return room, nil
}

// LookupRoom читает текущее состояние комнаты
func (g *AccessGate) LookupRoom(ctx context.Context, roomID string) (models.Room, error) {
	doc, err := g.store.Get(ctx, CollectionRooms, roomID)
	if errors.Is(err, ErrDocumentNotFound) {
		return models.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, backendError("get room", err)
	}

	room, err := models.DecodeRoom(doc)
	if err != nil {
		return models.Room{}, backendError("get room", err)
	}
	return room, nil
}

// RequestEntry всегда перечитывает комнату: закешированный секрет сравнивается
// с текущим секретом комнаты. При отказе ничего не меняется, кроме сброса
// устаревшей записи кеша.
func (g *AccessGate) RequestEntry(ctx context.Context, viewer models.Session, room models.Room, supplied *string) (Decision, error) {
	log := g.log.WithFields(logrus.Fields{
		"room_id": room.ID,
		"uid":     viewer.UID,
	})

	current, err := g.LookupRoom(ctx, room.ID)
	if errors.Is(err, ErrRoomNotFound) {
		g.forget(ctx, room.ID)
		return Denied, err
	}
	if err != nil {
		log.WithError(err).Error("Failed to read room")
		return Denied, err
	}

	if !current.HasSecret() {
		return Granted, nil
	}
	secret := *current.Secret

	if supplied != nil {
		if *supplied != secret {
			log.Debug("Wrong room secret")
			return Denied, &AuthorizationError{Err: ErrWrongSecret}
		}
		if err := g.cache.Set(ctx, current.ID, secret); err != nil {
			log.WithError(err).Warn("Failed to cache room secret")
		}
		return Granted, nil
	}

	cached, ok, err := g.cache.Get(ctx, current.ID)
	if err != nil {
		log.WithError(err).Error("Failed to read secret cache")
		return Denied, backendError("read secret cache", err)
	}
	if !ok {
		return Denied, &AuthorizationError{Err: ErrSecretRequired}
	}
	if cached != secret {
		// секрет комнаты сменился
		g.forget(ctx, current.ID)
		return Denied, &AuthorizationError{Err: ErrSecretRequired}
	}
	return Granted, nil
}

// IsCreator сверяет uid создателя. У старых комнат uid нет, для них
// подходит совпадение имени или email с createdBy.
func IsCreator(actor models.Session, room models.Room) bool {
	if room.CreatorID != "" {
		return actor.UID != "" && actor.UID == room.CreatorID
	}
	if room.CreatedBy == "" {
		return false
	}
	return actor.DisplayName == room.CreatedBy || actor.Email == room.CreatedBy
}

// DeleteRoom доступен только создателю комнаты
func (g *AccessGate) DeleteRoom(ctx context.Context, actor models.Session, room models.Room) error {
	if !IsCreator(actor, room) {
		return &AuthorizationError{Err: ErrNotCreator}
	}

	err := g.store.Delete(ctx, CollectionRooms, room.ID)
	if errors.Is(err, ErrDocumentNotFound) {
		g.forget(ctx, room.ID)
		return ErrRoomNotFound
	}
	if err != nil {
		g.log.WithError(err).WithField("room_id", room.ID).Error("Failed to delete room")
		return backendError("delete room", err)
	}

	g.forget(ctx, room.ID)
	g.log.WithFields(logrus.Fields{
		"room_id": room.ID,
		"uid":     actor.UID,
	}).Info("Room deleted")
	return nil
}

func (g *AccessGate) forget(ctx context.Context, roomID string) {
	if err := g.cache.Delete(ctx, roomID); err != nil {
		g.log.WithError(err).WithField("room_id", roomID).Warn("Failed to drop cached secret")
	}
}
