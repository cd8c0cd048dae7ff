package services

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/thereayou/cipherchat/internal/models"
)

// ChatSession выбор комнаты одним пользователем: вход через AccessGate
// и переключение MessageSync на выбранную комнату.
type ChatSession struct {
	viewer models.Session
	gate   *AccessGate
	sync   *MessageSync
	cache  SecretCache
	log    *logrus.Entry

	mu      sync.Mutex
	current *models.Room
}

func NewChatSession(viewer models.Session, gate *AccessGate, sync *MessageSync, cache SecretCache) *ChatSession {
	return &ChatSession{
		viewer: viewer,
		gate:   gate,
		sync:   sync,
		cache:  cache,
		log:    logrus.WithFields(logrus.Fields{"component": "chat_session", "uid": viewer.UID}),
	}
}

func (c *ChatSession) Viewer() models.Session {
	return c.viewer
}

// Current выбранная комната. Во время создания это еще несохраненная комната без id.
func (c *ChatSession) Current() (models.Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return models.Room{}, false
	}
	return *c.current, true
}

// Enter при отказе оставляет текущую комнату открытой
func (c *ChatSession) Enter(ctx context.Context, room models.Room, supplied *string) (<-chan Timeline, error) {
	if _, err := c.gate.RequestEntry(ctx, c.viewer, room, supplied); err != nil {
		return nil, err
	}

	timelines, err := c.sync.Open(ctx, room)
	if err != nil {
		c.setCurrent(nil)
		return nil, err
	}

	c.setCurrent(&room)
	return timelines, nil
}

// CreateAndEnter выбирает новую комнату сразу. Если запись не удалась,
// возвращается прежний выбор.
func (c *ChatSession) CreateAndEnter(ctx context.Context, name string, secret *string) (models.Room, <-chan Timeline, error) {
	c.mu.Lock()
	previous := c.current
	c.current = &models.Room{Name: name, CreatedBy: c.viewer.Identity(), CreatorID: c.viewer.UID}
	c.mu.Unlock()

	room, err := c.gate.CreateRoom(ctx, c.viewer, name, secret)
	if err != nil {
		c.setCurrent(previous)
		return models.Room{}, nil, err
	}

	timelines, err := c.sync.Open(ctx, room)
	if err != nil {
		c.setCurrent(nil)
		return room, nil, err
	}

	c.setCurrent(&room)
	return room, timelines, nil
}

func (c *ChatSession) Leave() {
	c.sync.Close()
	c.setCurrent(nil)
}

// SignOut забывает все секреты комнат и закрывает ленту
func (c *ChatSession) SignOut(ctx context.Context) error {
	c.Leave()
	if err := c.cache.Clear(ctx); err != nil {
		c.log.WithError(err).Error("Failed to clear secret cache")
		return backendError("clear secret cache", err)
	}
	return nil
}

func (c *ChatSession) setCurrent(room *models.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = room
}
