package services

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/thereayou/cipherchat/internal/models"
)

// FilterRooms оставляет комнаты, в имени которых есть term без учета регистра
func FilterRooms(rooms []models.Room, term string) []models.Room {
	out := make([]models.Room, 0, len(rooms))
	if term == "" {
		return append(out, rooms...)
	}

	needle := strings.ToLower(term)
	for _, r := range rooms {
		if strings.Contains(strings.ToLower(r.Name), needle) {
			out = append(out, r)
		}
	}
	return out
}

// ListRooms разовое чтение списка комнат, новые сверху
func ListRooms(ctx context.Context, store DocumentStore, term string) ([]models.Room, error) {
	docs, err := store.Query(ctx, Query{
		Collection: CollectionRooms,
		OrderBy:    models.RoomFieldCreatedAt,
		Descending: true,
	})
	if err != nil {
		return nil, backendError("list rooms", err)
	}

	rooms := make([]models.Room, 0, len(docs))
	for _, doc := range docs {
		room, err := models.DecodeRoom(doc)
		if err != nil {
			continue
		}
		rooms = append(rooms, room)
	}
	return FilterRooms(rooms, term), nil
}

// RoomDirectory живой список всех комнат, новые сверху.
// Фильтр каждый раз пересчитывается по полному списку.
type RoomDirectory struct {
	store DocumentStore
	cache SecretCache
	log   *logrus.Entry

	opMu sync.Mutex

	mu     sync.RWMutex
	all    []models.Room
	filter string
	err    error
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRoomDirectory(store DocumentStore, cache SecretCache, opts ...Option) *RoomDirectory {
	o := buildOptions("room_directory", opts)
	return &RoomDirectory{
		store: store,
		cache: cache,
		log:   o.log,
	}
}

// Open подписывается на комнаты. Каждое изменение приходит уже отфильтрованным.
func (d *RoomDirectory) Open(ctx context.Context) (<-chan []models.Room, error) {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	d.teardown()

	subCtx, cancel := context.WithCancel(ctx)
	sub, err := d.store.Subscribe(subCtx, Query{
		Collection: CollectionRooms,
		OrderBy:    models.RoomFieldCreatedAt,
		Descending: true,
	})
	if err != nil {
		cancel()
		d.log.WithError(err).Error("Failed to subscribe to rooms")
		return nil, backendError("subscribe rooms", err)
	}

	out := make(chan []models.Room)
	done := make(chan struct{})

	d.mu.Lock()
	d.cancel = cancel
	d.done = done
	d.err = nil
	d.mu.Unlock()

	go d.run(subCtx, sub, out, done)
	return out, nil
}

func (d *RoomDirectory) Close() {
	d.opMu.Lock()
	defer d.opMu.Unlock()
	d.teardown()
}

// SetFilter меняет фильтр и возвращает отфильтрованный текущий список
func (d *RoomDirectory) SetFilter(term string) []models.Room {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filter = term
	return FilterRooms(d.all, term)
}

func (d *RoomDirectory) Rooms() []models.Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return FilterRooms(d.all, d.filter)
}

func (d *RoomDirectory) All() []models.Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]models.Room(nil), d.all...)
}

// Err ошибка, которой закончилась подписка
func (d *RoomDirectory) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.err
}

func (d *RoomDirectory) teardown() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (d *RoomDirectory) run(ctx context.Context, sub Subscription, out chan<- []models.Room, done chan struct{}) {
	defer close(done)
	defer close(out)
	defer sub.Unsubscribe()

	first := true
	for {
		var snap Snapshot
		select {
		case <-ctx.Done():
			return
		case s, ok := <-sub.Changes():
			if !ok {
				return
			}
			snap = s
		}

		if snap.Err != nil {
			d.log.WithError(snap.Err).Error("Room subscription failed")
			d.mu.Lock()
			d.err = backendError("room subscription", snap.Err)
			d.mu.Unlock()
			return
		}

		rooms := make([]models.Room, 0, len(snap.Docs))
		for _, doc := range snap.Docs {
			room, err := models.DecodeRoom(doc)
			if err != nil {
				d.log.WithError(err).WithField("room_id", doc.ID).Warn("Skipping malformed room")
				continue
			}
			rooms = append(rooms, room)
		}

		d.mu.Lock()
		removed := make([]string, 0)
		if !first {
			removed = missingRooms(d.all, rooms)
		}
		d.all = rooms
		filtered := FilterRooms(rooms, d.filter)
		d.mu.Unlock()
		first = false

		for _, id := range removed {
			if d.cache == nil {
				break
			}
			if err := d.cache.Delete(ctx, id); err != nil {
				d.log.WithError(err).WithField("room_id", id).Warn("Failed to drop cached secret")
			}
		}

		select {
		case out <- filtered:
		case <-ctx.Done():
			return
		}
	}
}

func missingRooms(before, after []models.Room) []string {
	present := make(map[string]bool, len(after))
	for _, r := range after {
		present[r.ID] = true
	}
	out := make([]string, 0)
	for _, r := range before {
		if !present[r.ID] {
			out = append(out, r.ID)
		}
	}
	return out
}
