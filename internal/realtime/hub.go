package realtime

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/thereayou/cipherchat/internal/models"
	"github.com/thereayou/cipherchat/internal/services"
)

// LoadFunc перечитывает текущий результат запроса подписки
type LoadFunc func(ctx context.Context) ([]models.Document, error)

// Notifier сообщает подписчикам темы, что данные изменились
type Notifier interface {
	Notify(ctx context.Context, topic string) error
}

// Hub раздает уведомления об изменениях подпискам по темам.
// Каждая подписка живет в своей горутине: первая загрузка, затем
// перезагрузка на каждое уведомление. Уведомления, пришедшие во время
// загрузки, склеиваются в одну перезагрузку.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[uint64]*Subscription
	nextID uint64
	closed bool
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		topics: make(map[string]map[uint64]*Subscription),
	}
}

// Subscribe регистрирует подписку на тему и сразу запускает первую загрузку
func (h *Hub) Subscribe(ctx context.Context, topic string, load LoadFunc) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	h.nextID++
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		id:     h.nextID,
		topic:  topic,
		hub:    h,
		load:   load,
		out:    make(chan services.Snapshot),
		wake:   make(chan struct{}, 1),
		ctx:    subCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[uint64]*Subscription)
	}
	h.topics[topic][sub.id] = sub

	logrus.WithFields(logrus.Fields{
		"component": "hub",
		"topic":     topic,
		"sub_id":    sub.id,
	}).Debug("Subscription registered")

	go sub.run()
	return sub, nil
}

// Notify будит все подписки темы. Не блокируется.
func (h *Hub) Notify(_ context.Context, topic string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrHubClosed
	}

	for _, sub := range h.topics[topic] {
		select {
		case sub.wake <- struct{}{}:
		default:
			// перезагрузка уже запрошена
		}
	}
	return nil
}

// Subscribers возвращает число активных подписок темы
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close отменяет все подписки и ждет их завершения
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true

	subs := make([]*Subscription, 0)
	for _, topic := range h.topics {
		for _, sub := range topic {
			subs = append(subs, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if topic, ok := h.topics[sub.topic]; ok {
		delete(topic, sub.id)
		if len(topic) == 0 {
			delete(h.topics, sub.topic)
		}
	}
}

// Subscription реализует services.Subscription поверх Hub
type Subscription struct {
	id    uint64
	topic string
	hub   *Hub
	load  LoadFunc

	out  chan services.Snapshot
	wake chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) Changes() <-chan services.Snapshot {
	return s.out
}

// Unsubscribe синхронный: после возврата в канал больше ничего не придет
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *Subscription) run() {
	defer close(s.done)
	defer close(s.out)
	defer s.hub.remove(s)

	log := logrus.WithFields(logrus.Fields{
		"component": "hub",
		"topic":     s.topic,
		"sub_id":    s.id,
	})

	for {
		docs, err := s.load(s.ctx)
		if s.ctx.Err() != nil {
			return
		}
		if err != nil {
			log.WithError(err).Warn("Subscription load failed")
		}

		select {
		case s.out <- services.Snapshot{Docs: docs, Err: err}:
		case <-s.ctx.Done():
			return
		}

		// ошибка завершает подписку
		if err != nil {
			return
		}

		select {
		case <-s.wake:
		case <-s.ctx.Done():
			return
		}
	}
}
