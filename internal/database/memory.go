package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/cipherchat/internal/models"
	"github.com/thereayou/cipherchat/internal/realtime"
	"github.com/thereayou/cipherchat/internal/services"
)

// MemoryStore хранилище документов в памяти процесса. Используется
// при STORE_DRIVER=memory и в тестах.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	users       map[string]models.User

	hub      *realtime.Hub
	notifier realtime.Notifier
	now      func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithClock подменяет серверное время
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithNotifier отправляет уведомления через notifier вместо hub
func WithNotifier(n realtime.Notifier) MemoryOption {
	return func(s *MemoryStore) { s.notifier = n }
}

func NewMemoryStore(hub *realtime.Hub, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		collections: make(map[string]map[string]map[string]any),
		users:       make(map[string]models.User),
		hub:         hub,
		notifier:    hub,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Create(ctx context.Context, collection string, fields map[string]any) (models.Document, error) {
	id := uuid.NewString()
	stored := copyFields(fields)
	stored[createdAtField] = s.now().UTC()

	s.mu.Lock()
	if _, ok := s.collections[collection]; !ok {
		s.collections[collection] = make(map[string]map[string]any)
	}
	s.collections[collection][id] = stored
	doc := models.Document{ID: id, Fields: copyFields(stored)}
	topics := services.WriteTopics(collection, stored)
	s.mu.Unlock()

	s.notify(ctx, topics)
	return doc, nil
}

func (s *MemoryStore) Get(_ context.Context, collection, id string) (models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.collections[collection][id]
	if !ok {
		return models.Document{}, services.ErrDocumentNotFound
	}
	return models.Document{ID: id, Fields: copyFields(fields)}, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	stored, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return services.ErrDocumentNotFound
	}
	for k, v := range fields {
		if k == createdAtField {
			continue
		}
		stored[k] = copyValue(v)
	}
	topics := services.WriteTopics(collection, stored)
	s.mu.Unlock()

	s.notify(ctx, topics)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	stored, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return services.ErrDocumentNotFound
	}
	topics := services.WriteTopics(collection, stored)
	delete(s.collections[collection], id)
	s.mu.Unlock()

	s.notify(ctx, topics)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, q services.Query) ([]models.Document, error) {
	s.mu.RLock()
	docs := make([]models.Document, 0)
	for id, fields := range s.collections[q.Collection] {
		if matches(fields, q.Where) {
			docs = append(docs, models.Document{ID: id, Fields: copyFields(fields)})
		}
	}
	s.mu.RUnlock()

	// id как вторичный ключ, чтобы порядок не зависел от обхода map
	sort.SliceStable(docs, func(i, j int) bool {
		if q.OrderBy != "" {
			c := compareValues(docs[i].Fields[q.OrderBy], docs[j].Fields[q.OrderBy])
			if c != 0 {
				if q.Descending {
					return c > 0
				}
				return c < 0
			}
		}
		return docs[i].ID < docs[j].ID
	})

	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, q services.Query) (services.Subscription, error) {
	sub, err := s.hub.Subscribe(ctx, services.Topic(q), func(ctx context.Context) ([]models.Document, error) {
		return s.Query(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *MemoryStore) ArrayUnion(ctx context.Context, collection, id, field string, values ...string) error {
	s.mu.Lock()
	stored, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return services.ErrDocumentNotFound
	}

	current := toStrings(stored[field])
	seen := make(map[string]bool, len(current))
	for _, v := range current {
		seen[v] = true
	}
	changed := false
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			current = append(current, v)
			changed = true
		}
	}
	stored[field] = current
	topics := services.WriteTopics(collection, stored)
	s.mu.Unlock()

	if changed {
		s.notify(ctx, topics)
	}
	return nil
}

func (s *MemoryStore) SaveUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrEmailTaken
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := s.now()
	user.CreatedAt = now
	user.LastSeenAt = now
	s.users[user.ID.String()] = *user
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *MemoryStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *MemoryStore) UpdateLastSeen(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.LastSeenAt = s.now()
	s.users[id] = u
	return nil
}

func (s *MemoryStore) notify(ctx context.Context, topics []string) {
	for _, topic := range topics {
		if err := s.notifier.Notify(ctx, topic); err != nil {
			logNotifyError(err, topic)
		}
	}
}

func matches(fields map[string]any, where []services.Filter) bool {
	for _, f := range where {
		v, ok := fields[f.Field]
		if !ok || fmt.Sprint(v) != fmt.Sprint(f.Value) {
			return false
		}
	}
	return true
}

func compareValues(a, b any) int {
	ta, aTime := a.(time.Time)
	tb, bTime := b.(time.Time)
	switch {
	case aTime && bTime:
		return ta.Compare(tb)
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		return append([]any(nil), list...)
	}
	return v
}
