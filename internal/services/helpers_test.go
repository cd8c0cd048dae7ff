package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/thereayou/cipherchat/internal/cache"
	"github.com/thereayou/cipherchat/internal/crypto"
	"github.com/thereayou/cipherchat/internal/database"
	"github.com/thereayou/cipherchat/internal/models"
	"github.com/thereayou/cipherchat/internal/realtime"
	"github.com/thereayou/cipherchat/internal/services"
)

const testPassphrase = "correct horse battery staple"

var (
	ada = models.Session{UID: "uid-ada", DisplayName: "Ada", Email: "ada@example.com"}
	bob = models.Session{UID: "uid-bob", DisplayName: "Bob", Email: "bob@example.com"}

	errBackend = errors.New("backend unavailable")
)

func testKeys(t *testing.T) *crypto.StaticKeyProvider {
	t.Helper()
	keys, err := crypto.NewStaticKeyProvider(testPassphrase)
	require.NoError(t, err)
	return keys
}

func newMemoryStore(t *testing.T) *database.MemoryStore {
	t.Helper()
	hub := realtime.NewHub()
	t.Cleanup(hub.Close)
	return database.NewMemoryStore(hub)
}

type env struct {
	store    *database.MemoryStore
	keys     *crypto.StaticKeyProvider
	cache    *cache.MemorySecretCache
	gate     *services.AccessGate
	messages *services.MessageService
}

func newEnv(t *testing.T, opts ...services.Option) *env {
	t.Helper()
	store := newMemoryStore(t)
	keys := testKeys(t)
	secrets := cache.NewMemorySecretCache()
	return &env{
		store:    store,
		keys:     keys,
		cache:    secrets,
		gate:     services.NewAccessGate(store, secrets),
		messages: services.NewMessageService(store, keys, opts...),
	}
}

func strPtr(s string) *string { return &s }

func at(hour, minute, second int) *time.Time {
	t := time.Date(2024, 5, 1, hour, minute, second, 0, time.UTC)
	return &t
}

// sealedDoc собирает документ сообщения, зашифрованный ключом теста
func sealedDoc(t *testing.T, id, roomID string, author models.Session, text string, createdAt *time.Time) models.Document {
	t.Helper()
	key := crypto.DeriveKey(testPassphrase)
	cipherText, iv, err := crypto.Encrypt(text, key)
	require.NoError(t, err)

	fields := map[string]any{
		models.MessageFieldText:   cipherText,
		models.MessageFieldIV:     iv,
		models.MessageFieldName:   author.DisplayName,
		models.MessageFieldUID:    author.UID,
		models.MessageFieldRoomID: roomID,
	}
	if createdAt != nil {
		fields[models.MessageFieldCreatedAt] = *createdAt
	}
	return models.Document{ID: id, Fields: fields}
}

func withReaders(doc models.Document, readers ...string) models.Document {
	doc.Fields[models.MessageFieldReadBy] = readers
	return doc
}

// scriptedStore отдает подписки, в которые тест сам кладет снимки
type scriptedStore struct {
	subs chan *scriptedSub

	mu         sync.Mutex
	queries    []services.Query
	unions     []string
	unionErr   error
	subscribed error
}

func newScriptedStore() *scriptedStore {
	return &scriptedStore{subs: make(chan *scriptedSub, 8)}
}

func (s *scriptedStore) Create(context.Context, string, map[string]any) (models.Document, error) {
	return models.Document{}, errBackend
}

func (s *scriptedStore) Get(context.Context, string, string) (models.Document, error) {
	return models.Document{}, services.ErrDocumentNotFound
}

func (s *scriptedStore) Update(context.Context, string, string, map[string]any) error {
	return errBackend
}

func (s *scriptedStore) Delete(context.Context, string, string) error {
	return errBackend
}

func (s *scriptedStore) Query(context.Context, services.Query) ([]models.Document, error) {
	return nil, errBackend
}

func (s *scriptedStore) Subscribe(ctx context.Context, q services.Query) (services.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribed != nil {
		return nil, s.subscribed
	}
	s.queries = append(s.queries, q)

	sub := &scriptedSub{
		ch:     make(chan services.Snapshot),
		closed: make(chan struct{}),
	}
	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-sub.closed:
		}
	}()
	s.subs <- sub
	return sub, nil
}

func (s *scriptedStore) ArrayUnion(_ context.Context, _, id, _ string, _ ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unionErr != nil {
		return s.unionErr
	}
	s.unions = append(s.unions, id)
	return nil
}

func (s *scriptedStore) unionCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.unions...)
}

func (s *scriptedStore) nextSub(t *testing.T) *scriptedSub {
	t.Helper()
	select {
	case sub := <-s.subs:
		return sub
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription opened")
		return nil
	}
}

type scriptedSub struct {
	ch     chan services.Snapshot
	once   sync.Once
	closed chan struct{}
}

func (s *scriptedSub) Changes() <-chan services.Snapshot { return s.ch }

func (s *scriptedSub) Unsubscribe() {
	s.once.Do(func() { close(s.closed) })
}

// push возвращает false, если подписку уже сняли
func (s *scriptedSub) push(snap services.Snapshot) bool {
	select {
	case s.ch <- snap:
		return true
	case <-s.closed:
		return false
	case <-time.After(2 * time.Second):
		return false
	}
}

func (s *scriptedSub) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func nextTimeline(t *testing.T, ch <-chan services.Timeline) services.Timeline {
	t.Helper()
	select {
	case tl, ok := <-ch:
		require.True(t, ok, "timeline channel closed")
		return tl
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for timeline")
		return services.Timeline{}
	}
}

func requireClosed(t *testing.T, ch <-chan services.Timeline) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.False(t, ok, "expected channel to be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("channel was not closed")
	}
}

func texts(tl services.Timeline) []string {
	out := make([]string, 0)
	for _, e := range tl.Entries() {
		out = append(out, e.Text)
	}
	return out
}
