package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/cipherchat/internal/cache"
	"github.com/thereayou/cipherchat/internal/crypto"
	"github.com/thereayou/cipherchat/internal/database"
	"github.com/thereayou/cipherchat/internal/models"
	"github.com/thereayou/cipherchat/internal/realtime"
	"github.com/thereayou/cipherchat/internal/services"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClockedEnv(t *testing.T) (*env, *manualClock) {
	t.Helper()
	clock := &manualClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}

	hub := realtime.NewHub()
	t.Cleanup(hub.Close)
	store := database.NewMemoryStore(hub, database.WithClock(clock.Now))
	keys := testKeys(t)
	secrets := cache.NewMemorySecretCache()

	return &env{
		store:    store,
		keys:     keys,
		cache:    secrets,
		gate:     services.NewAccessGate(store, secrets),
		messages: services.NewMessageService(store, keys, services.WithClock(clock.Now)),
	}, clock
}

func TestSendEncryptsText(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	room, err := e.gate.CreateRoom(ctx, ada, "general", nil)
	require.NoError(t, err)

	msg, err := e.messages.Send(ctx, models.Session{UID: ada.UID, DisplayName: "Ada", PhotoURL: "https://example.com/a.png"}, room, "hello", true)
	require.NoError(t, err)
	assert.Equal(t, room.ID, msg.RoomID)
	assert.Equal(t, "Ada", msg.Author.Name)
	assert.Equal(t, "https://example.com/a.png", msg.Author.AvatarURL)
	assert.True(t, msg.IsCode)
	assert.NotEqual(t, "hello", msg.CipherText)

	doc, err := e.store.Get(ctx, services.CollectionMessages, msg.ID)
	require.NoError(t, err)
	assert.NotContains(t, doc.Fields[models.MessageFieldText], "hello")

	// любой клиент с тем же ключом читает текст
	key, err := testKeys(t).KeyFor(room.ID)
	require.NoError(t, err)
	plain, err := crypto.Decrypt(doc.Fields[models.MessageFieldText].(string), key, doc.Fields[models.MessageFieldIV].(string))
	require.NoError(t, err)
	assert.Equal(t, "hello", plain)

	opened, err := e.messages.Open(msg)
	require.NoError(t, err)
	assert.Equal(t, "hello", opened)
}

func TestSendRejectsBlankText(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	room, err := e.gate.CreateRoom(ctx, ada, "general", nil)
	require.NoError(t, err)

	for _, text := range []string{"", "  ", "\n\t"} {
		_, err := e.messages.Send(ctx, ada, room, text, false)
		var validation *services.ValidationError
		require.True(t, errors.As(err, &validation))
		assert.ErrorIs(t, err, services.ErrEmptyMessage)
	}

	docs, err := e.store.Query(ctx, services.Query{Collection: services.CollectionMessages})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestEditWithinWindow(t *testing.T) {
	e, clock := newClockedEnv(t)
	ctx := context.Background()

	room, err := e.gate.CreateRoom(ctx, ada, "general", strPtr("1234"))
	require.NoError(t, err)
	msg, err := e.messages.Send(ctx, ada, room, "hello", false)
	require.NoError(t, err)

	clock.Advance(4 * time.Minute)
	edited, err := e.messages.Edit(ctx, ada, msg, "hello, world")
	require.NoError(t, err)
	require.NotNil(t, edited.EditedAt)
	assert.True(t, edited.EditedAt.After(*msg.CreatedAt))

	stored, err := e.messages.Get(ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.EditedAt)
	assert.NotEqual(t, msg.IV, stored.IV)

	text, err := e.messages.Open(stored)
	require.NoError(t, err)
	assert.Equal(t, "hello, world", text)
}

func TestEditOutsideWindowRejected(t *testing.T) {
	e, clock := newClockedEnv(t)
	ctx := context.Background()

	room, err := e.gate.CreateRoom(ctx, ada, "general", nil)
	require.NoError(t, err)
	msg, err := e.messages.Send(ctx, ada, room, "hello", false)
	require.NoError(t, err)

	clock.Advance(6 * time.Minute)
	_, err = e.messages.Edit(ctx, ada, msg, "too late")
	var authz *services.AuthorizationError
	require.True(t, errors.As(err, &authz))
	assert.ErrorIs(t, err, services.ErrEditWindowClosed)

	stored, err := e.messages.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.EditedAt)
	assert.Equal(t, msg.CipherText, stored.CipherText)

	// удаление автору все еще доступно
	require.NoError(t, e.messages.Delete(ctx, ada, msg))
	_, err = e.messages.Get(ctx, msg.ID)
	assert.ErrorIs(t, err, services.ErrMessageNotFound)
}

func TestEditAndDeleteByOthersRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	room, err := e.gate.CreateRoom(ctx, ada, "general", nil)
	require.NoError(t, err)
	msg, err := e.messages.Send(ctx, ada, room, "hello", false)
	require.NoError(t, err)

	_, err = e.messages.Edit(ctx, bob, msg, "hijack")
	assert.ErrorIs(t, err, services.ErrNotAuthor)
	assert.ErrorIs(t, e.messages.Delete(ctx, bob, msg), services.ErrNotAuthor)

	_, err = e.messages.Edit(ctx, ada, msg, " ")
	assert.ErrorIs(t, err, services.ErrEmptyMessage)

	_, err = e.messages.Get(ctx, msg.ID)
	require.NoError(t, err)
}

func TestEditedAtStrictlyAfterCreatedAt(t *testing.T) {
	e, _ := newClockedEnv(t)
	ctx := context.Background()

	room, err := e.gate.CreateRoom(ctx, ada, "general", nil)
	require.NoError(t, err)
	msg, err := e.messages.Send(ctx, ada, room, "hello", false)
	require.NoError(t, err)

	// часы не сдвинулись
	edited, err := e.messages.Edit(ctx, ada, msg, "again")
	require.NoError(t, err)
	assert.True(t, edited.EditedAt.After(*msg.CreatedAt))

	_, err = e.messages.Get(ctx, msg.ID)
	require.NoError(t, err)
}

func TestEndToEndScenario(t *testing.T) {
	e, clock := newClockedEnv(t)
	ctx := context.Background()

	room, err := e.gate.CreateRoom(ctx, ada, "general", strPtr("1234"))
	require.NoError(t, err)

	bobGate := services.NewAccessGate(e.store, cache.NewMemorySecretCache())
	decision, err := bobGate.RequestEntry(ctx, bob, room, strPtr("1234"))
	require.NoError(t, err)
	assert.Equal(t, services.Granted, decision)
	decision, err = bobGate.RequestEntry(ctx, bob, room, strPtr("12345"))
	assert.Error(t, err)
	assert.Equal(t, services.Denied, decision)

	msg, err := e.messages.Send(ctx, ada, room, "hello", false)
	require.NoError(t, err)

	clock.Advance(4 * time.Minute)
	msg, err = e.messages.Edit(ctx, ada, msg, "hello again")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = e.messages.Edit(ctx, ada, msg, "too late")
	assert.ErrorIs(t, err, services.ErrEditWindowClosed)

	tracker := services.NewReceiptTracker(e.store)
	_, err = tracker.MarkRead(ctx, msg, bob.UID)
	require.NoError(t, err)
	msg, err = e.messages.Get(ctx, msg.ID)
	require.NoError(t, err)
	_, err = tracker.MarkRead(ctx, msg, bob.UID)
	require.NoError(t, err)

	stored, err := e.messages.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{bob.UID}, stored.ReadBy)
	text, err := e.messages.Open(stored)
	require.NoError(t, err)
	assert.Equal(t, "hello again", text)
}
