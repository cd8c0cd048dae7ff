package realtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/cipherchat/internal/models"
	"github.com/thereayou/cipherchat/internal/services"
)

func counterLoad(n *int32) LoadFunc {
	return func(ctx context.Context) ([]models.Document, error) {
		v := atomic.AddInt32(n, 1)
		return []models.Document{{ID: "doc", Fields: map[string]any{"n": v}}}, nil
	}
}

func receive(t *testing.T, sub *Subscription) services.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Changes():
		require.True(t, ok, "changes channel closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return services.Snapshot{}
	}
}

func TestHubInitialLoadAndNotify(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	var loads int32
	sub, err := hub.Subscribe(context.Background(), "messages", counterLoad(&loads))
	require.NoError(t, err)
	defer sub.Unsubscribe()

	first := receive(t, sub)
	require.NoError(t, first.Err)
	assert.Equal(t, int32(1), first.Docs[0].Fields["n"])

	require.NoError(t, hub.Notify(context.Background(), "messages"))
	second := receive(t, sub)
	assert.Equal(t, int32(2), second.Docs[0].Fields["n"])
}

func TestHubNotifyOtherTopicIgnored(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	var loads int32
	sub, err := hub.Subscribe(context.Background(), "messages", counterLoad(&loads))
	require.NoError(t, err)
	defer sub.Unsubscribe()
	receive(t, sub)

	require.NoError(t, hub.Notify(context.Background(), "rooms"))
	select {
	case <-sub.Changes():
		t.Fatal("unexpected snapshot for unrelated topic")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubUnsubscribeClosesChanges(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	var loads int32
	sub, err := hub.Subscribe(context.Background(), "messages", counterLoad(&loads))
	require.NoError(t, err)

	// первая доставка не прочитана: Unsubscribe не должен зависнуть
	sub.Unsubscribe()
	sub.Unsubscribe()

	for range sub.Changes() {
	}
	assert.Equal(t, 0, hub.Subscribers("messages"))
	require.NoError(t, hub.Notify(context.Background(), "messages"))
}

func TestHubLoadErrorEndsSubscription(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	boom := errors.New("backend down")
	sub, err := hub.Subscribe(context.Background(), "messages", func(context.Context) ([]models.Document, error) {
		return nil, boom
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	snap := receive(t, sub)
	assert.ErrorIs(t, snap.Err, boom)

	_, ok := <-sub.Changes()
	assert.False(t, ok)
}

func TestHubCloseRejectsSubscribe(t *testing.T) {
	hub := NewHub()

	var loads int32
	sub, err := hub.Subscribe(context.Background(), "rooms", counterLoad(&loads))
	require.NoError(t, err)
	receive(t, sub)

	hub.Close()
	_, ok := <-sub.Changes()
	assert.False(t, ok)

	_, err = hub.Subscribe(context.Background(), "rooms", counterLoad(&loads))
	assert.ErrorIs(t, err, ErrHubClosed)
	assert.ErrorIs(t, hub.Notify(context.Background(), "rooms"), ErrHubClosed)
}

func TestHubContextCancelStopsSubscription(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var loads int32
	sub, err := hub.Subscribe(ctx, "rooms", counterLoad(&loads))
	require.NoError(t, err)
	receive(t, sub)

	cancel()
	_, ok := <-sub.Changes()
	assert.False(t, ok)
	sub.Unsubscribe()
}
