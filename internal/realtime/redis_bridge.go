package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const DefaultChannel = "cipherchat:changes"

// RedisBridge публикует уведомления в Redis и пересылает все уведомления
// канала в локальный Hub. Так несколько процессов видят изменения друг друга.
type RedisBridge struct {
	client  *redis.Client
	hub     *Hub
	channel string

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRedisBridge(client *redis.Client, hub *Hub, channel string) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBridge{
		client:  client,
		hub:     hub,
		channel: channel,
	}
}

// Start подписывается на канал и запускает пересылку.
// Возвращается только после подтверждения подписки от Redis.
func (b *RedisBridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pubsub != nil {
		return nil
	}

	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	b.pubsub = pubsub
	b.done = make(chan struct{})
	go b.relay(pubsub.Channel(), b.done)

	logrus.WithFields(logrus.Fields{
		"component": "redis_bridge",
		"channel":   b.channel,
	}).Info("Redis bridge started")
	return nil
}

// Notify публикует тему. Локальный Hub получит ее через relay.
func (b *RedisBridge) Notify(ctx context.Context, topic string) error {
	b.mu.Lock()
	running := b.pubsub != nil
	b.mu.Unlock()
	if !running {
		return ErrBridgeClosed
	}

	if err := b.client.Publish(ctx, b.channel, topic).Err(); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"component": "redis_bridge",
			"topic":     topic,
		}).Error("Failed to publish change")
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close останавливает пересылку и ждет выхода горутины
func (b *RedisBridge) Close() error {
	b.mu.Lock()
	pubsub, done := b.pubsub, b.done
	b.pubsub = nil
	b.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	return err
}

func (b *RedisBridge) relay(ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)

	for msg := range ch {
		if err := b.hub.Notify(context.Background(), msg.Payload); err != nil {
			logrus.WithError(err).WithField("component", "redis_bridge").Warn("Dropping change notification")
		}
	}
}
