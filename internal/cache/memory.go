package cache

import (
	"context"
	"sync"
)

// MemorySecretCache секреты комнат одного пользователя в памяти процесса
type MemorySecretCache struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewMemorySecretCache() *MemorySecretCache {
	return &MemorySecretCache{secrets: make(map[string]string)}
}

func (c *MemorySecretCache) Get(_ context.Context, roomID string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	secret, ok := c.secrets[roomID]
	return secret, ok, nil
}

func (c *MemorySecretCache) Set(_ context.Context, roomID, secret string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.secrets[roomID] = secret
	return nil
}

func (c *MemorySecretCache) Delete(_ context.Context, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.secrets, roomID)
	return nil
}

func (c *MemorySecretCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.secrets = make(map[string]string)
	return nil
}
