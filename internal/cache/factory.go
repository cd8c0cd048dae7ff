package cache

import (
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/thereayou/cipherchat/internal/services"
)

// Factory выдает кеш секретов пользователя по его uid
type Factory func(uid string) services.SecretCache

func RedisFactory(client *redis.Client) Factory {
	return func(uid string) services.SecretCache {
		return NewRedisSecretCache(client, uid)
	}
}

// MemoryFactory держит по одному кешу на пользователя, чтобы HTTP-запросы
// и WebSocket одного пользователя видели одни и те же секреты
func MemoryFactory() Factory {
	var mu sync.Mutex
	caches := make(map[string]*MemorySecretCache)

	return func(uid string) services.SecretCache {
		mu.Lock()
		defer mu.Unlock()
		c, ok := caches[uid]
		if !ok {
			c = NewMemorySecretCache()
			caches[uid] = c
		}
		return c
	}
}
