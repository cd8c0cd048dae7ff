package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/thereayou/cipherchat/internal/cache"
	"github.com/thereayou/cipherchat/internal/config"
	"github.com/thereayou/cipherchat/internal/crypto"
	"github.com/thereayou/cipherchat/internal/database"
	"github.com/thereayou/cipherchat/internal/realtime"
	"github.com/thereayou/cipherchat/internal/services"
	"github.com/thereayou/cipherchat/pkg/auth"
)

// backend хранилище документов вместе с учетными записями
type backend interface {
	services.DocumentStore
	auth.UserStore
}

type Server struct {
	Router *gin.Engine
	Store  backend
	Redis  *redis.Client
	Hub    *realtime.Hub
	Bridge *realtime.RedisBridge

	httpServer *http.Server
}

func NewServer(cfg config.Config) (*Server, error) {
	log := logrus.WithField("component", "server")

	keys, err := crypto.NewStaticKeyProvider(cfg.Passphrase)
	if err != nil {
		return nil, err
	}

	s := &Server{Hub: realtime.NewHub()}

	var notifier realtime.Notifier = s.Hub
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		s.Redis = redis.NewClient(redisOpts)
		if err := s.Redis.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("redis connect failed: %w", err)
		}

		s.Bridge = realtime.NewRedisBridge(s.Redis, s.Hub, realtime.DefaultChannel)
		if err := s.Bridge.Start(context.Background()); err != nil {
			return nil, fmt.Errorf("start change bridge: %w", err)
		}
		notifier = s.Bridge
		log.Info("Redis connected")
	} else {
		log.Warn("REDIS_URL is empty, secrets and revoked tokens live in memory")
	}

	switch cfg.StoreDriver {
	case config.DriverMemory:
		s.Store = database.NewMemoryStore(s.Hub, database.WithNotifier(notifier))
	default:
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres connect failed: %w", err)
		}
		s.Store = database.NewDatabase(db, s.Hub, notifier)
	}

	secrets := cache.MemoryFactory()
	var blacklist auth.Blacklist = auth.NewMemoryBlacklist()
	if s.Redis != nil {
		secrets = cache.RedisFactory(s.Redis)
		blacklist = auth.NewRedisBlacklist(s.Redis)
	}

	identity := auth.NewProvider(s.Store, auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL), blacklist)

	opts := []services.Option{
		services.WithHistoryLimit(cfg.HistoryLimit),
		services.WithEditPolicy(services.EditPolicy{Window: cfg.EditWindow}),
		services.WithLocation(cfg.Timezone),
	}

	s.Router = gin.Default()
	APIEndpoints(s.Router, Deps{
		Store:    s.Store,
		Keys:     keys,
		Secrets:  secrets,
		Identity: identity,
		Options:  opts,
	})

	s.httpServer = &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     s.Router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return s, nil
}

func (s *Server) Run() {
	logrus.WithField("addr", s.httpServer.Addr).Info("Server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.Fatalf("Server run error: %v", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	}
	if s.Bridge != nil {
		if err := s.Bridge.Close(); err != nil {
			logrus.WithError(err).Warn("Change bridge close failed")
		}
	}
	s.Hub.Close()
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	logrus.Info("Server stopped")
}
