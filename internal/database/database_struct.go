package database

import (
	"github.com/thereayou/cipherchat/internal/realtime"
	"gorm.io/gorm"
)

// Database хранилище документов и пользователей поверх Postgres.
// Живые запросы обслуживает hub, об изменениях сообщает notifier
// (сам hub или мост Redis, если процессов несколько).
type Database struct {
	db       *gorm.DB
	hub      *realtime.Hub
	notifier realtime.Notifier
}

func NewDatabase(db *gorm.DB, hub *realtime.Hub, notifier realtime.Notifier) *Database {
	if notifier == nil {
		notifier = hub
	}
	return &Database{db: db, hub: hub, notifier: notifier}
}
