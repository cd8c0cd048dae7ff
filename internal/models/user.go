package models

import (
	"time"

	"github.com/google/uuid"
)

// User учетная запись для входа по паролю
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DisplayName  string    `gorm:"not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	PhotoURL     string
	LastSeenAt   time.Time
	CreatedAt    time.Time
}

func (u User) Session() Session {
	return Session{
		UID:         u.ID.String(),
		DisplayName: u.DisplayName,
		Email:       u.Email,
		PhotoURL:    u.PhotoURL,
	}
}
