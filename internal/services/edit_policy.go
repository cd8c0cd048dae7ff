package services

import (
	"time"

	"github.com/thereayou/cipherchat/internal/models"
)

const DefaultEditWindow = 5 * time.Minute

// EditPolicy решает, может ли автор править или удалять сообщение.
// Граница окна включительная: ровно через Window править еще можно.
type EditPolicy struct {
	Window time.Duration
}

func DefaultEditPolicy() EditPolicy {
	return EditPolicy{Window: DefaultEditWindow}
}

func (p EditPolicy) window() time.Duration {
	if p.Window <= 0 {
		return DefaultEditWindow
	}
	return p.Window
}

// IsEditable не зависит от автора. Сообщение без серверного времени не редактируется.
func (p EditPolicy) IsEditable(msg models.Message, now time.Time) bool {
	if msg.CreatedAt == nil {
		return false
	}
	return now.Sub(*msg.CreatedAt) <= p.window()
}

func (p EditPolicy) AuthorizeEdit(msg models.Message, uid string, now time.Time) error {
	if uid == "" || uid != msg.Author.UID {
		return &AuthorizationError{Err: ErrNotAuthor}
	}
	if !p.IsEditable(msg, now) {
		return &AuthorizationError{Err: ErrEditWindowClosed}
	}
	return nil
}

// AuthorizeDelete проверяет только авторство, без ограничения по времени
func (p EditPolicy) AuthorizeDelete(msg models.Message, uid string) error {
	if uid == "" || uid != msg.Author.UID {
		return &AuthorizationError{Err: ErrNotAuthor}
	}
	return nil
}
