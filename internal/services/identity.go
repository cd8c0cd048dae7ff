package services

import (
	"context"

	"github.com/thereayou/cipherchat/internal/models"
)

// IdentityProvider отвечает за вход и выход. Движок видит только models.Session
type IdentityProvider interface {
	Register(ctx context.Context, displayName, email, password, photoURL string) (models.Session, string, error)
	SignIn(ctx context.Context, email, password string) (models.Session, string, error)
	SignOut(ctx context.Context, token string) error
	Verify(ctx context.Context, token string) (models.Session, error)
}
