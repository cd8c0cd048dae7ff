package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/thereayou/cipherchat/internal/database"
	"github.com/thereayou/cipherchat/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenRevoked       = errors.New("token is blacklisted")
)

// UserStore учетные записи для входа по паролю
type UserStore interface {
	SaveUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateLastSeen(ctx context.Context, id string) error
}

// Provider вход по email и паролю. Сессия передается в JWT, отозванные
// токены лежат в черном списке до своего истечения.
type Provider struct {
	users     UserStore
	tokens    *JWTManager
	blacklist Blacklist
	log       *logrus.Entry
}

func NewProvider(users UserStore, tokens *JWTManager, blacklist Blacklist) *Provider {
	return &Provider{
		users:     users,
		tokens:    tokens,
		blacklist: blacklist,
		log:       logrus.WithField("component", "identity"),
	}
}

func (p *Provider) Register(ctx context.Context, displayName, email, password, photoURL string) (models.Session, string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Session{}, "", fmt.Errorf("hash password: %w", err)
	}

	now := time.Now()
	user := &models.User{
		DisplayName:  strings.TrimSpace(displayName),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: string(hash),
		PhotoURL:     photoURL,
		CreatedAt:    now,
		LastSeenAt:   now,
	}
	if err := p.users.SaveUser(ctx, user); err != nil {
		return models.Session{}, "", err
	}

	session := user.Session()
	token, err := p.tokens.Generate(session)
	if err != nil {
		return models.Session{}, "", fmt.Errorf("generate token: %w", err)
	}

	p.log.WithField("uid", session.UID).Info("User registered")
	return session, token, nil
}

// SignIn выдаёт JWT и обновляет last_seen
func (p *Provider) SignIn(ctx context.Context, email, password string) (models.Session, string, error) {
	user, err := p.users.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, database.ErrUserNotFound) {
		return models.Session{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return models.Session{}, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.Session{}, "", ErrInvalidCredentials
	}

	if err := p.users.UpdateLastSeen(ctx, user.ID.String()); err != nil {
		p.log.WithError(err).WithField("uid", user.ID.String()).Warn("Could not update last seen")
	}

	session := user.Session()
	token, err := p.tokens.Generate(session)
	if err != nil {
		return models.Session{}, "", fmt.Errorf("generate token: %w", err)
	}
	return session, token, nil
}

// SignOut ставит токен в черный список до истечения
func (p *Provider) SignOut(ctx context.Context, token string) error {
	exp, err := p.tokens.Expiry(token)
	if err != nil {
		return err
	}

	ttl := time.Until(exp)
	if ttl <= 0 {
		return nil
	}
	if err := p.blacklist.Revoke(ctx, token, ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (p *Provider) Verify(ctx context.Context, token string) (models.Session, error) {
	revoked, err := p.blacklist.IsRevoked(ctx, token)
	if err != nil {
		return models.Session{}, fmt.Errorf("check blacklist: %w", err)
	}
	if revoked {
		return models.Session{}, ErrTokenRevoked
	}

	claims, err := p.tokens.Verify(token)
	if err != nil {
		return models.Session{}, err
	}
	return claims.Session(), nil
}
