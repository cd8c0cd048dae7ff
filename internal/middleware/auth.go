package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/thereayou/cipherchat/internal/models"
	"github.com/thereayou/cipherchat/pkg/auth"
)

const (
	SessionKey = "session"
	TokenKey   = "token"
)

// TokenVerifier превращает токен в сессию
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (models.Session, error)
}

// AuthMiddleware проверяет JWT токен
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractTokenFromHeader(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		authenticate(c, verifier, token)
	}
}

// WSAuthMiddleware специальный middleware для WebSocket: браузер не умеет
// ставить заголовки при апгрейде, поэтому токен можно передать в query
func WSAuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token, _ = auth.ExtractTokenFromHeader(c.Request)
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		authenticate(c, verifier, token)
	}
}

func authenticate(c *gin.Context, verifier TokenVerifier, token string) {
	session, err := verifier.Verify(c.Request.Context(), token)
	switch {
	case errors.Is(err, auth.ErrTokenRevoked):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token is blacklisted"})
		return
	case errors.Is(err, auth.ErrInvalidToken):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	case err != nil:
		logrus.WithError(err).Error("Token verification failed")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "cannot verify token"})
		return
	}

	c.Set(SessionKey, session)
	c.Set(TokenKey, token)
	c.Next()
}

// CurrentSession достаёт сессию, положенную AuthMiddleware
func CurrentSession(c *gin.Context) models.Session {
	return c.MustGet(SessionKey).(models.Session)
}
