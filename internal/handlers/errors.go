package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/thereayou/cipherchat/internal/database"
	"github.com/thereayou/cipherchat/internal/services"
	ws "github.com/thereayou/cipherchat/internal/websocket"
	"github.com/thereayou/cipherchat/pkg/auth"
)

// classify сопоставляет ошибку движка HTTP статусу и коду для клиента
func classify(err error) (int, string) {
	var (
		validation *services.ValidationError
		authz      *services.AuthorizationError
		backend    *services.BackendError
	)

	switch {
	case errors.As(err, &validation), errors.Is(err, ws.ErrInvalidMessage):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, services.ErrNoActiveRoom):
		return http.StatusConflict, "no_active_room"
	case errors.Is(err, services.ErrSecretRequired):
		return http.StatusForbidden, "secret_required"
	case errors.Is(err, services.ErrWrongSecret):
		return http.StatusForbidden, "wrong_secret"
	case errors.As(err, &authz):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, services.ErrRoomNotFound), errors.Is(err, services.ErrMessageNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, database.ErrEmailTaken):
		return http.StatusConflict, "email_taken"
	case errors.As(err, &backend):
		return http.StatusBadGateway, "backend"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func respondError(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

// ReportError кадр ошибки для WebSocket клиента
func ReportError(err error) ws.ErrorPayload {
	_, code := classify(err)
	return ws.ErrorPayload{Error: err.Error(), Code: code}
}
