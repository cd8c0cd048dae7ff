package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/cipherchat/internal/cache"
	"github.com/thereayou/cipherchat/internal/handlers/dto"
	"github.com/thereayou/cipherchat/internal/middleware"
	"github.com/thereayou/cipherchat/internal/services"
)

type AuthHandler struct {
	identity services.IdentityProvider
	secrets  cache.Factory
}

func NewAuthHandler(identity services.IdentityProvider, secrets cache.Factory) *AuthHandler {
	return &AuthHandler{identity: identity, secrets: secrets}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
		return
	}

	session, token, err := h.identity.Register(c.Request.Context(), req.DisplayName, req.Email, req.Password, req.PhotoURL)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.AuthResponse{Token: token, Session: session})
}

// Login выдаёт JWT
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
		return
	}

	session, token, err := h.identity.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.AuthResponse{Token: token, Session: session})
}

// Logout отзывает токен и забывает секреты комнат пользователя
func (h *AuthHandler) Logout(c *gin.Context) {
	session := middleware.CurrentSession(c)
	token := c.GetString(middleware.TokenKey)

	if err := h.identity.SignOut(c.Request.Context(), token); err != nil {
		respondError(c, err)
		return
	}
	if err := h.secrets(session.UID).Clear(c.Request.Context()); err != nil {
		respondError(c, &services.BackendError{Op: "clear secret cache", Err: err})
		return
	}

	c.Status(http.StatusNoContent)
}
