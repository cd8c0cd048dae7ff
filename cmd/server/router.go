package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/cipherchat/internal/cache"
	"github.com/thereayou/cipherchat/internal/crypto"
	"github.com/thereayou/cipherchat/internal/handlers"
	"github.com/thereayou/cipherchat/internal/middleware"
	"github.com/thereayou/cipherchat/internal/services"
)

type Deps struct {
	Store    backend
	Keys     crypto.KeyProvider
	Secrets  cache.Factory
	Identity services.IdentityProvider
	Options  []services.Option
}

func APIEndpoints(r *gin.Engine, d Deps) {
	messages := services.NewMessageService(d.Store, d.Keys, d.Options...)

	authH := handlers.NewAuthHandler(d.Identity, d.Secrets)
	userH := handlers.NewUserHandler(d.Store)
	roomH := handlers.NewRoomHandler(d.Store, d.Keys, d.Secrets, d.Options...)
	msgH := handlers.NewHTTPMessageHandler(d.Store, d.Secrets, messages)
	wsH := handlers.NewWebSocketHandler(d.Store, d.Keys, d.Secrets, handlers.NewMessageHandler(d.Store, d.Secrets, messages), d.Options...)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Auth endpoints
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", authH.Register)
		authGroup.POST("/login", authH.Login)
		authGroup.POST("/logout", middleware.AuthMiddleware(d.Identity), authH.Logout)
	}

	// API endpoints
	api := r.Group("/api/v1", middleware.AuthMiddleware(d.Identity))
	{
		api.GET("/me", userH.GetMe)

		api.GET("/rooms", roomH.ListRooms)
		api.POST("/rooms", roomH.CreateRoom)
		api.POST("/rooms/:id/enter", roomH.EnterRoom)
		api.DELETE("/rooms/:id", roomH.DeleteRoom)
		api.GET("/rooms/:id/messages", roomH.GetRoomMessages)
		api.POST("/rooms/:id/messages", msgH.SendMessage)

		api.PATCH("/messages/:id", msgH.EditMessage)
		api.DELETE("/messages/:id", msgH.DeleteMessage)
		api.POST("/messages/:id/read", msgH.MarkRead)
	}

	r.GET("/ws", middleware.WSAuthMiddleware(d.Identity), wsH.HandleWebSocket)
}
