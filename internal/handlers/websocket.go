package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/thereayou/cipherchat/internal/cache"
	"github.com/thereayou/cipherchat/internal/crypto"
	"github.com/thereayou/cipherchat/internal/middleware"
	"github.com/thereayou/cipherchat/internal/services"
	ws "github.com/thereayou/cipherchat/internal/websocket"
)

// WebSocketHandler управляет WebSocket соединениями
type WebSocketHandler struct {
	store          services.DocumentStore
	keys           crypto.KeyProvider
	secrets        cache.Factory
	messageHandler *MessageHandler
	opts           []services.Option
	upgrader       websocket.Upgrader
}

// NewWebSocketHandler создает новый WebSocket handler
func NewWebSocketHandler(store services.DocumentStore, keys crypto.KeyProvider, secrets cache.Factory, messageHandler *MessageHandler, opts ...services.Option) *WebSocketHandler {
	return &WebSocketHandler{
		store:          store,
		keys:           keys,
		secrets:        secrets,
		messageHandler: messageHandler,
		opts:           opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// TODO: ограничить origin списком из конфигурации
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket обрабатывает WebSocket соединения
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	session := middleware.CurrentSession(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	secrets := h.secrets(session.UID)
	chat := services.NewChatSession(
		session,
		services.NewAccessGate(h.store, secrets),
		services.NewMessageSync(h.store, h.keys, session, h.opts...),
		secrets,
	)
	client := ws.NewClient(conn, chat, services.NewRoomDirectory(h.store, secrets, h.opts...))

	go client.WritePump()

	if err := client.WatchRooms(); err != nil {
		client.SendMessage(ws.TypeError, "", ReportError(err))
	}
	go client.ReadPump(h.messageHandler, ReportError)
}
