package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/cipherchat/internal/cache"
	"github.com/thereayou/cipherchat/internal/handlers/dto"
	"github.com/thereayou/cipherchat/internal/middleware"
	"github.com/thereayou/cipherchat/internal/models"
	"github.com/thereayou/cipherchat/internal/services"
)

type HTTPMessageHandler struct {
	store    services.DocumentStore
	secrets  cache.Factory
	messages *services.MessageService
	receipts *services.ReceiptTracker
}

func NewHTTPMessageHandler(store services.DocumentStore, secrets cache.Factory, messages *services.MessageService) *HTTPMessageHandler {
	return &HTTPMessageHandler{
		store:    store,
		secrets:  secrets,
		messages: messages,
		receipts: services.NewReceiptTracker(store),
	}
}

func (h *HTTPMessageHandler) respond(c *gin.Context, status int, msg models.Message) {
	text, err := h.messages.Open(msg)
	if err != nil {
		text = services.UndecryptableText
	}
	c.JSON(status, dto.MessageResponse{Message: msg, Text: text})
}

// SendMessage шифрует и сохраняет сообщение в комнате, в которую пользователь вошел
func (h *HTTPMessageHandler) SendMessage(c *gin.Context) {
	session := middleware.CurrentSession(c)
	ctx := c.Request.Context()

	var req dto.MessagePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
		return
	}

	gate := services.NewAccessGate(h.store, h.secrets(session.UID))
	room, err := gate.LookupRoom(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := gate.RequestEntry(ctx, session, room, nil); err != nil {
		respondError(c, err)
		return
	}

	msg, err := h.messages.Send(ctx, session, room, req.Text, req.IsCode)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respond(c, http.StatusCreated, msg)
}

func (h *HTTPMessageHandler) EditMessage(c *gin.Context) {
	session := middleware.CurrentSession(c)
	ctx := c.Request.Context()

	var req dto.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
		return
	}

	msg, err := h.messages.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	edited, err := h.messages.Edit(ctx, session, msg, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respond(c, http.StatusOK, edited)
}

func (h *HTTPMessageHandler) DeleteMessage(c *gin.Context) {
	session := middleware.CurrentSession(c)
	ctx := c.Request.Context()

	msg, err := h.messages.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.messages.Delete(ctx, session, msg); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkRead добавляет пользователя в readBy сообщения
func (h *HTTPMessageHandler) MarkRead(c *gin.Context) {
	session := middleware.CurrentSession(c)
	ctx := c.Request.Context()

	msg, err := h.messages.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	// отметку ставит только тот, кто может видеть комнату
	gate := services.NewAccessGate(h.store, h.secrets(session.UID))
	room, err := gate.LookupRoom(ctx, msg.RoomID)
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := gate.RequestEntry(ctx, session, room, nil); err != nil {
		respondError(c, err)
		return
	}

	readers, err := h.receipts.MarkRead(ctx, msg, session.UID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ReadResponse{ReadBy: readers})
}
