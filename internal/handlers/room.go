package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/thereayou/cipherchat/internal/cache"
	"github.com/thereayou/cipherchat/internal/crypto"
	"github.com/thereayou/cipherchat/internal/handlers/dto"
	"github.com/thereayou/cipherchat/internal/middleware"
	"github.com/thereayou/cipherchat/internal/models"
	"github.com/thereayou/cipherchat/internal/services"
)

type RoomHandler struct {
	store   services.DocumentStore
	keys    crypto.KeyProvider
	secrets cache.Factory
	opts    []services.Option
}

func NewRoomHandler(store services.DocumentStore, keys crypto.KeyProvider, secrets cache.Factory, opts ...services.Option) *RoomHandler {
	return &RoomHandler{store: store, keys: keys, secrets: secrets, opts: opts}
}

func (h *RoomHandler) gate(session models.Session) *services.AccessGate {
	return services.NewAccessGate(h.store, h.secrets(session.UID))
}

// ListRooms список комнат, новые сверху. ?q= фильтрует по имени
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := services.ListRooms(c.Request.Context(), h.store, c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewRoomList(rooms))
}

// CreateRoom создает новую комнату
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	session := middleware.CurrentSession(c)

	var req dto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
		return
	}

	room, err := h.gate(session).CreateRoom(c.Request.Context(), session, req.Name, req.Secret)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewRoomResponse(room))
}

// EnterRoom проверяет секрет комнаты и запоминает его для пользователя
func (h *RoomHandler) EnterRoom(c *gin.Context) {
	session := middleware.CurrentSession(c)

	var req dto.EnterRoomRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
			return
		}
	}

	gate := h.gate(session)
	room, err := gate.LookupRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	decision, err := gate.RequestEntry(c.Request.Context(), session, room, req.Secret)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": dto.NewRoomResponse(room), "decision": decision.String()})
}

// DeleteRoom удалить комнату может только создатель
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	session := middleware.CurrentSession(c)

	gate := h.gate(session)
	room, err := gate.LookupRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := gate.DeleteRoom(c.Request.Context(), session, room); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetRoomMessages текущая лента комнаты. Нужен уже подтвержденный вход
func (h *RoomHandler) GetRoomMessages(c *gin.Context) {
	session := middleware.CurrentSession(c)
	ctx := c.Request.Context()

	gate := h.gate(session)
	room, err := gate.LookupRoom(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := gate.RequestEntry(ctx, session, room, nil); err != nil {
		respondError(c, err)
		return
	}

	sync := services.NewMessageSync(h.store, h.keys, session, h.opts...)
	defer sync.Close()

	timelines, err := sync.Open(ctx, room)
	if err != nil {
		respondError(c, err)
		return
	}

	select {
	case tl, ok := <-timelines:
		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "message feed closed", "code": "backend"})
			return
		}
		if tl.Err != nil {
			respondError(c, tl.Err)
			return
		}
		c.JSON(http.StatusOK, tl)
	case <-ctx.Done():
		logrus.WithField("room_id", room.ID).Debug("Client went away before first timeline")
	}
}
