package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/thereayou/cipherchat/internal/handlers/dto"
	"github.com/thereayou/cipherchat/internal/models"
	"github.com/thereayou/cipherchat/internal/services"
)

const (
	// Время ожидания записи
	writeWait = 10 * time.Second

	// Время ожидания pong от клиента
	pongWait = 60 * time.Second

	// Интервал отправки ping
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер сообщения
	maxMessageSize = 512 * 1024 // 512KB

	sendQueueSize = 256
)

type ClientMessageHandler interface {
	HandleMessage(client *Client, msg *Message) error
}

// ErrorReporter превращает ошибку обработчика в кадр для клиента
type ErrorReporter func(err error) ErrorPayload

// Client одно WebSocket соединение пользователя. У соединения своя
// ChatSession, поэтому лента открыта не больше чем для одной комнаты.
type Client struct {
	ID      uuid.UUID
	Session models.Session
	Conn    *websocket.Conn
	Send    chan []byte

	chat      *services.ChatSession
	directory *services.RoomDirectory
	log       *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func NewClient(conn *websocket.Conn, chat *services.ChatSession, directory *services.RoomDirectory) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New()
	session := chat.Viewer()
	return &Client{
		ID:        id,
		Session:   session,
		Conn:      conn,
		Send:      make(chan []byte, sendQueueSize),
		chat:      chat,
		directory: directory,
		log: logrus.WithFields(logrus.Fields{
			"component": "ws_client",
			"client_id": id.String(),
			"uid":       session.UID,
		}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context живет, пока открыто соединение
func (c *Client) Context() context.Context {
	return c.ctx
}

// Current комната, лента которой сейчас транслируется
func (c *Client) Current() (models.Room, bool) {
	return c.chat.Current()
}

// Enter открывает ленту комнаты и транслирует ее клиенту.
// Лента предыдущей комнаты закрывается.
func (c *Client) Enter(room models.Room, secret *string) error {
	timelines, err := c.chat.Enter(c.ctx, room, secret)
	if err != nil {
		return err
	}
	c.follow(timelines)
	return nil
}

func (c *Client) CreateRoom(name string, secret *string) (models.Room, error) {
	room, timelines, err := c.chat.CreateAndEnter(c.ctx, name, secret)
	if err != nil {
		return room, err
	}
	c.follow(timelines)
	return room, nil
}

func (c *Client) Leave() {
	c.chat.Leave()
}

// WatchRooms подписывает клиента на живой список комнат
func (c *Client) WatchRooms() error {
	rooms, err := c.directory.Open(c.ctx)
	if err != nil {
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for list := range rooms {
			c.deliver(TypeRooms, "", dto.NewRoomList(list))
		}
		if err := c.directory.Err(); err != nil {
			c.log.WithError(err).Warn("Room list stopped")
		}
	}()
	return nil
}

// FilterRooms меняет фильтр списка и возвращает отфильтрованный список
func (c *Client) FilterRooms(term string) []models.Room {
	return c.directory.SetFilter(term)
}

func (c *Client) follow(timelines <-chan services.Timeline) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for tl := range timelines {
			if tl.Err != nil {
				c.deliver(TypeError, tl.RoomID, ErrorPayload{Error: tl.Err.Error(), Code: "backend"})
				continue
			}
			c.deliver(TypeTimeline, tl.RoomID, tl)
		}
	}()
}

// deliver: очередная лента заменяет предыдущую, поэтому при переполнении кадр
// можно пропустить
func (c *Client) deliver(msgType MessageType, roomID string, data interface{}) {
	if err := c.SendMessage(msgType, roomID, data); err != nil && err != ErrClientClosed {
		c.log.WithError(err).WithField("type", string(msgType)).Warn("Dropped frame")
	}
}

// ReadPump читает сообщения от клиента
func (c *Client) ReadPump(handler ClientMessageHandler, report ErrorReporter) {
	defer func() {
		c.Close()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		err := c.Conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("WebSocket error")
			}
			break
		}

		switch msg.Type {
		case TypePong:
			continue
		case TypePing:
			c.deliver(TypePong, "", nil)
			continue
		}

		if err := handler.HandleMessage(c, &msg); err != nil {
			c.log.WithError(err).WithField("type", string(msg.Type)).Debug("Error handling message")
			c.deliver(TypeError, msg.RoomID, report(err))
		}
	}
}

// WritePump отправляет сообщения клиенту
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// клиент закрыт
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) SendMessage(msgType MessageType, roomID string, data interface{}) error {
	msg := Message{
		Type:      msgType,
		RoomID:    roomID,
		Timestamp: time.Now(),
	}

	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return err
		}
		msg.Data = jsonData
	}

	msgData, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.Send <- msgData:
		return nil
	default:
		return ErrClientQueueFull
	}
}

// Close снимает все подписки соединения и закрывает очередь отправки
func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()
		c.chat.Leave()
		c.directory.Close()
		c.wg.Wait()

		c.mu.Lock()
		c.closed = true
		close(c.Send)
		c.mu.Unlock()

		c.log.Debug("Client closed")
	})
}
