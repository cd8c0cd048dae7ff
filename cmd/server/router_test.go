package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/cipherchat/internal/cache"
	"github.com/thereayou/cipherchat/internal/crypto"
	"github.com/thereayou/cipherchat/internal/database"
	"github.com/thereayou/cipherchat/internal/realtime"
	"github.com/thereayou/cipherchat/internal/services"
	ws "github.com/thereayou/cipherchat/internal/websocket"
	"github.com/thereayou/cipherchat/pkg/auth"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := realtime.NewHub()
	t.Cleanup(hub.Close)
	store := database.NewMemoryStore(hub)

	keys, err := crypto.NewStaticKeyProvider("test passphrase")
	require.NoError(t, err)

	r := gin.New()
	APIEndpoints(r, Deps{
		Store:    store,
		Keys:     keys,
		Secrets:  cache.MemoryFactory(),
		Identity: auth.NewProvider(store, auth.NewJWTManager("secret", time.Hour), auth.NewMemoryBlacklist()),
	})
	return r
}

type apiClient struct {
	t     *testing.T
	r     http.Handler
	token string
	uid   string
}

func (a apiClient) do(method, path string, body interface{}) (int, map[string]interface{}) {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)

	out := map[string]interface{}{}
	if w.Body.Len() > 0 && strings.HasPrefix(strings.TrimSpace(w.Body.String()), "{") {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func register(t *testing.T, r http.Handler, name, email string) apiClient {
	t.Helper()
	code, body := apiClient{t: t, r: r}.do(http.MethodPost, "/auth/register", map[string]string{
		"display_name": name,
		"email":        email,
		"password":     "correct horse",
	})
	require.Equal(t, http.StatusCreated, code, body)
	session := body["session"].(map[string]interface{})
	return apiClient{t: t, r: r, token: body["token"].(string), uid: session["uid"].(string)}
}

func TestHTTPRoomAndMessageFlow(t *testing.T) {
	r := newTestRouter(t)
	ada := register(t, r, "Ada", "ada@example.com")
	bob := register(t, r, "Bob", "bob@example.com")

	code, room := ada.do(http.MethodPost, "/api/v1/rooms", map[string]interface{}{"name": "general", "secret": "1234"})
	require.Equal(t, http.StatusCreated, code, room)
	assert.Equal(t, true, room["has_secret"])
	assert.Equal(t, "Ada", room["created_by"])
	assert.NotContains(t, room, "secret")
	roomID := room["id"].(string)

	code, body := ada.do(http.MethodPost, "/api/v1/rooms", map[string]interface{}{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation", body["code"])

	code, body = bob.do(http.MethodPost, "/api/v1/rooms/"+roomID+"/messages", map[string]interface{}{"text": "hi"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "secret_required", body["code"])

	code, body = bob.do(http.MethodPost, "/api/v1/rooms/"+roomID+"/enter", map[string]interface{}{"secret": "nope"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "wrong_secret", body["code"])

	code, body = bob.do(http.MethodPost, "/api/v1/rooms/"+roomID+"/enter", map[string]interface{}{"secret": "1234"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "granted", body["decision"])

	code, msg := bob.do(http.MethodPost, "/api/v1/rooms/"+roomID+"/messages", map[string]interface{}{"text": "hi", "is_code": true})
	require.Equal(t, http.StatusCreated, code, msg)
	assert.Equal(t, "hi", msg["text"])
	assert.Equal(t, true, msg["is_code"])
	assert.NotContains(t, msg, "iv")
	msgID := msg["id"].(string)

	code, timeline := ada.do(http.MethodGet, "/api/v1/rooms/"+roomID+"/messages", nil)
	require.Equal(t, http.StatusOK, code, timeline)
	groups := timeline["groups"].([]interface{})
	require.Len(t, groups, 1)
	entries := groups[0].(map[string]interface{})["entries"].([]interface{})
	require.Len(t, entries, 1)
	assert.Equal(t, "hi", entries[0].(map[string]interface{})["text"])

	code, body = ada.do(http.MethodPatch, "/api/v1/messages/"+msgID, map[string]interface{}{"text": "hijack"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", body["code"])

	code, body = bob.do(http.MethodPatch, "/api/v1/messages/"+msgID, map[string]interface{}{"text": "hi there"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "hi there", body["text"])
	assert.NotEmpty(t, body["edited_at"])

	code, body = bob.do(http.MethodPost, "/api/v1/messages/"+msgID+"/read", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Contains(t, body["read_by"], bob.uid)

	code, _ = bob.do(http.MethodDelete, "/api/v1/rooms/"+roomID, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = ada.do(http.MethodDelete, "/api/v1/rooms/"+roomID, nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, body = ada.do(http.MethodGet, "/api/v1/rooms/"+roomID+"/messages", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", body["code"])
}

func TestHTTPListRoomsFilter(t *testing.T) {
	r := newTestRouter(t)
	ada := register(t, r, "Ada", "ada@example.com")

	for _, name := range []string{"General", "random", "gen z"} {
		code, _ := ada.do(http.MethodPost, "/api/v1/rooms", map[string]interface{}{"name": name})
		require.Equal(t, http.StatusCreated, code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms?q=GEN", nil)
	req.Header.Set("Authorization", "Bearer "+ada.token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var rooms []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rooms))
	assert.Len(t, rooms, 2)
	for _, room := range rooms {
		assert.Contains(t, strings.ToLower(room["name"].(string)), "gen")
	}
}

func TestHTTPAuthFlow(t *testing.T) {
	r := newTestRouter(t)
	ada := register(t, r, "Ada", "ada@example.com")

	code, body := apiClient{t: t, r: r}.do(http.MethodPost, "/auth/register", map[string]string{
		"display_name": "Imposter",
		"email":        "ada@example.com",
		"password":     "correct horse",
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "email_taken", body["code"])

	code, body = apiClient{t: t, r: r}.do(http.MethodPost, "/auth/login", map[string]string{
		"email":    "ada@example.com",
		"password": "wrong horse",
	})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", body["code"])

	code, body = apiClient{t: t, r: r}.do(http.MethodPost, "/auth/login", map[string]string{
		"email":    "ada@example.com",
		"password": "correct horse",
	})
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body["token"])

	code, me := ada.do(http.MethodGet, "/api/v1/me", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Ada", me["display_name"])

	code, _ = ada.do(http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = ada.do(http.MethodGet, "/api/v1/me", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil пропускает кадры, пока match не вернет true
func readUntil(t *testing.T, conn *websocket.Conn, match func(ws.Message) bool) ws.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var frame ws.Message
		require.NoError(t, conn.ReadJSON(&frame))
		if match(frame) {
			return frame
		}
	}
}

func ofType(typ ws.MessageType) func(ws.Message) bool {
	return func(m ws.Message) bool { return m.Type == typ }
}

func timelineWith(texts ...string) func(ws.Message) bool {
	return func(m ws.Message) bool {
		if m.Type != ws.TypeTimeline {
			return false
		}
		var tl services.Timeline
		if err := json.Unmarshal(m.Data, &tl); err != nil {
			return false
		}
		entries := tl.Entries()
		if len(entries) != len(texts) {
			return false
		}
		for i, e := range entries {
			if e.Text != texts[i] {
				return false
			}
		}
		return true
	}
}

func send(t *testing.T, conn *websocket.Conn, typ ws.MessageType, roomID string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(ws.Message{Type: typ, RoomID: roomID, Data: raw}))
}

func TestWebSocketRoomSession(t *testing.T) {
	r := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ada := register(t, r, "Ada", "ada@example.com")
	bob := register(t, r, "Bob", "bob@example.com")

	adaConn := dial(t, srv, ada.token)
	readUntil(t, adaConn, ofType(ws.TypeRooms))

	send(t, adaConn, ws.TypeMessage, "", map[string]string{"text": "nowhere"})
	frame := readUntil(t, adaConn, ofType(ws.TypeError))
	assert.Contains(t, string(frame.Data), "no_active_room")

	send(t, adaConn, ws.TypeRoomCreate, "", map[string]interface{}{"name": "general", "secret": "1234"})
	joined := readUntil(t, adaConn, ofType(ws.TypeRoomJoined))
	roomID := joined.RoomID
	require.NotEmpty(t, roomID)

	send(t, adaConn, ws.TypeMessage, "", map[string]string{"text": "hello"})
	readUntil(t, adaConn, timelineWith("hello"))

	bobConn := dial(t, srv, bob.token)
	send(t, bobConn, ws.TypeRoomJoin, roomID, nil)
	frame = readUntil(t, bobConn, ofType(ws.TypeError))
	assert.Contains(t, string(frame.Data), "secret_required")

	send(t, bobConn, ws.TypeRoomJoin, roomID, map[string]string{"secret": "1234"})
	readUntil(t, bobConn, ofType(ws.TypeRoomJoined))
	readUntil(t, bobConn, timelineWith("hello"))

	send(t, bobConn, ws.TypeMessage, "", map[string]string{"text": "hi ada"})
	readUntil(t, adaConn, timelineWith("hello", "hi ada"))

	send(t, bobConn, ws.TypeRoomJoin, "missing-room", nil)
	frame = readUntil(t, bobConn, ofType(ws.TypeError))
	assert.Contains(t, string(frame.Data), "not_found")
}

func TestWebSocketRequiresToken(t *testing.T) {
	r := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTPDeleteRoomByNamesakeRejected(t *testing.T) {
	r := newTestRouter(t)
	ada := register(t, r, "Ada", "ada@example.com")
	eve := register(t, r, "Ada", "eve@example.com")

	code, room := ada.do(http.MethodPost, "/api/v1/rooms", map[string]interface{}{"name": "general", "secret": "1234"})
	require.Equal(t, http.StatusCreated, code)
	roomID := room["id"].(string)
	assert.Equal(t, ada.uid, room["creator_uid"])

	code, body := eve.do(http.MethodDelete, "/api/v1/rooms/"+roomID, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", body["code"])

	code, _ = ada.do(http.MethodPost, "/api/v1/rooms/"+roomID+"/enter", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = ada.do(http.MethodDelete, "/api/v1/rooms/"+roomID, nil)
	assert.Equal(t, http.StatusNoContent, code)
}

func TestHTTPMarkReadRequiresEntry(t *testing.T) {
	r := newTestRouter(t)
	ada := register(t, r, "Ada", "ada@example.com")
	eve := register(t, r, "Eve", "eve@example.com")

	code, room := ada.do(http.MethodPost, "/api/v1/rooms", map[string]interface{}{"name": "general", "secret": "1234"})
	require.Equal(t, http.StatusCreated, code)
	roomID := room["id"].(string)

	code, msg := ada.do(http.MethodPost, "/api/v1/rooms/"+roomID+"/messages", map[string]interface{}{"text": "hello"})
	require.Equal(t, http.StatusCreated, code)
	msgID := msg["id"].(string)

	code, body := eve.do(http.MethodPost, "/api/v1/messages/"+msgID+"/read", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "secret_required", body["code"])
	assert.NotContains(t, body, "read_by")

	code, body = ada.do(http.MethodPost, "/api/v1/messages/"+msgID+"/read", nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, body["read_by"], eve.uid)

	code, _ = eve.do(http.MethodPost, "/api/v1/rooms/"+roomID+"/enter", map[string]interface{}{"secret": "1234"})
	require.Equal(t, http.StatusOK, code)
	code, body = eve.do(http.MethodPost, "/api/v1/messages/"+msgID+"/read", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body["read_by"], eve.uid)
}
