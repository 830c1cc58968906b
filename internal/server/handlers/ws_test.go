package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/tasksync/internal/crypto"
	"github.com/iudanet/tasksync/internal/server/realtime"
	"github.com/iudanet/tasksync/pkg/api"
)

var wsTestSecret = []byte("ws-test-secret")

func signWSToken(t *testing.T, userID string) string {
	t.Helper()

	now := time.Now()
	claims := CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(wsTestSecret)
	require.NoError(t, err)
	return token
}

// setupWSServer поднимает hub и websocket-эндпоинт с проверкой токена,
// повторяя цепочку боевого сервера
func setupWSServer(t *testing.T, encryptionRequired bool) (*realtime.Hub, *httptest.Server) {
	t.Helper()

	hub := realtime.NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	wsHandler := NewWSHandler(testLogger(), hub, encryptionRequired)

	// Упрощенная auth-цепочка: валидация токена как в боевом middleware
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		tokenString := strings.TrimPrefix(auth, "Bearer ")
		claims, err := ValidateAccessToken(JWTConfig{Secret: wsTestSecret}, tokenString)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
		ctx = context.WithValue(ctx, TokenKey, tokenString)
		wsHandler.HandleWS(w, r.WithContext(ctx))
	})

	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		cancel()
		server.Close()
	})

	return hub, server
}

func dialWS(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

func TestWSHandler_EncryptedEventDelivery(t *testing.T) {
	hub, server := setupWSServer(t, true)

	token := signWSToken(t, "alice")
	conn := dialWS(t, server, token)

	// Сервер первым присылает offer с требованием шифрования
	var offer api.HandshakeOffer
	readFrame(t, conn, &offer)
	assert.Equal(t, api.FrameTypeHandshake, offer.Type)
	assert.True(t, offer.EncryptionRequired)

	confirm := api.HandshakeRequest{
		Type:        api.FrameTypeHandshake,
		ClientNonce: "test-client-nonce",
		Encryption:  true,
	}
	payload, err := json.Marshal(confirm)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))

	var resp api.HandshakeResponse
	readFrame(t, conn, &resp)
	assert.True(t, resp.EncryptionEnabled)
	require.NotEmpty(t, resp.ServerNonce)

	// Клиент выводит ключ из того же токена и пары nonce
	key, err := crypto.DeriveFrameKey([]byte(token), resp.ServerNonce, "test-client-nonce")
	require.NoError(t, err)
	cipher, err := crypto.NewFrameCipher(key)
	require.NoError(t, err)

	// Регистрация завершена после рукопожатия
	require.Eventually(t, func() bool { return hub.IsOnline("alice") }, time.Second, 10*time.Millisecond)

	hub.Notify("alice", api.Event{
		Type:      api.FrameTypeEvent,
		EventName: api.EventTaskChanged,
		TaskID:    7,
		Version:   2,
		ChangeSeq: 15,
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	msgType, sealed, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, msgType)

	// Фрейм зашифрован: в сыром виде события не видно
	assert.NotContains(t, string(sealed), "task_changed")

	opened, err := cipher.Open(sealed)
	require.NoError(t, err)

	var event api.Event
	require.NoError(t, json.Unmarshal(opened, &event))
	assert.Equal(t, api.EventTaskChanged, event.EventName)
	assert.Equal(t, int64(7), event.TaskID)
	assert.Equal(t, int64(15), event.ChangeSeq)
}

func TestWSHandler_RefusedEncryptionClosesConnection(t *testing.T) {
	hub, server := setupWSServer(t, true)

	token := signWSToken(t, "alice")
	conn := dialWS(t, server, token)

	var offer api.HandshakeOffer
	readFrame(t, conn, &offer)

	// Клиент отказывается от обязательного шифрования
	confirm := api.HandshakeRequest{Type: api.FrameTypeHandshake, Encryption: false}
	payload, err := json.Marshal(confirm)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))

	// Сервер закрывает соединение, не регистрируя его
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.False(t, hub.IsOnline("alice"))
}

func TestWSHandler_UnencryptedMode(t *testing.T) {
	hub, server := setupWSServer(t, false)

	token := signWSToken(t, "alice")
	conn := dialWS(t, server, token)

	var offer api.HandshakeOffer
	readFrame(t, conn, &offer)
	assert.False(t, offer.EncryptionRequired)

	confirm := api.HandshakeRequest{Type: api.FrameTypeHandshake, Encryption: true}
	payload, err := json.Marshal(confirm)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))

	var resp api.HandshakeResponse
	readFrame(t, conn, &resp)
	assert.False(t, resp.EncryptionEnabled)

	require.Eventually(t, func() bool { return hub.IsOnline("alice") }, time.Second, 10*time.Millisecond)

	hub.Notify("alice", api.Event{Type: api.FrameTypeEvent, EventName: api.EventTaskChanged, TaskID: 1})

	// Без шифрования событие приходит открытым бинарным фреймом
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var event api.Event
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, int64(1), event.TaskID)
}

func TestWSHandler_BadToken(t *testing.T) {
	_, server := setupWSServer(t, true)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{}
	header.Set("Authorization", "Bearer not-a-valid-token")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
