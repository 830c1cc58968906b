package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iudanet/tasksync/internal/crypto"
	"github.com/iudanet/tasksync/internal/retry"
	"github.com/iudanet/tasksync/pkg/api"
)

// handshakeTimeout сколько ждем фреймы рукопожатия от сервера
const handshakeTimeout = 15 * time.Second

// EventHandler вызывается на каждое событие realtime-канала
type EventHandler func(event api.Event)

// Watcher держит realtime-соединение с сервером и переподключается
// с экспоненциальной задержкой при разрывах
type Watcher struct {
	logger  *slog.Logger
	backoff retry.Policy
	handler EventHandler
	wsURL   string
	token   string
}

// NewWatcher создает watcher realtime-канала.
// baseURL — HTTP адрес сервера, преобразуется в ws:// или wss://.
func NewWatcher(logger *slog.Logger, baseURL, accessToken string, handler EventHandler) *Watcher {
	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/api/v1/ws"
	return &Watcher{
		logger:  logger,
		backoff: retry.DefaultBackoff(),
		handler: handler,
		wsURL:   wsURL,
		token:   accessToken,
	}
}

// Run подключается и слушает события до отмены контекста.
// Разрыв соединения — повод переподключиться, а не ошибка: клиент
// потом догонит изменения обычной синхронизацией от своего курсора.
func (w *Watcher) Run(ctx context.Context) error {
	attempt := 0

	for {
		established, err := w.connectAndListen(ctx)
		if err != nil {
			w.logger.Warn("realtime connection lost", "error", err, "attempt", attempt)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Пережившее рукопожатие соединение сбрасывает счетчик:
		// разрыв после долгой стабильной сессии не должен ждать MaxDelay
		if established {
			attempt = 0
		}

		delay := w.backoff.NextDelay(attempt)
		attempt++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// connectAndListen одно подключение: dial, рукопожатие, чтение событий.
// established=true, когда рукопожатие завершилось и соединение дожило
// до фазы чтения событий.
func (w *Watcher) connectAndListen(ctx context.Context) (bool, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+w.token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, w.wsURL, header)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return false, fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	cipher, err := w.handshake(conn)
	if err != nil {
		return false, err
	}

	w.logger.Info("realtime connected", "encrypted", cipher != nil)

	// Закрываем сокет при отмене контекста, чтобы прервать чтение
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	return true, w.listen(conn, cipher)
}

// handshake выполняет клиентскую сторону рукопожатия шифрования.
// Возвращает nil cipher, если сервер не включил шифрование.
func (w *Watcher) handshake(conn *websocket.Conn) (*crypto.FrameCipher, error) {
	if err := conn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return nil, err
	}

	var offer api.HandshakeOffer
	if err := readJSON(conn, &offer); err != nil {
		return nil, fmt.Errorf("failed to read handshake offer: %w", err)
	}
	if offer.Type != api.FrameTypeHandshake {
		return nil, fmt.Errorf("unexpected first frame type %q", offer.Type)
	}

	clientNonce := uuid.NewString()
	confirm := api.HandshakeRequest{
		Type:        api.FrameTypeHandshake,
		ClientNonce: clientNonce,
		Encryption:  true,
	}
	if err := writeJSON(conn, confirm); err != nil {
		return nil, fmt.Errorf("failed to send handshake confirmation: %w", err)
	}

	var hsResp api.HandshakeResponse
	if err := readJSON(conn, &hsResp); err != nil {
		return nil, fmt.Errorf("failed to read handshake response: %w", err)
	}

	// Сбрасываем дедлайн рукопожатия
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}

	if !hsResp.EncryptionEnabled {
		return nil, nil
	}

	// Обе стороны выводят один ключ из токена сессии и пары nonce
	key, err := crypto.DeriveFrameKey([]byte(w.token), hsResp.ServerNonce, clientNonce)
	if err != nil {
		return nil, fmt.Errorf("failed to derive frame key: %w", err)
	}

	return crypto.NewFrameCipher(key)
}

// listen читает и обрабатывает фреймы до разрыва соединения
func (w *Watcher) listen(conn *websocket.Conn, cipher *crypto.FrameCipher) error {
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}

		payload := raw
		if cipher != nil && msgType == websocket.BinaryMessage {
			payload, err = cipher.Open(raw)
			if err != nil {
				// Искаженный фрейм не роняет соединение
				w.logger.Warn("failed to decrypt frame", "error", err)
				continue
			}
		}

		w.dispatch(payload)
	}
}

// dispatch разбирает прикладной фрейм и вызывает handler для событий
func (w *Watcher) dispatch(payload []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		w.logger.Warn("malformed frame from server", "error", err)
		return
	}

	switch head.Type {
	case api.FrameTypeEvent:
		var event api.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			w.logger.Warn("malformed event frame", "error", err)
			return
		}
		w.handler(event)

	case api.FrameTypeError:
		var errFrame api.ErrorFrame
		if err := json.Unmarshal(payload, &errFrame); err != nil {
			return
		}
		w.logger.Warn("server reported error", "code", errFrame.Code, "message", errFrame.Message)

	default:
		w.logger.Debug("frame ignored", "type", head.Type)
	}
}

func readJSON(conn *websocket.Conn, v any) error {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func writeJSON(conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}
