package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iudanet/tasksync/pkg/api"
)

const (
	// writeWait дедлайн на одну запись в сокет.
	// Превышение помечает соединение мертвым — это единственный
	// механизм таймаута/отмены в realtime-канале.
	writeWait = 10 * time.Second

	// pongWait сколько ждем pong от клиента
	pongWait = 60 * time.Second

	// pingPeriod период отправки ping, должен быть меньше pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize максимальный размер входящего фрейма
	maxMessageSize = 64 * 1024

	// sendBufferSize размер исходящего буфера соединения.
	// Переполнение означает медленного читателя: hub выбрасывает
	// такое соединение вместо блокировки управляющего цикла.
	sendBufferSize = 32

	// handshakeWait сколько ждем подтверждение рукопожатия от клиента
	handshakeWait = 15 * time.Second
)

// Conn одно живое исходящее соединение пользователя.
// Владеет собственным write-путем с ограниченной очередью, поэтому
// не может затормозить ни управляющий цикл hub, ни другие соединения.
type Conn struct {
	ws      *websocket.Conn
	channel *Channel
	hub     *Hub
	logger  *slog.Logger

	id     string
	userID string

	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

// NewConn creates a connection wrapper over an upgraded websocket
func NewConn(hub *Hub, ws *websocket.Conn, channel *Channel, logger *slog.Logger, userID string) *Conn {
	id := uuid.NewString()
	return &Conn{
		ws:      ws,
		channel: channel,
		hub:     hub,
		logger:  logger.With("conn_id", id, "user_id", userID),
		id:      id,
		userID:  userID,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
	}
}

// Handshake выполняет рукопожатие шифрования поверх открытого сокета.
// Offer и подтверждение ходят открытыми контрольными фреймами; после
// успеха все последующие бинарные фреймы шифруются (если требуется).
// Любая ошибка фатальна: частично доверенного состояния не бывает.
func (c *Conn) Handshake() error {
	offer := c.channel.Offer()
	if err := c.writeControl(offer); err != nil {
		return fmt.Errorf("%w: failed to send offer: %v", ErrHandshake, err)
	}

	if err := c.ws.SetReadDeadline(time.Now().Add(handshakeWait)); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return fmt.Errorf("%w: no confirmation from client: %v", ErrHandshake, err)
	}

	var req api.HandshakeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("%w: malformed confirmation: %v", ErrHandshake, err)
	}

	resp, err := c.channel.Confirm(req)
	if err != nil {
		return err
	}

	if err := c.writeControl(resp); err != nil {
		return fmt.Errorf("%w: failed to send response: %v", ErrHandshake, err)
	}

	c.logger.Info("handshake completed", "encryption", resp.EncryptionEnabled)
	return nil
}

// Serve запускает насосы чтения и записи. Блокируется до разрыва
// соединения, после чего снимает регистрацию в hub.
func (c *Conn) Serve() {
	go c.writePump()
	c.readPump()
}

// writePump единственная горутина, пишущая в сокет.
// Ping/pong ходят открытыми контрольными фреймами и шифрованию
// не подлежат.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case payload := <-c.send:
			frame, err := c.channel.SealFrame(payload)
			if err != nil {
				// Ошибка шифрования срывает только это сообщение
				c.logger.Error("failed to seal frame", "error", err)
				continue
			}

			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.teardown("set write deadline", err)
				return
			}
			if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.teardown("write frame", err)
				return
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.teardown("set write deadline", err)
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.teardown("write ping", err)
				return
			}
		}
	}
}

// readPump читает входящие фреймы до разрыва соединения.
// Ошибка расшифровки одного фрейма восстановимая: клиенту уходит
// error-фрейм, соединение остается открытым.
func (c *Conn) readPump() {
	defer c.hub.Unregister(c)

	c.ws.SetReadLimit(maxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("connection read failed", "error", err)
			}
			return
		}

		if msgType != websocket.BinaryMessage && msgType != websocket.TextMessage {
			continue
		}

		payload, err := c.channel.OpenFrame(raw)
		if err != nil {
			c.logger.Warn("failed to open inbound frame", "error", err)
			c.enqueueError(api.ErrorCodeDecrypt, "failed to decrypt frame")
			continue
		}

		c.handleInbound(payload)
	}
}

// handleInbound интерпретирует расшифрованный прикладной фрейм
func (c *Conn) handleInbound(payload []byte) {
	var frame struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &frame); err != nil {
		c.enqueueError(api.ErrorCodeBadJSON, "malformed frame")
		return
	}

	// Входящих команд протокол пока не определяет: клиент забирает
	// изменения обычной синхронизацией. Неизвестные фреймы логируем.
	c.logger.Debug("inbound frame ignored", "type", frame.Type)
}

// enqueueError ставит error-фрейм в исходящую очередь best-effort
func (c *Conn) enqueueError(code, message string) {
	payload, err := json.Marshal(api.ErrorFrame{
		Type:    api.FrameTypeError,
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}

	select {
	case c.send <- payload:
	default:
		// Очередь забита — error-фрейм не критичен, пропускаем
	}
}

// writeControl пишет открытый контрольный фрейм (текстом, без шифрования)
func (c *Conn) writeControl(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// teardown помечает соединение мертвым после просроченной записи
// и снимает его регистрацию
func (c *Conn) teardown(op string, err error) {
	c.logger.Warn("connection torn down", "op", op, "error", err)
	c.hub.Unregister(c)
}

// close освобождает ресурсы соединения. Вызывается только управляющим
// циклом hub при снятии регистрации.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}
