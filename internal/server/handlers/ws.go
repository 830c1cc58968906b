package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/iudanet/tasksync/internal/server/realtime"
)

// WSHandler поднимает websocket-соединение realtime-канала:
// upgrade → рукопожатие шифрования → регистрация в hub.
type WSHandler struct {
	logger   *slog.Logger
	hub      *realtime.Hub
	upgrader websocket.Upgrader

	// encryptionRequired требует шифрование фреймов для всех соединений
	encryptionRequired bool
}

// NewWSHandler creates a new realtime websocket handler
func NewWSHandler(logger *slog.Logger, hub *realtime.Hub, encryptionRequired bool) *WSHandler {
	return &WSHandler{
		logger: logger,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		encryptionRequired: encryptionRequired,
	}
}

// HandleWS обрабатывает GET /api/v1/ws
// Ключевым материалом соединения служит bearer-токен сессии: он известен
// обеим сторонам, обе выводят из него ключ фреймов через HKDF с nonce
// рукопожатия. Никакого глобального менеджера ключей нет.
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.logger.Error("User ID not found in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token, ok := GetToken(r.Context())
	if !ok {
		h.logger.Error("Token not found in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "user_id", userID)
		return
	}

	channel := realtime.NewChannel([]byte(token), h.encryptionRequired)
	conn := realtime.NewConn(h.hub, ws, channel, h.logger, userID)

	// Рукопожатие до регистрации: ошибка фатальна, соединение
	// закрывается и в реестр не попадает
	if err := conn.Handshake(); err != nil {
		if errors.Is(err, realtime.ErrHandshake) {
			h.logger.Warn("handshake failed", "error", err, "user_id", userID)
		} else {
			h.logger.Error("handshake error", "error", err, "user_id", userID)
		}
		_ = ws.Close()
		return
	}

	h.hub.Register(conn)
	conn.Serve()
}
