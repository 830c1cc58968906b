package api

// Типы контрольных фреймов realtime-канала
const (
	FrameTypeHandshake = "handshake"
	FrameTypeEvent     = "event"
	FrameTypeError     = "error"
)

// Типы событий, рассылаемых RealtimeHub
const (
	EventTaskChanged = "task_changed"
)

// HandshakeOffer первый фрейм от сервера после установки соединения.
// Объявляет, требуется ли шифрование для этого соединения.
type HandshakeOffer struct {
	Type               string `json:"type"` // всегда "handshake"
	EncryptionRequired bool   `json:"encryption_required"`
}

// HandshakeRequest ответ клиента на offer.
// Подтверждает способность клиента работать с шифрованием.
// ClientNonce участвует в выводе ключа соединения (base64).
type HandshakeRequest struct {
	Type        string `json:"type"` // всегда "handshake"
	ClientNonce string `json:"client_nonce,omitempty"`
	Encryption  bool   `json:"encryption"`
}

// HandshakeResponse завершающий фрейм рукопожатия от сервера.
// После него, при включенном шифровании, каждый бинарный фрейм
// несет nonce ‖ ciphertext ‖ tag.
type HandshakeResponse struct {
	Type              string `json:"type"` // всегда "handshake"
	ServerNonce       string `json:"server_nonce,omitempty"`
	Timestamp         int64  `json:"timestamp"`
	EncryptionEnabled bool   `json:"encryption_enabled"`
}

// Event уведомление об изменении, доставляемое живым репликам.
// Payload не содержит саму задачу: клиент забирает изменения обычной
// синхронизацией от своего курсора.
type Event struct {
	Type      string `json:"type"` // всегда "event"
	EventName string `json:"event_name"`
	TaskID    int64  `json:"task_id"`
	Version   int64  `json:"version"`
	ChangeSeq int64  `json:"change_seq"`
	Deleted   bool   `json:"deleted"`
}

// ErrorFrame ответ об ошибке уровня приложения (например, не удалось
// расшифровать входящий фрейм). Соединение при этом остается открытым.
type ErrorFrame struct {
	Type    string `json:"type"` // всегда "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Коды ошибок уровня приложения
const (
	ErrorCodeDecrypt = "frame_decrypt_failed"
	ErrorCodeBadJSON = "malformed_frame"
)
