// Package realtime реализует канал push-уведомлений: реестр живых
// соединений пользователя и шифрованный фрейминг поверх websocket.
package realtime

import (
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/tasksync/internal/crypto"
	"github.com/iudanet/tasksync/pkg/api"
)

// ChannelState состояние машины рукопожатия одного соединения
type ChannelState int

// Состояния шифрованного канала
const (
	// StateUnencrypted шифрование выключено, фреймы проходят как есть.
	// Терминальное состояние, канал сразу готов.
	StateUnencrypted ChannelState = iota
	// StateAwaitingHandshake шифрование требуется, ждем подтверждения клиента
	StateAwaitingHandshake
	// StateReady рукопожатие завершено, фреймы шифруются
	StateReady
)

// ErrHandshake фатальная ошибка рукопожатия: соединение закрывается,
// частично доверенного состояния не существует
var ErrHandshake = errors.New("handshake failed")

// ErrNotReady фрейм пришел до завершения рукопожатия
var ErrNotReady = errors.New("channel not ready")

// Channel машина состояний шифрованного канала одного соединения.
// Экземпляр создается на соединение со своим ключевым материалом;
// никакого глобального состояния здесь нет.
type Channel struct {
	cipher        *crypto.FrameCipher
	serverNonce   string
	sessionSecret []byte
	state         ChannelState
}

// NewChannel creates a channel state machine for one connection.
// sessionSecret — ключевой материал, известный обеим сторонам
// (поставляется внешней подсистемой сессий). При required=false канал
// сразу готов и не трогает фреймы.
func NewChannel(sessionSecret []byte, required bool) *Channel {
	state := StateUnencrypted
	if required {
		state = StateAwaitingHandshake
	}
	return &Channel{
		sessionSecret: sessionSecret,
		state:         state,
	}
}

// State returns the current handshake state
func (ch *Channel) State() ChannelState {
	return ch.state
}

// Ready сообщает, можно ли передавать прикладные фреймы
func (ch *Channel) Ready() bool {
	return ch.state == StateUnencrypted || ch.state == StateReady
}

// Offer строит первый фрейм рукопожатия от сервера
func (ch *Channel) Offer() api.HandshakeOffer {
	return api.HandshakeOffer{
		Type:               api.FrameTypeHandshake,
		EncryptionRequired: ch.state == StateAwaitingHandshake,
	}
}

// Confirm обрабатывает ответ клиента на offer и завершает рукопожатие.
// Некорректное подтверждение — фатальная ошибка ErrHandshake: канал
// не переходит ни в какое частично доверенное состояние.
func (ch *Channel) Confirm(req api.HandshakeRequest) (*api.HandshakeResponse, error) {
	if req.Type != api.FrameTypeHandshake {
		return nil, fmt.Errorf("%w: unexpected frame type %q", ErrHandshake, req.Type)
	}

	// Шифрование для этого соединения выключено
	if ch.state == StateUnencrypted {
		return &api.HandshakeResponse{
			Type:              api.FrameTypeHandshake,
			Timestamp:         time.Now().Unix(),
			EncryptionEnabled: false,
		}, nil
	}

	if ch.state != StateAwaitingHandshake {
		return nil, fmt.Errorf("%w: handshake already completed", ErrHandshake)
	}

	if !req.Encryption {
		return nil, fmt.Errorf("%w: client refused required encryption", ErrHandshake)
	}

	serverNonce, err := crypto.GenerateHandshakeNonce()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	key, err := crypto.DeriveFrameKey(ch.sessionSecret, serverNonce, req.ClientNonce)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	cipher, err := crypto.NewFrameCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	ch.cipher = cipher
	ch.serverNonce = serverNonce
	ch.state = StateReady

	return &api.HandshakeResponse{
		Type:              api.FrameTypeHandshake,
		ServerNonce:       serverNonce,
		Timestamp:         time.Now().Unix(),
		EncryptionEnabled: true,
	}, nil
}

// SealFrame готовит исходящий прикладной фрейм: шифрует со свежим nonce
// либо пропускает без изменений для незашифрованного канала.
// Ошибка шифрования срывает доставку только этого сообщения.
func (ch *Channel) SealFrame(plaintext []byte) ([]byte, error) {
	switch ch.state {
	case StateUnencrypted:
		return plaintext, nil
	case StateReady:
		return ch.cipher.Seal(plaintext)
	default:
		return nil, ErrNotReady
	}
}

// OpenFrame обрабатывает входящий бинарный фрейм: расшифровывает и
// проверяет tag либо пропускает как есть. Ошибка расшифровки одного
// фрейма восстановимая: соединение остается открытым.
func (ch *Channel) OpenFrame(frame []byte) ([]byte, error) {
	switch ch.state {
	case StateUnencrypted:
		return frame, nil
	case StateReady:
		return ch.cipher.Open(frame)
	default:
		return nil, ErrNotReady
	}
}
