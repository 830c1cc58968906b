package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// HandshakeNonceSize - размер nonce рукопожатия в байтах
	HandshakeNonceSize = 32
)

// frameKeyInfo context string вывода ключа фреймов
const frameKeyInfo = "tasksync-frame-v1"

// GenerateHandshakeNonce генерирует криптографически случайный nonce
// для рукопожатия и возвращает его в Base64 для передачи в JSON-фрейме
func GenerateHandshakeNonce() (string, error) {
	nonce := make([]byte, HandshakeNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate handshake nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(nonce), nil
}

// DeriveFrameKey выводит ключ шифрования фреймов для одного соединения.
// HKDF-SHA256 от секрета сессии, соль — оба nonce рукопожатия (base64),
// поэтому ключ уникален для каждого соединения даже с одним секретом.
func DeriveFrameKey(sessionSecret []byte, serverNonce, clientNonce string) ([]byte, error) {
	if len(sessionSecret) == 0 {
		return nil, fmt.Errorf("session secret cannot be empty")
	}
	if serverNonce == "" {
		return nil, fmt.Errorf("server nonce cannot be empty")
	}

	salt := make([]byte, 0, len(serverNonce)+len(clientNonce))
	salt = append(salt, serverNonce...)
	salt = append(salt, clientNonce...)

	reader := hkdf.New(sha256.New, sessionSecret, salt, []byte(frameKeyInfo))

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive frame key: %w", err)
	}

	return key, nil
}
