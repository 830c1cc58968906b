package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

const (
	// NonceSize - размер nonce для AES-GCM (12 bytes стандартный размер)
	NonceSize = 12
	// KeySize - размер ключа AES-256 в байтах
	KeySize = 32
)

// FrameCipher шифрует и расшифровывает отдельные фреймы realtime-канала
// с использованием AES-256-GCM. Экземпляр создается на соединение с его
// ключевым материалом — никакого глобального менеджера ключей нет.
// Формат фрейма: nonce (12 bytes) + ciphertext + auth_tag (16 bytes).
type FrameCipher struct {
	aead cipher.AEAD
}

// NewFrameCipher creates a cipher instance bound to a 32-byte key
func NewFrameCipher(key []byte) (*FrameCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &FrameCipher{aead: aead}, nil
}

// Seal шифрует один фрейм со свежим случайным nonce.
// GCM автоматически добавляет authentication tag в конец.
func (c *FrameCipher) Seal(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("plaintext cannot be empty")
	}

	// Каждый фрейм шифруется со своим свежим nonce
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := c.aead.Seal(nil, nonce, plaintext, nil)

	// Формируем результат: nonce + ciphertext + auth_tag
	result := make([]byte, 0, len(nonce)+len(ciphertext))
	result = append(result, nonce...)
	result = append(result, ciphertext...)

	return result, nil
}

// Open расшифровывает один фрейм и проверяет authentication tag.
// Любое искажение ciphertext или tag дает ошибку.
func (c *FrameCipher) Open(frame []byte) ([]byte, error) {
	if len(frame) < NonceSize+c.aead.Overhead() {
		return nil, fmt.Errorf("encrypted frame too short")
	}

	nonce := frame[:NonceSize]
	ciphertext := frame[NonceSize:]

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: authentication failed or corrupted data: %w", err)
	}

	return plaintext, nil
}
