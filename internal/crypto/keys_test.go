package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateHandshakeNonce(t *testing.T) {
	first, err := GenerateHandshakeNonce()
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(first)
	require.NoError(t, err)
	assert.Len(t, decoded, HandshakeNonceSize)

	second, err := GenerateHandshakeNonce()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestDeriveFrameKey(t *testing.T) {
	secret := []byte("bearer-token-as-session-secret")

	key, err := DeriveFrameKey(secret, "server-nonce", "client-nonce")
	require.NoError(t, err)
	assert.Len(t, key, KeySize)

	// Вывод детерминированный: обе стороны получают одинаковый ключ
	same, err := DeriveFrameKey(secret, "server-nonce", "client-nonce")
	require.NoError(t, err)
	assert.Equal(t, key, same)
}

func TestDeriveFrameKey_DifferentInputs(t *testing.T) {
	secret := []byte("bearer-token-as-session-secret")

	base, err := DeriveFrameKey(secret, "server-nonce", "client-nonce")
	require.NoError(t, err)

	otherSecret, err := DeriveFrameKey([]byte("another token"), "server-nonce", "client-nonce")
	require.NoError(t, err)
	assert.NotEqual(t, base, otherSecret)

	// Nonce другого соединения дает другой ключ при том же секрете
	otherNonce, err := DeriveFrameKey(secret, "other-server-nonce", "client-nonce")
	require.NoError(t, err)
	assert.NotEqual(t, base, otherNonce)
}

func TestDeriveFrameKey_Validation(t *testing.T) {
	_, err := DeriveFrameKey(nil, "server-nonce", "client-nonce")
	assert.Error(t, err)

	_, err = DeriveFrameKey([]byte("secret"), "", "client-nonce")
	assert.Error(t, err)
}
