package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	iv := []byte("fedcba9876543210")
	for _, msg := range []string{"", "short", `{"title":"Alarm Ringing!","body":"Scan your QR code to stop."}`, "exactly16bytes!!"} {
		enc, err := EncryptToBase64([]byte(msg), key, iv)
		require.NoError(t, err)
		dec, err := DecryptFromBase64(enc, key, iv)
		require.NoError(t, err)
		assert.Equal(t, msg, string(dec))
	}
}

func TestEncrypt_RejectsBadKey(t *testing.T) {
	_, err := EncryptToBase64([]byte("x"), []byte("short"), []byte("fedcba9876543210"))
	assert.Error(t, err)
	_, err = EncryptToBase64([]byte("x"), []byte("0123456789abcdef"), []byte("short"))
	assert.Error(t, err)
}

func TestGenerateString(t *testing.T) {
	s, err := GenerateString(32)
	require.NoError(t, err)
	assert.Len(t, []rune(s), 32)
	_, err = GenerateString(0)
	assert.Error(t, err)
}
