package wcbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	key, err := GenerateRandomBytes(KeySize)
	require.NoError(t, err)

	plain := []byte(`{"id":1,"jsonrpc":"2.0","method":"wc_sessionRequest","params":[]}`)
	sealed, err := Seal(plain, key)
	require.NoError(t, err)

	opened, err := Open(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, plain, opened)
}

func TestOpenRejectsTamperedHmac(t *testing.T) {
	key, _ := GenerateRandomBytes(KeySize)
	sealed, err := Seal([]byte("payload"), key)
	require.NoError(t, err)

	flipped := byte('0')
	if sealed.Hmac[0] == '0' {
		flipped = '1'
	}
	sealed.Hmac = string(flipped) + sealed.Hmac[1:]
	_, err = Open(sealed, key)
	assert.ErrorIs(t, err, ErrBadHmac)
}

func TestOpenWithWrongKey(t *testing.T) {
	key, _ := GenerateRandomBytes(KeySize)
	other, _ := GenerateRandomBytes(KeySize)
	sealed, err := Seal([]byte("payload"), key)
	require.NoError(t, err)

	_, err = Open(sealed, other)
	assert.ErrorIs(t, err, ErrBadHmac)
}

func TestPaddingOnBlockBoundary(t *testing.T) {
	key, _ := GenerateRandomBytes(KeySize)
	iv, _ := GenerateRandomBytes(16)
	plain := []byte("0123456789abcdef")

	ct, err := Aes256Encrypt(plain, key, iv)
	require.NoError(t, err)
	assert.Len(t, ct, 32)

	out, err := Aes256Decrypt(ct, key, iv)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestWebSocketURL(t *testing.T) {
	assert.Equal(t, "wss://a.bridge.walletconnect.org?env=wallet&protocol=wc&version=1",
		WebSocketURL("https://a.bridge.walletconnect.org", "wc", "1"))
	assert.Equal(t, "ws://127.0.0.1:9000?env=wallet&protocol=wc&version=1",
		WebSocketURL("http://127.0.0.1:9000", "wc", "1"))
}
