package walletconnect

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSigner(t *testing.T) (*ecdsa.PrivateKey, string) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func personalSign(t *testing.T, key *ecdsa.PrivateKey, msg []byte) string {
	sig, err := crypto.Sign(accounts.TextHash(msg), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func TestVerifySignature(t *testing.T) {
	key, addr := newSigner(t)
	msg := []byte("Sign in to Moff")
	sig := personalSign(t, key, msg)

	assert.True(t, VerifySignature(addr, sig, msg))
	assert.True(t, VerifySignature(hexutil.Encode(crypto.PubkeyToAddress(key.PublicKey).Bytes()), sig, msg))
	assert.False(t, VerifySignature(addr, sig, []byte("other")))
	assert.False(t, VerifySignature("0x0000000000000000000000000000000000000001", sig, msg))
	assert.False(t, VerifySignature(addr, "0x1234", msg))
	assert.False(t, VerifySignature(addr, "not hex", msg))
}

func TestSignedMessage(t *testing.T) {
	assert.Equal(t, []byte("hello"), signedMessage("0x68656c6c6f"))
	assert.Equal(t, []byte("hello"), signedMessage("hello"))
	assert.Equal(t, []byte("0xzz"), signedMessage("0xzz"))
}
