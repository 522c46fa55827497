// Package wcbridge implements the payload encryption and bridge addressing of
// the WalletConnect v1 protocol.
//
// Encryption follows the legacy client: AES-256-CBC with PKCS#7 padding, an
// HMAC-SHA256 over ciphertext||iv, all fields hex encoded.
// https://github.com/WalletConnect/walletconnect-monorepo/blob/v1.0/packages/helpers/iso-crypto/src/index.ts
package wcbridge

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"moff.io/moff-wallet/pkg/errors"
)

const KeySize = 32

var (
	ErrBadHmac    = errors.New("inconsistent payload hmac")
	ErrBadPadding = errors.New("invalid payload padding")
)

// EncryptedPayload is the JSON body of a bridge "pub" message.
type EncryptedPayload struct {
	Data string `json:"data"`
	Hmac string `json:"hmac"`
	IV   string `json:"iv"`
}

func Aes256Encrypt(content, encryptionKey, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "create new cipher block")
	}
	plain := pkcs7Padding(content, aes.BlockSize)
	ciphertext := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plain)
	return ciphertext, nil
}

func Aes256Decrypt(cipherText, encryptionKey, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "create new cipher block")
	}
	if len(cipherText) == 0 || len(cipherText)%aes.BlockSize != 0 {
		return nil, ErrBadPadding
	}
	plain := make([]byte, len(cipherText))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, cipherText)
	return pkcs7Unpadding(plain, aes.BlockSize)
}

func pkcs7Padding(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpadding(data []byte, blockSize int) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, ErrBadPadding
	}
	padding := int(data[n-1])
	if padding == 0 || padding > blockSize || padding > n {
		return nil, ErrBadPadding
	}
	for _, b := range data[n-padding:] {
		if int(b) != padding {
			return nil, ErrBadPadding
		}
	}
	return data[:n-padding], nil
}

func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, errors.Wrap(err, "read random bytes")
	}
	return b, nil
}

func HmacSha256(data, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(data)
	return h.Sum(nil)
}

// Seal encrypts plain under key with a fresh iv.
func Seal(plain, key []byte) (*EncryptedPayload, error) {
	iv, err := GenerateRandomBytes(aes.BlockSize)
	if err != nil {
		return nil, err
	}
	data, err := Aes256Encrypt(plain, key, iv)
	if err != nil {
		return nil, err
	}
	mac := HmacSha256(append(append([]byte{}, data...), iv...), key)
	return &EncryptedPayload{
		Data: hex.EncodeToString(data),
		Hmac: hex.EncodeToString(mac),
		IV:   hex.EncodeToString(iv),
	}, nil
}

// Open verifies the hmac of p and decrypts it.
func Open(p *EncryptedPayload, key []byte) ([]byte, error) {
	iv, err := hex.DecodeString(p.IV)
	if err != nil {
		return nil, errors.Wrap(err, "decode iv hex")
	}
	data, err := hex.DecodeString(p.Data)
	if err != nil {
		return nil, errors.Wrap(err, "decode cipher hex")
	}
	mac, err := hex.DecodeString(p.Hmac)
	if err != nil {
		return nil, errors.Wrap(err, "decode hmac hex")
	}
	expected := HmacSha256(append(append([]byte{}, data...), iv...), key)
	if !hmac.Equal(mac, expected) {
		return nil, ErrBadHmac
	}
	return Aes256Decrypt(data, key, iv)
}
