package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrimIP(t *testing.T) {
	assert.Equal(t, "10.0.0.1", TrimIP("10.0.0.1:5432"))
	assert.Equal(t, "::1", TrimIP("[::1]:8080"))
	assert.Equal(t, "localhost", TrimIP("localhost"))
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "0x12…5678", Shorten("0x1234567890abcdef12345678", 4))
	assert.Equal(t, "short", Shorten("short", 4))
}

func TestMustGetJSONString(t *testing.T) {
	assert.Equal(t, "{}", MustGetJSONString(nil))
	assert.Equal(t, `{"a":1}`, MustGetJSONString(map[string]int{"a": 1}))
}

func TestNewCutUUIDString(t *testing.T) {
	id := NewCutUUIDString()
	assert.Len(t, id, 32)
	assert.NotContains(t, id, "-")
}

func TestSHA256HexString(t *testing.T) {
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", SHA256HexString([]byte("hello")))
}
