package common

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// NewCutUUIDString returns a uuid string without `-`.
func NewCutUUIDString() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// SHA256HexString returns the hex encoded SHA256 hash of buf.
func SHA256HexString(buf []byte) string {
	h := sha256.Sum256(buf)
	return hex.EncodeToString(h[:])
}

func MustGetJSONString(m interface{}) string {
	if m == nil {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		log.Error(err)
		return "{}"
	}
	return string(data)
}

// TrimIP drops the port from a host:port address.
func TrimIP(ip string) string {
	if host, _, found := cutLast(ip, ":"); found {
		return strings.Trim(host, "[]")
	}
	return ip
}

func cutLast(s, sep string) (before, after string, found bool) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}

// Shorten keeps the first and last n runes of s, e.g. 0x12…cdef.
func Shorten(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= 2*n {
		return s
	}
	return string(r[:n]) + "…" + string(r[len(r)-n:])
}
