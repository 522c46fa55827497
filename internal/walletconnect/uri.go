package walletconnect

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/wcbridge"
)

var ErrInvalidURI = errors.New("invalid walletconnect uri")

// URI is a parsed EIP-1328 WalletConnect URI,
// wc:<topic>@<version>?<params>.
type URI struct {
	Topic   string
	Version int

	// v1
	Bridge string
	Key    []byte

	// v2
	SymKey        string
	RelayProtocol string
}

func ParseURI(s string) (*URI, error) {
	if !strings.HasPrefix(s, "wc:") {
		return nil, errors.Wrap(ErrInvalidURI, "missing wc: scheme")
	}
	body := strings.TrimPrefix(s, "wc:")
	path, rawQuery, _ := strings.Cut(body, "?")
	topic, version, found := strings.Cut(path, "@")
	if !found || topic == "" {
		return nil, errors.Wrap(ErrInvalidURI, "missing topic or version")
	}
	v, err := strconv.Atoi(version)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidURI, "bad version %q", version)
	}
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidURI, err.Error())
	}

	u := &URI{Topic: topic, Version: v}
	switch v {
	case 1:
		u.Bridge = q.Get("bridge")
		if u.Bridge == "" {
			return nil, errors.Wrap(ErrInvalidURI, "missing bridge")
		}
		key, err := hex.DecodeString(q.Get("key"))
		if err != nil || len(key) != wcbridge.KeySize {
			return nil, errors.Wrap(ErrInvalidURI, "bad key")
		}
		u.Key = key
	case 2:
		u.SymKey = q.Get("symKey")
		u.RelayProtocol = q.Get("relay-protocol")
		if u.SymKey == "" || u.RelayProtocol == "" {
			return nil, errors.Wrap(ErrInvalidURI, "missing symKey or relay-protocol")
		}
	default:
		return nil, errors.Wrapf(ErrInvalidURI, "unsupported version %d", v)
	}
	return u, nil
}

func (u *URI) String() string {
	if u.Version == 1 {
		return fmt.Sprintf("wc:%s@1?bridge=%s&key=%s",
			u.Topic, url.QueryEscape(u.Bridge), hex.EncodeToString(u.Key))
	}
	return fmt.Sprintf("wc:%s@%d?relay-protocol=%s&symKey=%s",
		u.Topic, u.Version, url.QueryEscape(u.RelayProtocol), u.SymKey)
}
