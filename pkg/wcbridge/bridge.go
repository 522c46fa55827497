package wcbridge

import (
	"fmt"
	"math/rand"
	"net/url"
	"strings"
)

const (
	alphanumerical  = "abcdefghijklmnopqrstuvwxyz0123456789"
	bridgeURLFormat = "https://%v.bridge.walletconnect.org"
)

// RandomBridgeURL picks one of the public v1 bridge shards.
func RandomBridgeURL() string {
	c := alphanumerical[rand.Intn(len(alphanumerical))]
	return fmt.Sprintf(bridgeURLFormat, string(c))
}

// WebSocketURL converts a bridge http(s) URL into the websocket endpoint.
func WebSocketURL(bridge, protocol, version string) string {
	switch {
	case strings.HasPrefix(bridge, "https://"):
		bridge = "wss://" + strings.TrimPrefix(bridge, "https://")
	case strings.HasPrefix(bridge, "http://"):
		bridge = "ws://" + strings.TrimPrefix(bridge, "http://")
	}
	q := url.Values{}
	q.Set("protocol", protocol)
	q.Set("version", version)
	q.Set("env", "wallet")
	sep := "?"
	if strings.Contains(bridge, "?") {
		sep = "&"
	}
	return bridge + sep + q.Encode()
}
