package walletconnect

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// fakeBridge is an in-memory v1 bridge: pubs go to the topic's subscribers
// or wait until someone subscribes.
type fakeBridge struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu     sync.Mutex
	subs   map[string][]*bridgeClient
	queued map[string][][]byte
}

type bridgeClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *bridgeClient) write(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.TextMessage, data)
}

func newFakeBridge(t *testing.T) *fakeBridge {
	b := &fakeBridge{
		subs:   make(map[string][]*bridgeClient),
		queued: make(map[string][][]byte),
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBridge) URL() string {
	return b.srv.URL
}

func (b *fakeBridge) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	client := &bridgeClient{conn: conn}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wcMessage
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		switch msg.Type {
		case "sub":
			b.mu.Lock()
			b.subs[msg.Topic] = append(b.subs[msg.Topic], client)
			pending := b.queued[msg.Topic]
			delete(b.queued, msg.Topic)
			b.mu.Unlock()
			for _, p := range pending {
				client.write(p)
			}
		case "pub":
			b.mu.Lock()
			subs := append([]*bridgeClient(nil), b.subs[msg.Topic]...)
			if len(subs) == 0 {
				b.queued[msg.Topic] = append(b.queued[msg.Topic], data)
			}
			b.mu.Unlock()
			for _, s := range subs {
				s.write(data)
			}
		}
	}
}
