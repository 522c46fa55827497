package walletconnect

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"

	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
	"moff.io/moff-wallet/pkg/wcbridge"
)

var (
	errSessionClosed = errors.New("session closed")
	errConnClosed    = errors.New("bridge connection closed")
)

// bridgeConn is one websocket to a v1 bridge, carrying messages encrypted
// with a single session key. Writes may come from any goroutine, reads from
// one. With a read timeout set the connection pings the bridge and each
// pong extends the read deadline, so an idle session stays open while the
// bridge answers.
type bridgeConn struct {
	conn        *websocket.Conn
	key         []byte
	readTimeout time.Duration

	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}
}

func dialBridge(ctx context.Context, bridgeURL string, key []byte, readTimeout time.Duration) (*bridgeConn, error) {
	wsURL := wcbridge.WebSocketURL(bridgeURL, "wc", "1")
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "dial to wallet connect bridge url")
	}
	c := &bridgeConn{conn: conn, key: key, readTimeout: readTimeout, done: make(chan struct{})}
	if readTimeout > 0 {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})
		go c.keepAlive(readTimeout / 2)
	}
	return c, nil
}

func (c *bridgeConn) close() {
	if c.closed.CAS(false, true) {
		close(c.done)
		c.conn.Close()
	}
}

func (c *bridgeConn) keepAlive(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(period)); err != nil {
				log.Debugf("wallet connect - ping bridge:%v", err)
				return
			}
		}
	}
}

func (c *bridgeConn) send(msg wcMessage) error {
	if c.closed.Load() {
		return errConnClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, msg.Marshal()); err != nil {
		return errors.Wrap(err, "write wallet connect message to server")
	}
	return nil
}

func (c *bridgeConn) subscribe(topic string) error {
	log.Debugf("wallet connect - subscribe topic:%v", topic)
	return c.send(wcMessage{Topic: topic, Type: "sub", Silent: true})
}

func (c *bridgeConn) ack(topic string) error {
	return c.send(wcMessage{Topic: topic, Type: "ack", Silent: true})
}

// publish encrypts jsonRpc and sends it to topic.
func (c *bridgeConn) publish(topic, jsonRpc string, silent bool) error {
	payload, err := wcbridge.Seal([]byte(jsonRpc), c.key)
	if err != nil {
		return err
	}
	log.Debugf("wallet connect - publish to %v:%v", topic, jsonRpc)
	return c.send(wcMessage{Topic: topic, Type: "pub", Payload: marshalPayload(payload), Silent: silent})
}

func (c *bridgeConn) decrypt(msg *wcMessage) (string, error) {
	mp, err := newEncryptedPayloadFromString(msg.Payload)
	if err != nil {
		return "", err
	}
	data, err := wcbridge.Open(mp, c.key)
	if err != nil {
		return "", errors.Wrap(err, "open session message")
	}
	return string(data), nil
}

// read blocks for the next pub message and returns its topic and decrypted
// JSON-RPC payload. A dapp closing the session yields errSessionClosed.
func (c *bridgeConn) read() (topic string, payload string, err error) {
	for {
		if c.readTimeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
				return "", "", errors.Wrap(err, "set websocket read timeout")
			}
		}
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return "", "", errConnClosed
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", "", errSessionClosed
			}
			return "", "", errors.Wrap(err, "read session message")
		}
		if msgType != websocket.TextMessage {
			continue
		}
		msg, err := newWCMessageFromBytes(data)
		if err != nil {
			return "", "", err
		}
		if msg.Type != "pub" {
			continue
		}
		if err := c.ack(msg.Topic); err != nil {
			return "", "", err
		}
		payload, err := c.decrypt(msg)
		if err != nil {
			return "", "", err
		}
		if checkSessionUpdate(payload) {
			return msg.Topic, payload, errSessionClosed
		}
		return msg.Topic, payload, nil
	}
}

// checkSessionUpdate reports whether jsonRpc is a wc_sessionUpdate closing
// the session.
func checkSessionUpdate(jsonRpc string) (sessionClosed bool) {
	if gjson.Get(jsonRpc, "method").String() != "wc_sessionUpdate" {
		return false
	}
	params := gjson.Get(jsonRpc, "params").Array()
	if len(params) == 0 {
		return false
	}
	approved := params[0].Get("approved")
	if !approved.Exists() || approved.Bool() {
		return false
	}
	log.Warnf("wallet connect - session closed from request %v", jsonRpc)
	return true
}
