package walletconnect

import (
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/atomic"

	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
	"moff.io/moff-wallet/pkg/wcbridge"
)

// Wallet is what a wallet shares with a dapp when it approves a session.
type Wallet struct {
	Meta     ClientMeta `json:"peerMeta"`
	ChainID  int        `json:"chainId"`
	Accounts []string   `json:"accounts"`
	PeerID   string     `json:"peerId"`

	// approved or rejected
	approved bool
	// signed or rejected
	signed bool
}

func (in *Wallet) Confirmed() bool {
	return in.approved && in.signed
}

func (in *Wallet) Approved() bool {
	return in.approved
}

func (in *Wallet) Signed() bool {
	return in.signed
}

// ClientMeta describes a peer, dapp or wallet.
type ClientMeta struct {
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
	Name        string   `json:"name"`
}

// Icon returns the first icon or an empty string.
func (m ClientMeta) Icon() string {
	if len(m.Icons) == 0 {
		return ""
	}
	return m.Icons[0]
}

type peer struct {
	PeerID   string      `json:"peerId"`
	PeerMeta ClientMeta  `json:"peerMeta"`
	ChainID  interface{} `json:"chainId"`
}

// sessionResult is the result of a wc_sessionRequest call.
type sessionResult struct {
	Approved  bool       `json:"approved"`
	ChainID   int        `json:"chainId"`
	NetworkID int        `json:"networkId"`
	Accounts  []string   `json:"accounts"`
	RPCURL    string     `json:"rpcUrl"`
	PeerID    string     `json:"peerId"`
	PeerMeta  ClientMeta `json:"peerMeta"`
}

type sessionUpdate struct {
	Approved  bool     `json:"approved"`
	ChainID   int      `json:"chainId"`
	NetworkID int      `json:"networkId"`
	Accounts  []string `json:"accounts"`
}

// wcMessage is the envelope exchanged with the bridge.
type wcMessage struct {
	Topic string `json:"topic"`
	// pub, sub or ack
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

func newWCMessageFromBytes(data []byte) (*wcMessage, error) {
	var msg wcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, "unmarshal wallet connect message")
	}
	return &msg, nil
}

func (msg *wcMessage) Marshal() []byte {
	bytes, _ := json.Marshal(msg)
	return bytes
}

func newEncryptedPayloadFromString(s string) (*wcbridge.EncryptedPayload, error) {
	var payload wcbridge.EncryptedPayload
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return nil, errors.Wrap(err, "unmarshal wallet connect message payload")
	}
	return &payload, nil
}

func marshalPayload(p *wcbridge.EncryptedPayload) string {
	s, err := json.Marshal(p)
	if err != nil {
		log.Errorf("marshal:%v", err)
	}
	return string(s)
}

type jsonRpcRequest struct {
	Id      int64         `json:"id"`
	JSONRpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

func newJSONRpcRequest(method string, params ...interface{}) *jsonRpcRequest {
	r := &jsonRpcRequest{
		Id:      payloadID(),
		JSONRpc: "2.0",
		Method:  method,
		Params:  []interface{}{},
	}
	if len(params) > 0 {
		r.Params = params
	}
	return r
}

func (e *jsonRpcRequest) Marshal() string {
	s, err := json.Marshal(e)
	if err != nil {
		log.Errorf("marshal:%v", err)
	}
	return string(s)
}

func (e *jsonRpcRequest) IsSilentPayload() bool {
	return strings.HasPrefix(e.Method, "wc_")
}

type jsonRpcResponse struct {
	Id      int64       `json:"id"`
	JSONRpc string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

func (e *jsonRpcResponse) Marshal() string {
	s, err := json.Marshal(e)
	if err != nil {
		log.Errorf("marshal:%v", err)
	}
	return string(s)
}

// RPCError is a JSON-RPC error sent back to the dapp.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// Errors named after the WalletConnect SDK error keys.
var (
	ErrUserRejected      = RPCError{Code: 5000, Message: "User rejected."}
	ErrUnsupportedChains = RPCError{Code: 5100, Message: "Unsupported chains."}
	ErrMethodUnsupported = RPCError{Code: 10001, Message: "Unsupported wc_ method."}
)

const sessionRejected = "Session Rejected"

// WithContext appends detail to the SDK message.
func (e RPCError) WithContext(ctx string) RPCError {
	if ctx != "" {
		e.Message = e.Message + " " + ctx
	}
	return e
}

var lastPayloadID = atomic.NewInt64(0)

// payloadID returns a unique, increasing JSON-RPC id based on the clock.
func payloadID() int64 {
	now := time.Now().UnixNano() / 1000
	for {
		last := lastPayloadID.Load()
		next := now
		if next <= last {
			next = last + 1
		}
		if lastPayloadID.CAS(last, next) {
			return next
		}
	}
}
