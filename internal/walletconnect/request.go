package walletconnect

import (
	"encoding/json"
	"strconv"
	"time"
)

type RequestType string

const (
	TypeSign        RequestType = "sign"
	TypeTransaction RequestType = "transaction"
	TypeSession     RequestType = "session"
	TypeSendCalls   RequestType = "sendCalls"
)

// Dapp is the requesting site as shown to the user.
type Dapp struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Icon string `json:"icon,omitempty"`
}

func dappFromMeta(m ClientMeta) Dapp {
	return Dapp{Name: m.Name, URL: m.URL, Icon: m.Icon()}
}

// PendingRequest is a dapp request waiting for the user to approve or
// reject it.
type PendingRequest struct {
	InternalID string          `json:"internalId"`
	Account    string          `json:"account"`
	Type       RequestType     `json:"type"`
	Method     string          `json:"method"`
	ChainID    int             `json:"chainId"`
	Topic      string          `json:"topic"`
	RPCID      int64           `json:"rpcId"`
	Dapp       Dapp            `json:"dapp"`
	RawPayload json.RawMessage `json:"rawPayload"`
	CreatedAt  time.Time       `json:"createdAt"`

	// Message is the decoded text to sign, sign requests only.
	Message string `json:"message,omitempty"`
	// Transaction is set for eth_sendTransaction.
	Transaction *Transaction `json:"transaction,omitempty"`
	// Calls is set for wallet_sendCalls.
	Calls []Call `json:"calls,omitempty"`
}

// Transaction is the subset of an eth_sendTransaction request shown to the user.
type Transaction struct {
	From  string `json:"from"`
	To    string `json:"to,omitempty"`
	Data  string `json:"data,omitempty"`
	Value string `json:"value,omitempty"`
	Gas   string `json:"gas,omitempty"`
}

type Call struct {
	To    string `json:"to,omitempty"`
	Data  string `json:"data,omitempty"`
	Value string `json:"value,omitempty"`
}

// PendingSession is a dapp asking to connect.
type PendingSession struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	PeerID    string    `json:"peerId"`
	Dapp      Dapp      `json:"dapp"`
	ChainID   int       `json:"chainId"`
	CreatedAt time.Time `json:"createdAt"`
}

func requestID(topic string, rpcID int64) string {
	return topic + ":" + strconv.FormatInt(rpcID, 10)
}
