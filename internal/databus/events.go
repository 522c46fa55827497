package databus

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fatih/structs"

	"moff.io/moff-wallet/pkg/log"
)

const (
	DefaultDeepLinkTopic = "wallet.deeplink.opened"
	DefaultRequestTopic  = "wallet.request.resolved"
)

var (
	idNode *snowflake.Node

	deepLinkTopic = DefaultDeepLinkTopic
	requestTopic  = DefaultRequestTopic
)

func init() {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	idNode = node
}

// SetTopics overrides the default topics, empty values are ignored.
func SetTopics(deepLink, request string) {
	if deepLink != "" {
		deepLinkTopic = deepLink
	}
	if request != "" {
		requestTopic = request
	}
}

// envelope wraps an event's properties with its id, name and time.
func envelope(name string, props interface{}) []byte {
	body := map[string]interface{}{
		"event_id":   idNode.Generate().String(),
		"event":      name,
		"created_at": time.Now().UnixMilli(),
		"properties": structs.Map(props),
	}
	data, err := json.Marshal(body)
	if err != nil {
		log.Errorf("marshal %s event:%v", name, err)
		return nil
	}
	return data
}

// DeepLinkOpened is sent every time the wallet handles a deep link.
type DeepLinkOpened struct {
	Action      string `structs:"action"`
	URL         string `structs:"url"`
	Screen      string `structs:"screen"`
	IsColdStart bool   `structs:"is_cold_start"`
	Source      string `structs:"source"`
}

func (e *DeepLinkOpened) Topic() string {
	return deepLinkTopic
}

func (e *DeepLinkOpened) Serialize() []byte {
	return envelope("DeepLinkOpened", e)
}

// RequestResolved is sent when a dapp request leaves the queue.
type RequestResolved struct {
	RequestID string `structs:"request_id"`
	Method    string `structs:"method"`
	Type      string `structs:"type"`
	Dapp      string `structs:"dapp"`
	ChainID   int    `structs:"chain_id"`
	Account   string `structs:"account"`
	// approved, rejected or dismissed
	Outcome string `structs:"outcome"`
}

func (e *RequestResolved) Topic() string {
	return requestTopic
}

func (e *RequestResolved) Serialize() []byte {
	return envelope("RequestResolved", e)
}
