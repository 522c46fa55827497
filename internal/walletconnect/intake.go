package walletconnect

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tidwall/gjson"
	"gopkg.in/fatih/set.v0"

	"moff.io/moff-wallet/internal/chains"
	util "moff.io/moff-wallet/pkg/common"
	"moff.io/moff-wallet/pkg/errors"
)

const (
	EthSign               = "eth_sign"
	PersonalSign          = "personal_sign"
	SignTypedData         = "eth_signTypedData"
	SignTypedDataV4       = "eth_signTypedData_v4"
	EthSendTransaction    = "eth_sendTransaction"
	WalletGetCapabilities = "wallet_getCapabilities"
	WalletSendCalls       = "wallet_sendCalls"
	WalletGetCallsStatus  = "wallet_getCallsStatus"
)

// SupportedMethods are the JSON-RPC methods a session may call.
var SupportedMethods = []string{
	EthSign, PersonalSign, SignTypedData, SignTypedDataV4, EthSendTransaction,
	WalletGetCapabilities, WalletSendCalls, WalletGetCallsStatus,
}

var (
	ErrInvalidChainID = errors.New("WalletConnect session request has invalid chainId")
	ErrNoAccount      = errors.New("WalletConnect session has no eip155 account")
)

const selfCallRejection = "Self-calls with data are not supported"

// Inbound is one JSON-RPC call received on an approved session.
type Inbound struct {
	Topic string
	RPCID int64
	// CAIP-2 chain id, eip155:<id>
	ChainID string
	// Account the session was approved for.
	Account string
	Method  string
	Params  json.RawMessage
	Dapp    Dapp
}

// Outcome tells the caller what to do with an Inbound call: queue Request
// for the user, or send Reply straight back.
type Outcome struct {
	Request *PendingRequest
	Reply   *Reply
}

type Reply struct {
	Result interface{}
	Error  *RPCError
}

func reject(e RPCError) *Outcome {
	return &Outcome{Reply: &Reply{Error: &e}}
}

// Intake validates inbound session calls and turns them into pending
// requests.
type Intake struct {
	eip5792 bool
	chains  set.Interface
	now     func() time.Time

	mu    sync.Mutex
	calls map[string]*callBatch
}

// callBatch is a wallet_sendCalls batch as seen by wallet_getCallsStatus.
type callBatch struct {
	internalID string
	status     int
	updated    time.Time
}

type IntakeOption func(*Intake)

// WithEIP5792 enables the wallet_* batch call methods.
func WithEIP5792(enabled bool) IntakeOption {
	return func(in *Intake) { in.eip5792 = enabled }
}

func NewIntake(enabledChains []int, opts ...IntakeOption) *Intake {
	in := &Intake{
		chains: set.New(set.ThreadSafe),
		now:    time.Now,
		calls:  make(map[string]*callBatch),
	}
	for _, id := range enabledChains {
		in.chains.Add(id)
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// EnabledChains returns the enabled chain ids in ascending order.
func (in *Intake) EnabledChains() []int {
	ids := make([]int, 0, in.chains.Size())
	for _, c := range chains.Array {
		if in.chains.Has(c.ID) {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func (in *Intake) ChainEnabled(id int) bool {
	return in.chains.Has(id)
}

func isEIP5792(method string) bool {
	return method == WalletGetCapabilities || method == WalletSendCalls || method == WalletGetCallsStatus
}

// SessionRequest classifies r. An error means the call is malformed at the
// session level and nothing should be queued.
func (in *Intake) SessionRequest(r Inbound) (*Outcome, error) {
	chainID, ok := chains.FromEIP155(r.ChainID)
	if !ok {
		return nil, ErrInvalidChainID
	}
	if r.Account == "" {
		return nil, ErrNoAccount
	}
	if isEIP5792(r.Method) && !in.eip5792 {
		return reject(ErrMethodUnsupported), nil
	}

	req := &PendingRequest{
		InternalID: requestID(r.Topic, r.RPCID),
		Account:    r.Account,
		Method:     r.Method,
		ChainID:    chainID,
		Topic:      r.Topic,
		RPCID:      r.RPCID,
		Dapp:       r.Dapp,
		RawPayload: r.Params,
		CreatedAt:  in.now(),
	}
	params := gjson.ParseBytes(r.Params)

	switch r.Method {
	case EthSign, PersonalSign, SignTypedData, SignTypedDataV4:
		req.Type = TypeSign
		req.Account, req.Message = signParams(r.Method, params, r.Account)
		return &Outcome{Request: req}, nil

	case EthSendTransaction:
		tx := params.Get("0")
		req.Type = TypeTransaction
		req.Transaction = &Transaction{
			From:  tx.Get("from").String(),
			To:    tx.Get("to").String(),
			Data:  tx.Get("data").String(),
			Value: tx.Get("value").String(),
			Gas:   tx.Get("gas").String(),
		}
		if req.Transaction.From == "" {
			req.Transaction.From = r.Account
		}
		req.Account = req.Transaction.From
		if isSelfCallWithData(req.Transaction.From, req.Transaction.To, req.Transaction.Data) {
			return reject(ErrUserRejected.WithContext(selfCallRejection)), nil
		}
		return &Outcome{Request: req}, nil

	case WalletSendCalls:
		body := params.Get("0")
		req.Type = TypeSendCalls
		if from := body.Get("from").String(); from != "" {
			req.Account = from
		}
		for _, c := range body.Get("calls").Array() {
			call := Call{To: c.Get("to").String(), Data: c.Get("data").String(), Value: c.Get("value").String()}
			if isSelfCallWithData(req.Account, call.To, call.Data) {
				return reject(ErrUserRejected.WithContext(selfCallRejection)), nil
			}
			req.Calls = append(req.Calls, call)
		}
		batchID := body.Get("id").String()
		if batchID == "" {
			batchID = util.NewCutUUIDString()
		}
		in.trackCalls(batchID, req.InternalID)
		return &Outcome{Request: req}, nil

	case WalletGetCallsStatus:
		return &Outcome{Reply: in.callsStatus(params.Get("0").String(), chainID)}, nil

	case WalletGetCapabilities:
		return &Outcome{Reply: &Reply{Result: in.capabilities(params)}}, nil
	}
	return reject(ErrMethodUnsupported), nil
}

// signParams returns the signing account and message. personal_sign takes
// [message, address], the other sign methods [address, message].
func signParams(method string, params gjson.Result, fallback string) (account, message string) {
	first, second := params.Get("0").String(), params.Get("1")
	if method == PersonalSign {
		account, message = second.String(), first
	} else {
		account = first
		message = second.String()
		if second.IsObject() {
			message = second.Raw
		}
	}
	if !common.IsHexAddress(account) {
		account = fallback
	}
	if method == PersonalSign || method == EthSign {
		message = string(signedMessage(message))
	}
	return account, message
}

func isSelfCallWithData(from, to, data string) bool {
	if from == "" || to == "" || !strings.EqualFold(from, to) {
		return false
	}
	return data != "" && data != "0x"
}

// CallsStatus codes from EIP-5792.
const (
	callsPending   = 100
	callsConfirmed = 200
	callsFailed    = 400
)

// callsRetention bounds how long a batch stays queryable after its last
// status change.
const callsRetention = 24 * time.Hour

func (in *Intake) trackCalls(batchID, internalID string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	now := in.now()
	for id, b := range in.calls {
		if now.Sub(b.updated) > callsRetention {
			delete(in.calls, id)
		}
	}
	in.calls[batchID] = &callBatch{internalID: internalID, status: callsPending, updated: now}
}

func (in *Intake) settleCalls(internalID string, status int) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, b := range in.calls {
		if b.internalID == internalID && b.status == callsPending {
			b.status = status
			b.updated = in.now()
		}
	}
}

// ResolveCalls marks the batch queued as internalID as confirmed.
func (in *Intake) ResolveCalls(internalID string) {
	in.settleCalls(internalID, callsConfirmed)
}

// FailCalls marks the batch queued as internalID as refused by the wallet.
func (in *Intake) FailCalls(internalID string) {
	in.settleCalls(internalID, callsFailed)
}

func (in *Intake) callsStatus(batchID string, chainID int) *Reply {
	in.mu.Lock()
	var status int
	b, ok := in.calls[batchID]
	if ok {
		status = b.status
	}
	in.mu.Unlock()
	if !ok {
		return &Reply{Error: &RPCError{Code: 5730, Message: "Unknown bundle id"}}
	}
	return &Reply{Result: map[string]interface{}{
		"version": "2.0.0",
		"id":      batchID,
		"chainId": hexutil.EncodeUint64(uint64(chainID)),
		"status":  status,
		"atomic":  false,
	}}
}

// capabilities answers wallet_getCapabilities for the requested chains, or
// every enabled chain when none are named.
func (in *Intake) capabilities(params gjson.Result) map[string]interface{} {
	requested := params.Get("1").Array()
	out := make(map[string]interface{})
	add := func(id int) {
		if c, ok := chains.Get(id); ok && in.chains.Has(id) {
			out[c.IDHex] = map[string]interface{}{"atomic": map[string]string{"status": "unsupported"}}
		}
	}
	if len(requested) == 0 {
		for _, id := range in.EnabledChains() {
			add(id)
		}
		return out
	}
	for _, r := range requested {
		id, err := hexToInt(r.String())
		if err == nil {
			add(id)
		}
	}
	return out
}
