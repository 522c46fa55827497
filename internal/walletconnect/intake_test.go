package walletconnect

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	account = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	other   = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

func inbound(method, params string) Inbound {
	return Inbound{
		Topic:   "topic",
		RPCID:   7,
		ChainID: "eip155:1",
		Account: account,
		Method:  method,
		Params:  json.RawMessage(params),
		Dapp:    Dapp{Name: "Uniswap", URL: "https://app.uniswap.org"},
	}
}

func TestSessionRequestSign(t *testing.T) {
	in := NewIntake([]int{1})

	out, err := in.SessionRequest(inbound(PersonalSign, `["0x68656c6c6f","`+other+`"]`))
	require.NoError(t, err)
	require.NotNil(t, out.Request)
	req := out.Request
	assert.Equal(t, "topic:7", req.InternalID)
	assert.Equal(t, TypeSign, req.Type)
	assert.Equal(t, other, req.Account)
	assert.Equal(t, "hello", req.Message)
	assert.Equal(t, 1, req.ChainID)

	out, err = in.SessionRequest(inbound(EthSign, `["`+account+`","hi"]`))
	require.NoError(t, err)
	assert.Equal(t, "hi", out.Request.Message)

	out, err = in.SessionRequest(inbound(SignTypedDataV4, `["`+account+`",{"primaryType":"Mail"}]`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"primaryType":"Mail"}`, out.Request.Message)
}

func TestSessionRequestFallsBackToSessionAccount(t *testing.T) {
	in := NewIntake([]int{1})
	out, err := in.SessionRequest(inbound(PersonalSign, `["hello","not-an-address"]`))
	require.NoError(t, err)
	assert.Equal(t, account, out.Request.Account)
}

func TestSessionRequestInvalid(t *testing.T) {
	in := NewIntake([]int{1})

	r := inbound(PersonalSign, `[]`)
	r.ChainID = "cosmos:hub"
	_, err := in.SessionRequest(r)
	assert.ErrorIs(t, err, ErrInvalidChainID)

	r = inbound(PersonalSign, `[]`)
	r.Account = ""
	_, err = in.SessionRequest(r)
	assert.ErrorIs(t, err, ErrNoAccount)
}

func TestSessionRequestTransaction(t *testing.T) {
	in := NewIntake([]int{1})
	out, err := in.SessionRequest(inbound(EthSendTransaction, `[{"to":"`+other+`","value":"0x1"}]`))
	require.NoError(t, err)
	require.NotNil(t, out.Request)
	assert.Equal(t, TypeTransaction, out.Request.Type)
	assert.Equal(t, account, out.Request.Transaction.From)
	assert.Equal(t, "0x1", out.Request.Transaction.Value)
}

func TestSessionRequestRejectsSelfCallWithData(t *testing.T) {
	in := NewIntake([]int{1})
	out, err := in.SessionRequest(inbound(EthSendTransaction, `[{"from":"`+account+`","to":"`+account+`","data":"0xdeadbeef"}]`))
	require.NoError(t, err)
	require.Nil(t, out.Request)
	require.NotNil(t, out.Reply.Error)
	assert.Equal(t, 5000, out.Reply.Error.Code)
	assert.Equal(t, "User rejected. Self-calls with data are not supported", out.Reply.Error.Message)

	// plain self transfer is fine
	out, err = in.SessionRequest(inbound(EthSendTransaction, `[{"from":"`+account+`","to":"`+account+`","data":"0x"}]`))
	require.NoError(t, err)
	assert.NotNil(t, out.Request)
}

func TestSessionRequestUnsupportedMethod(t *testing.T) {
	in := NewIntake([]int{1})
	out, err := in.SessionRequest(inbound("eth_signTransaction", `[]`))
	require.NoError(t, err)
	require.NotNil(t, out.Reply)
	assert.Equal(t, ErrMethodUnsupported, *out.Reply.Error)
}

func TestEIP5792Disabled(t *testing.T) {
	in := NewIntake([]int{1})
	for _, m := range []string{WalletGetCapabilities, WalletSendCalls, WalletGetCallsStatus} {
		out, err := in.SessionRequest(inbound(m, `[]`))
		require.NoError(t, err)
		require.NotNil(t, out.Reply, m)
		assert.Equal(t, 10001, out.Reply.Error.Code, m)
	}
}

func TestSendCallsLifecycle(t *testing.T) {
	in := NewIntake([]int{1, 10}, WithEIP5792(true))

	out, err := in.SessionRequest(inbound(WalletSendCalls, `[{"id":"batch-1","calls":[{"to":"`+other+`","value":"0x1"}]}]`))
	require.NoError(t, err)
	require.NotNil(t, out.Request)
	assert.Equal(t, TypeSendCalls, out.Request.Type)
	require.Len(t, out.Request.Calls, 1)

	status := func() map[string]interface{} {
		out, err := in.SessionRequest(inbound(WalletGetCallsStatus, `["batch-1"]`))
		require.NoError(t, err)
		require.NotNil(t, out.Reply)
		return out.Reply.Result.(map[string]interface{})
	}
	assert.Equal(t, callsPending, status()["status"])
	assert.Equal(t, "0x1", status()["chainId"])

	in.ResolveCalls(out.Request.InternalID)
	assert.Equal(t, callsConfirmed, status()["status"])

	out, err = in.SessionRequest(inbound(WalletGetCallsStatus, `["nope"]`))
	require.NoError(t, err)
	assert.Equal(t, 5730, out.Reply.Error.Code)
}

func TestSendCallsFailedAndExpired(t *testing.T) {
	in := NewIntake([]int{1}, WithEIP5792(true))
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	in.now = func() time.Time { return now }

	send := func(id string) *PendingRequest {
		out, err := in.SessionRequest(inbound(WalletSendCalls, `[{"id":"`+id+`","calls":[{"to":"`+other+`","value":"0x1"}]}]`))
		require.NoError(t, err)
		require.NotNil(t, out.Request)
		return out.Request
	}
	status := func(id string) *Reply {
		out, err := in.SessionRequest(inbound(WalletGetCallsStatus, `["`+id+`"]`))
		require.NoError(t, err)
		return out.Reply
	}

	rejected := send("batch-rejected")
	in.FailCalls(rejected.InternalID)
	assert.Equal(t, callsFailed, status("batch-rejected").Result.(map[string]interface{})["status"])

	// a settled batch does not change again
	in.ResolveCalls(rejected.InternalID)
	assert.Equal(t, callsFailed, status("batch-rejected").Result.(map[string]interface{})["status"])

	now = now.Add(callsRetention + time.Minute)
	send("batch-new")
	assert.Equal(t, 5730, status("batch-rejected").Error.Code)
	assert.Equal(t, callsPending, status("batch-new").Result.(map[string]interface{})["status"])
}

func TestSendCallsGeneratesBatchID(t *testing.T) {
	in := NewIntake([]int{1}, WithEIP5792(true))
	out, err := in.SessionRequest(inbound(WalletSendCalls, `[{"calls":[{"to":"`+other+`","value":"0x1"}]}]`))
	require.NoError(t, err)
	require.NotNil(t, out.Request)
	in.mu.Lock()
	defer in.mu.Unlock()
	require.Len(t, in.calls, 1)
	for id := range in.calls {
		assert.Len(t, id, 32)
	}
}

func TestSendCallsRejectsSelfCall(t *testing.T) {
	in := NewIntake([]int{1}, WithEIP5792(true))
	out, err := in.SessionRequest(inbound(WalletSendCalls, `[{"calls":[{"to":"`+account+`","data":"0x01"}]}]`))
	require.NoError(t, err)
	assert.Nil(t, out.Request)
	assert.Equal(t, 5000, out.Reply.Error.Code)
}

func TestGetCapabilities(t *testing.T) {
	in := NewIntake([]int{10, 1}, WithEIP5792(true))
	assert.Equal(t, []int{1, 10}, in.EnabledChains())

	out, err := in.SessionRequest(inbound(WalletGetCapabilities, `["`+account+`"]`))
	require.NoError(t, err)
	caps := out.Reply.Result.(map[string]interface{})
	assert.Len(t, caps, 2)
	assert.Contains(t, caps, "0x1")
	assert.Contains(t, caps, "0xa")

	out, err = in.SessionRequest(inbound(WalletGetCapabilities, `["`+account+`",["0xa","0x89"]]`))
	require.NoError(t, err)
	caps = out.Reply.Result.(map[string]interface{})
	assert.Len(t, caps, 1)
	assert.Contains(t, caps, "0xa")
}
