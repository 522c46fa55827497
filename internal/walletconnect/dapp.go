package walletconnect

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"

	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
	"moff.io/moff-wallet/pkg/wcbridge"
)

// DisplayFn shows the pairing URI to the user, usually as a QR code.
type DisplayFn func(uri string) error

// DappClient is the dapp side of a v1 bridge session: it offers a pairing
// URI, waits for a wallet to approve it and asks the wallet to sign a
// message proving it owns the account.
// Each DappClient connects once; create a new one to connect again.
type DappClient struct {
	meta        ClientMeta
	readTimeout time.Duration

	connectCount atomic.Int64

	bridgeURL      string
	handshakeTopic string
	clientID       string
	encryptionKey  []byte

	conn    *bridgeConn
	signMsg string
	wallet  *Wallet
}

// NewDappClient prepares a pairing on bridgeURL, or a random public bridge
// when bridgeURL is empty.
func NewDappClient(meta ClientMeta, bridgeURL string, readTimeout time.Duration) (*DappClient, error) {
	key, err := wcbridge.GenerateRandomBytes(wcbridge.KeySize)
	if err != nil {
		return nil, err
	}
	if bridgeURL == "" {
		bridgeURL = wcbridge.RandomBridgeURL()
	}
	if readTimeout <= 0 {
		readTimeout = 5 * time.Minute
	}
	return &DappClient{
		meta:           meta,
		readTimeout:    readTimeout,
		bridgeURL:      bridgeURL,
		handshakeTopic: uuid.NewString(),
		clientID:       uuid.NewString(),
		encryptionKey:  key,
		wallet:         &Wallet{},
	}, nil
}

// URI is the wc: URI a wallet pairs with.
func (c *DappClient) URI() string {
	u := &URI{Topic: c.handshakeTopic, Version: 1, Bridge: c.bridgeURL, Key: c.encryptionKey}
	return u.String()
}

func (c *DappClient) QRCode() ([]byte, error) {
	return QRCode(c.URI())
}

// Connect runs the handshake. The returned Wallet tells whether the user
// approved the session and signed signMsg; a rejection is not an error.
func (c *DappClient) Connect(ctx context.Context, signMsg string, display DisplayFn) (*Wallet, error) {
	if !c.connectCount.CAS(0, 1) {
		return nil, errors.New("duplicate connect on dapp client")
	}
	c.signMsg = signMsg
	conn, err := dialBridge(ctx, c.bridgeURL, c.encryptionKey, c.readTimeout)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	defer c.conn.close()

	stop := context.AfterFunc(ctx, c.conn.close)
	defer stop()

	if err := c.conn.subscribe(c.clientID); err != nil {
		return nil, err
	}
	if err := c.createSessionRequest(); err != nil {
		return nil, err
	}
	if display != nil {
		if err := display(c.URI()); err != nil {
			return nil, err
		}
	}
	if err := c.createSessionResponse(); err != nil {
		return nil, err
	}
	if !c.wallet.approved {
		return c.wallet, nil
	}
	if err := c.signMessageRequest(); err != nil {
		return nil, err
	}
	if err := c.checkSignMessageResponse(); err != nil {
		return nil, err
	}
	return c.wallet, nil
}

func (c *DappClient) createSessionRequest() error {
	jsonRpc := newJSONRpcRequest("wc_sessionRequest", peer{
		PeerID:   c.clientID,
		PeerMeta: c.meta,
	})
	return c.conn.publish(c.handshakeTopic, jsonRpc.Marshal(), jsonRpc.IsSilentPayload())
}

func (c *DappClient) createSessionResponse() error {
	_, sessionResult, err := c.conn.read()
	if err != nil {
		if errors.Is(err, errSessionClosed) {
			return nil
		}
		return err
	}
	log.Debugf("wallet connect - create session response:%v", sessionResult)
	errStr := gjson.Get(sessionResult, "error.message").String()
	if errStr != "" {
		if strings.Contains(errStr, sessionRejected) {
			return nil
		}
		return errors.New(errStr)
	}
	result := gjson.Get(sessionResult, "result").Raw
	if err := json.Unmarshal([]byte(result), c.wallet); err != nil {
		return errors.WrapAndReport(err, "unmarshal wallet info")
	}
	c.wallet.approved = gjson.Get(sessionResult, "result.approved").Bool()
	if c.wallet.approved && len(c.wallet.Accounts) == 0 {
		return errors.NewWithReport("no wallet accounts acquired")
	}
	return nil
}

func (c *DappClient) signMessageRequest() error {
	jsonRpc := newJSONRpcRequest(EthSign, c.wallet.Accounts[0], c.signMsg)
	return c.conn.publish(c.wallet.PeerID, jsonRpc.Marshal(), false)
}

func (c *DappClient) checkSignMessageResponse() error {
	_, signResult, err := c.conn.read()
	if err != nil {
		if errors.Is(err, errSessionClosed) {
			return nil
		}
		return err
	}
	log.Debugf("wallet connect - sign message response:%v", signResult)
	signatureHex := gjson.Get(signResult, "result").String()
	c.wallet.signed = VerifySignature(c.wallet.Accounts[0], signatureHex, []byte(c.signMsg))
	return nil
}
