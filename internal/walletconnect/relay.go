package walletconnect

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"

	"moff.io/moff-wallet/internal/chains"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

const reconnectAttempts = 3

var reconnectBackoff = 2 * time.Second

var (
	ErrUnsupportedVersion = errors.New("only walletconnect v1 bridge pairing is supported")
	ErrUnknownSession     = errors.New("unknown walletconnect session")
	ErrNoSignerAccounts   = errors.New("wallet has no signer accounts")
	ErrBadSignature       = errors.New("signature does not match the request account")
	ErrNotSessionRequest  = errors.New("expected wc_sessionRequest")
)

// Sink receives what the relay hears from dapps.
type Sink interface {
	SessionProposed(s PendingSession)
	RequestReceived(r PendingRequest)
	SessionDeleted(topic string)
}

// SessionRecord is an approved session as persisted between restarts.
type SessionRecord struct {
	Topic     string
	ClientID  string
	PeerID    string
	Bridge    string
	Key       string
	ChainID   int
	Accounts  []string
	Dapp      Dapp
	CreatedAt time.Time
}

type SessionStore interface {
	SaveSession(ctx context.Context, rec SessionRecord) error
	DeleteSession(ctx context.Context, topic string) error
}

// AccountSource lists the addresses the wallet can sign with.
type AccountSource interface {
	SignerAddresses() []string
}

type session struct {
	id             string
	clientID       string
	peerID         string
	handshakeRPCID int64
	bridge         string
	key            []byte
	dapp           Dapp
	chainID        int
	accounts       []string
	createdAt      time.Time

	connMu   sync.Mutex
	conn     *bridgeConn
	approved atomic.Bool
}

func (s *session) current() *bridgeConn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

func (s *session) swap(conn *bridgeConn) {
	s.connMu.Lock()
	old := s.conn
	s.conn = conn
	s.connMu.Unlock()
	old.close()
}

func (s *session) record() SessionRecord {
	return SessionRecord{
		Topic:     s.id,
		ClientID:  s.clientID,
		PeerID:    s.peerID,
		Bridge:    s.bridge,
		Key:       hex.EncodeToString(s.key),
		ChainID:   s.chainID,
		Accounts:  s.accounts,
		Dapp:      s.dapp,
		CreatedAt: s.createdAt,
	}
}

// Relay is the wallet side of the WalletConnect v1 bridge protocol. It
// pairs with dapps, turns their calls into pending requests and sends the
// user's answers back.
type Relay struct {
	meta        ClientMeta
	readTimeout time.Duration
	intake      *Intake
	sink        Sink
	store       SessionStore
	accounts    AccountSource
	logger      log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*session
}

type RelayOptions struct {
	Meta        ClientMeta
	ReadTimeout time.Duration
	Intake      *Intake
	Sink        Sink
	Store       SessionStore
	Accounts    AccountSource
	Logger      log.Logger
}

func NewRelay(ctx context.Context, opts RelayOptions) *Relay {
	r := &Relay{
		meta:        opts.Meta,
		readTimeout: opts.ReadTimeout,
		intake:      opts.Intake,
		sink:        opts.Sink,
		store:       opts.Store,
		accounts:    opts.Accounts,
		logger:      opts.Logger,
		sessions:    make(map[string]*session),
	}
	if r.intake == nil {
		r.intake = NewIntake([]int{chains.Mainnet})
	}
	if r.logger == nil {
		r.logger = log.Nop()
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	return r
}

// SetSink replaces the sink. Use before the first Pair.
func (r *Relay) SetSink(s Sink) {
	r.sink = s
}

func (r *Relay) lookup(topic string) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[topic]
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// Sessions returns the topics of the open sessions.
func (r *Relay) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessions))
	for topic := range r.sessions {
		out = append(out, topic)
	}
	return out
}

// Pair connects to the bridge named in uri and waits for the dapp's session
// request, which is handed to the sink as a PendingSession.
func (r *Relay) Pair(ctx context.Context, uri string) error {
	tags := log.Tags{File: "relay", Function: "Pair"}
	parsed, err := ParseURI(uri)
	if err != nil {
		return err
	}
	if parsed.Version != 1 {
		return ErrUnsupportedVersion
	}
	if _, err := r.lookup(parsed.Topic); err == nil {
		r.logger.Warn(tags, "already paired", log.Fields{"topic": parsed.Topic})
		return nil
	}

	conn, err := dialBridge(ctx, parsed.Bridge, parsed.Key, r.readTimeout)
	if err != nil {
		return err
	}
	s := &session{
		id:        parsed.Topic,
		clientID:  uuid.NewString(),
		bridge:    parsed.Bridge,
		key:       parsed.Key,
		conn:      conn,
		createdAt: time.Now(),
	}
	if err := conn.subscribe(parsed.Topic); err != nil {
		conn.close()
		return err
	}
	_, payload, err := conn.read()
	if err != nil {
		conn.close()
		return err
	}
	req := gjson.Parse(payload)
	if req.Get("method").String() != "wc_sessionRequest" {
		conn.close()
		return errors.Wrap(ErrNotSessionRequest, req.Get("method").String())
	}
	var p peer
	if err := json.Unmarshal([]byte(req.Get("params.0").Raw), &p); err != nil {
		conn.close()
		return errors.Wrap(err, "unmarshal session request peer")
	}
	s.handshakeRPCID = req.Get("id").Int()
	s.peerID = p.PeerID
	s.dapp = dappFromMeta(p.PeerMeta)
	if id, ok := p.ChainID.(float64); ok {
		s.chainID = int(id)
	}

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	r.startReading(s)

	r.logger.Info(tags, "session proposed", log.Fields{"topic": s.id, "dapp": s.dapp.Name})
	r.sink.SessionProposed(PendingSession{
		ID:        s.id,
		Topic:     s.id,
		PeerID:    s.peerID,
		Dapp:      s.dapp,
		ChainID:   s.chainID,
		CreatedAt: s.createdAt,
	})
	return nil
}

// Resume reopens a session approved before a restart.
func (r *Relay) Resume(ctx context.Context, rec SessionRecord) error {
	key, err := hex.DecodeString(rec.Key)
	if err != nil {
		return errors.WithMessageAndReport(err, "decode session key")
	}
	conn, err := dialBridge(ctx, rec.Bridge, key, r.readTimeout)
	if err != nil {
		return err
	}
	s := &session{
		id:        rec.Topic,
		clientID:  rec.ClientID,
		peerID:    rec.PeerID,
		bridge:    rec.Bridge,
		key:       key,
		dapp:      rec.Dapp,
		chainID:   rec.ChainID,
		accounts:  rec.Accounts,
		createdAt: rec.CreatedAt,
		conn:      conn,
	}
	s.approved.Store(true)
	if err := conn.subscribe(s.clientID); err != nil {
		conn.close()
		return err
	}
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	r.startReading(s)
	return nil
}

func (r *Relay) chainFor(s *session) int {
	if s.chainID > 0 && r.intake.ChainEnabled(s.chainID) {
		return s.chainID
	}
	if enabled := r.intake.EnabledChains(); len(enabled) > 0 {
		return enabled[0]
	}
	return chains.Mainnet
}

// ApproveSession shares the wallet's signer accounts with the dapp.
func (r *Relay) ApproveSession(ctx context.Context, ps PendingSession) error {
	s, err := r.lookup(ps.ID)
	if err != nil {
		return err
	}
	accounts := r.accounts.SignerAddresses()
	if len(accounts) == 0 {
		return ErrNoSignerAccounts
	}
	s.chainID = r.chainFor(s)
	s.accounts = accounts

	if err := s.current().subscribe(s.clientID); err != nil {
		return err
	}
	resp := &jsonRpcResponse{
		Id:      s.handshakeRPCID,
		JSONRpc: "2.0",
		Result: sessionResult{
			Approved: true,
			ChainID:  s.chainID,
			Accounts: accounts,
			PeerID:   s.clientID,
			PeerMeta: r.meta,
		},
	}
	if err := s.current().publish(s.peerID, resp.Marshal(), true); err != nil {
		return err
	}
	s.approved.Store(true)
	if r.store != nil {
		if err := r.store.SaveSession(ctx, s.record()); err != nil {
			return errors.WrapAndReport(err, "save walletconnect session")
		}
	}
	return nil
}

// RejectSession turns the dapp down and forgets the session.
func (r *Relay) RejectSession(_ context.Context, ps PendingSession) error {
	s, err := r.lookup(ps.ID)
	if err != nil {
		return err
	}
	resp := &jsonRpcResponse{
		Id:      s.handshakeRPCID,
		JSONRpc: "2.0",
		Error:   &RPCError{Code: ErrUserRejected.Code, Message: sessionRejected},
	}
	err = s.current().publish(s.peerID, resp.Marshal(), true)
	r.forget(s)
	return err
}

// Respond sends result back for req. Signatures for personal_sign and
// eth_sign are checked against the request account first.
func (r *Relay) Respond(_ context.Context, req PendingRequest, result json.RawMessage) error {
	s, err := r.lookup(req.Topic)
	if err != nil {
		return err
	}
	if req.Method == PersonalSign || req.Method == EthSign {
		var sig string
		if err := json.Unmarshal(result, &sig); err != nil || !VerifySignature(req.Account, sig, []byte(req.Message)) {
			return ErrBadSignature
		}
	}
	if req.Method == WalletSendCalls {
		r.intake.ResolveCalls(req.InternalID)
	}
	resp := &jsonRpcResponse{Id: req.RPCID, JSONRpc: "2.0", Result: result}
	return s.current().publish(s.peerID, resp.Marshal(), false)
}

// RespondError sends a JSON-RPC error back for req.
func (r *Relay) RespondError(_ context.Context, req PendingRequest, e RPCError) error {
	if req.Method == WalletSendCalls {
		r.intake.FailCalls(req.InternalID)
	}
	s, err := r.lookup(req.Topic)
	if err != nil {
		return err
	}
	resp := &jsonRpcResponse{Id: req.RPCID, JSONRpc: "2.0", Error: &e}
	return s.current().publish(s.peerID, resp.Marshal(), false)
}

// Disconnect ends an approved session from the wallet side.
func (r *Relay) Disconnect(ctx context.Context, topic string) error {
	s, err := r.lookup(topic)
	if err != nil {
		return err
	}
	update := newJSONRpcRequest("wc_sessionUpdate", sessionUpdate{Approved: false, ChainID: s.chainID, Accounts: []string{}})
	err = s.current().publish(s.peerID, update.Marshal(), true)
	r.drop(ctx, s)
	return err
}

// Close disconnects from every bridge without ending the sessions.
func (r *Relay) Close() {
	r.cancel()
	r.mu.Lock()
	for _, s := range r.sessions {
		s.current().close()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Relay) forget(s *session) {
	r.mu.Lock()
	if cur, ok := r.sessions[s.id]; ok && cur == s {
		delete(r.sessions, s.id)
	}
	r.mu.Unlock()
	s.current().close()
}

// drop forgets an approved session and removes it from the store.
func (r *Relay) drop(ctx context.Context, s *session) {
	r.forget(s)
	if r.store != nil && s.approved.Load() {
		if err := r.store.DeleteSession(ctx, s.id); err != nil {
			r.logger.Error(log.Tags{File: "relay", Function: "drop"}, err.Error(), log.Fields{"topic": s.id})
		}
	}
	r.sink.SessionDeleted(s.id)
}

func (r *Relay) startReading(s *session) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.readLoop(s)
	}()
}

func (r *Relay) readLoop(s *session) {
	tags := log.Tags{File: "relay", Function: "readLoop"}
	for {
		_, payload, err := s.current().read()
		switch {
		case errors.Is(err, errSessionClosed):
			r.drop(r.ctx, s)
			return
		case errors.Is(err, errConnClosed):
			return
		case err != nil:
			if r.ctx.Err() != nil {
				return
			}
			r.logger.Error(tags, err.Error(), log.Fields{"topic": s.id})
			if s.approved.Load() && r.reconnect(s) {
				continue
			}
			if r.ctx.Err() != nil {
				return
			}
			r.drop(r.ctx, s)
			return
		}
		r.handle(s, payload)
	}
}

// reconnect dials the session's bridge again and resubscribes to the
// wallet's topic. It gives up after reconnectAttempts dials or when the
// session is forgotten meanwhile.
func (r *Relay) reconnect(s *session) bool {
	tags := log.Tags{File: "relay", Function: "reconnect"}
	for attempt := 0; attempt < reconnectAttempts; attempt++ {
		select {
		case <-r.ctx.Done():
			return false
		case <-time.After(time.Duration(attempt) * reconnectBackoff):
		}
		conn, err := dialBridge(r.ctx, s.bridge, s.key, r.readTimeout)
		if err != nil {
			r.logger.Warn(tags, err.Error(), log.Fields{"topic": s.id, "attempt": attempt + 1})
			continue
		}
		if err := conn.subscribe(s.clientID); err != nil {
			conn.close()
			continue
		}
		r.mu.Lock()
		cur, ok := r.sessions[s.id]
		if ok && cur == s {
			s.swap(conn)
		}
		r.mu.Unlock()
		if !ok || cur != s {
			conn.close()
			return false
		}
		r.logger.Info(tags, "reconnected to bridge", log.Fields{"topic": s.id})
		return true
	}
	return false
}

func (r *Relay) handle(s *session, payload string) {
	tags := log.Tags{File: "relay", Function: "handle"}
	call := gjson.Parse(payload)
	method := call.Get("method").String()
	if method == "" || method == "wc_sessionUpdate" {
		return
	}
	if !s.approved.Load() {
		r.logger.Warn(tags, "call before session approval", log.Fields{"topic": s.id, "method": method})
		return
	}
	account := ""
	if len(s.accounts) > 0 {
		account = s.accounts[0]
	}
	rpcID := call.Get("id").Int()
	outcome, err := r.intake.SessionRequest(Inbound{
		Topic:   s.id,
		RPCID:   rpcID,
		ChainID: chains.ToEIP155(s.chainID),
		Account: account,
		Method:  method,
		Params:  json.RawMessage(call.Get("params").Raw),
		Dapp:    s.dapp,
	})
	if err != nil {
		r.logger.Error(tags, err.Error(), log.Fields{"topic": s.id, "method": method})
		return
	}
	if outcome.Request != nil {
		r.sink.RequestReceived(*outcome.Request)
		return
	}
	resp := &jsonRpcResponse{Id: rpcID, JSONRpc: "2.0", Result: outcome.Reply.Result, Error: outcome.Reply.Error}
	if err := s.current().publish(s.peerID, resp.Marshal(), false); err != nil {
		r.logger.Error(tags, err.Error(), log.Fields{"topic": s.id, "method": method})
	}
}
