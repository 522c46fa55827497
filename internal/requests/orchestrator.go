package requests

import (
	"context"
	"encoding/json"

	"moff.io/moff-wallet/internal/databus"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/common"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

// State is the modal currently shown.
type State int

const (
	Idle State = iota
	ScanModalOpen
	PendingConnection
	RequestModalOpen
)

func (s State) String() string {
	switch s {
	case ScanModalOpen:
		return "scan_modal_open"
	case PendingConnection:
		return "pending_connection"
	case RequestModalOpen:
		return "request_modal_open"
	}
	return "idle"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

var (
	ErrNotSigner        = errors.New("request account is not a signer account of this wallet")
	ErrUnknownRequest   = errors.New("unknown request")
	ErrNoPendingSession = errors.New("no pending session")
	ErrNoWarning        = errors.New("request has no warning to dismiss")
)

// Outcomes reported in RequestResolved events.
const (
	OutcomeApproved  = "approved"
	OutcomeRejected  = "rejected"
	OutcomeDismissed = "dismissed"
)

// Resolver answers dapps. walletconnect.Relay implements it.
type Resolver interface {
	ApproveSession(ctx context.Context, ps walletconnect.PendingSession) error
	RejectSession(ctx context.Context, ps walletconnect.PendingSession) error
	Respond(ctx context.Context, req walletconnect.PendingRequest, result json.RawMessage) error
	RespondError(ctx context.Context, req walletconnect.PendingRequest, e walletconnect.RPCError) error
}

// AccountStore tells signer accounts from view-only or unknown ones.
type AccountStore interface {
	IsSigner(address string) bool
}

// Warning replaces a request the wallet cannot sign for.
type Warning struct {
	RequestID string `json:"requestId"`
	Account   string `json:"account"`
	Message   string `json:"message"`
}

// View is what the wallet should display right now.
type View struct {
	State       State                         `json:"state"`
	Request     *walletconnect.PendingRequest `json:"request,omitempty"`
	Warning     *Warning                      `json:"warning,omitempty"`
	Session     *walletconnect.PendingSession `json:"session,omitempty"`
	QueueLength int                           `json:"queueLength"`
}

// Orchestrator decides which modal is open from the scan flag, the pending
// session and the request queue. Every exported method runs on the Loop.
type Orchestrator struct {
	loop      *Loop
	queue     *Queue
	resolver  Resolver
	accounts  AccountStore
	publisher databus.Publisher
	logger    log.Logger

	scanOpen bool
	pending  *walletconnect.PendingSession
}

type Option func(*Orchestrator)

func WithPublisher(p databus.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithLogger(l log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func NewOrchestrator(loop *Loop, resolver Resolver, accounts AccountStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		loop:      loop,
		queue:     NewQueue(),
		resolver:  resolver,
		accounts:  accounts,
		publisher: databus.LocalBus{},
		logger:    log.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) state() State {
	switch {
	case o.queue.Len() > 0:
		return RequestModalOpen
	case o.pending != nil:
		return PendingConnection
	case o.scanOpen:
		return ScanModalOpen
	}
	return Idle
}

func (o *Orchestrator) view() View {
	v := View{State: o.state(), QueueLength: o.queue.Len(), Session: o.pending}
	if head, ok := o.queue.Head(); ok {
		if o.accounts.IsSigner(head.Account) {
			v.Request = &head
		} else {
			v.Warning = &Warning{
				RequestID: head.InternalID,
				Account:   head.Account,
				Message:   "Account " + common.Shorten(head.Account, 6) + " is view-only and cannot sign requests",
			}
		}
	}
	return v
}

func (o *Orchestrator) View(ctx context.Context) (View, error) {
	var v View
	err := o.loop.Do(ctx, func() { v = o.view() })
	return v, err
}

// Queued returns every pending request, oldest first.
func (o *Orchestrator) Queued(ctx context.Context) ([]walletconnect.PendingRequest, error) {
	var list []walletconnect.PendingRequest
	err := o.loop.Do(ctx, func() { list = o.queue.List() })
	return list, err
}

func (o *Orchestrator) OpenScan(ctx context.Context) (View, error) {
	return o.mutate(ctx, func() error {
		o.scanOpen = true
		return nil
	})
}

func (o *Orchestrator) CloseScan(ctx context.Context) (View, error) {
	return o.mutate(ctx, func() error {
		o.scanOpen = false
		return nil
	})
}

// AddPendingSession shows a connection proposal, closing the scanner.
func (o *Orchestrator) AddPendingSession(ctx context.Context, ps walletconnect.PendingSession) (View, error) {
	return o.mutate(ctx, func() error {
		o.addPendingSession(ps)
		return nil
	})
}

func (o *Orchestrator) addPendingSession(ps walletconnect.PendingSession) {
	o.pending = &ps
	o.scanOpen = false
}

// ResolvePendingSession approves or rejects the pending proposal.
func (o *Orchestrator) ResolvePendingSession(ctx context.Context, approve bool) (View, error) {
	return o.mutate(ctx, func() error {
		if o.pending == nil {
			return ErrNoPendingSession
		}
		ps := *o.pending
		outcome := OutcomeRejected
		if approve {
			if err := o.resolver.ApproveSession(ctx, ps); err != nil {
				return err
			}
			outcome = OutcomeApproved
		} else if err := o.resolver.RejectSession(ctx, ps); err != nil {
			o.logger.Error(log.Tags{File: "orchestrator", Function: "ResolvePendingSession"}, err.Error(), log.Fields{"topic": ps.Topic})
		}
		o.pending = nil
		o.publish(&databus.RequestResolved{
			RequestID: ps.ID,
			Method:    "wc_sessionRequest",
			Type:      string(walletconnect.TypeSession),
			Dapp:      ps.Dapp.URL,
			ChainID:   ps.ChainID,
			Outcome:   outcome,
		})
		return nil
	})
}

func (o *Orchestrator) AddRequest(ctx context.Context, req walletconnect.PendingRequest) (View, error) {
	return o.mutate(ctx, func() error {
		o.queue.Add(req)
		return nil
	})
}

// Approve sends result for request id and shows the next one.
func (o *Orchestrator) Approve(ctx context.Context, id string, result json.RawMessage) (View, error) {
	return o.mutate(ctx, func() error {
		req, ok := o.queue.Get(id)
		if !ok {
			return ErrUnknownRequest
		}
		if !o.accounts.IsSigner(req.Account) {
			return ErrNotSigner
		}
		if err := o.resolver.Respond(ctx, req, result); err != nil {
			return err
		}
		o.resolve(req, OutcomeApproved)
		return nil
	})
}

// Reject tells the dapp the user said no and shows the next request.
func (o *Orchestrator) Reject(ctx context.Context, id string) (View, error) {
	return o.mutate(ctx, func() error {
		req, ok := o.queue.Get(id)
		if !ok {
			return ErrUnknownRequest
		}
		o.rejectQuietly(ctx, req, "Reject")
		o.resolve(req, OutcomeRejected)
		return nil
	})
}

// DismissWarning drops a request the wallet cannot sign without executing
// it. The dapp receives a rejection.
func (o *Orchestrator) DismissWarning(ctx context.Context, id string) (View, error) {
	return o.mutate(ctx, func() error {
		req, ok := o.queue.Get(id)
		if !ok {
			return ErrUnknownRequest
		}
		if o.accounts.IsSigner(req.Account) {
			return ErrNoWarning
		}
		o.rejectQuietly(ctx, req, "DismissWarning")
		o.resolve(req, OutcomeDismissed)
		return nil
	})
}

// The request leaves the queue even when the dapp cannot be told.
func (o *Orchestrator) rejectQuietly(ctx context.Context, req walletconnect.PendingRequest, function string) {
	if err := o.resolver.RespondError(ctx, req, walletconnect.ErrUserRejected); err != nil {
		o.logger.Error(log.Tags{File: "orchestrator", Function: function}, err.Error(), log.Fields{"request": req.InternalID})
	}
}

func (o *Orchestrator) resolve(req walletconnect.PendingRequest, outcome string) {
	o.queue.Remove(req.InternalID)
	o.publish(&databus.RequestResolved{
		RequestID: req.InternalID,
		Method:    req.Method,
		Type:      string(req.Type),
		Dapp:      req.Dapp.URL,
		ChainID:   req.ChainID,
		Account:   req.Account,
		Outcome:   outcome,
	})
}

func (o *Orchestrator) publish(e databus.Event) {
	if err := o.publisher.Publish(e); err != nil {
		o.logger.Error(log.Tags{File: "orchestrator", Function: "publish"}, err.Error(), nil)
	}
}

func (o *Orchestrator) mutate(ctx context.Context, fn func() error) (View, error) {
	var (
		v   View
		err error
	)
	if doErr := o.loop.Do(ctx, func() {
		err = fn()
		v = o.view()
	}); doErr != nil {
		return View{}, doErr
	}
	return v, err
}

// SessionProposed, RequestReceived and SessionDeleted make the Orchestrator
// a walletconnect.Sink. They do not wait for the loop.

func (o *Orchestrator) SessionProposed(ps walletconnect.PendingSession) {
	o.loop.Enqueue(func() { o.addPendingSession(ps) })
}

func (o *Orchestrator) RequestReceived(req walletconnect.PendingRequest) {
	o.loop.Enqueue(func() { o.queue.Add(req) })
}

func (o *Orchestrator) SessionDeleted(topic string) {
	o.loop.Enqueue(func() {
		if n := o.queue.RemoveTopic(topic); n > 0 {
			o.logger.Info(log.Tags{File: "orchestrator", Function: "SessionDeleted"}, "dropped requests of closed session", log.Fields{"topic": topic, "count": n})
		}
		if o.pending != nil && o.pending.Topic == topic {
			o.pending = nil
		}
	})
}
