package requests

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"moff.io/moff-wallet/internal/databus"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
)

const (
	signer   = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	viewOnly = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeResolver struct {
	mu         sync.Mutex
	approved   []string
	rejected   []string
	responded  map[string]json.RawMessage
	errored    map[string]walletconnect.RPCError
	respondErr error
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		responded: make(map[string]json.RawMessage),
		errored:   make(map[string]walletconnect.RPCError),
	}
}

func (f *fakeResolver) ApproveSession(_ context.Context, ps walletconnect.PendingSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approved = append(f.approved, ps.ID)
	return nil
}

func (f *fakeResolver) RejectSession(_ context.Context, ps walletconnect.PendingSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, ps.ID)
	return nil
}

func (f *fakeResolver) Respond(_ context.Context, req walletconnect.PendingRequest, result json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.respondErr != nil {
		return f.respondErr
	}
	f.responded[req.InternalID] = result
	return nil
}

func (f *fakeResolver) RespondError(_ context.Context, req walletconnect.PendingRequest, e walletconnect.RPCError) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errored[req.InternalID] = e
	return nil
}

type signers map[string]bool

func (s signers) IsSigner(address string) bool { return s[address] }

type recordingPublisher struct {
	mu     sync.Mutex
	events []*databus.RequestResolved
}

func (p *recordingPublisher) Publish(e databus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e.(*databus.RequestResolved))
	return nil
}

func (p *recordingPublisher) outcomes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.RequestID+"="+e.Outcome)
	}
	return out
}

type fixture struct {
	o        *Orchestrator
	resolver *fakeResolver
	events   *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop(0)
	loop.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Stopped()
	})
	f := &fixture{resolver: newFakeResolver(), events: &recordingPublisher{}}
	f.o = NewOrchestrator(loop, f.resolver, signers{signer: true}, WithPublisher(f.events))
	return f
}

func session(id string) walletconnect.PendingSession {
	return walletconnect.PendingSession{ID: id, Topic: id, Dapp: walletconnect.Dapp{Name: "Uniswap", URL: "https://app.uniswap.org"}}
}

func TestScanAndPendingSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.o.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, Idle, v.State)

	v, err = f.o.OpenScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, ScanModalOpen, v.State)

	v, err = f.o.AddPendingSession(ctx, session("s1"))
	require.NoError(t, err)
	assert.Equal(t, PendingConnection, v.State)
	require.NotNil(t, v.Session)
	assert.Equal(t, "s1", v.Session.ID)

	// the scanner was closed by the proposal
	v, err = f.o.ResolvePendingSession(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, Idle, v.State)
	assert.Equal(t, []string{"s1"}, f.resolver.approved)
	assert.Equal(t, []string{"s1=approved"}, f.events.outcomes())

	_, err = f.o.ResolvePendingSession(ctx, false)
	assert.ErrorIs(t, err, ErrNoPendingSession)
}

func TestRejectPendingSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.o.AddPendingSession(ctx, session("s1"))
	require.NoError(t, err)

	v, err := f.o.ResolvePendingSession(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, Idle, v.State)
	assert.Equal(t, []string{"s1"}, f.resolver.rejected)
}

func TestRequestsShownInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.o.AddPendingSession(ctx, session("s1"))
	require.NoError(t, err)
	for _, id := range []string{"r1", "r2"} {
		_, err := f.o.AddRequest(ctx, pending(id, "s1"))
		require.NoError(t, err)
	}

	v, err := f.o.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, RequestModalOpen, v.State)
	assert.Equal(t, "r1", v.Request.InternalID)
	assert.Equal(t, 2, v.QueueLength)

	v, err = f.o.Approve(ctx, "r1", json.RawMessage(`"0xsig"`))
	require.NoError(t, err)
	assert.Equal(t, RequestModalOpen, v.State)
	assert.Equal(t, "r2", v.Request.InternalID)
	assert.JSONEq(t, `"0xsig"`, string(f.resolver.responded["r1"]))

	v, err = f.o.Reject(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, PendingConnection, v.State)
	assert.Nil(t, v.Request)
	assert.Equal(t, walletconnect.ErrUserRejected, f.resolver.errored["r2"])

	assert.Equal(t, []string{"r1=approved", "r2=rejected"}, f.events.outcomes())
}

func TestApproveNonHead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"r1", "r2", "r3"} {
		_, err := f.o.AddRequest(ctx, pending(id, "s1"))
		require.NoError(t, err)
	}
	v, err := f.o.Approve(ctx, "r2", json.RawMessage(`"ok"`))
	require.NoError(t, err)
	assert.Equal(t, "r1", v.Request.InternalID)
	assert.Equal(t, 2, v.QueueLength)

	_, err = f.o.Approve(ctx, "r2", json.RawMessage(`"ok"`))
	assert.ErrorIs(t, err, ErrUnknownRequest)
}

func TestRespondFailureKeepsRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.o.AddRequest(ctx, pending("r1", "s1"))
	require.NoError(t, err)

	f.resolver.respondErr = errors.New("bridge down")
	v, err := f.o.Approve(ctx, "r1", json.RawMessage(`"ok"`))
	assert.EqualError(t, err, "bridge down")
	assert.Equal(t, 1, v.QueueLength)
	assert.Empty(t, f.events.outcomes())
}

func TestViewOnlyAccountWarning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := pending("r1", "s1")
	req.Account = viewOnly
	_, err := f.o.AddRequest(ctx, req)
	require.NoError(t, err)
	_, err = f.o.AddRequest(ctx, pending("r2", "s1"))
	require.NoError(t, err)

	v, err := f.o.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, RequestModalOpen, v.State)
	assert.Nil(t, v.Request)
	require.NotNil(t, v.Warning)
	assert.Equal(t, "r1", v.Warning.RequestID)
	assert.Equal(t, "Account 0xfB69…c5d359 is view-only and cannot sign requests", v.Warning.Message)

	_, err = f.o.Approve(ctx, "r1", json.RawMessage(`"0xsig"`))
	assert.ErrorIs(t, err, ErrNotSigner)
	_, err = f.o.DismissWarning(ctx, "r2")
	assert.ErrorIs(t, err, ErrNoWarning)

	v, err = f.o.DismissWarning(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, v.Warning)
	assert.Equal(t, "r2", v.Request.InternalID)
	assert.NotContains(t, f.resolver.responded, "r1")
	assert.Equal(t, walletconnect.ErrUserRejected, f.resolver.errored["r1"])
	assert.Equal(t, []string{"r1=dismissed"}, f.events.outcomes())
}

func TestSinkCallbacks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.o.SessionProposed(session("s1"))
	f.o.RequestReceived(pending("r1", "s1"))
	f.o.RequestReceived(pending("r2", "s2"))

	list, err := f.o.Queued(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, ids(list))

	f.o.SessionDeleted("s1")
	v, err := f.o.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v.QueueLength)
	assert.Equal(t, "r2", v.Request.InternalID)
	assert.Nil(t, v.Session)
}

func TestLoopStopped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop(1)
	loop.Start(ctx)
	cancel()
	<-loop.Stopped()

	o := NewOrchestrator(loop, newFakeResolver(), signers{})
	_, err := o.View(context.Background())
	assert.ErrorIs(t, err, ErrLoopStopped)
	// does not block
	o.RequestReceived(pending("r1", "s1"))
}
