package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"moff.io/moff-wallet/internal/deeplink"
	"moff.io/moff-wallet/internal/requests"
	"moff.io/moff-wallet/internal/session"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
)

const (
	signer   = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	viewOnly = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	v1URI    = "wc:8a5e5bdc-a0e4-4702-ba63-8f1a5655744f@1?bridge=https%3A%2F%2Fbridge.walletconnect.org&key=41791102999c339c844880b23950704cc43aa840f3739e365323cda4dfa89e7a"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type resolver struct {
	mu        sync.Mutex
	responded map[string]json.RawMessage
	rejected  []string
}

func (r *resolver) ApproveSession(context.Context, walletconnect.PendingSession) error { return nil }
func (r *resolver) RejectSession(context.Context, walletconnect.PendingSession) error  { return nil }

func (r *resolver) Respond(_ context.Context, req walletconnect.PendingRequest, result json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responded[req.InternalID] = result
	return nil
}

func (r *resolver) RespondError(_ context.Context, req walletconnect.PendingRequest, _ walletconnect.RPCError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, req.InternalID)
	return nil
}

type signers map[string]bool

func (s signers) IsSigner(address string) bool { return s[address] }

type accounts struct{ active string }

func (a *accounts) HasAccount(address string) bool { return strings.EqualFold(address, signer) }
func (a *accounts) ActiveAddress() string          { return a.active }
func (a *accounts) SetActive(address string) error {
	a.active = address
	return nil
}

type pairer struct{ uris []string }

func (p *pairer) Pair(_ context.Context, uri string) error {
	if _, err := walletconnect.ParseURI(uri); err != nil {
		return err
	}
	p.uris = append(p.uris, uri)
	return nil
}

type navigator struct{ targets []deeplink.Target }

func (n *navigator) Navigate(_ context.Context, t deeplink.Target) error {
	n.targets = append(n.targets, t)
	return nil
}

type initializer struct {
	result *session.Result
	err    error
}

func (i *initializer) Initialize(context.Context) (*session.Result, error) { return i.result, i.err }
func (i *initializer) State() session.State                                { return session.Ready }

type fixture struct {
	server       *Server
	orchestrator *requests.Orchestrator
	resolver     *resolver
	pairer       *pairer
	navigator    *navigator
	session      *initializer
}

func newFixture(t *testing.T) *fixture {
	ctx, cancel := context.WithCancel(context.Background())
	loop := requests.NewLoop(0)
	loop.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Stopped()
	})

	f := &fixture{
		resolver:  &resolver{responded: make(map[string]json.RawMessage)},
		pairer:    &pairer{},
		navigator: &navigator{},
		session:   &initializer{result: &session.Result{SessionID: "s-1", IsNewSession: true}},
	}
	f.orchestrator = requests.NewOrchestrator(loop, f.resolver, signers{signer: true})
	dispatcher := deeplink.NewDispatcher(deeplink.NewParser(nil, nil), f.pairer, f.navigator, &accounts{active: signer})
	f.server = NewServer(Options{
		Timeout:   time.Second,
		DeepLinks: dispatcher,
		Modal:     f.orchestrator,
		Pairer:    f.pairer,
		Session:   f.session,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func (f *fixture) addRequest(t *testing.T, id, account string) {
	_, err := f.orchestrator.AddRequest(context.Background(), walletconnect.PendingRequest{
		InternalID: id,
		Account:    account,
		Type:       walletconnect.TypeSign,
		Method:     "personal_sign",
		ChainID:    1,
	})
	require.NoError(t, err)
}

func TestParseDeepLink(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/deeplink/parse", gin.H{"url": "uniswap://wc?uri=" + v1URI})
	require.Equal(t, http.StatusOK, w.Code)
	body := gjson.Parse(w.Body.String())
	assert.Equal(t, "walletConnectAsParam", body.Get("data.action").String())

	w = f.do(t, http.MethodPost, "/deeplink/parse", gin.H{"url": "https://evil.example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unknown", gjson.Get(w.Body.String(), "data.action").String())

	w = f.do(t, http.MethodPost, "/deeplink/parse", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOpenDeepLink(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/deeplink/open", gin.H{"url": v1URI, "cold_start": true})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.pairer.uris, 1)
	assert.True(t, strings.HasPrefix(f.pairer.uris[0], "wc:8a5e5bdc"))

	w = f.do(t, http.MethodPost, "/deeplink/open", gin.H{
		"url": "https://uniswap.org/app?screen=swap&userAddress=0x0000000000000000000000000000000000000009",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, f.navigator.targets)
}

func TestModalFlow(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/modal", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idle", gjson.Get(w.Body.String(), "data.state").String())

	w = f.do(t, http.MethodPost, "/modal/scan/open", nil)
	assert.Equal(t, "scan_modal_open", gjson.Get(w.Body.String(), "data.state").String())

	f.addRequest(t, "r1", signer)
	f.addRequest(t, "r2", signer)

	w = f.do(t, http.MethodGet, "/modal", nil)
	body := gjson.Parse(w.Body.String())
	assert.Equal(t, "request_modal_open", body.Get("data.state").String())
	assert.Equal(t, "r1", body.Get("data.request.internalId").String())
	assert.EqualValues(t, 2, body.Get("data.queueLength").Int())

	w = f.do(t, http.MethodGet, "/requests", nil)
	assert.Len(t, gjson.Get(w.Body.String(), "data").Array(), 2)

	w = f.do(t, http.MethodPost, "/requests/r1/approve", gin.H{"result": "0xsig"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "r2", gjson.Get(w.Body.String(), "data.request.internalId").String())
	assert.JSONEq(t, `"0xsig"`, string(f.resolver.responded["r1"]))

	w = f.do(t, http.MethodPost, "/requests/r2/reject", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "scan_modal_open", gjson.Get(w.Body.String(), "data.state").String())
	assert.Equal(t, []string{"r2"}, f.resolver.rejected)

	w = f.do(t, http.MethodPost, "/modal/scan/close", nil)
	assert.Equal(t, "idle", gjson.Get(w.Body.String(), "data.state").String())
}

func TestModalErrors(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/requests/nope/reject", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/requests/nope/approve", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/sessions/pending/approve", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	f.addRequest(t, "v1", viewOnly)
	w = f.do(t, http.MethodGet, "/modal", nil)
	body := gjson.Parse(w.Body.String())
	assert.False(t, body.Get("data.request").Exists())
	assert.Equal(t, "v1", body.Get("data.warning.requestId").String())

	w = f.do(t, http.MethodPost, "/requests/v1/approve", gin.H{"result": "0x"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/requests/v1/dismiss", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idle", gjson.Get(w.Body.String(), "data.state").String())
	assert.Equal(t, []string{"v1"}, f.resolver.rejected)
}

func TestPairAndQRCode(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/walletconnect/pair", gin.H{"uri": "wc:broken"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodGet, "/walletconnect/qrcode?uri="+strings.ReplaceAll(v1URI, "&", "%26"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = f.do(t, http.MethodGet, "/walletconnect/qrcode?uri=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInitSession(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/session/init", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := gjson.Parse(w.Body.String())
	assert.Equal(t, "s-1", body.Get("data.sessionId").String())
	assert.True(t, body.Get("data.isNewSession").Bool())

	f.session.err = &session.MaxChallengeRetriesError{MaxRetries: 3}
	w = f.do(t, http.MethodPost, "/session/init", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	f.session.err = errors.New("boom")
	w = f.do(t, http.MethodPost, "/session/init", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "boom", gjson.Get(w.Body.String(), "msg").String())

	w = f.do(t, http.MethodGet, "/session", nil)
	assert.Equal(t, "ready", gjson.Get(w.Body.String(), "data.state").String())
}

type fakeAllower struct {
	allowed map[string]int
	limit   int
}

func (a *fakeAllower) Allow(_ context.Context, key string, _ redis_rate.Limit) (*redis_rate.Result, error) {
	a.allowed[key]++
	if a.allowed[key] > a.limit {
		return &redis_rate.Result{Allowed: 0, RetryAfter: time.Second}, nil
	}
	return &redis_rate.Result{Allowed: 1, Remaining: a.limit - a.allowed[key]}, nil
}

func TestRateLimit(t *testing.T) {
	limiter := &fakeAllower{allowed: map[string]int{}, limit: 2}
	s := NewServer(Options{RateLimiter: limiter, RateLimitPerMinute: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/hello", nil)
		req.RemoteAddr = "192.0.2.7:4321"
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 3, limiter.allowed[rateLimitKeyPrefix+"192.0.2.7"])
}
