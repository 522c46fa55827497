package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend issues one hashcash challenge and upgrades sessions that
// solve it.
type fakeBackend struct {
	mu       sync.Mutex
	sessions map[string]bool
	headers  []string
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := r.Header.Get(sessionHeader)
	b.headers = append(b.headers, id)
	switch r.URL.Path {
	case "/v1/session":
		if _, ok := b.sessions[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"sessionId": id})
	case "/v1/session/init":
		b.sessions["s-1"] = false
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"sessionId": "s-1", "needChallenge": true})
	case "/v1/session/challenge":
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"challengeId":   "c-1",
			"challengeType": ChallengeTypeHashcash,
			"extra":         map[string]interface{}{"subject": id, "difficulty": 8},
		})
	case "/v1/session/upgrade":
		var req UpgradeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ok := req.ChallengeID == "c-1" && VerifyHashcash(id, 8, req.Solution)
		b.sessions[id] = ok
		_ = json.NewEncoder(w).Encode(map[string]bool{"retry": !ok})
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func TestHTTPServiceFlow(t *testing.T) {
	backend := &fakeBackend{sessions: make(map[string]bool)}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	store := &MemoryStore{}
	svc := NewHTTPService(srv.URL+"/", 0, store)
	in := NewInitializer(svc, Registry{ChallengeTypeHashcash: HashcashSolver{}}, Options{UpgradeOnInit: enabled})

	res, err := in.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Result{SessionID: "s-1", IsNewSession: true}, res)
	assert.True(t, backend.sessions["s-1"])

	id, _ := store.SessionID(context.Background())
	assert.Equal(t, "s-1", id)

	// a second run finds the stored session
	res, err = in.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Result{SessionID: "s-1", IsNewSession: false}, res)
}

func TestHTTPServiceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down"))
	}))
	defer srv.Close()

	svc := NewHTTPService(srv.URL, 0, nil)
	state, err := svc.GetSessionState(context.Background())
	require.NoError(t, err)
	assert.Nil(t, state)

	_, err = svc.InitSession(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}
