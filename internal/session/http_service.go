package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

const sessionHeader = "X-Session-Id"

// HTTPService talks to the session backend's REST API and keeps the
// session id in a Store.
type HTTPService struct {
	baseURL string
	client  *http.Client
	store   Store
}

func NewHTTPService(baseURL string, timeout time.Duration, store Store) *HTTPService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if store == nil {
		store = &MemoryStore{}
	}
	return &HTTPService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		store:   store,
	}
}

func (s *HTTPService) do(ctx context.Context, method, path string, body interface{}) (int, gjson.Result, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, gjson.Result{}, errors.Wrap(err, "marshal session request")
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return 0, gjson.Result{}, errors.Wrap(err, "build session request")
	}
	req.Header.Set("Content-Type", "application/json")
	id, err := s.store.SessionID(ctx)
	if err != nil {
		return 0, gjson.Result{}, err
	}
	if id != "" {
		req.Header.Set(sessionHeader, id)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, gjson.Result{}, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, gjson.Result{}, errors.Wrapf(err, "read %s %s response", method, path)
	}
	log.Debugf("session - %s %s status:%d body:%s", method, path, resp.StatusCode, string(data))
	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, gjson.Result{}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, gjson.Result{}, errors.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}
	return resp.StatusCode, gjson.ParseBytes(data), nil
}

func (s *HTTPService) GetSessionState(ctx context.Context) (*SessionState, error) {
	id, err := s.store.SessionID(ctx)
	if err != nil || id == "" {
		return nil, err
	}
	status, body, err := s.do(ctx, http.MethodGet, "/v1/session", nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || body.Get("sessionId").String() == "" {
		return nil, nil
	}
	return &SessionState{SessionID: body.Get("sessionId").String()}, nil
}

func (s *HTTPService) InitSession(ctx context.Context) (*InitResponse, error) {
	status, body, err := s.do(ctx, http.MethodPost, "/v1/session/init", struct{}{})
	if err != nil {
		return nil, err
	}
	id := body.Get("sessionId").String()
	if status == http.StatusNotFound || id == "" {
		return nil, errors.New("session init returned no session id")
	}
	if err := s.store.SetSessionID(ctx, id); err != nil {
		return nil, err
	}
	return &InitResponse{SessionID: id, NeedChallenge: body.Get("needChallenge").Bool()}, nil
}

func (s *HTTPService) RequestChallenge(ctx context.Context) (*Challenge, error) {
	status, body, err := s.do(ctx, http.MethodPost, "/v1/session/challenge", struct{}{})
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, errors.New("session challenge not found")
	}
	c := &Challenge{
		ChallengeID:   body.Get("challengeId").String(),
		ChallengeType: body.Get("challengeType").String(),
		Extra:         make(map[string]string),
	}
	body.Get("extra").ForEach(func(k, v gjson.Result) bool {
		c.Extra[k.String()] = v.String()
		return true
	})
	return c, nil
}

func (s *HTTPService) UpgradeSession(ctx context.Context, req UpgradeRequest) (*UpgradeResponse, error) {
	status, body, err := s.do(ctx, http.MethodPost, "/v1/session/upgrade", req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, errors.New("session to upgrade not found")
	}
	return &UpgradeResponse{Retry: body.Get("retry").Bool()}, nil
}
