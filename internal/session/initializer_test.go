package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

type fakeService struct {
	existing      *SessionState
	needChallenge bool
	challengeType string
	// retries is how many upgrades answer retry before one is accepted.
	retries int

	initCalls      int
	challengeCalls int
	upgradeCalls   int
	solutions      []string
}

func (f *fakeService) GetSessionState(context.Context) (*SessionState, error) {
	return f.existing, nil
}

func (f *fakeService) InitSession(context.Context) (*InitResponse, error) {
	f.initCalls++
	return &InitResponse{SessionID: "new-session", NeedChallenge: f.needChallenge}, nil
}

func (f *fakeService) RequestChallenge(context.Context) (*Challenge, error) {
	f.challengeCalls++
	return &Challenge{ChallengeID: "c1", ChallengeType: f.challengeType}, nil
}

func (f *fakeService) UpgradeSession(_ context.Context, req UpgradeRequest) (*UpgradeResponse, error) {
	f.upgradeCalls++
	f.solutions = append(f.solutions, req.Solution)
	return &UpgradeResponse{Retry: f.upgradeCalls <= f.retries}, nil
}

type staticSolver string

func (s staticSolver) Solve(context.Context, Challenge) (string, error) {
	return string(s), nil
}

type countingLogger struct {
	infos  int
	errors []string
}

func (l *countingLogger) Info(log.Tags, string, log.Fields) { l.infos++ }
func (l *countingLogger) Warn(log.Tags, string, log.Fields) {}
func (l *countingLogger) Error(_ log.Tags, msg string, _ log.Fields) {
	l.errors = append(l.errors, msg)
}

func enabled() bool { return true }

func TestExistingSession(t *testing.T) {
	svc := &fakeService{existing: &SessionState{SessionID: "abc"}}
	var states []State
	in := NewInitializer(svc, nil, Options{OnStateChange: func(s State) { states = append(states, s) }})

	res, err := in.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Result{SessionID: "abc", IsNewSession: false}, res)
	assert.Zero(t, svc.initCalls)
	assert.Equal(t, []State{NoSession, ExistingSessionFound, Ready}, states)
	assert.Equal(t, Ready, in.State())
}

func TestNewSessionWithoutChallenge(t *testing.T) {
	svc := &fakeService{needChallenge: true, challengeType: "hashcash"}
	// upgrade on init not enabled: the challenge is skipped
	in := NewInitializer(svc, Registry{"hashcash": staticSolver("s")}, Options{})

	res, err := in.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Result{SessionID: "new-session", IsNewSession: true}, res)
	assert.Zero(t, svc.challengeCalls)

	in = NewInitializer(svc, nil, Options{UpgradeOnInit: func() bool { return false }})
	_, err = in.Initialize(context.Background())
	require.NoError(t, err)
	assert.Zero(t, svc.challengeCalls)
}

func TestChallengeAcceptedFirstTry(t *testing.T) {
	svc := &fakeService{needChallenge: true, challengeType: "hashcash"}
	var states []State
	in := NewInitializer(svc, Registry{"hashcash": staticSolver("42")}, Options{
		UpgradeOnInit: enabled,
		OnStateChange: func(s State) { states = append(states, s) },
	})

	res, err := in.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Result{SessionID: "new-session", IsNewSession: true}, res)
	assert.Equal(t, 1, svc.challengeCalls)
	assert.Equal(t, 1, svc.upgradeCalls)
	assert.Equal(t, []string{"42"}, svc.solutions)
	assert.Equal(t, []State{NoSession, Initializing, ChallengeRequired, Solving, Upgraded, Ready}, states)
}

func TestChallengeRetriedThenAccepted(t *testing.T) {
	svc := &fakeService{needChallenge: true, challengeType: "hashcash", retries: 2}
	in := NewInitializer(svc, Registry{"hashcash": staticSolver("s")}, Options{UpgradeOnInit: enabled})

	res, err := in.Initialize(context.Background())
	require.NoError(t, err)
	assert.True(t, res.IsNewSession)
	assert.Equal(t, 3, svc.upgradeCalls)
}

func TestMaxChallengeRetries(t *testing.T) {
	svc := &fakeService{needChallenge: true, challengeType: "hashcash", retries: 4}
	logger := &countingLogger{}
	in := NewInitializer(svc, Registry{"hashcash": staticSolver("s")}, Options{
		MaxChallengeRetries: 3,
		UpgradeOnInit:       enabled,
		Logger:              logger,
	})

	res, err := in.Initialize(context.Background())
	assert.Nil(t, res)
	var maxErr *MaxChallengeRetriesError
	require.True(t, errors.As(err, &maxErr))
	assert.Equal(t, 3, maxErr.MaxRetries)
	assert.Equal(t, 3, svc.upgradeCalls)
	assert.Len(t, logger.errors, 1)
}

func TestNoSolverAvailable(t *testing.T) {
	svc := &fakeService{needChallenge: true, challengeType: "turnstile"}
	logger := &countingLogger{}
	in := NewInitializer(svc, Registry{"hashcash": staticSolver("s")}, Options{UpgradeOnInit: enabled, Logger: logger})

	_, err := in.Initialize(context.Background())
	var noSolver *NoSolverAvailableError
	require.True(t, errors.As(err, &noSolver))
	assert.Equal(t, "turnstile", noSolver.ChallengeType)
	assert.Zero(t, svc.upgradeCalls)
	assert.Len(t, logger.errors, 1)
}

func TestInitializeCancelled(t *testing.T) {
	svc := &fakeService{needChallenge: true, challengeType: "hashcash"}
	in := NewInitializer(svc, Registry{"hashcash": staticSolver("s")}, Options{UpgradeOnInit: enabled})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := in.Initialize(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, svc.challengeCalls)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "challenge_required", ChallengeRequired.String())
	assert.Equal(t, "unknown", State(99).String())
}
