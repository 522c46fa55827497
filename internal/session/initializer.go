package session

import (
	"context"

	"go.uber.org/atomic"
	"go.uber.org/ratelimit"

	"moff.io/moff-wallet/pkg/log"
)

const DefaultMaxChallengeRetries = 3

type Options struct {
	// MaxChallengeRetries bounds the challenge rounds, DefaultMaxChallengeRetries when zero.
	MaxChallengeRetries int
	// UpgradeOnInit enables the challenge flow when it returns true. Nil
	// leaves new sessions un-upgraded.
	UpgradeOnInit func() bool
	OnStateChange func(State)
	// Limiter paces challenge rounds.
	Limiter ratelimit.Limiter
	Logger  log.Logger
}

// Initializer finds or creates the session and upgrades it by solving the
// backend's challenges.
type Initializer struct {
	service       Service
	solvers       Solvers
	maxRetries    int
	upgradeOnInit func() bool
	onStateChange func(State)
	limiter       ratelimit.Limiter
	logger        log.Logger

	state atomic.Int32
}

func NewInitializer(service Service, solvers Solvers, opts Options) *Initializer {
	in := &Initializer{
		service:       service,
		solvers:       solvers,
		maxRetries:    opts.MaxChallengeRetries,
		upgradeOnInit: opts.UpgradeOnInit,
		onStateChange: opts.OnStateChange,
		limiter:       opts.Limiter,
		logger:        opts.Logger,
	}
	if in.maxRetries <= 0 {
		in.maxRetries = DefaultMaxChallengeRetries
	}
	if in.limiter == nil {
		in.limiter = ratelimit.NewUnlimited()
	}
	if in.logger == nil {
		in.logger = log.Nop()
	}
	if in.solvers == nil {
		in.solvers = Registry{}
	}
	return in
}

func (in *Initializer) State() State {
	return State(in.state.Load())
}

func (in *Initializer) setState(s State) {
	in.state.Store(int32(s))
	if in.onStateChange != nil {
		in.onStateChange(s)
	}
}

// Initialize returns the existing session, or creates one and runs the
// challenge flow when it is needed and enabled.
func (in *Initializer) Initialize(ctx context.Context) (*Result, error) {
	res, err := in.initialize(ctx)
	if err != nil {
		in.logger.Error(log.Tags{File: "initializer", Function: "Initialize"}, "Failed to initialize session", log.Fields{"error": err.Error()})
		return nil, err
	}
	in.setState(Ready)
	return res, nil
}

func (in *Initializer) initialize(ctx context.Context) (*Result, error) {
	tags := log.Tags{File: "initializer", Function: "initialize"}
	in.setState(NoSession)

	existing, err := in.service.GetSessionState(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.SessionID != "" {
		in.setState(ExistingSessionFound)
		in.logger.Info(tags, "Existing session found", log.Fields{"sessionId": existing.SessionID})
		return &Result{SessionID: existing.SessionID, IsNewSession: false}, nil
	}

	in.setState(Initializing)
	created, err := in.service.InitSession(ctx)
	if err != nil {
		return nil, err
	}
	in.logger.Info(tags, "Session created", log.Fields{"sessionId": created.SessionID, "needChallenge": created.NeedChallenge})

	if created.NeedChallenge && in.upgradeOnInit != nil && in.upgradeOnInit() {
		if err := in.upgrade(ctx); err != nil {
			return nil, err
		}
	}
	return &Result{SessionID: created.SessionID, IsNewSession: true}, nil
}

// upgrade runs at most maxRetries challenge rounds.
func (in *Initializer) upgrade(ctx context.Context) error {
	tags := log.Tags{File: "initializer", Function: "upgrade"}
	for attempt := 0; ; attempt++ {
		if attempt >= in.maxRetries {
			return &MaxChallengeRetriesError{MaxRetries: in.maxRetries}
		}
		in.limiter.Take()
		if err := ctx.Err(); err != nil {
			return err
		}

		in.setState(ChallengeRequired)
		challenge, err := in.service.RequestChallenge(ctx)
		if err != nil {
			return err
		}
		solver, ok := in.solvers.Get(challenge.ChallengeType)
		if !ok {
			return &NoSolverAvailableError{ChallengeType: challenge.ChallengeType}
		}

		in.setState(Solving)
		solution, err := solver.Solve(ctx, *challenge)
		if err != nil {
			return err
		}
		resp, err := in.service.UpgradeSession(ctx, UpgradeRequest{Solution: solution, ChallengeID: challenge.ChallengeID})
		if err != nil {
			return err
		}
		if !resp.Retry {
			in.setState(Upgraded)
			in.logger.Info(tags, "Session upgraded", log.Fields{"attempt": attempt + 1})
			return nil
		}
		in.setState(Retrying)
		in.logger.Info(tags, "Challenge retry requested", log.Fields{"attempt": attempt + 1, "challengeType": challenge.ChallengeType})
	}
}
