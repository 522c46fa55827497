package session

import (
	"context"
	"fmt"
)

type SessionState struct {
	SessionID string `json:"sessionId"`
}

type InitResponse struct {
	SessionID     string `json:"sessionId"`
	NeedChallenge bool   `json:"needChallenge"`
}

// Challenge is a puzzle the backend wants solved before it trusts the
// session.
type Challenge struct {
	ChallengeID   string            `json:"challengeId"`
	ChallengeType string            `json:"challengeType"`
	Extra         map[string]string `json:"extra"`
}

type UpgradeRequest struct {
	Solution    string `json:"solution"`
	ChallengeID string `json:"challengeId"`
}

type UpgradeResponse struct {
	// Retry asks for another challenge round.
	Retry bool `json:"retry"`
}

// Result of Initializer.Initialize.
type Result struct {
	SessionID    string `json:"sessionId"`
	IsNewSession bool   `json:"isNewSession"`
}

// Service is the session backend.
type Service interface {
	// GetSessionState returns nil when there is no session yet.
	GetSessionState(ctx context.Context) (*SessionState, error)
	InitSession(ctx context.Context) (*InitResponse, error)
	RequestChallenge(ctx context.Context) (*Challenge, error)
	UpgradeSession(ctx context.Context, req UpgradeRequest) (*UpgradeResponse, error)
}

type Solver interface {
	Solve(ctx context.Context, c Challenge) (string, error)
}

type Solvers interface {
	Get(challengeType string) (Solver, bool)
}

// Registry maps challenge types to solvers.
type Registry map[string]Solver

func (r Registry) Get(challengeType string) (Solver, bool) {
	s, ok := r[challengeType]
	return s, ok
}

// NoSolverAvailableError means the backend asked for a challenge type no
// solver is registered for.
type NoSolverAvailableError struct {
	ChallengeType string
}

func (e *NoSolverAvailableError) Error() string {
	return fmt.Sprintf("no solver available for challenge type %q", e.ChallengeType)
}

// MaxChallengeRetriesError means the backend kept asking for another round.
type MaxChallengeRetriesError struct {
	MaxRetries int
}

func (e *MaxChallengeRetriesError) Error() string {
	return fmt.Sprintf("challenge retries exhausted after %d attempts", e.MaxRetries)
}
