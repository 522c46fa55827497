package session

// State of an Initialize call.
type State int32

const (
	NoSession State = iota
	Initializing
	ExistingSessionFound
	ChallengeRequired
	Solving
	Retrying
	Upgraded
	Ready
)

var stateNames = [...]string{
	NoSession:            "no_session",
	Initializing:         "initializing",
	ExistingSessionFound: "existing_session_found",
	ChallengeRequired:    "challenge_required",
	Solving:              "solving",
	Retrying:             "retrying",
	Upgraded:             "upgraded",
	Ready:                "ready",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
