package api

// state is a position in the lifecycle of one Call.
type state int

const (
	stateUnauthenticated state = iota
	stateAuthenticated
	stateRefreshAttempted
	stateFailed
	stateDone
)

func (s state) String() string {
	switch s {
	case stateUnauthenticated:
		return "unauthenticated"
	case stateAuthenticated:
		return "authenticated"
	case stateRefreshAttempted:
		return "refresh_attempted"
	case stateFailed:
		return "failed"
	case stateDone:
		return "done"
	}

	return "unknown"
}

// outcome classifies the result of obtaining a token or sending a request.
type outcome int

const (
	outcomeOK outcome = iota
	outcomeAuthFailure
	outcomeFailure
)

func (o outcome) String() string {
	switch o {
	case outcomeOK:
		return "ok"
	case outcomeAuthFailure:
		return "auth_failure"
	case outcomeFailure:
		return "failure"
	}

	return "unknown"
}

// transitions is the complete table. Only an auth failure seen while
// Authenticated leads to RefreshAttempted, so a Call refreshes at most once.
var transitions = map[state]map[outcome]state{
	stateUnauthenticated: {
		outcomeOK:          stateAuthenticated,
		outcomeAuthFailure: stateFailed,
		outcomeFailure:     stateFailed,
	},
	stateAuthenticated: {
		outcomeOK:          stateDone,
		outcomeAuthFailure: stateRefreshAttempted,
		outcomeFailure:     stateFailed,
	},
	stateRefreshAttempted: {
		outcomeOK:          stateDone,
		outcomeAuthFailure: stateFailed,
		outcomeFailure:     stateFailed,
	},
}

// next returns the state reached from s on o. Terminal states stay put.
func next(s state, o outcome) state {
	row, ok := transitions[s]
	if !ok {
		return s
	}

	return row[o]
}

func (s state) terminal() bool {
	return s == stateDone || s == stateFailed
}
