package search

import (
	"fmt"

	"go.uber.org/zap"
)

// State is a step of one search request.
type State string

const (
	StateReceived   State = "received"
	StateParsed     State = "parsed"
	StateDispatched State = "dispatched"
	StateMerging    State = "merging"
	StateRanked     State = "ranked"
	StateResponded  State = "responded"
	StateTimedOut   State = "timed_out"
)

// transitions lists the states reachable from each state. Responded and TimedOut are terminal.
var transitions = map[State][]State{
	StateReceived:   {StateParsed},
	StateParsed:     {StateDispatched},
	StateDispatched: {StateMerging, StateTimedOut},
	StateMerging:    {StateRanked, StateTimedOut},
	StateRanked:     {StateResponded},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// requestState tracks the state of one request and logs every move at debug level.
type requestState struct {
	current State
	logger  *zap.Logger
}

func newRequestState(logger *zap.Logger) *requestState {
	return &requestState{current: StateReceived, logger: logger}
}

func (s *requestState) to(next State) error {
	if !CanTransition(s.current, next) {
		return fmt.Errorf("invalid search state transition %s -> %s", s.current, next)
	}
	s.logger.Debug("search state", zap.String("from", string(s.current)), zap.String("to", string(next)))
	s.current = next
	return nil
}
