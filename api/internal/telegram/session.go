package telegram

import (
	"sync"

	"edusolve/api/internal/pipeline"
)

type State int

const (
	StateIdle State = iota
	StateInFlight
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateInFlight:
		return "in_flight"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// Session tracks one chat's request. At most one request is in flight per
// chat; there is no cancellation.
type Session struct {
	mu     sync.Mutex
	state  State
	result pipeline.Result
	errMsg string
}

// Begin moves the session into InFlight. It returns false when a request is
// already running, in which case the new submission must be refused.
func (s *Session) Begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateInFlight {
		return false
	}
	s.state = StateInFlight
	s.result = pipeline.Result{}
	s.errMsg = ""
	return true
}

func (s *Session) Succeed(res pipeline.Result) {
	s.mu.Lock()
	s.state = StateSuccess
	s.result = res
	s.errMsg = ""
	s.mu.Unlock()
}

func (s *Session) Fail(msg string) {
	s.mu.Lock()
	s.state = StateError
	s.result = pipeline.Result{}
	s.errMsg = msg
	s.mu.Unlock()
}

// Snapshot returns the current state with its terminal payload.
func (s *Session) Snapshot() (State, pipeline.Result, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.result, s.errMsg
}

type Sessions struct {
	m sync.Map // chatID -> *Session
}

func (ss *Sessions) Get(chatID int64) *Session {
	v, _ := ss.m.LoadOrStore(chatID, &Session{})
	return v.(*Session)
}
