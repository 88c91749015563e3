package websocket

import (
	"fmt"
	"sync"
)

// readyState is the authoritative lifecycle state of a [Conn], as
// described in spec.md §4.5. It only ever advances; a Conn that
// reaches closed is never reused.
type readyState int32

const (
	stateNew readyState = iota
	stateConnecting
	stateOpen
	stateClosing
	stateClosed
)

func (s readyState) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateConnecting:
		return "connecting"
	case stateOpen:
		return "open"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// stateMachine guards readyState transitions with a single mutex. The
// mutex is held only inside these methods, so it is never held while
// the send mutex is acquired. The reverse nesting does occur: when a
// write fails, send.go calls performClose, and so takes this mutex,
// while still holding the send mutex.
type stateMachine struct {
	mu    sync.Mutex
	state readyState
}

// current returns the state without mutating it.
func (m *stateMachine) current() readyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// transition moves the state machine from "from" to "to" iff the
// current state is exactly "from". It is the one-shot, idempotent
// primitive every site in spec.md §4.5 builds on: a second caller
// racing to make the same transition observes ok=false and the state
// actually in effect, with no side effects performed twice.
func (m *stateMachine) transition(from, to readyState) (ok bool, actual readyState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != from {
		return false, m.state
	}
	m.state = to
	return true, to
}

// transitionAny is like transition but succeeds from any of the given
// source states; used by the Closing->Closed step, which can be
// reached from Closing only, and by paths that fail out of either New
// or Connecting.
func (m *stateMachine) transitionAny(to readyState, from ...readyState) (ok bool, actual readyState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range from {
		if m.state == f {
			m.state = to
			return true, to
		}
	}
	return false, m.state
}

// errAlreadyState builds the error describing a one-shot transition
// that already happened. The transition helpers above do not return
// it; they report that case as ok=false plus the state in effect.
func errAlreadyState(s readyState) error {
	if s == stateClosed {
		return fmt.Errorf("%w", ErrConnClosed)
	}
	return fmt.Errorf("connection is already %s", s)
}
