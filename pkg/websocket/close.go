package websocket

import (
	"fmt"
	"sync/atomic"
	"time"
)

// closeInitiator is the "initiator" parameter of spec.md §4.8's
// perform_close entry point.
type closeInitiator int

const (
	initiatorLocal closeInitiator = iota
	initiatorPeerCloseReceived
	initiatorFatal
	// initiatorPump is initiatorLocal's counterpart for callers already
	// running on the pump goroutine itself (e.g. a canceled context):
	// it still sends the Close frame, but never waits on c.pumpDone,
	// since that channel only closes when this same goroutine returns.
	initiatorPump
)

// closeSentFlag lets the pump's EOF classification (spec.md §4.6 step
// 1) tell whether a Close frame already went out, without taking the
// send mutex from the read path.
type closeSentFlag struct {
	v atomic.Bool
}

func (c *Conn) closeSentLocally() bool { return c.closeSent.v.Load() }

// performClose is the single entry point described in spec.md §4.8.
// It is safe to call concurrently and from the pump's own goroutine;
// only the first caller that observes the connection in the Open
// state performs any side effect. It reports whether this call was
// the one that initiated the closing handshake.
func (c *Conn) performClose(code StatusCode, reason string, initiator closeInitiator) bool {
	ok, _ := c.state.transition(stateOpen, stateClosing)
	if !ok {
		return false
	}

	send := initiator != initiatorFatal || code != StatusAbnormalClosure
	receive := send && initiator == initiatorLocal
	received := initiator == initiatorPeerCloseReceived

	wasClean := true

	if send {
		if err := c.sendCloseFrame(code, reason); err != nil {
			c.log.Debug().Err(err).Msg("failed to send close frame")
			wasClean = false
		} else {
			c.closeSent.v.Store(true)
		}
	}

	if receive {
		select {
		case <-c.pumpDone:
		case <-time.After(c.cfg.CloseTimeout):
			wasClean = false
		}
	}

	if !received && initiator == initiatorFatal {
		wasClean = false
	}

	c.state.transitionAny(stateClosed, stateClosing)
	_ = c.stream.Close()
	if c.broadcastCache != nil {
		c.broadcastCache.Unregister(c)
	}

	c.closeResultM.Lock()
	c.closeResult = closeResult{code: code, reason: reason, wasClean: wasClean}
	c.closeResultM.Unlock()

	c.handler.OnClose(c, code, reason, wasClean)
	return true
}

// sendCloseFrame writes the Close control frame, substituting a
// sendable code per spec.md §4.8's "codes 1005, 1006, 1015 are
// forbidden on the wire" rule.
func (c *Conn) sendCloseFrame(code StatusCode, reason string) error {
	payload, err := appendCloseCode(sendableCode(code), reason)
	if err != nil {
		payload, _ = appendCloseCode(sendableCode(code), "")
	}
	return c.writeControlFrame(opcodeClose, payload)
}

// failBeforeOpen implements the Connecting->Closed edges of spec.md
// §4.5's state table: a handshake failure or I/O error before the
// connection ever reached Open skips the closing handshake entirely.
func (c *Conn) failBeforeOpen(code StatusCode, reason string) {
	ok, _ := c.state.transitionAny(stateClosed, stateNew, stateConnecting)
	if !ok {
		return
	}
	close(c.pumpDone)
	c.closeResultM.Lock()
	c.closeResult = closeResult{code: code, reason: reason, wasClean: false}
	c.closeResultM.Unlock()
	c.handler.OnClose(c, code, reason, false)
}

// Close performs a normal (1000) closing handshake, per
// https://datatracker.ietf.org/doc/html/rfc6455#section-7.1.2.
func (c *Conn) Close() {
	c.performClose(StatusNormalClosure, "", initiatorLocal)
}

// CloseWithCode lets the caller specify a close status code and
// reason. It rejects codes spec.md §6 forbids on the wire, and reports
// [ErrCloseSent] if the closing handshake was already under way.
func (c *Conn) CloseWithCode(code StatusCode, reason string) error {
	if !code.validForSend() {
		return fmt.Errorf("%w: %d", ErrBadStatusCode, code)
	}
	if !c.performClose(code, reason, initiatorLocal) {
		return ErrCloseSent
	}
	return nil
}
