package websocket

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Ping sends a Ping frame and blocks until a matching Pong arrives or
// [Config.PingTimeout] elapses, per spec.md §4.9. A nil or empty
// payload still correlates correctly: each call gets its own wait
// channel keyed by a synthetic key, not by the payload bytes
// themselves, so two concurrent pings with identical (including
// empty) payloads don't collide.
func (c *Conn) Ping(payload []byte) error {
	if !c.IsOpen() {
		return fmt.Errorf("%w", ErrConnClosed)
	}

	key, err := pingKey()
	if err != nil {
		return fmt.Errorf("failed to generate ping correlation key: %w", err)
	}

	wait := make(chan []byte, 1)
	c.pingMu.Lock()
	c.pendingPing[key] = wait
	c.pingMu.Unlock()

	defer func() {
		c.pingMu.Lock()
		delete(c.pendingPing, key)
		c.pingMu.Unlock()
	}()

	if err := c.sendPing(payload); err != nil {
		return fmt.Errorf("failed to send ping: %w", err)
	}

	select {
	case <-wait:
		return nil
	case <-time.After(c.cfg.PingTimeout):
		return fmt.Errorf("%w: no pong within %s", ErrTimeout, c.cfg.PingTimeout)
	}
}

// IsAlive is the synchronous liveness probe of spec.md §4.9: it pings
// with no payload and reports whether a Pong arrived in time.
func (c *Conn) IsAlive() bool {
	return c.Ping(nil) == nil
}

// signalPong implements the permissive correlation mode spec.md §9's
// open question 2 describes: a Pong satisfies any single currently
// waiting ping, regardless of payload match, since this package does
// not promise strict per-payload correlation.
func (c *Conn) signalPong(payload []byte) {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	for key, wait := range c.pendingPing {
		select {
		case wait <- payload:
		default:
		}
		delete(c.pendingPing, key)
		return
	}
}

// pingKey generates a short random correlation key for the pending
// ping registry; it has no relationship to the frame's masking key.
func pingKey() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
