package websocket

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

// Hub is the server-side broadcast cache of spec.md §4.7: a group of
// registered connections that can be sent the same message without
// re-encoding it once per recipient. Because a server never masks its
// frames (spec.md §3), the encoded bytes are identical for every
// recipient, which is what makes the cache sound.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Conn]struct{}
}

// NewHub creates an empty broadcast group.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Conn]struct{})}
}

// Register adds c to the group and remembers the group on c, so a
// later [Conn.Close] automatically unregisters it. c must be a
// server-role connection.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	c.broadcastCache = h
}

// Unregister removes c from the group; it does not close c.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// Len reports the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends one message to every registered connection. The
// encoded frame (or, if a connection negotiated permessage-deflate,
// the encoded compressed frame) is computed at most once per
// compression key for this call, per spec.md §4.7's broadcast-cache
// operation; the cache does not outlive the call (spec.md §9, open
// question 1).
func (h *Hub) Broadcast(opcode MessageType, data []byte) {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	encoded := map[bool][]byte{}
	var encodeErr error

	for _, c := range targets {
		compressed := c.extensions.Deflate && c.deflateOut != nil
		frame, ok := encoded[compressed]
		if !ok {
			payload := data
			if compressed {
				out, err := c.deflateOut.compress(data)
				if err != nil {
					encodeErr = err
					continue
				}
				payload = out
			}
			frame = encodeServerFrame(opcode, payload, compressed)
			encoded[compressed] = frame
		}

		if err := c.writeEncodedFrame(frame); err != nil {
			h.Unregister(c)
		}
	}

	if encodeErr != nil && len(encoded) == 0 {
		// Every recipient needed compression and it failed for all of
		// them; nothing was sent. Callers broadcasting to a Hub don't
		// get a return value, matching the fire-and-forget shape of
		// spec.md §4.7's broadcast path; log at the call site if
		// visibility into that failure mode matters.
		_ = encodeErr
	}
}

// encodeServerFrame builds the raw, unmasked wire bytes for a single,
// unfragmented server->client frame, for reuse across many
// connections by [Hub.Broadcast].
func encodeServerFrame(opcode Opcode, payload []byte, rsv1 bool) []byte {
	b0 := byte(opcode) & bits4to7
	b0 |= bit0 // fin
	if rsv1 {
		b0 |= bit1
	}

	n := len(payload)
	var header []byte
	switch {
	case n <= maxControlPayload:
		header = []byte{b0, byte(n)}
	case n <= math.MaxUint16:
		header = make([]byte, 4)
		header[0], header[1] = b0, lenExtended16
		binary.BigEndian.PutUint16(header[2:], uint16(n)) //nolint:gosec // bounded by case
	default:
		header = make([]byte, 10)
		header[0], header[1] = b0, lenExtended64
		binary.BigEndian.PutUint64(header[2:], uint64(n)) //nolint:gosec // n is a non-negative int
	}

	out := make([]byte, 0, len(header)+n)
	out = append(out, header...)
	out = append(out, payload...)
	return out
}

// writeEncodedFrame writes already-encoded wire bytes produced by
// [encodeServerFrame] directly, still serialized through the send
// mutex so it cannot interleave inside another frame.
func (c *Conn) writeEncodedFrame(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if _, err := c.bufio.Writer.Write(data); err != nil {
		return fmt.Errorf("failed to write broadcast frame: %w", err)
	}
	return c.bufio.Writer.Flush()
}
