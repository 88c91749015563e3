package websocket

import (
	"fmt"
	"io"
)

// writeControlFrame sends a single unfragmented control frame (Pong,
// unsolicited Ping, or the Close frame). It takes the same send mutex
// that [Conn.writeFragmented] and [Conn.SendFromStream] hold for a whole
// message, so close/pong replies interleave between whole data frames
// but never inside a fragmented message, per spec.md §4.7.
func (c *Conn) writeControlFrame(opcode Opcode, payload []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return writeFrame(c.bufio.Writer, true, false, opcode, c.masksOutbound(), payload)
}

// masksOutbound reports whether frames this endpoint sends must be
// masked, per https://datatracker.ietf.org/doc/html/rfc6455#section-5.1.
func (c *Conn) masksOutbound() bool { return c.role == RoleClient }

// sendPing sends an unsolicited Ping frame with the given payload
// (<=125 bytes); use [Conn.Ping] from keepalive.go to wait for the
// matching Pong.
func (c *Conn) sendPing(payload []byte) error {
	if len(payload) > maxControlPayload {
		return fmt.Errorf("%w: ping payload exceeds 125 bytes", ErrProtocolError)
	}
	return c.writeControlFrame(opcodePing, payload)
}

// SendText sends s as a single Text message, fragmenting it per
// [Config.FragmentThreshold] and spec.md §4.7.
func (c *Conn) SendText(s string) error {
	return c.sendMessage(OpcodeText, []byte(s))
}

// SendBinary sends b as a single Binary message.
func (c *Conn) SendBinary(b []byte) error {
	return c.sendMessage(OpcodeBinary, b)
}

// sendMessage implements the send_text/send_binary operation of
// spec.md §4.7: gated on Open, optionally compressed, then fragmented.
func (c *Conn) sendMessage(opcode Opcode, data []byte) error {
	if !c.IsOpen() {
		return fmt.Errorf("%w", ErrConnClosed)
	}

	compressed := c.extensions.Deflate && c.deflateOut != nil
	if compressed {
		out, err := c.deflateOut.compress(data)
		if err != nil {
			return fmt.Errorf("failed to compress outgoing message: %w", err)
		}
		data = out
	}

	return c.writeFragmented(opcode, data, compressed)
}

// SendFromStream streams r as a single message of the given opcode,
// fragmenting on [Config.FragmentThreshold]-sized reads, per spec.md
// §4.7's send_from_stream operation. On I/O error the connection is
// failed with the last frame's fin left unset.
func (c *Conn) SendFromStream(opcode MessageType, r io.Reader) error {
	if !c.IsOpen() {
		return fmt.Errorf("%w", ErrConnClosed)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	masked := c.masksOutbound()
	buf := make([]byte, max(c.cfg.FragmentThreshold, 1))
	first := true

	for {
		n, err := io.ReadFull(r, buf)
		switch {
		case err == nil:
			if writeErr := c.writeOneFrame(false, opcode, masked, buf[:n], &first); writeErr != nil {
				c.performClose(StatusAbnormalClosure, writeErr.Error(), initiatorFatal)
				return writeErr
			}
			continue
		case err == io.ErrUnexpectedEOF || err == io.EOF:
			if writeErr := c.writeOneFrame(true, opcode, masked, buf[:n], &first); writeErr != nil {
				c.performClose(StatusAbnormalClosure, writeErr.Error(), initiatorFatal)
				return writeErr
			}
			return nil
		default:
			c.performClose(StatusAbnormalClosure, err.Error(), initiatorFatal)
			return fmt.Errorf("failed to read from source stream: %w", err)
		}
	}
}

// writeOneFrame writes one frame of a (possibly fragmented) message,
// choosing the opcode (Continuation after the first frame) and
// clearing *first once a frame has gone out.
func (c *Conn) writeOneFrame(fin bool, opcode Opcode, masked bool, chunk []byte, first *bool) error {
	op := opcode
	if !*first {
		op = OpcodeContinuation
	}
	*first = false
	return writeFrame(c.bufio.Writer, fin, false, op, masked, chunk)
}

// writeFragmented implements the first/middle/last framing rules of
// spec.md §4.7 under the single writer mutex that serializes the
// underlying stream (spec.md §5).
func (c *Conn) writeFragmented(opcode Opcode, data []byte, rsv1 bool) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	masked := c.masksOutbound()
	threshold := c.cfg.FragmentThreshold
	if threshold <= 0 || len(data) <= threshold {
		if err := writeFrame(c.bufio.Writer, true, rsv1, opcode, masked, data); err != nil {
			c.performClose(StatusAbnormalClosure, err.Error(), initiatorFatal)
			return err
		}
		return nil
	}

	for offset := 0; offset < len(data); {
		end := min(offset+threshold, len(data))
		chunk := data[offset:end]
		fin := end == len(data)
		op := opcode
		r1 := false
		if offset == 0 {
			r1 = rsv1
		} else {
			op = OpcodeContinuation
		}
		if err := writeFrame(c.bufio.Writer, fin, r1, op, masked, chunk); err != nil {
			c.performClose(StatusAbnormalClosure, err.Error(), initiatorFatal)
			return err
		}
		offset = end
	}
	return nil
}

// writeRawFrame exposes a single-frame write for internal callers; see
// spec.md §4.7's send_raw_frame. The broadcast cache in hub.go does not
// use it: it writes pre-encoded bytes through [Conn.writeEncodedFrame].
func (c *Conn) writeRawFrame(fin, rsv1 bool, opcode Opcode, payload []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return writeFrame(c.bufio.Writer, fin, rsv1, opcode, c.masksOutbound(), payload)
}
