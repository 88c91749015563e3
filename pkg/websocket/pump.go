package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// PingObserver is an optional [Handler] extension; if a Handler also
// implements it and [Config.EmitPings] is set, OnPing is called for
// every Ping control frame in addition to the automatic Pong reply,
// per spec.md §4.6.
type PingObserver interface {
	OnPing(c *Conn, payload []byte)
}

// fragmentState tracks an in-progress fragmented message across
// multiple calls to [Conn.runPump]'s cycle.
type fragmentState struct {
	opcode     Opcode // OpcodeContinuation means no message in progress
	buf        []byte
	compressed bool
}

// runPump is the long-lived task bound to the connection, described
// in spec.md §4.6. It is the sole reader of the underlying stream
// (spec.md §5's "receive pump (exclusive)" ownership rule) and the
// only place that delivers messages to the [Handler].
func (c *Conn) runPump(ctx context.Context) {
	defer close(c.pumpDone)

	var frag fragmentState
	frag.opcode = OpcodeContinuation

	for {
		select {
		case <-ctx.Done():
			c.performClose(StatusGoingAway, "going away", initiatorPump)
			return
		default:
		}

		h, err := readFrameHeader(c.bufio.Reader, c.frameBudget(&frag))
		if err != nil {
			if errors.Is(err, ErrMessageTooBig) {
				c.logAndFail(StatusMessageTooBig, err)
				return
			}
			c.handlePumpReadError(err)
			return
		}

		status, cerr := checkFrameHeader(h, frag.opcode, c.extensions.Deflate)
		if cerr != nil {
			c.logAndFail(status, cerr)
			return
		}
		if !c.maskingRoleOK(h) {
			c.logAndFail(StatusProtocolError, fmt.Errorf("%w: wrong masking for role %s", ErrProtocolError, c.role))
			return
		}
		if err := readPayload(c.bufio.Reader, &h); err != nil {
			c.handlePumpReadError(err)
			return
		}

		switch {
		case h.opcode == opcodePing:
			c.handlePing(h.payload)
		case h.opcode == opcodePong:
			c.signalPong(h.payload)
		case h.opcode == opcodeClose:
			c.handlePeerClose(h.payload)
			return
		case h.opcode.isData():
			if done := c.accumulateFragment(&frag, h); done {
				if !c.finalizeMessage(&frag) {
					return
				}
			}
		}
	}
}

// frameBudget returns the declared-length cap readFrameHeader should
// enforce for the next frame, given the fragment currently being
// reassembled: control frames are capped at the fixed RFC 6455 §5.5
// limit, and data frames are capped at whatever remains of
// [Config.MaxMessageSize] after the bytes already buffered, so a
// single frame's declared length can never allocate past the
// configured maximum.
func (c *Conn) frameBudget(frag *fragmentState) func(Opcode) int64 {
	return func(opcode Opcode) int64 {
		if opcode.isControl() {
			return maxControlPayload
		}
		remaining := c.cfg.MaxMessageSize - int64(len(frag.buf))
		if remaining < 0 {
			return 0
		}
		return remaining
	}
}

// maskingRoleOK enforces spec.md §4.6 step 3: servers require masked
// frames, clients require unmasked ones.
func (c *Conn) maskingRoleOK(h frame) bool {
	if c.role == RoleServer {
		return h.masked
	}
	return !h.masked
}

// handlePumpReadError classifies a transport failure as the abnormal
// or clean case described in spec.md §4.6 step 1.
func (c *Conn) handlePumpReadError(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if c.closeSentLocally() {
			c.performClose(StatusNormalClosure, "", initiatorPeerCloseReceived)
			return
		}
		c.performClose(StatusAbnormalClosure, "transport closed without a close frame", initiatorFatal)
		return
	}
	c.performClose(StatusAbnormalClosure, err.Error(), initiatorFatal)
}

func (c *Conn) logAndFail(status StatusCode, err error) {
	c.log.Debug().Err(err).Str("conn_id", c.id).Msg("failing WebSocket connection")
	c.performClose(status, err.Error(), initiatorFatal)
}

func (c *Conn) handlePing(payload []byte) {
	if c.cfg.EmitPings {
		if obs, ok := c.handler.(PingObserver); ok {
			obs.OnPing(c, payload)
		}
	}
	if err := c.writeControlFrame(opcodePong, payload); err != nil {
		c.log.Debug().Err(err).Msg("failed to send pong reply")
	}
}

func (c *Conn) handlePeerClose(raw []byte) {
	p := newPayload(raw)
	code, reason := p.closeCodeView()
	if len(raw) > 0 && !validReceivedCode(uint16(code)) {
		code = StatusProtocolError
	}
	if !utf8.ValidString(reason) {
		code = StatusInvalidFramePayloadData
		reason = ""
	}
	c.performClose(code, reason, initiatorPeerCloseReceived)
}

// accumulateFragment applies spec.md §4.6 step 4's data-frame rules
// and returns true once a complete message is ready to finalize.
func (c *Conn) accumulateFragment(frag *fragmentState, h frame) bool {
	if h.opcode != OpcodeContinuation {
		frag.opcode = h.opcode
		frag.compressed = h.rsv1
		frag.buf = append(frag.buf[:0], h.payload...)
	} else {
		frag.buf = append(frag.buf, h.payload...)
	}

	if int64(len(frag.buf)) > c.cfg.MaxMessageSize {
		c.performClose(StatusMessageTooBig, "message exceeds configured maximum", initiatorFatal)
		frag.opcode = OpcodeContinuation
		frag.buf = nil
		return false
	}

	return h.fin
}

// finalizeMessage implements spec.md §4.6 step 5. It returns false if
// the connection was failed while finalizing.
func (c *Conn) finalizeMessage(frag *fragmentState) bool {
	opcode := frag.opcode
	data := frag.buf
	compressed := frag.compressed

	frag.opcode = OpcodeContinuation
	frag.buf = nil
	frag.compressed = false

	if compressed {
		out, err := c.deflateIn.decompress(data, c.cfg.MaxMessageSize)
		if err != nil {
			if errors.Is(err, ErrMessageTooBig) {
				c.performClose(StatusMessageTooBig, err.Error(), initiatorFatal)
			} else {
				c.performClose(StatusInvalidFramePayloadData, err.Error(), initiatorFatal)
			}
			return false
		}
		data = out
	}

	if opcode == OpcodeText && !utf8.Valid(data) {
		c.performClose(StatusInvalidFramePayloadData, "text message is not valid UTF-8", initiatorFatal)
		return false
	}

	c.handler.OnMessage(c, Message{Opcode: opcode, Data: data, Compressed: compressed})
	return true
}
