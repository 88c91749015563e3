package websocket

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// emptyPayload is the shared zero-length payload sentinel, returned
// wherever a frame or close view legitimately carries no bytes.
var emptyPayload = []byte{}

// payload wraps a frame's application data and exposes the close-code
// view and mask/unmask operations described in spec.md §4.2, without
// copying the underlying bytes except where RFC 6455 requires a
// prefix to be constructed.
type payload struct {
	b []byte
}

// newPayload wraps b without copying it.
func newPayload(b []byte) payload {
	if len(b) == 0 {
		return payload{b: emptyPayload}
	}
	return payload{b: b}
}

// len returns the number of bytes in the payload.
func (p payload) len() int { return len(p.b) }

// asBytes returns the underlying bytes. Callers must not retain them
// past the lifetime of the frame that owns the payload.
func (p payload) asBytes() []byte { return p.b }

// closeCodeView splits a Close frame payload into its status code and
// UTF-8 reason, per https://datatracker.ietf.org/doc/html/rfc6455#section-5.5.1.
// A payload shorter than 2 bytes yields (StatusNoStatusReceived, "").
func (p payload) closeCodeView() (StatusCode, string) {
	if len(p.b) < 2 {
		return StatusNoStatusReceived, ""
	}
	code := StatusCode(binary.BigEndian.Uint16(p.b[:2]))
	return code, string(p.b[2:])
}

// appendCloseCode builds a Close frame payload from a status code and
// reason: the big-endian code followed by the UTF-8 reason bytes. It
// fails if the reason is not valid UTF-8 or the result would exceed
// the 125-byte control-frame limit.
func appendCloseCode(code StatusCode, reason string) ([]byte, error) {
	if !utf8.ValidString(reason) {
		return nil, fmt.Errorf("%w: close reason is not valid UTF-8", ErrInvalidPayload)
	}
	if 2+len(reason) > maxControlPayload {
		return nil, fmt.Errorf("%w: close reason too long", ErrProtocolError)
	}
	b := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(b[:2], uint16(code))
	copy(b[2:], reason)
	return b, nil
}

// xorMask applies the masking algorithm in place; see [maskPayload].
func (p payload) xorMask(key [4]byte) {
	maskPayload(p.b, key)
}
