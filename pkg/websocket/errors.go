package websocket

import "errors"

// Sentinel errors returned (often wrapped) by this package. Callers
// should use errors.Is against these rather than comparing strings.
var (
	// ErrProtocolError means the peer violated the framing rules: a
	// bad RSV bit, an unknown opcode, a fragmented control frame, an
	// oversized control payload, or a continuation frame out of
	// sequence. The connection is failed with [StatusProtocolError].
	ErrProtocolError = errors.New("websocket: protocol error")

	// ErrInvalidPayload means a text message (or a Close reason)
	// contained payload data that was not valid UTF-8.
	ErrInvalidPayload = errors.New("websocket: invalid payload data")

	// ErrMessageTooBig means a message's assembled size exceeded the
	// configured maximum before it could be delivered.
	ErrMessageTooBig = errors.New("websocket: message too big")

	// ErrTransportTruncated means the underlying transport returned
	// EOF (or otherwise closed) in the middle of a frame, without a
	// Close frame having been exchanged.
	ErrTransportTruncated = errors.New("websocket: transport closed before a close frame was received")

	// ErrHandshakeFailed means the opening handshake did not produce a
	// valid upgrade: a non-101 status, a missing or mismatched
	// Sec-WebSocket-Accept, or a malformed request line.
	ErrHandshakeFailed = errors.New("websocket: handshake failed")

	// ErrAuthRequired means the handshake was rejected with 401/407
	// and no usable credentials were available to retry with.
	ErrAuthRequired = errors.New("websocket: authentication required")

	// ErrTLSHandshake means the TLS layer underneath the handshake
	// failed to establish (certificate, version, or cipher mismatch).
	ErrTLSHandshake = errors.New("websocket: TLS handshake failed")

	// ErrTimeout means [Conn.Ping] received no Pong within
	// [Config.PingTimeout].
	ErrTimeout = errors.New("websocket: timeout")

	// ErrConnClosed means an operation was attempted on a [Conn] that
	// has already completed its closing handshake or been abandoned.
	ErrConnClosed = errors.New("websocket: connection closed")

	// ErrCloseSent means [Conn.Close] (or a variant) was called more
	// than once; only the first call has any effect.
	ErrCloseSent = errors.New("websocket: close already initiated")

	// ErrBadStatusCode means a caller supplied a status code to
	// [Conn.CloseWithCode] that RFC 6455 forbids on the wire.
	ErrBadStatusCode = errors.New("websocket: invalid close status code")

	// ErrExtensionNegotiation means the client required permessage-deflate
	// but the server's response did not accept it (or vice versa for a
	// caller-enforced policy).
	ErrExtensionNegotiation = errors.New("websocket: extension negotiation failed")

	// ErrTooManyRedirects means the opt-in redirect-following dialer
	// exceeded its bounded retry count without reaching a handshake.
	ErrTooManyRedirects = errors.New("websocket: too many redirects")
)
