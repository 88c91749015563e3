// Package websocket is a full [RFC 6455] WebSocket endpoint library,
// usable both as a client (outbound connections, with optional HTTP
// CONNECT proxy and TLS) and as a server (accepting upgraded HTTP
// connections).
//
// The package covers three layers:
//
//   - the frame codec: binary layout, masking, extended payload length
//     encoding ([frame], [readFrameHeader], [writeFrame]);
//   - the per-connection protocol state machine covering the opening
//     handshake, the data phase (with fragmentation and
//     permessage-deflate), and the closing handshake ([Conn],
//     [readyState]);
//   - the send/receive concurrency core that coordinates a receive
//     pump, user sends, control-frame replies, and close hand-off with
//     strict ordering and an at-most-once close guarantee.
//
// TCP/TLS establishment, HTTP request/response line parsing, cookie
// containers, and application routing are treated as external
// collaborators: this package consumes an [io.ReadWriteCloser] (or an
// [http.Hijacker]) and a header map, and otherwise stays out of their way.
//
// [RFC 6455]: https://datatracker.ietf.org/doc/html/rfc6455
package websocket
