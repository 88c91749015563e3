package websocket

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

// ServerOptions configures [Upgrade]. The zero value accepts any
// origin, negotiates no subprotocol, and declines permessage-deflate.
type ServerOptions struct {
	// Subprotocols lists the subprotocols this server supports. The
	// first entry of the client's offer that also appears here is
	// selected, so the client's offer order decides and the order of
	// this list does not (spec.md §4.4).
	Subprotocols []string
	// AllowDeflate opts into negotiating permessage-deflate.
	AllowDeflate bool
	// CheckOrigin validates the Origin header; nil accepts any origin.
	CheckOrigin func(*http.Request) bool
	// Authenticate runs before the upgrade is accepted. A non-nil
	// error causes a 401 response with the given Challenge.
	Authenticate func(*http.Request) error
	// Challenge is written as WWW-Authenticate when Authenticate fails.
	Challenge string
	// Config is the per-connection tuning applied to the new [Conn].
	Config Config
	// Handler receives the connection's lifecycle and message events.
	Handler Handler
	// Logger is attached to the connection; the zero value is silent.
	Logger zerolog.Logger
}

// Upgrade performs the server side of the opening handshake described
// in spec.md §4.4 and §6, hijacking the underlying connection on
// success and returning a [Conn] in the Open state.
func Upgrade(ctx context.Context, w http.ResponseWriter, r *http.Request, opts ServerOptions) (*Conn, error) {
	if err := validateUpgradeRequest(r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	if opts.Authenticate != nil {
		if err := opts.Authenticate(r); err != nil {
			if opts.Challenge != "" {
				w.Header().Set("WWW-Authenticate", opts.Challenge)
			}
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return nil, fmt.Errorf("%w: %w", ErrAuthRequired, err)
		}
	}

	if opts.CheckOrigin != nil && !opts.CheckOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return nil, fmt.Errorf("%w: origin rejected", ErrHandshakeFailed)
	}

	key := r.Header.Get("Sec-WebSocket-Key")
	subprotocol := negotiateSubprotocol(splitProtocolList(r.Header.Get("Sec-WebSocket-Protocol")), opts.Subprotocols)

	deflate := false
	if opts.AllowDeflate {
		var err error
		deflate, err = negotiateDeflate(parseExtensions(r.Header.Get("Sec-WebSocket-Extensions")))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return nil, err
		}
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		return nil, fmt.Errorf("%w: response writer does not support hijacking", ErrHandshakeFailed)
	}

	w.Header().Set("Upgrade", "websocket")
	w.Header().Set("Connection", "Upgrade")
	w.Header().Set("Sec-WebSocket-Accept", computeAcceptKey(key))
	if subprotocol != "" {
		w.Header().Set("Sec-WebSocket-Protocol", subprotocol)
	}
	if deflate {
		w.Header().Set("Sec-WebSocket-Extensions", deflateExtension)
	}
	w.WriteHeader(http.StatusSwitchingProtocols)

	netConn, bufrw, err := hijacker.Hijack()
	if err != nil {
		return nil, fmt.Errorf("failed to hijack connection for WebSocket upgrade: %w", err)
	}
	if err := bufrw.Flush(); err != nil {
		_ = netConn.Close()
		return nil, fmt.Errorf("failed to flush WebSocket upgrade response: %w", err)
	}

	cfg := opts.Config
	if cfg.FragmentThreshold == 0 {
		cfg = DefaultConfig()
	}

	c := newConn(RoleServer, netConn, cfg, opts.Handler, opts.Logger)
	c.subprotocol = subprotocol
	c.extensions = Extensions{Deflate: deflate}
	if deflate {
		c.deflateOut = newDeflater(0)
		c.deflateIn = newInflater()
	} else {
		c.deflateIn = newInflater()
	}

	ok2, _ := c.state.transition(stateNew, stateConnecting)
	if !ok2 {
		_ = netConn.Close()
		return nil, fmt.Errorf("%w: connection left New state unexpectedly", ErrHandshakeFailed)
	}
	c.start(ctx)

	return c, nil
}

// validateUpgradeRequest implements spec.md §4.4's server validation:
// reject with 400 if any required header is missing or the version is
// not 13.
func validateUpgradeRequest(r *http.Request) error {
	if r.Method != http.MethodGet {
		return fmt.Errorf("expected GET, got %s", r.Method)
	}
	if !headerHasToken(r.Header.Get("Upgrade"), "websocket") {
		return fmt.Errorf("missing or invalid Upgrade header")
	}
	if !headerHasToken(r.Header.Get("Connection"), "upgrade") {
		return fmt.Errorf("missing or invalid Connection header")
	}
	if r.Header.Get("Sec-WebSocket-Version") != "13" {
		return fmt.Errorf("unsupported Sec-WebSocket-Version %q", r.Header.Get("Sec-WebSocket-Version"))
	}
	if r.Header.Get("Sec-WebSocket-Key") == "" {
		return fmt.Errorf("missing Sec-WebSocket-Key header")
	}
	return nil
}
