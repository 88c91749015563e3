package websocket

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// DialOpt configures a client [Dial] call, mirroring the teacher's
// functional-options shape.
type DialOpt func(*dialConfig)

type dialConfig struct {
	headers      http.Header
	subprotocols []string
	deflate      bool
	proxyURL     *url.URL
	proxyAuth    func(Challenge) (string, error)
	tlsConfig    *tls.Config
	followRedir  bool
	maxRedirects int
	cfg          Config
	handler      Handler
	logger       zerolog.Logger
	nonceSource  io.Reader
}

// WithHTTPHeader adds a single header to the handshake request.
func WithHTTPHeader(key, value string) DialOpt {
	return func(c *dialConfig) { c.headers.Add(key, value) }
}

// WithHTTPHeaders adds multiple headers to the handshake request.
func WithHTTPHeaders(h http.Header) DialOpt {
	return func(c *dialConfig) {
		for k, vs := range h {
			for _, v := range vs {
				c.headers.Add(k, v)
			}
		}
	}
}

// WithSubprotocols offers the given subprotocols to the server.
func WithSubprotocols(protocols ...string) DialOpt {
	return func(c *dialConfig) { c.subprotocols = protocols }
}

// WithDeflate offers permessage-deflate during negotiation.
func WithDeflate() DialOpt {
	return func(c *dialConfig) { c.deflate = true }
}

// WithProxy routes the handshake through an HTTP CONNECT proxy, per
// spec.md §6's proxy CONNECT support. auth, if non-nil, answers a 407
// challenge once.
func WithProxy(proxyURL *url.URL, auth func(Challenge) (string, error)) DialOpt {
	return func(c *dialConfig) {
		c.proxyURL = proxyURL
		c.proxyAuth = auth
	}
}

// WithTLSConfig overrides the default TLS configuration used for wss://.
func WithTLSConfig(tc *tls.Config) DialOpt {
	return func(c *dialConfig) { c.tlsConfig = tc }
}

// WithRedirects opts into the redirect-following handshake of
// spec.md §4.4, bounded by max (0 uses the spec's default of 10).
func WithRedirects(maxRedirects int) DialOpt {
	return func(c *dialConfig) {
		c.followRedir = true
		if maxRedirects != 0 {
			c.maxRedirects = maxRedirects
		}
	}
}

// WithConfig overrides the connection's tunables.
func WithConfig(cfg Config) DialOpt {
	return func(c *dialConfig) { c.cfg = cfg }
}

// WithHandler attaches the event handler invoked once the connection
// is established.
func WithHandler(h Handler) DialOpt {
	return func(c *dialConfig) { c.handler = h }
}

// WithLogger attaches a logger to the connection.
func WithLogger(l zerolog.Logger) DialOpt {
	return func(c *dialConfig) { c.logger = l }
}

// Dial performs the client side of the opening handshake described in
// spec.md §4.4 against wsURL ("ws://..." or "wss://..."), optionally
// tunneling through an HTTP CONNECT proxy first.
func Dial(ctx context.Context, wsURL string, opts ...DialOpt) (*Conn, error) {
	dc := &dialConfig{
		headers:      http.Header{},
		cfg:          DefaultConfig(),
		maxRedirects: 10,
		nonceSource:  rand.Reader,
	}
	for _, opt := range opts {
		opt(dc)
	}

	for attempt := 0; ; attempt++ {
		conn, redirectTo, err := dialOnce(ctx, wsURL, dc)
		if err != nil {
			return nil, err
		}
		if redirectTo == "" {
			return conn, nil
		}
		if !dc.followRedir {
			return nil, fmt.Errorf("%w: redirected to %s", ErrHandshakeFailed, redirectTo)
		}
		if attempt >= dc.maxRedirects {
			return nil, fmt.Errorf("%w", ErrTooManyRedirects)
		}
		wsURL = redirectTo
	}
}

// dialOnce performs a single handshake attempt. It returns a non-empty
// redirectTo when the response was a 3xx with a Location header; [Dial]
// decides whether to follow it.
func dialOnce(ctx context.Context, wsURL string, dc *dialConfig) (*Conn, string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse WebSocket URL: %w", err)
	}

	netConn, err := dialTransport(ctx, u, dc)
	if err != nil {
		return nil, "", err
	}

	nonce, err := generateNonce(dc.nonceSource)
	if err != nil {
		_ = netConn.Close()
		return nil, "", fmt.Errorf("failed to generate nonce for WebSocket handshake: %w", err)
	}

	req, err := buildHandshakeRequest(u, dc, nonce)
	if err != nil {
		_ = netConn.Close()
		return nil, "", err
	}
	if err := req.Write(netConn); err != nil {
		_ = netConn.Close()
		return nil, "", fmt.Errorf("failed to write WebSocket handshake request: %w", err)
	}

	br := bufio.NewReader(netConn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		_ = netConn.Close()
		return nil, "", fmt.Errorf("failed to read WebSocket handshake response: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc := resp.Header.Get("Location")
		_ = netConn.Close()
		if loc == "" {
			return nil, "", fmt.Errorf("%w: redirect without Location header", ErrHandshakeFailed)
		}
		return nil, loc, nil
	}

	deflateNegotiated, err := checkHandshakeResponse(resp, nonce, dc.deflate)
	if err != nil {
		_ = netConn.Close()
		return nil, "", err
	}

	cfg := dc.cfg
	c := newConn(RoleClient, netConn, cfg, dc.handler, dc.logger)
	c.bufio = bufio.NewReadWriter(br, bufio.NewWriter(netConn))
	c.subprotocol = resp.Header.Get("Sec-WebSocket-Protocol")
	c.extensions = Extensions{Deflate: deflateNegotiated}
	c.deflateIn = newInflater()
	if deflateNegotiated {
		c.deflateOut = newDeflater(0)
	}

	ok, _ := c.state.transition(stateNew, stateConnecting)
	if !ok {
		_ = netConn.Close()
		return nil, "", fmt.Errorf("%w: connection left New state unexpectedly", ErrHandshakeFailed)
	}
	c.start(ctx)

	return c, "", nil
}

// dialTransport establishes the raw duplex stream: TCP, then an
// optional CONNECT tunnel (proxy.go), then an optional TLS handshake.
func dialTransport(ctx context.Context, u *url.URL, dc *dialConfig) (net.Conn, error) {
	targetHost := defaultPort(u)

	var d net.Dialer
	dialHost := targetHost
	if dc.proxyURL != nil {
		dialHost = defaultPortForURL(dc.proxyURL)
	}

	rawConn, err := d.DialContext(ctx, "tcp", dialHost)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", dialHost, err)
	}

	if dc.proxyURL != nil {
		if err := connectThroughProxy(ctx, rawConn, targetHost, dc); err != nil {
			_ = rawConn.Close()
			return nil, err
		}
	}

	if u.Scheme != "wss" {
		return rawConn, nil
	}

	tc := dc.tlsConfig
	if tc == nil {
		tc = &tls.Config{ServerName: stripPort(u.Host), MinVersion: tls.VersionTLS12}
	}
	tlsConn := tls.Client(rawConn, tc)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = rawConn.Close()
		return nil, fmt.Errorf("%w: %w", ErrTLSHandshake, err)
	}
	return tlsConn, nil
}

func defaultPort(u *url.URL) string {
	host := u.Host
	if !strings.Contains(host, ":") {
		if u.Scheme == "wss" {
			host += ":443"
		} else {
			host += ":80"
		}
	}
	return host
}

func defaultPortForURL(u *url.URL) string {
	host := u.Host
	if !strings.Contains(host, ":") {
		if u.Scheme == "https" {
			host += ":443"
		} else {
			host += ":80"
		}
	}
	return host
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// generateNonce generates the 16 random bytes, base64-encoded, that
// RFC 6455 requires for Sec-WebSocket-Key.
func generateNonce(r io.Reader) (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// buildHandshakeRequest implements the client request construction of
// spec.md §4.4.
func buildHandshakeRequest(u *url.URL, dc *dialConfig, nonce string) (*http.Request, error) {
	httpURL := *u
	switch httpURL.Scheme {
	case "ws":
		httpURL.Scheme = "http"
	case "wss":
		httpURL.Scheme = "https"
	default:
		return nil, fmt.Errorf("%w: unexpected URL scheme %q", ErrHandshakeFailed, u.Scheme)
	}

	req, err := http.NewRequest(http.MethodGet, httpURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebSocket handshake request: %w", err)
	}
	req.Header = dc.headers.Clone()
	req.Header.Set("Host", u.Host)
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Sec-WebSocket-Key", nonce)
	req.Header.Set("Sec-WebSocket-Version", "13")
	if len(dc.subprotocols) > 0 {
		req.Header.Set("Sec-WebSocket-Protocol", strings.Join(dc.subprotocols, ", "))
	}
	if dc.deflate {
		req.Header.Set("Sec-WebSocket-Extensions", "permessage-deflate; client_no_context_takeover; server_no_context_takeover")
	}
	req.Host = u.Host
	return req, nil
}

// checkHandshakeResponse implements spec.md §4.4's client validation
// and returns whether permessage-deflate was actually negotiated.
func checkHandshakeResponse(resp *http.Response, nonce string, deflateOffered bool) (bool, error) {
	if resp.StatusCode != http.StatusSwitchingProtocols {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return false, fmt.Errorf("%w: handshake response status %d (%s)", ErrHandshakeFailed, resp.StatusCode, body)
	}
	if !headerHasToken(resp.Header.Get("Upgrade"), "websocket") {
		return false, fmt.Errorf("%w: missing Upgrade: websocket in response", ErrHandshakeFailed)
	}
	if !headerHasToken(resp.Header.Get("Connection"), "upgrade") {
		return false, fmt.Errorf("%w: missing Connection: Upgrade in response", ErrHandshakeFailed)
	}
	want := computeAcceptKey(nonce)
	if got := resp.Header.Get("Sec-WebSocket-Accept"); got != want {
		return false, fmt.Errorf("%w: Sec-WebSocket-Accept mismatch: got %q, want %q", ErrHandshakeFailed, got, want)
	}

	if !deflateOffered {
		return false, nil
	}
	offers := parseExtensions(resp.Header.Get("Sec-WebSocket-Extensions"))
	if len(offers) == 0 {
		return false, nil
	}
	if err := clientAcceptsDeflateResponse(offers); err != nil {
		return false, fmt.Errorf("%w: %w", ErrProtocolError, err)
	}
	return true, nil
}
