package websocket

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog"
)

// Role distinguishes the two sides of a connection; masking and a few
// close-code restrictions in RFC 6455 are role-dependent.
type Role int

const (
	// RoleClient sends masked frames and receives unmasked ones.
	RoleClient Role = iota
	// RoleServer sends unmasked frames and requires masked ones.
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// Handler receives the lifecycle and message events of a [Conn].
// OnMessage (and [PingObserver.OnPing]) are invoked serially from the
// connection's receive-pump goroutine. OnOpen is invoked from the
// goroutine that completes the handshake, before the pump starts, and
// OnClose from whichever goroutine performs the close (the pump, a
// caller of [Conn.Close], or a send whose write failed), so OnClose is
// not always on the pump goroutine. Implementations must not block
// indefinitely.
type Handler interface {
	// OnOpen is called once the connection reaches the Open state.
	OnOpen(c *Conn)
	// OnMessage is called once per reassembled [Message].
	OnMessage(c *Conn, msg Message)
	// OnError is not invoked by this package: errors that fail the
	// connection are reported through OnClose's code and reason, and
	// other errors (such as a failed Pong reply) are only logged.
	OnError(c *Conn, err error)
	// OnClose is called exactly once, when the closing handshake
	// completes (cleanly or not).
	OnClose(c *Conn, code StatusCode, reason string, wasClean bool)
}

// NopHandler is a [Handler] whose methods all do nothing; embed it to
// implement only the callbacks a particular use case needs.
type NopHandler struct{}

func (NopHandler) OnOpen(*Conn)                            {}
func (NopHandler) OnMessage(*Conn, Message)                {}
func (NopHandler) OnError(*Conn, error)                    {}
func (NopHandler) OnClose(*Conn, StatusCode, string, bool) {}

// Message is a complete, reassembled WebSocket message delivered to a
// [Handler], as defined in spec.md §3.
type Message struct {
	Opcode     MessageType
	Data       []byte
	Compressed bool
}

// Extensions records which extensions were negotiated for this
// connection during the opening handshake.
type Extensions struct {
	// Deflate is true iff permessage-deflate was negotiated.
	Deflate bool
}

// Config holds the tunable limits and timeouts from spec.md §3, §4.7,
// and §5. The zero Config is invalid; use [DefaultConfig].
type Config struct {
	// MaxMessageSize caps the total reassembled size of one message.
	// Exceeding it fails the connection with [StatusMessageTooBig].
	MaxMessageSize int64
	// FragmentThreshold is the payload size above which outbound
	// messages are split into multiple frames.
	FragmentThreshold int
	// HandshakeTimeout is carried in the Config but not applied by
	// [Dial] or [Upgrade]; the dial and TLS steps of [Dial] are bounded
	// only by its context.
	HandshakeTimeout time.Duration
	// PingTimeout bounds how long [Conn.Ping] waits for a matching Pong.
	PingTimeout time.Duration
	// CloseTimeout bounds how long the close coordinator waits for the
	// peer's echoing Close frame.
	CloseTimeout time.Duration
	// EmitPings, if true, delivers Ping control frames to the handler
	// via OnMessage-adjacent notification (see [PingObserver]); the
	// default is to reply and stay silent, per spec.md §4.6.
	EmitPings bool
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxMessageSize:    1 << 63 - 1,
		FragmentThreshold: 1016,
		HandshakeTimeout:  90 * time.Second,
		PingTimeout:       5 * time.Second,
		CloseTimeout:      3 * time.Second,
	}
}

// Conn is one active WebSocket endpoint context, as defined in
// spec.md §3. It is safe to call exported methods from multiple
// goroutines; incoming events are delivered serially to a [Handler].
type Conn struct {
	id   string
	role Role
	cfg  Config
	log  zerolog.Logger

	subprotocol string
	extensions  Extensions

	stream io.ReadWriteCloser
	bufio  *bufio.ReadWriter

	state stateMachine

	handler Handler

	// send coordinator state; see send.go.
	sendMu     sync.Mutex
	deflateOut *deflater

	// receive pump state; see pump.go.
	deflateIn *inflater

	// keepalive state; see keepalive.go.
	pingMu      sync.Mutex
	pendingPing map[string]chan []byte

	// close coordinator state; see close.go.
	closeSent    closeSentFlag
	pumpDone     chan struct{}
	closeResult  closeResult
	closeResultM sync.Mutex

	broadcastCache *Hub
}

// closeResult is latched exactly once by the close coordinator and
// read back by [Conn.Wait] and tests.
type closeResult struct {
	code     StatusCode
	reason   string
	wasClean bool
}

// newConn builds a Conn in the New state. It is shared by the client
// dialer and the server upgrader; both call start() once the opening
// handshake has succeeded.
func newConn(role Role, stream io.ReadWriteCloser, cfg Config, h Handler, log zerolog.Logger) *Conn {
	if h == nil {
		h = NopHandler{}
	}
	br := bufio.NewReader(stream)
	bw := bufio.NewWriter(stream)
	return &Conn{
		id:          shortuuid.New(),
		role:        role,
		cfg:         cfg,
		log:         log,
		stream:      stream,
		bufio:       bufio.NewReadWriter(br, bw),
		handler:     h,
		pendingPing: make(map[string]chan []byte),
		pumpDone:    make(chan struct{}),
	}
}

// ID returns a short opaque identifier generated when the connection
// was created, suitable for correlating log lines.
func (c *Conn) ID() string { return c.id }

// Role reports whether this endpoint is acting as client or server.
func (c *Conn) Role() Role { return c.role }

// Subprotocol returns the negotiated subprotocol, or "" if none.
func (c *Conn) Subprotocol() string { return c.subprotocol }

// Extensions returns the negotiated extension set.
func (c *Conn) Extensions() Extensions { return c.extensions }

// ReadyState returns the connection's current lifecycle state.
func (c *Conn) ReadyState() string { return c.state.current().String() }

// IsOpen reports whether sends are currently accepted.
func (c *Conn) IsOpen() bool { return c.state.current() == stateOpen }

// start transitions Connecting->Open, launches the receive pump, and
// emits OnOpen. Called once, right after a successful handshake.
func (c *Conn) start(ctx context.Context) {
	ok, _ := c.transitionToOpen()
	if !ok {
		return
	}
	c.handler.OnOpen(c)
	go c.runPump(ctx)
}

func (c *Conn) transitionToOpen() (bool, readyState) {
	return c.state.transition(stateConnecting, stateOpen)
}

// Wait blocks until the closing handshake has fully completed and
// returns the latched close code, reason, and cleanliness.
func (c *Conn) Wait() (StatusCode, string, bool) {
	<-c.pumpDone
	c.closeResultM.Lock()
	defer c.closeResultM.Unlock()
	return c.closeResult.code, c.closeResult.reason, c.closeResult.wasClean
}
