package websocket

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordingHandler struct {
	NopHandler
	messages chan Message
	closed   chan struct {
		code     StatusCode
		reason   string
		wasClean bool
	}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		messages: make(chan Message, 8),
		closed: make(chan struct {
			code     StatusCode
			reason   string
			wasClean bool
		}, 1),
	}
}

func (h *recordingHandler) OnMessage(_ *Conn, msg Message) {
	h.messages <- msg
}

func (h *recordingHandler) OnClose(_ *Conn, code StatusCode, reason string, wasClean bool) {
	h.closed <- struct {
		code     StatusCode
		reason   string
		wasClean bool
	}{code, reason, wasClean}
}

// newTestPair wires a client and server Conn directly over a net.Pipe,
// skipping the HTTP handshake (which is covered by handshake_test.go
// and dial.go/handshake_server.go's own validation logic).
func newTestPair(t *testing.T, clientHandler, serverHandler Handler) (client, server *Conn) {
	t.Helper()

	clientPipe, serverPipe := net.Pipe()
	cfg := DefaultConfig()
	cfg.PingTimeout = time.Second
	cfg.CloseTimeout = time.Second

	client = newConn(RoleClient, clientPipe, cfg, clientHandler, zerolog.Nop())
	server = newConn(RoleServer, serverPipe, cfg, serverHandler, zerolog.Nop())

	for _, c := range []*Conn{client, server} {
		if ok, _ := c.state.transition(stateNew, stateConnecting); !ok {
			t.Fatalf("failed to transition %s to connecting", c.role)
		}
		c.deflateIn = newInflater()
	}

	ctx := context.Background()
	client.start(ctx)
	server.start(ctx)

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	return client, server
}

func TestSendTextDeliversToPeer(t *testing.T) {
	serverHandler := newRecordingHandler()
	client, _ := newTestPair(t, NopHandler{}, serverHandler)

	if err := client.SendText("hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	select {
	case msg := <-serverHandler.messages:
		if msg.Opcode != OpcodeText || string(msg.Data) != "hello" {
			t.Errorf("got message %+v, want Text \"hello\"", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestFragmentedSendReassembles(t *testing.T) {
	serverHandler := newRecordingHandler()
	client, _ := newTestPair(t, NopHandler{}, serverHandler)
	client.cfg.FragmentThreshold = 4

	if err := client.SendText("hello world"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	select {
	case msg := <-serverHandler.messages:
		if string(msg.Data) != "hello world" {
			t.Errorf("got %q, want \"hello world\"", msg.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reassembled message")
	}
}

func TestCloseHandshakeIsClean(t *testing.T) {
	clientHandler := newRecordingHandler()
	serverHandler := newRecordingHandler()
	client, server := newTestPair(t, clientHandler, serverHandler)

	server.Close()

	select {
	case result := <-serverHandler.closed:
		if !result.wasClean {
			t.Errorf("server close: wasClean = false, want true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server OnClose")
	}

	select {
	case result := <-clientHandler.closed:
		if !result.wasClean {
			t.Errorf("client close: wasClean = false, want true")
		}
		if result.code != StatusNormalClosure {
			t.Errorf("client close code = %v, want StatusNormalClosure", result.code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client OnClose")
	}

	if client.ReadyState() != "closed" {
		t.Errorf("client ReadyState() = %q, want \"closed\"", client.ReadyState())
	}
}

func TestPumpRejectsOversizedDeclaredLength(t *testing.T) {
	serverPipe, fakeClient := net.Pipe()
	defer fakeClient.Close()

	cfg := DefaultConfig()
	cfg.MaxMessageSize = 16 << 20
	handler := newRecordingHandler()
	server := newConn(RoleServer, serverPipe, cfg, handler, zerolog.Nop())
	if ok, _ := server.state.transition(stateNew, stateConnecting); !ok {
		t.Fatal("failed to reach connecting")
	}
	server.start(context.Background())

	// A binary frame header declaring a 2^40-byte payload: the server
	// must reject this from the declared length alone, without ever
	// trying to read (or allocate) that much payload.
	go func() {
		fakeClient.Write([]byte{bit0 | byte(OpcodeBinary), bit0 | lenExtended64})
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], 1<<40)
		fakeClient.Write(lenBuf[:])
		// Drain the server's Close frame: net.Pipe writes block until read.
		io.Copy(io.Discard, fakeClient)
	}()

	select {
	case result := <-handler.closed:
		if result.code != StatusMessageTooBig {
			t.Errorf("close code = %v, want StatusMessageTooBig", result.code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the server to fail the oversized frame")
	}
}

func TestPingPong(t *testing.T) {
	client, _ := newTestPair(t, NopHandler{}, NopHandler{})

	if err := client.Ping([]byte("ping")); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if !client.IsAlive() {
		t.Error("IsAlive() = false after a successful Ping")
	}
}
