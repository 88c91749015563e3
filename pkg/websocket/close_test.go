package websocket

import (
	"errors"
	"io"
	"net"
	"testing"

	"github.com/rs/zerolog"
)

// openTestConn builds a Conn in the Open state, backed by a net.Pipe
// whose peer end is drained in the background so writes never block.
func openTestConn(t *testing.T, h Handler) *Conn {
	t.Helper()

	local, remote := net.Pipe()
	go io.Copy(io.Discard, remote)
	t.Cleanup(func() { remote.Close() })

	if h == nil {
		h = NopHandler{}
	}
	c := newConn(RoleClient, local, DefaultConfig(), h, zerolog.Nop())
	if ok, _ := c.state.transition(stateNew, stateConnecting); !ok {
		t.Fatal("failed to reach connecting")
	}
	if ok, _ := c.transitionToOpen(); !ok {
		t.Fatal("failed to reach open")
	}
	close(c.pumpDone)
	return c
}

func TestPerformCloseIsOneShot(t *testing.T) {
	c := openTestConn(t, nil)

	if first := c.performClose(StatusNormalClosure, "bye", initiatorLocal); !first {
		t.Fatal("first performClose call returned false, want true")
	}
	if second := c.performClose(StatusNormalClosure, "again", initiatorLocal); second {
		t.Fatal("second performClose call returned true, want false")
	}
	if c.ReadyState() != "closed" {
		t.Errorf("ReadyState() = %q, want \"closed\"", c.ReadyState())
	}
}

func TestCloseWithCodeRejectsForbiddenCode(t *testing.T) {
	c := openTestConn(t, nil)

	err := c.CloseWithCode(StatusCode(1005), "nope")
	if !errors.Is(err, ErrBadStatusCode) {
		t.Fatalf("got %v, want ErrBadStatusCode", err)
	}
	if c.ReadyState() != "open" {
		t.Errorf("ReadyState() = %q after a rejected close, want \"open\"", c.ReadyState())
	}
}

func TestCloseWithCodeReportsAlreadyClosing(t *testing.T) {
	c := openTestConn(t, nil)

	if err := c.CloseWithCode(StatusGoingAway, "first"); err != nil {
		t.Fatalf("first CloseWithCode: %v", err)
	}
	err := c.CloseWithCode(StatusGoingAway, "second")
	if !errors.Is(err, ErrCloseSent) {
		t.Fatalf("got %v, want ErrCloseSent", err)
	}
}

func TestFailBeforeOpenReportsUnclean(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	received := make(chan struct {
		code     StatusCode
		wasClean bool
	}, 1)
	h := &closeCaptureHandler{ch: received}

	c := newConn(RoleClient, local, DefaultConfig(), h, zerolog.Nop())
	c.failBeforeOpen(StatusAbnormalClosure, "handshake failed")

	select {
	case result := <-received:
		if result.wasClean {
			t.Error("wasClean = true, want false")
		}
		if result.code != StatusAbnormalClosure {
			t.Errorf("code = %v, want StatusAbnormalClosure", result.code)
		}
	default:
		t.Fatal("OnClose was not called")
	}

	if c.ReadyState() != "closed" {
		t.Errorf("ReadyState() = %q, want \"closed\"", c.ReadyState())
	}

	// A second call must be a no-op: the pumpDone channel must not be
	// closed twice.
	c.failBeforeOpen(StatusAbnormalClosure, "again")
}

type closeCaptureHandler struct {
	NopHandler
	ch chan struct {
		code     StatusCode
		wasClean bool
	}
}

func (h *closeCaptureHandler) OnClose(_ *Conn, code StatusCode, _ string, wasClean bool) {
	h.ch <- struct {
		code     StatusCode
		wasClean bool
	}{code, wasClean}
}
