package websocket

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestDefaultPort(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"ws://example.com/chat", "example.com:80"},
		{"wss://example.com/chat", "example.com:443"},
		{"wss://example.com:9443/chat", "example.com:9443"},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		if err != nil {
			t.Fatalf("url.Parse(%q): %v", tt.raw, err)
		}
		if got := defaultPort(u); got != tt.want {
			t.Errorf("defaultPort(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestStripPort(t *testing.T) {
	if got := stripPort("example.com:8080"); got != "example.com" {
		t.Errorf("stripPort() = %q, want \"example.com\"", got)
	}
	if got := stripPort("example.com"); got != "example.com" {
		t.Errorf("stripPort() = %q, want \"example.com\"", got)
	}
}

func TestGenerateNonceLength(t *testing.T) {
	nonce, err := generateNonce(bytes.NewReader(make([]byte, 16)))
	if err != nil {
		t.Fatalf("generateNonce: %v", err)
	}
	// 16 raw bytes base64-encode to 24 characters including padding.
	if len(nonce) != 24 {
		t.Errorf("len(nonce) = %d, want 24", len(nonce))
	}
}

func TestBuildHandshakeRequest(t *testing.T) {
	u, _ := url.Parse("ws://example.com/chat")
	dc := &dialConfig{
		headers:      make(http.Header),
		subprotocols: []string{"chat", "superchat"},
		deflate:      true,
	}
	req, err := buildHandshakeRequest(u, dc, "dGhlIHNhbXBsZSBub25jZQ==")
	if err != nil {
		t.Fatalf("buildHandshakeRequest: %v", err)
	}

	if req.URL.Scheme != "http" {
		t.Errorf("scheme = %q, want \"http\"", req.URL.Scheme)
	}
	if got := req.Header.Get("Upgrade"); got != "websocket" {
		t.Errorf("Upgrade header = %q", got)
	}
	if got := req.Header.Get("Sec-WebSocket-Protocol"); got != "chat, superchat" {
		t.Errorf("Sec-WebSocket-Protocol = %q", got)
	}
	if !strings.Contains(req.Header.Get("Sec-WebSocket-Extensions"), "permessage-deflate") {
		t.Errorf("Sec-WebSocket-Extensions = %q, want permessage-deflate", req.Header.Get("Sec-WebSocket-Extensions"))
	}
}

func TestBuildHandshakeRequestRejectsBadScheme(t *testing.T) {
	u, _ := url.Parse("ftp://example.com/chat")
	dc := &dialConfig{headers: make(http.Header)}
	if _, err := buildHandshakeRequest(u, dc, "nonce"); !errors.Is(err, ErrHandshakeFailed) {
		t.Fatalf("got %v, want ErrHandshakeFailed", err)
	}
}

func TestCheckHandshakeResponse(t *testing.T) {
	nonce := "dGhlIHNhbXBsZSBub25jZQ=="
	resp := &http.Response{
		StatusCode: http.StatusSwitchingProtocols,
		Header: http.Header{
			"Upgrade":              {"websocket"},
			"Connection":           {"Upgrade"},
			"Sec-Websocket-Accept": {computeAcceptKey(nonce)},
		},
	}
	deflate, err := checkHandshakeResponse(resp, nonce, false)
	if err != nil {
		t.Fatalf("checkHandshakeResponse: %v", err)
	}
	if deflate {
		t.Error("deflate = true, want false (not offered)")
	}
}

func TestCheckHandshakeResponseRejectsWrongStatus(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusForbidden,
		Header:     http.Header{},
		Body:       http.NoBody,
	}
	if _, err := checkHandshakeResponse(resp, "nonce", false); !errors.Is(err, ErrHandshakeFailed) {
		t.Fatalf("got %v, want ErrHandshakeFailed", err)
	}
}

func TestCheckHandshakeResponseRejectsBadAccept(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusSwitchingProtocols,
		Header: http.Header{
			"Upgrade":              {"websocket"},
			"Connection":           {"Upgrade"},
			"Sec-Websocket-Accept": {"not-the-right-value"},
		},
	}
	if _, err := checkHandshakeResponse(resp, "dGhlIHNhbXBsZSBub25jZQ==", false); !errors.Is(err, ErrHandshakeFailed) {
		t.Fatalf("got %v, want ErrHandshakeFailed", err)
	}
}

func TestCheckHandshakeResponseNegotiatesDeflate(t *testing.T) {
	nonce := "dGhlIHNhbXBsZSBub25jZQ=="
	resp := &http.Response{
		StatusCode: http.StatusSwitchingProtocols,
		Header: http.Header{
			"Upgrade":                  {"websocket"},
			"Connection":               {"Upgrade"},
			"Sec-Websocket-Accept":     {computeAcceptKey(nonce)},
			"Sec-Websocket-Extensions": {"permessage-deflate; client_no_context_takeover; server_no_context_takeover"},
		},
	}
	deflate, err := checkHandshakeResponse(resp, nonce, true)
	if err != nil {
		t.Fatalf("checkHandshakeResponse: %v", err)
	}
	if !deflate {
		t.Error("deflate = false, want true")
	}
}
