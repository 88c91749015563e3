package websocket

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
)

// connectThroughProxy implements spec.md §6's proxy CONNECT support:
// it issues "CONNECT host:port HTTP/1.1" over conn and, on a 407,
// retries once with credentials produced by dc.proxyAuth.
func connectThroughProxy(ctx context.Context, conn net.Conn, targetHost string, dc *dialConfig) error {
	resp, err := sendConnect(ctx, conn, targetHost, "")
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if resp.StatusCode != http.StatusProxyAuthRequired || dc.proxyAuth == nil {
		return fmt.Errorf("%w: proxy CONNECT failed with status %d", ErrHandshakeFailed, resp.StatusCode)
	}

	challengeHeader := resp.Header.Get("Proxy-Authenticate")
	challenge, err := ParseChallenge(challengeHeader)
	if err != nil {
		return fmt.Errorf("failed to parse proxy challenge: %w", err)
	}
	authHeader, err := dc.proxyAuth(challenge)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthRequired, err)
	}

	resp2, err := sendConnect(ctx, conn, targetHost, authHeader)
	if err != nil {
		return err
	}
	if resp2.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: proxy CONNECT retry failed with status %d", ErrAuthRequired, resp2.StatusCode)
	}
	return nil
}

// sendConnect writes one CONNECT request/response round trip over an
// already-dialed proxy connection.
func sendConnect(ctx context.Context, conn net.Conn, targetHost, proxyAuthHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodConnect, "http://"+targetHost, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build CONNECT request: %w", err)
	}
	req.Host = targetHost
	if proxyAuthHeader != "" {
		req.Header.Set("Proxy-Authorization", proxyAuthHeader)
	}

	if err := req.Write(conn); err != nil {
		return nil, fmt.Errorf("failed to write CONNECT request: %w", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return nil, fmt.Errorf("failed to read CONNECT response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
	return resp, nil
}
