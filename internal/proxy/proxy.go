// Package proxy implements HTTP CONNECT tunneling for dialing a pool
// through an http_proxy/https_proxy, the same bootstrap step the original
// client performs before the TLS handshake (if any) and the stratum
// login.
package proxy

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"time"
)

// DialViaConnect opens a TCP connection to proxyURL and issues an HTTP
// CONNECT request for target, returning the tunneled connection once the
// proxy answers 200. Basic auth is taken from proxyURL's userinfo, if
// present.
func DialViaConnect(ctx context.Context, proxyURL *url.URL, target string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", proxyURL.Host)
	if err != nil {
		return nil, fmt.Errorf("dial proxy %s: %w", proxyURL.Host, err)
	}
	// ctx's deadline, if any, also bounds the CONNECT exchange below.
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}

	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n", target, target)
	if proxyURL.User != nil {
		user := proxyURL.User.Username()
		pass, _ := proxyURL.User.Password()
		creds := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
		req += "Proxy-Authorization: Basic " + creds + "\r\n"
	}
	req += "\r\n"

	if _, err := conn.Write([]byte(req)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write CONNECT request: %w", err)
	}

	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read CONNECT response: %w", err)
	}
	if len(status) < 12 || status[9:12] != "200" {
		conn.Close()
		return nil, fmt.Errorf("proxy CONNECT refused: %s", status)
	}
	// drain the remaining header lines up to the blank line
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("read CONNECT headers: %w", err)
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}
	conn.SetDeadline(time.Time{})

	if br.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: br}, nil
	}
	return conn, nil
}

// bufferedConn preserves any bytes the proxy handshake's bufio.Reader
// already pulled off the wire past the CONNECT response.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}
