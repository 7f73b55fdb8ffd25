package miner

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/biluohc/cminer/internal/config"
	"github.com/biluohc/cminer/internal/log"
	"github.com/biluohc/cminer/internal/proxy"
	"github.com/davecgh/go-spew/spew"
	"golang.org/x/time/rate"
)

// maxLineBytes bounds a single stratum line. The original client framed
// with a 1024-byte cap; KAS's hex-encoded notify variant and BTC's
// multi-branch jobs run noticeably longer, so this client frames at
// 80KiB instead.
const maxLineBytes = 80 * 1024

var netLog = log.NewSubsystem(log.NETW)

// RunNetworkSupervisor is the connection supervisor: connect, run the
// read/write pumps until either side errors, sleep 5s, reconnect --
// forever. It's grounded on the original client's client::fun loop and
// on this teacher's pool/client.go run(ctx)/read()/send() goroutine
// split, generalized from a pool-accepting-miners role to a miner
// dialing a pool.
func RunNetworkSupervisor[J any](h Handler[J], receiver <-chan Frame) {
	s := h.StateOf()
	cfg := s.Config()

	for count := 0; ; count++ {
		startTime := time.Now()
		err := connectOnce(h, cfg, receiver, startTime, count)
		netLog.Errorf("#%d connect finished after %s: %v, will sleep 5s", count, time.Since(startTime), err)
		time.Sleep(5 * time.Second)
	}
}

func connectOnce[J any](h Handler[J], cfg *config.Config, receiver <-chan Frame, startTime time.Time, count int) error {
	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout())
	conn, err := dial(ctx, cfg)
	cancel()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	netLog.Infof("#%d tcp connect to %s ok", count, cfg.PoolAddr())

	if tlsCfg, ok := cfg.TLSConfig(); ok {
		tlsConn := tls.Client(conn, tlsCfg)
		hctx, hcancel := context.WithTimeout(context.Background(), config.Timeout())
		err := tlsConn.HandshakeContext(hctx)
		hcancel()
		if err != nil {
			return fmt.Errorf("tls handshake: %w", err)
		}
		conn = tlsConn
		netLog.Infof("#%d tls connect to %s ok", count, cfg.PoolAddr())
	}

	return handleSocket(h, conn, receiver, startTime, count)
}

// dial resolves an HTTP(S) CONNECT proxy from the environment before
// falling back to a direct dial, matching the original's reliance on
// http_proxy/https_proxy rather than a dedicated flag.
func dial(ctx context.Context, cfg *config.Config) (net.Conn, error) {
	proxyURL, err := cfg.ProxyURL()
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	if proxyURL == nil {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", cfg.PoolAddr())
	}
	return proxy.DialViaConnect(ctx, proxyURL, cfg.PoolAddr())
}

func handleSocket[J any](h Handler[J], conn net.Conn, receiver <-chan Frame, startTime time.Time, count int) error {
	loginBody, err := h.HandleRequest(h.LoginRequest())
	if err != nil {
		return fmt.Errorf("render login request: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(config.Timeout()))
	if _, err := fmt.Fprintf(conn, "%s\n", loginBody); err != nil {
		return fmt.Errorf("send login: %w", err)
	}

	errc := make(chan error, 2)
	go func() { errc <- readPump(h, conn) }()
	go func() { errc <- writePump(h, conn, receiver, startTime) }()

	return <-errc
}

// readPump decodes newline-framed JSON from the pool and hands each line
// to the handler, matching the original's loop_handle_response.
func readPump[J any](h Handler[J], conn net.Conn) error {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	for {
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := h.HandleResponse(line); err != nil {
			netLog.Errorf("handle response error: %v", err)
			netLog.Tracef("offending line: %s", spew.Sdump(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read pump: %w", err)
	}
	return fmt.Errorf("read pump: connection closed by peer")
}

// writePump drains the outbound channel onto the wire, matching the
// original's loop_handle_request including its stale-error skip rule:
// an error frame timestamped at or before this connection's start
// belongs to a previous attempt and is dropped rather than treated as
// fatal.
func writePump[J any](h Handler[J], conn net.Conn, receiver <-chan Frame, startTime time.Time) error {
	limiter := rate.NewLimiter(rate.Limit(50), 50)

	for frame := range receiver {
		if frame.IsErr() {
			if !frame.ErrAt().After(startTime) {
				netLog.Warnf("skip error message belonging to a previous connection: %v", frame.Err())
				continue
			}
			return frame.Err()
		}

		if err := limiter.Wait(context.Background()); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		body, err := h.HandleRequest(frame.Req())
		if err != nil {
			netLog.Errorf("render request error: %v", err)
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(config.Timeout()))
		if _, err := fmt.Fprintf(conn, "%s\n", body); err != nil {
			return fmt.Errorf("write pump: %w", err)
		}
	}
	return fmt.Errorf("write pump: outbound channel closed")
}
