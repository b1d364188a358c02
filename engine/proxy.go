package engine

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

var baseDialer = &net.Dialer{Timeout: 10 * time.Second}

// proxiedTransport routes requests through proxyURL and keeps the Chrome TLS
// fingerprint: https targets are tunneled by hand (CONNECT or SOCKS5) and the
// handshake on top of the tunnel is done by dialTLS.
func (e *HTTPEngine) proxiedTransport(proxyURL string) (*http.Transport, error) {
	pu, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("http_engine: invalid proxy url: %w", err)
	}

	switch pu.Scheme {
	case "http":
		return &http.Transport{
			// Plain http goes to the proxy as absolute-form requests. https
			// must not: the transport would then do its own TLS after CONNECT.
			Proxy: func(r *http.Request) (*url.URL, error) {
				if r.URL.Scheme == "http" {
					return pu, nil
				}
				return nil, nil
			},
			DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				conn, err := dialConnect(ctx, pu, addr)
				if err != nil {
					return nil, err
				}
				return e.handshake(ctx, conn, addr)
			},
		}, nil

	case "socks5", "socks5h":
		d, err := proxy.FromURL(pu, baseDialer)
		if err != nil {
			return nil, fmt.Errorf("http_engine: socks proxy: %w", err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("http_engine: socks proxy %s cannot dial with a context", pu.Host)
		}
		return &http.Transport{
			DialContext: cd.DialContext,
			DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				conn, err := cd.DialContext(ctx, network, addr)
				if err != nil {
					return nil, err
				}
				return e.handshake(ctx, conn, addr)
			},
		}, nil

	default:
		return nil, fmt.Errorf("http_engine: unsupported proxy scheme %q", pu.Scheme)
	}
}

// dialConnect opens a tunnel to addr through an http proxy.
func dialConnect(ctx context.Context, pu *url.URL, addr string) (net.Conn, error) {
	proxyAddr := pu.Host
	if pu.Port() == "" {
		proxyAddr = net.JoinHostPort(pu.Hostname(), "80")
	}
	conn, err := baseDialer.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("http_engine: dial proxy: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if u := pu.User; u != nil {
		pass, _ := u.Password()
		cred := base64.StdEncoding.EncodeToString([]byte(u.Username() + ":" + pass))
		req.Header.Set("Proxy-Authorization", "Basic "+cred)
	}
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("http_engine: write CONNECT: %w", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("http_engine: read CONNECT response: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("http_engine: proxy refused CONNECT to %s: %s", addr, resp.Status)
	}
	if br.Buffered() > 0 {
		conn.Close()
		return nil, fmt.Errorf("http_engine: proxy sent data before the tunnel was used")
	}
	return conn, nil
}
