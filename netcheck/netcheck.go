package netcheck

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	tls2 "github.com/refraction-networking/utls"
	"github.com/use-agent/serpent/models"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
)

// DefaultEndpoint answers with {"ip": ..., "country": ..., "org": ...}.
const DefaultEndpoint = "https://ipinfo.io/json"

// Checker looks up the public address traffic leaves from, presenting a
// Chrome TLS fingerprint so the lookup looks like the browser it vouches for.
type Checker struct {
	Endpoint  string
	UserAgent string
	Timeout   time.Duration

	// InsecureSkipVerify disables certificate checks; tests only.
	InsecureSkipVerify bool
}

// Lookup returns the egress address seen through proxyURL (direct when empty).
// Supported proxy schemes: http, https, socks5, socks5h.
func (c *Checker) Lookup(ctx context.Context, proxyURL string) (*models.IPInfo, error) {
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("netcheck: invalid endpoint: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("netcheck: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	conn, err := dialThrough(ctx, proxyURL, hostPort(target))
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	var resp *http.Response
	if target.Scheme == "https" {
		tlsConn, err := handshakeChrome(ctx, conn, target.Hostname(), c.InsecureSkipVerify)
		if err != nil {
			return nil, err
		}
		resp, err = roundTrip(tlsConn, tlsConn.ConnectionState().NegotiatedProtocol, req)
		if err != nil {
			return nil, err
		}
	} else {
		resp, err = roundTrip(conn, "", req)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("netcheck: endpoint returned status %d", resp.StatusCode)
	}
	return decode(io.LimitReader(resp.Body, 64*1024))
}

func decode(r io.Reader) (*models.IPInfo, error) {
	var info models.IPInfo
	if err := json.NewDecoder(r).Decode(&info); err != nil {
		return nil, fmt.Errorf("netcheck: decode response: %w", err)
	}
	if info.IP == "" {
		return nil, fmt.Errorf("netcheck: response has no ip")
	}
	return &info, nil
}

// dialThrough opens a TCP connection to addr, tunnelling through the proxy
// when one is given.
func dialThrough(ctx context.Context, proxyURL, addr string) (net.Conn, error) {
	dialer := &net.Dialer{}
	if proxyURL == "" {
		return dialer.DialContext(ctx, "tcp", addr)
	}
	pu, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("netcheck: invalid proxy: %w", err)
	}

	switch pu.Scheme {
	case "socks5", "socks5h":
		d, err := proxy.FromURL(pu, dialer)
		if err != nil {
			return nil, fmt.Errorf("netcheck: socks5 proxy: %w", err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return d.Dial("tcp", addr)
		}
		return cd.DialContext(ctx, "tcp", addr)
	case "http", "https":
		conn, err := dialer.DialContext(ctx, "tcp", hostPort(pu))
		if err != nil {
			return nil, fmt.Errorf("netcheck: dial proxy: %w", err)
		}
		if err := connect(conn, pu, addr); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("netcheck: unsupported proxy scheme %q", pu.Scheme)
	}
}

// connect issues an HTTP CONNECT for addr over an open proxy connection.
func connect(conn net.Conn, pu *url.URL, addr string) error {
	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if pu.User != nil {
		pass, _ := pu.User.Password()
		req.SetBasicAuth(pu.User.Username(), pass)
		req.Header.Set("Proxy-Authorization", req.Header.Get("Authorization"))
		req.Header.Del("Authorization")
	}
	if err := req.Write(conn); err != nil {
		return fmt.Errorf("netcheck: proxy connect: %w", err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		return fmt.Errorf("netcheck: proxy connect: %w", err)
	}
	// The tunnel has no body; closing it would drain the connection.
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("netcheck: proxy refused tunnel: %s", resp.Status)
	}
	return nil
}

// handshakeChrome performs a TLS handshake with a Chrome ClientHello.
func handshakeChrome(ctx context.Context, raw net.Conn, host string, insecure bool) (*tls2.UConn, error) {
	conn := tls2.UClient(raw, &tls2.Config{
		ServerName:         host,
		InsecureSkipVerify: insecure,
	}, tls2.HelloChrome_Auto)
	if err := conn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("netcheck: tls handshake: %w", err)
	}
	return conn, nil
}

// roundTrip sends a single request over conn, speaking HTTP/2 when the
// handshake negotiated it.
func roundTrip(conn net.Conn, proto string, req *http.Request) (*http.Response, error) {
	if proto == "h2" {
		cc, err := (&http2.Transport{}).NewClientConn(conn)
		if err != nil {
			return nil, fmt.Errorf("netcheck: h2 client: %w", err)
		}
		resp, err := cc.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("netcheck: request failed: %w", err)
		}
		return resp, nil
	}

	req.Close = true
	if err := req.Write(conn); err != nil {
		return nil, fmt.Errorf("netcheck: request failed: %w", err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		return nil, fmt.Errorf("netcheck: read response: %w", err)
	}
	return resp, nil
}

func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "https" {
		return net.JoinHostPort(u.Hostname(), "443")
	}
	return net.JoinHostPort(u.Hostname(), "80")
}
